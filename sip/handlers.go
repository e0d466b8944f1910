package sip

import "context"

// InboundRequestEnvelope wraps a Request with the transport metadata the
// transaction core needs but never produces itself.
type InboundRequestEnvelope struct {
	Req        *Request
	Transport  string
	LocalAddr  string
	RemoteAddr string
}

func (e *InboundRequestEnvelope) Method() Method  { return e.Req.Method() }
func (e *InboundRequestEnvelope) Validate() error { return e.Req.Validate() }

// OutboundResponseEnvelope wraps a Response destined for the wire.
type OutboundResponseEnvelope struct {
	Res        *Response
	Transport  string
	RemoteAddr string
}

// InboundResponseEnvelope wraps a Response as received from the wire.
type InboundResponseEnvelope struct {
	Res        *Response
	Transport  string
	RemoteAddr string
}

// OutboundRequestEnvelope wraps a Request destined for the wire.
type OutboundRequestEnvelope struct {
	Req        *Request
	Transport  string
	RemoteAddr string
}

// ServerTransport is the contract a server transaction uses to deliver
// responses to the network. Transport selection, connection pooling and
// retransmission over the wire are entirely the transport layer's concern;
// the transaction core only needs to know whether the channel is reliable
// and how to hand a response off.
type ServerTransport interface {
	// Reliable reports whether the transport guarantees delivery, which
	// governs whether unreliable-transport retransmit timers are armed.
	Reliable() bool
	// SendResponse hands a response to the transport layer for delivery.
	SendResponse(ctx context.Context, env *OutboundResponseEnvelope) error
}

// Handler type aliases used by the transaction and application layers.
type (
	ErrorHandler = func(ctx context.Context, err error)

	InboundRequestHandler  = func(ctx context.Context, env *InboundRequestEnvelope)
	InboundResponseHandler = func(ctx context.Context, env *InboundResponseEnvelope)

	TransactionStateHandler = func(ctx context.Context, from, to TransactionState)
)
