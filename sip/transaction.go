package sip

import (
	"context"
	"fmt"
	"time"
)

// TransactionState is a server transaction FSM state, RFC 3261 Section 17.2.
type TransactionState int

const (
	TransactionStateTrying TransactionState = iota
	TransactionStateProceeding
	TransactionStateCompleted
	TransactionStateConfirmed
	TransactionStateAccepted
	TransactionStateTerminated
)

func (s TransactionState) String() string {
	switch s {
	case TransactionStateTrying:
		return "Trying"
	case TransactionStateProceeding:
		return "Proceeding"
	case TransactionStateCompleted:
		return "Completed"
	case TransactionStateConfirmed:
		return "Confirmed"
	case TransactionStateAccepted:
		return "Accepted"
	case TransactionStateTerminated:
		return "Terminated"
	default:
		return fmt.Sprintf("TransactionState(%d)", int(s))
	}
}

// TransactionType distinguishes the two RFC 3261 Section 17.2 server FSMs.
type TransactionType int

const (
	TransactionTypeServerInvite TransactionType = iota
	TransactionTypeServerNonInvite
)

func (t TransactionType) String() string {
	if t == TransactionTypeServerInvite {
		return "server-invite"
	}
	return "server-non-invite"
}

// ServerTransactionKey uniquely identifies a server transaction per the
// RFC 3261 Section 17.2.3 matching rules: top Via branch (when it carries
// the [RFC3261BranchMagicCookie]), sent-by host/port, and CSeq method
// (non-INVITE transactions do not match their CANCEL; ACK only matches an
// INVITE transaction, never a non-INVITE one).
type ServerTransactionKey struct {
	Branch     string
	SentByHost string
	SentByPort Port
	Method     Method
}

// MakeServerTransactionKey derives the matching key of an inbound request.
// method should be the CSeq method for everything except CANCEL, where it
// must be the original INVITE's method (CANCEL matches its INVITE by
// branch+sent-by, independent of method, per Section 9.2).
func MakeServerTransactionKey(req *Request) (ServerTransactionKey, error) {
	hop, ok := req.ViaHop()
	if !ok {
		return ServerTransactionKey{}, NewInvalidArgumentError("missing Via header")
	}
	branch, _ := hop.Branch()
	port := DefaultPort(hop.Transport)
	if hop.Port != nil {
		port = *hop.Port
	}

	key := ServerTransactionKey{
		Branch:     branch,
		SentByHost: hop.Host,
		SentByPort: port,
		Method:     req.Method(),
	}
	if key.Method.Equal(MethodAck) || key.Method.Equal(MethodCancel) {
		// ACK matches the INVITE transaction it acknowledges; CANCEL matches
		// the transaction it cancels: both key on the INVITE method.
		key.Method = MethodInvite
	}
	return key, nil
}

func (k ServerTransactionKey) IsValid() bool {
	return k.Branch != "" && k.SentByHost != ""
}

func (k ServerTransactionKey) String() string {
	return fmt.Sprintf("%s;branch=%s;sent-by=%s:%s", k.Method, k.Branch, k.SentByHost, k.SentByPort)
}

// ServerTransaction is the RFC 3261 Section 17.2 server transaction
// contract shared by INVITE and non-INVITE transactions.
type ServerTransaction interface {
	Key() ServerTransactionKey
	Type() TransactionType
	State() TransactionState
	Request() *InboundRequestEnvelope
	LastResponse() *Response

	// Respond drives the transaction's FSM with an outbound response.
	Respond(ctx context.Context, res *Response) error
	// RecvRequest feeds a matched, retransmitted, or (for INVITE, an ACK)
	// follow-up inbound request into the transaction.
	RecvRequest(ctx context.Context, env *InboundRequestEnvelope) error
	// Terminate forces the transaction to the Terminated state, cancelling
	// any pending timers. Used when the owning Call is destroyed early.
	Terminate(ctx context.Context) error

	// OnStateChanged registers a callback invoked on every FSM transition.
	OnStateChanged(fn TransactionStateHandler) (unbind func())
}

// ServerTransactionOptions configures a new server transaction.
type ServerTransactionOptions struct {
	Key     ServerTransactionKey
	Timings TimingConfig
}

// defaultCallbackTimeout is a 30-second app-callback bound, distinct from the
// RFC 3261 retransmission timers. Nothing in this package reads it; the
// application bridge applies its own app.DefaultCallbackTimeout.
const defaultCallbackTimeout = 30 * time.Second
