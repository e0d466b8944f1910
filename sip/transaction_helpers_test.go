package sip_test

import (
	"context"
	"sync"
	"time"

	"github.com/ghettovoice/gosip/sip"
)

// fakeTransport is a minimal [sip.ServerTransport] recording every response
// handed to it, used by the transaction FSM tests in place of a real
// network transport.
type fakeTransport struct {
	reliable bool

	mu   sync.Mutex
	sent []*sip.Response
	err  error
}

func (tp *fakeTransport) Reliable() bool { return tp.reliable }

func (tp *fakeTransport) SendResponse(_ context.Context, env *sip.OutboundResponseEnvelope) error {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	if tp.err != nil {
		return tp.err
	}
	tp.sent = append(tp.sent, env.Res)
	return nil
}

func (tp *fakeTransport) responses() []*sip.Response {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	return append([]*sip.Response(nil), tp.sent...)
}

// newTestRequest builds a minimally valid request of the given method with
// a fresh branch, ready to be fed to a server transaction constructor.
func newTestRequest(method sip.Method) *sip.Request {
	uri := &sip.URI{Scheme: "sip", Host: "example.com", UParams: sip.NewParams(), Headers: sip.NewParams()}
	viaParams := sip.NewParams().Set("branch", sip.String{Str: sip.GenerateBranch()})
	via := sip.ViaHeader{{ProtocolName: "SIP", ProtocolVersion: "2.0", Transport: "UDP", Host: "127.0.0.1", Params: viaParams}}
	to := (*sip.ToHeader)(&sip.Address{URI: uri, Params: sip.NewParams()})
	from := (*sip.FromHeader)(&sip.Address{URI: uri, Params: sip.NewParams().Set("tag", sip.String{Str: "from-tag"})})

	return sip.NewRequest(method, uri, "", []sip.Header{
		via, to, from, sip.CallID("call-1"), &sip.CSeq{SeqNo: 1, Method: method}, sip.MaxForwards(70),
	}, nil)
}

func newTestEnvelope(method sip.Method) *sip.InboundRequestEnvelope {
	return &sip.InboundRequestEnvelope{Req: newTestRequest(method), Transport: "UDP", RemoteAddr: "127.0.0.1:5060"}
}

// fastTimings scales every RFC 3261 Appendix A timer down to millisecond
// range so the FSM tests don't wait on the real 500ms T1 default.
func fastTimings() sip.TimingConfig {
	return sip.NewTimings(2*time.Millisecond, 8*time.Millisecond, 10*time.Millisecond, 20*time.Millisecond, 2*time.Millisecond)
}
