package sip_test

import (
	"context"
	"testing"

	"github.com/ghettovoice/gosip/sip"
)

func TestTransactionLayer_RecvRequestMatchesRetransmit(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tp := &fakeTransport{reliable: true}
	tl := sip.NewTransactionLayer(tp)

	env := newTestEnvelope(sip.MethodOptions)
	if _, matched, err := tl.RecvRequest(ctx, env); err != nil || matched {
		t.Fatalf("RecvRequest(first) = (matched=%v, err=%v), want (false, nil)", matched, err)
	}

	if _, err := tl.AddNonInviteTransaction(ctx, env, fastTimings()); err != nil {
		t.Fatalf("AddNonInviteTransaction() error = %v, want nil", err)
	}

	// Same branch/sent-by/method: a retransmit of the same request.
	if _, matched, err := tl.RecvRequest(ctx, env); err != nil || !matched {
		t.Fatalf("RecvRequest(retransmit) = (matched=%v, err=%v), want (true, nil)", matched, err)
	}
}

func TestTransactionLayer_CheckLoop(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tp := &fakeTransport{reliable: true}
	tl := sip.NewTransactionLayer(tp)

	env := newTestEnvelope(sip.MethodOptions)
	key, err := sip.MakeServerTransactionKey(env.Req)
	if err != nil {
		t.Fatalf("MakeServerTransactionKey() error = %v, want nil", err)
	}

	looped, err := tl.CheckLoop(env.Req, key)
	if err != nil || looped {
		t.Fatalf("CheckLoop(first) = (%v, %v), want (false, nil)", looped, err)
	}
	if _, err := tl.AddNonInviteTransaction(ctx, env, fastTimings()); err != nil {
		t.Fatalf("AddNonInviteTransaction() error = %v, want nil", err)
	}

	// Same From tag/Call-ID/CSeq but a fresh branch (so a different
	// transaction key) while the first transaction is still alive: RFC 3261
	// Section 16.3 step 4 loop detection.
	loopEnv := newTestEnvelope(sip.MethodOptions)
	loopKey, err := sip.MakeServerTransactionKey(loopEnv.Req)
	if err != nil {
		t.Fatalf("MakeServerTransactionKey(duplicate) error = %v, want nil", err)
	}
	looped, err = tl.CheckLoop(loopEnv.Req, loopKey)
	if err != nil {
		t.Fatalf("CheckLoop(duplicate) error = %v, want nil", err)
	}
	if !looped {
		t.Errorf("CheckLoop(duplicate) = false, want true")
	}
}

func TestTransactionLayer_FindCancelledInvite(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tp := &fakeTransport{reliable: true}
	tl := sip.NewTransactionLayer(tp)

	inviteEnv := newTestEnvelope(sip.MethodInvite)
	invTx, err := tl.AddInviteTransaction(ctx, inviteEnv, fastTimings())
	if err != nil {
		t.Fatalf("AddInviteTransaction() error = %v, want nil", err)
	}

	// CANCEL shares the INVITE's branch and sent-by; build it by cloning the
	// INVITE's Via rather than minting a new branch.
	cancelReq := inviteEnv.Req.Clone()
	cancelReq.SetRequestURI(inviteEnv.Req.RequestURI())
	cancel := sip.NewRequest(sip.MethodCancel, inviteEnv.Req.RequestURI(), "", cancelReq.Headers(), nil)

	got, ok := tl.FindCancelledInvite(cancel)
	if !ok {
		t.Fatalf("FindCancelledInvite() ok = false, want true")
	}
	if got != invTx {
		t.Errorf("FindCancelledInvite() = %p, want %p", got, invTx)
	}
}

func TestLoopID_RequiresMandatoryHeaders(t *testing.T) {
	t.Parallel()

	uri := &sip.URI{Scheme: "sip", Host: "example.com", UParams: sip.NewParams(), Headers: sip.NewParams()}
	req := sip.NewRequest(sip.MethodOptions, uri, "", nil, nil)
	if _, err := sip.LoopID(req); err == nil {
		t.Fatalf("LoopID(request missing headers) error = nil, want non-nil")
	}
}
