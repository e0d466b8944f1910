package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/ghettovoice/gosip/app"
	"github.com/ghettovoice/gosip/sip"
)

func TestBridge_DispatchSkipsNotExported(t *testing.T) {
	t.Parallel()

	b := app.NewBridge(0)
	b.Register(&app.Handle{
		Name:  "skip",
		Invite: func(context.Context, *sip.Request) (app.Decision, error) {
			return app.NotExportedDecision{}, nil
		},
	})
	b.Register(&app.Handle{
		Name: "answer",
		Invite: func(context.Context, *sip.Request) (app.Decision, error) {
			return app.ReplyDecision{Status: sip.StatusOK}, nil
		},
	})

	req := sip.NewRequest(sip.MethodInvite, nil, "", nil, nil)
	name, decision, err := b.Dispatch(context.Background(), req, false)
	if err != nil {
		t.Fatalf("Dispatch() error = %v, want nil", err)
	}
	if name != "answer" {
		t.Errorf("Dispatch() module = %q, want \"answer\"", name)
	}
	if _, ok := decision.(app.ReplyDecision); !ok {
		t.Errorf("Dispatch() decision = %T, want app.ReplyDecision", decision)
	}
}

func TestBridge_DispatchNoHandler(t *testing.T) {
	t.Parallel()

	b := app.NewBridge(0)
	req := sip.NewRequest(sip.MethodInvite, nil, "", nil, nil)
	_, _, err := b.Dispatch(context.Background(), req, false)
	if diff := cmp.Diff(err, app.ErrNoHandler, cmpopts.EquateErrors()); diff != "" {
		t.Errorf("Dispatch() error diff (-got +want):\n%s", diff)
	}
}

func TestBridge_DispatchTimeout(t *testing.T) {
	t.Parallel()

	b := app.NewBridge(5 * time.Millisecond)
	b.Register(&app.Handle{
		Name: "slow",
		Invite: func(ctx context.Context, _ *sip.Request) (app.Decision, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	})

	req := sip.NewRequest(sip.MethodInvite, nil, "", nil, nil)
	_, _, err := b.Dispatch(context.Background(), req, false)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Dispatch() error = %v, want context.DeadlineExceeded", err)
	}
}

func TestBridge_AsyncReplyRoundTrip(t *testing.T) {
	t.Parallel()

	tok := app.NewToken()
	b := app.NewBridge(0)
	b.Register(&app.Handle{
		Name: "async",
		Invite: func(context.Context, *sip.Request) (app.Decision, error) {
			return app.AsyncDecision{Token: tok}, nil
		},
	})

	req := sip.NewRequest(sip.MethodInvite, nil, "", nil, nil)
	_, decision, err := b.Dispatch(context.Background(), req, false)
	if err != nil {
		t.Fatalf("Dispatch() error = %v, want nil", err)
	}
	async, ok := decision.(app.AsyncDecision)
	if !ok {
		t.Fatalf("Dispatch() decision = %T, want app.AsyncDecision", decision)
	}

	want := app.ReplyDecision{Status: sip.StatusOK}
	go func() {
		if err := b.Reply(async.Token, want); err != nil {
			t.Errorf("Reply() error = %v, want nil", err)
		}
	}()

	got, err := b.Await(context.Background(), async.Token)
	if err != nil {
		t.Fatalf("Await() error = %v, want nil", err)
	}
	if diff := cmp.Diff(got, want); diff != "" {
		t.Errorf("Await() diff (-got +want):\n%s", diff)
	}

	if err := b.Reply(async.Token, want); !errors.Is(err, app.ErrUnknownToken) {
		t.Errorf("second Reply() error = %v, want ErrUnknownToken (token already resolved)", err)
	}
}

func TestBridge_AbandonDiscardsPendingReply(t *testing.T) {
	t.Parallel()

	tok := app.NewToken()
	b := app.NewBridge(0)
	b.Register(&app.Handle{
		Name: "async",
		Invite: func(context.Context, *sip.Request) (app.Decision, error) {
			return app.AsyncDecision{Token: tok}, nil
		},
	})

	req := sip.NewRequest(sip.MethodInvite, nil, "", nil, nil)
	_, decision, err := b.Dispatch(context.Background(), req, false)
	if err != nil {
		t.Fatalf("Dispatch() error = %v, want nil", err)
	}
	async := decision.(app.AsyncDecision) //nolint:forcetypeassert

	b.Abandon(async.Token)
	if err := b.Reply(async.Token, app.ReplyDecision{}); !errors.Is(err, app.ErrUnknownToken) {
		t.Errorf("Reply() after Abandon() error = %v, want ErrUnknownToken", err)
	}
}

func TestBridge_DispatchInDialogInviteUsesReinvite(t *testing.T) {
	t.Parallel()

	b := app.NewBridge(0)
	var sawInvite, sawReinvite bool
	b.Register(&app.Handle{
		Name: "session",
		Invite: func(context.Context, *sip.Request) (app.Decision, error) {
			sawInvite = true
			return app.ReplyDecision{Status: sip.StatusOK}, nil
		},
		Reinvite: func(context.Context, *sip.Request) (app.Decision, error) {
			sawReinvite = true
			return app.ReplyDecision{Status: sip.StatusOK}, nil
		},
	})

	req := sip.NewRequest(sip.MethodInvite, nil, "", nil, nil)
	if _, _, err := b.Dispatch(context.Background(), req, true); err != nil {
		t.Fatalf("Dispatch() error = %v, want nil", err)
	}
	if sawInvite {
		t.Errorf("Dispatch(inDialog=true) called Invite, want Reinvite")
	}
	if !sawReinvite {
		t.Errorf("Dispatch(inDialog=true) did not call Reinvite")
	}
}

func TestBridge_DispatchInDialogSubscribeUsesResubscribe(t *testing.T) {
	t.Parallel()

	b := app.NewBridge(0)
	var sawSubscribe, sawResubscribe bool
	b.Register(&app.Handle{
		Name: "presence",
		Subscribe: func(context.Context, *sip.Request) (app.Decision, error) {
			sawSubscribe = true
			return app.ReplyDecision{Status: sip.StatusOK}, nil
		},
		Resubscribe: func(context.Context, *sip.Request) (app.Decision, error) {
			sawResubscribe = true
			return app.ReplyDecision{Status: sip.StatusOK}, nil
		},
	})

	req := sip.NewRequest(sip.MethodSubscribe, nil, "", nil, nil)
	if _, _, err := b.Dispatch(context.Background(), req, true); err != nil {
		t.Fatalf("Dispatch() error = %v, want nil", err)
	}
	if sawSubscribe {
		t.Errorf("Dispatch(inDialog=true) called Subscribe, want Resubscribe")
	}
	if !sawResubscribe {
		t.Errorf("Dispatch(inDialog=true) did not call Resubscribe")
	}
}

func TestBridge_AckCallsEveryModuleThatExportsIt(t *testing.T) {
	t.Parallel()

	b := app.NewBridge(0)
	var first, second bool
	b.Register(&app.Handle{
		Name: "one",
		Ack:  func(context.Context, *sip.Request) { first = true },
	})
	b.Register(&app.Handle{
		Name: "two",
		Ack:  func(context.Context, *sip.Request) { second = true },
	})
	b.Register(&app.Handle{Name: "silent"})

	req := sip.NewRequest(sip.MethodAck, nil, "", nil, nil)
	b.Ack(context.Background(), req)

	if !first || !second {
		t.Errorf("Ack() first=%v second=%v, want both true", first, second)
	}
}

func TestBridge_AuthorizeAllowsByDefault(t *testing.T) {
	t.Parallel()

	b := app.NewBridge(0)
	req := sip.NewRequest(sip.MethodInvite, nil, "", nil, nil)
	res, err := b.Authorize(context.Background(), req)
	if err != nil {
		t.Fatalf("Authorize() error = %v, want nil", err)
	}
	rd, ok := res.Decision.(app.ReplyDecision)
	if !ok || rd.Status != sip.StatusOK {
		t.Errorf("Authorize() with no module = %+v, want ReplyDecision{Status: 200}", res)
	}
}
