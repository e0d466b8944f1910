package app

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"braces.dev/errtrace"
	"github.com/google/uuid"

	"github.com/ghettovoice/gosip/internal/errorutil"
	"github.com/ghettovoice/gosip/log"
	"github.com/ghettovoice/gosip/sip"
)

// Errors returned by [Bridge.Dispatch] and [Bridge.Reply].
const (
	ErrNoHandler      errorutil.Error = "no module handled the request"
	ErrUnknownToken   errorutil.Error = "unknown async reply token"
	ErrAlreadyReplied errorutil.Error = "request already answered"
)

// DefaultCallbackTimeout bounds how long a single callback invocation may
// run before the bridge treats it as failed with [ErrorKindTimeout]. It is
// unrelated to the RFC 3261 transaction timers in the sip package.
const DefaultCallbackTimeout = 30 * time.Second

// pendingAsync tracks one in-flight [AsyncDecision] awaiting its reply.
type pendingAsync struct {
	mu       sync.Mutex
	replied  bool
	resultCh chan Decision
}

// Bridge dispatches requests through an ordered chain of application
// [Handle]s (the "continue" protocol: a module that does not export a
// callback, or that explicitly returns [NotExportedDecision], is skipped in
// favor of the next one) and resolves the asynchronous replies modules
// submit later via opaque [Token]s.
type Bridge struct {
	mu      sync.RWMutex
	modules []*Handle
	timeout time.Duration

	pending sync.Map // Token -> *pendingAsync

	log *slog.Logger
}

// NewBridge creates a bridge with the given callback timeout. A zero
// timeout uses [DefaultCallbackTimeout].
func NewBridge(timeout time.Duration) *Bridge {
	if timeout <= 0 {
		timeout = DefaultCallbackTimeout
	}
	return &Bridge{timeout: timeout, log: log.Default().With(slog.String("component", "app_bridge"))}
}

// Register appends a module to the end of the dispatch chain.
func (b *Bridge) Register(h *Handle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.modules = append(b.modules, h)
}

// Authorize runs the authorize callback chain. Unlike the per-method
// callbacks, authorization fails open: if no module exports Authorize, the
// result is a 200 [ReplyDecision], which the engine treats as permission to
// route the request.
func (b *Bridge) Authorize(ctx context.Context, req *sip.Request) (AuthorizeResult, error) {
	modules := b.snapshot()
	for _, h := range modules {
		if h.Authorize == nil {
			continue
		}
		res, err := callWithTimeout(ctx, b.timeout, func(ctx context.Context) (AuthorizeResult, error) {
			return h.Authorize(ctx, req)
		})
		if err != nil {
			return AuthorizeResult{}, errtrace.Wrap(err)
		}
		if _, ok := res.Decision.(NotExportedDecision); ok {
			continue
		}
		return res, nil
	}
	return AuthorizeResult{Decision: ReplyDecision{Status: sip.StatusOK}}, nil
}

// Route runs the route callback chain.
func (b *Bridge) Route(ctx context.Context, req *sip.Request) (RouteResult, bool, error) {
	modules := b.snapshot()
	for _, h := range modules {
		if h.Route == nil {
			continue
		}
		res, err := callWithTimeout(ctx, b.timeout, func(ctx context.Context) (RouteResult, error) {
			return h.Route(ctx, req)
		})
		if err != nil {
			return RouteResult{}, false, errtrace.Wrap(err)
		}
		return res, true, nil
	}
	return RouteResult{}, false, nil
}

// Dispatch runs the per-method callback chain for req's method, returning
// the first module's decision that is not [NotExportedDecision]. inDialog
// selects the in-dialog variant of a callback where one exists (Reinvite
// for a re-INVITE, Resubscribe for a re-SUBSCRIBE) in place of the initial
// one. If no module claims the request, returns [ErrNoHandler].
func (b *Bridge) Dispatch(ctx context.Context, req *sip.Request, inDialog bool) (moduleName string, decision Decision, err error) {
	modules := b.snapshot()
	for _, h := range modules {
		fn := callbackFor(h, req.Method(), inDialog)
		if fn == nil {
			continue
		}
		d, err := callWithTimeout(ctx, b.timeout, func(ctx context.Context) (Decision, error) {
			return fn(ctx, req)
		})
		if err != nil {
			return h.Name, nil, errtrace.Wrap(err)
		}
		if _, ok := d.(NotExportedDecision); ok {
			continue
		}
		if async, ok := d.(AsyncDecision); ok {
			b.trackAsync(async.Token)
		}
		return h.Name, d, nil
	}
	return "", nil, errtrace.Wrap(ErrNoHandler)
}

func callbackFor(h *Handle, method sip.Method, inDialog bool) func(context.Context, *sip.Request) (Decision, error) {
	switch {
	case method.Equal(sip.MethodInvite):
		if inDialog {
			return h.Reinvite
		}
		return h.Invite
	case method.Equal(sip.MethodBye):
		return h.Bye
	case method.Equal(sip.MethodOptions):
		return h.Options
	case method.Equal(sip.MethodRegister):
		return h.Register
	case method.Equal(sip.MethodInfo):
		return h.Info
	case method.Equal(sip.MethodMessage):
		return h.Message
	case method.Equal(sip.MethodSubscribe):
		if inDialog {
			return h.Resubscribe
		}
		return h.Subscribe
	case method.Equal(sip.MethodNotify):
		return h.Notify
	case method.Equal(sip.MethodRefer):
		return h.Refer
	case method.Equal(sip.MethodPublish):
		return h.Publish
	case method.Equal(sip.MethodUpdate):
		return h.Update
	case method.Equal(sip.MethodPrack):
		return h.Prack
	default:
		return nil
	}
}

// Ack runs every registered module's Ack callback for an incoming ACK. ACK
// carries no response (RFC 3261 Section 13.2.2.4 forbids ACKing an ACK), so
// unlike Dispatch there is no decision to resolve and no early exit: every
// module that exports Ack observes it.
func (b *Bridge) Ack(ctx context.Context, req *sip.Request) {
	modules := b.snapshot()
	for _, h := range modules {
		if h.Ack == nil {
			continue
		}
		_, _ = callWithTimeout(ctx, b.timeout, func(ctx context.Context) (struct{}, error) {
			h.Ack(ctx, req)
			return struct{}{}, nil
		})
	}
}

// NewToken returns a fresh opaque async-reply token.
func NewToken() Token { return Token(uuid.NewString()) }

func (b *Bridge) trackAsync(tok Token) {
	b.pending.Store(tok, &pendingAsync{resultCh: make(chan Decision, 1)})
}

// Await blocks until the module owning tok submits a reply via [Bridge.Reply]
// or ctx is done, whichever happens first; a reply submitted before Await is
// called is returned as well. [Bridge.Abandon] does not wake a goroutine
// already blocked in Await.
func (b *Bridge) Await(ctx context.Context, tok Token) (Decision, error) {
	v, ok := b.pending.Load(tok)
	if !ok {
		return nil, errtrace.Wrap(ErrUnknownToken)
	}
	p := v.(*pendingAsync) //nolint:forcetypeassert
	select {
	case d := <-p.resultCh:
		b.pending.Delete(tok)
		return d, nil
	case <-ctx.Done():
		return nil, errtrace.Wrap(ctx.Err())
	}
}

// Reply submits the deferred answer for an [AsyncDecision] previously
// returned by Dispatch. It is safe to call at most once per token; a
// second call returns [ErrAlreadyReplied] until [Bridge.Await] has collected
// the reply, and [ErrUnknownToken] after that.
func (b *Bridge) Reply(tok Token, decision Decision) error {
	v, ok := b.pending.Load(tok)
	if !ok {
		return errtrace.Wrap(ErrUnknownToken)
	}
	p := v.(*pendingAsync) //nolint:forcetypeassert

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.replied {
		return errtrace.Wrap(ErrAlreadyReplied)
	}
	p.replied = true
	p.resultCh <- decision
	return nil
}

// Abandon discards a pending async reply without resolving it, e.g. when
// the transaction it belongs to has already been answered by a CANCEL.
func (b *Bridge) Abandon(tok Token) {
	b.pending.Delete(tok)
}

func (b *Bridge) snapshot() []*Handle {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*Handle, len(b.modules))
	copy(out, b.modules)
	return out
}

func callWithTimeout[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		ch <- result{v, err}
	}()

	select {
	case r := <-ch:
		return r.v, errtrace.Wrap(r.err)
	case <-ctx.Done():
		var zero T
		return zero, errtrace.Wrap(ctx.Err())
	}
}
