package uas

import (
	"context"
	"errors"
	"log/slog"

	"braces.dev/errtrace"

	"github.com/ghettovoice/gosip/app"
	"github.com/ghettovoice/gosip/log"
	"github.com/ghettovoice/gosip/sip"
)

// ProxyFunc relays a request to one or more next hops chosen by a module's
// Route callback. The engine has no UAC/client-transaction machinery of its
// own (out of scope for a UAS core), so forwarding is delegated entirely to
// the caller; a nil ProxyFunc makes RouteActionProxy/StrictProxy answer
// 502 Bad Gateway.
type ProxyFunc func(ctx context.Context, req *sip.Request, targets []*sip.URI) (*sip.Response, error)

// Engine is the call engine: it owns the transaction and dialog layers,
// authorizes and routes every inbound request through the application
// bridge, and drives each server transaction to its final response.
type Engine struct {
	transactions *sip.TransactionLayer
	dialogs      *DialogRegistry
	calls        *CallRegistry
	bridge       *app.Bridge
	timings      sip.TimingConfig
	proxy        ProxyFunc
	metrics      *Metrics

	log *slog.Logger
}

// NewEngine wires a call engine around a transport, an application bridge
// and an optional metrics collector (nil disables instrumentation).
func NewEngine(tp sip.ServerTransport, bridge *app.Bridge, timings sip.TimingConfig, metrics *Metrics) *Engine {
	e := &Engine{
		transactions: sip.NewTransactionLayer(tp),
		dialogs:      NewDialogRegistry(),
		calls:        NewCallRegistry(),
		bridge:       bridge,
		timings:      timings,
		metrics:      metrics,
		log:          log.Default().With(slog.String("component", "uas_engine")),
	}
	return e
}

// SetProxy installs the hook RouteActionProxy/StrictProxy results are
// forwarded to.
func (e *Engine) SetProxy(fn ProxyFunc) { e.proxy = fn }

// HandleRequest is the single entry point the transport layer feeds every
// inbound request through.
func (e *Engine) HandleRequest(ctx context.Context, env *sip.InboundRequestEnvelope) error {
	if err := env.Validate(); err != nil {
		return errtrace.Wrap(err)
	}

	if env.Req.IsCancel() {
		return errtrace.Wrap(e.handleCancel(ctx, env))
	}

	if _, matched, err := e.transactions.RecvRequest(ctx, env); matched || err != nil {
		return errtrace.Wrap(err)
	}

	return errtrace.Wrap(e.handleNew(ctx, env))
}

func (e *Engine) handleCancel(ctx context.Context, env *sip.InboundRequestEnvelope) error {
	cancelTx, err := e.transactions.AddNonInviteTransaction(ctx, env, e.timings)
	if err != nil {
		return errtrace.Wrap(err)
	}

	invTx, ok := e.transactions.FindCancelledInvite(env.Req)
	if !ok || invTx.State() != sip.TransactionStateProceeding {
		res := env.Req.NewResponseFromRequest(sip.StatusCallTransactionDoesNotExist, "", "", nil)
		return errtrace.Wrap(sendFinal(ctx, cancelTx, res))
	}

	if env.RemoteAddr != invTx.Request().RemoteAddr {
		e.log.LogAttrs(ctx, slog.LevelWarn, "CANCEL source does not match INVITE source",
			slog.String("cancel_addr", env.RemoteAddr), slog.String("invite_addr", invTx.Request().RemoteAddr))
		res := env.Req.NewResponseFromRequest(sip.StatusCallTransactionDoesNotExist, "", "", nil)
		return errtrace.Wrap(sendFinal(ctx, cancelTx, res))
	}

	okRes := env.Req.NewResponseFromRequest(sip.StatusOK, "", "", nil)
	if err := sendFinal(ctx, cancelTx, okRes); err != nil {
		return errtrace.Wrap(err)
	}

	terminatedRes := invTx.Request().Req.NewResponseFromRequest(sip.StatusRequestTerminated, "", "", nil)
	if err := sendFinal(ctx, invTx, terminatedRes); err != nil {
		return errtrace.Wrap(err)
	}
	if dlg, found := e.dialogs.Lookup(invTx.Request().Req); found {
		e.dialogs.Terminate(dlg.ID)
		e.metrics.setCallsActive(e.dialogs.Size())
	}
	return nil
}

func (e *Engine) handleNew(ctx context.Context, env *sip.InboundRequestEnvelope) error {
	req := env.Req
	if err := req.Validate(); err != nil {
		return errtrace.Wrap(err)
	}

	key, err := sip.MakeServerTransactionKey(req)
	if err != nil {
		return errtrace.Wrap(err)
	}

	// Loop detection applies only to initial requests (no To tag).
	var looped bool
	if to, ok := req.To(); !ok || !to.Params.Has("tag") {
		looped, err = e.transactions.CheckLoop(req, key)
		if err != nil {
			return errtrace.Wrap(err)
		}
	}

	var tx sip.ServerTransaction
	if req.IsInvite() {
		invTx, err := e.transactions.AddInviteTransaction(ctx, env, e.timings)
		if err != nil {
			return errtrace.Wrap(err)
		}
		invTx.OnAck(func(ctx context.Context, ackEnv *sip.InboundRequestEnvelope) {
			if dlg, found := e.dialogs.Lookup(req); found {
				e.dialogs.Confirm(dlg.ID)
			}
			e.bridge.Ack(ctx, ackEnv.Req)
		})
		tx = invTx
	} else {
		nonInvTx, err := e.transactions.AddNonInviteTransaction(ctx, env, e.timings)
		if err != nil {
			return errtrace.Wrap(err)
		}
		tx = nonInvTx
	}
	e.metrics.observeNewTransaction(req.Method())
	tx.OnStateChanged(func(_ context.Context, _, to sip.TransactionState) {
		e.metrics.observeTransition(tx.Type(), to)
	})

	if looped {
		e.metrics.observeLoopDetected()
		res := req.NewResponseFromRequest(sip.StatusLoopDetected, "", "", nil)
		return errtrace.Wrap(tx.Respond(ctx, res))
	}

	ar, err := e.bridge.Authorize(ctx, req)
	if err != nil {
		return errtrace.Wrap(tx.Respond(ctx, buildErrorReply(req, sip.StatusServerTimeout)))
	}
	if ar.Authenticate != "" || ar.ProxyAuthenticate != "" {
		return errtrace.Wrap(tx.Respond(ctx, buildChallengeReply(req, ar)))
	}
	if ed, ok := ar.Decision.(app.ErrorDecision); ok {
		return errtrace.Wrap(tx.Respond(ctx, buildErrorReply(req, StatusForErrorKind(ed.Kind))))
	}
	// A 2xx ReplyDecision (the bridge's default when no module exports
	// Authorize) lets the request through to routing; any other is the answer.
	if rd, ok := ar.Decision.(app.ReplyDecision); ok && !rd.Status.IsSuccess() {
		return errtrace.Wrap(e.sendReply(ctx, req, tx, rd))
	}

	routeResult, hasRoute, err := e.bridge.Route(ctx, req)
	if err != nil {
		return errtrace.Wrap(tx.Respond(ctx, buildErrorReply(req, sip.StatusServerTimeout)))
	}
	verdict := routeRequest(req, e.dialogs, routeResult, hasRoute)
	if verdict.reject != 0 {
		return errtrace.Wrap(tx.Respond(ctx, buildErrorReply(req, verdict.reject, verdict.reasons...)))
	}

	switch verdict.action {
	case app.RouteActionRespond:
		return errtrace.Wrap(e.sendReply(ctx, req, tx, verdict.reply))
	case app.RouteActionProxy, app.RouteActionStrictProxy:
		return errtrace.Wrap(e.proxyRequest(ctx, req, tx, verdict.targets))
	default:
		return errtrace.Wrap(e.dispatch(ctx, req, tx))
	}
}

func (e *Engine) proxyRequest(ctx context.Context, req *sip.Request, tx sip.ServerTransaction, targets []*sip.URI) error {
	if e.proxy == nil {
		return errtrace.Wrap(tx.Respond(ctx, buildErrorReply(req, sip.StatusBadGateway)))
	}
	res, err := e.proxy(ctx, req, targets)
	if err != nil {
		return errtrace.Wrap(tx.Respond(ctx, buildErrorReply(req, sip.StatusBadGateway)))
	}
	return errtrace.Wrap(tx.Respond(ctx, res))
}

func (e *Engine) dispatch(ctx context.Context, req *sip.Request, tx sip.ServerTransaction) error {
	_, inDialog := e.dialogs.Lookup(req)
	moduleName, decision, err := e.bridge.Dispatch(ctx, req, inDialog)
	if err != nil {
		if errors.Is(err, app.ErrNoHandler) {
			e.metrics.observeDispatch("none", "not_implemented")
			return errtrace.Wrap(tx.Respond(ctx, buildErrorReply(req, sip.StatusNotImplemented)))
		}
		e.metrics.observeDispatch(moduleName, "timeout")
		return errtrace.Wrap(tx.Respond(ctx, buildErrorReply(req, sip.StatusServerTimeout)))
	}

	switch d := decision.(type) {
	case app.ReplyDecision:
		e.metrics.observeDispatch(moduleName, "reply")
		return errtrace.Wrap(e.sendReply(ctx, req, tx, d))
	case app.ErrorDecision:
		e.metrics.observeDispatch(moduleName, "error")
		return errtrace.Wrap(tx.Respond(ctx, buildErrorReply(req, StatusForErrorKind(d.Kind))))
	case app.AsyncDecision:
		e.metrics.observeDispatch(moduleName, "async")
		go e.awaitAsync(ctx, req, tx, d.Token)
		return nil
	default:
		e.metrics.observeDispatch(moduleName, "not_implemented")
		return errtrace.Wrap(tx.Respond(ctx, buildErrorReply(req, sip.StatusNotImplemented)))
	}
}

// awaitAsync blocks (on its own goroutine) until the module that accepted
// an [app.AsyncDecision] submits its reply, then drives the transaction to
// its final response. The wait is bounded by [app.DefaultCallbackTimeout]: on
// expiry the token is abandoned and the request is answered with the
// [app.ErrorKindTimeout] status. A CANCEL does not end the wait; a reply that
// arrives after the transaction has already been answered is not sent.
func (e *Engine) awaitAsync(ctx context.Context, req *sip.Request, tx sip.ServerTransaction, tok app.Token) {
	awaitCtx, cancel := context.WithTimeout(ctx, app.DefaultCallbackTimeout)
	defer cancel()
	decision, err := e.bridge.Await(awaitCtx, tok)
	if err != nil {
		e.log.LogAttrs(ctx, slog.LevelWarn, "async reply abandoned", slog.Any("error", err))
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			e.bridge.Abandon(tok)
			if err := tx.Respond(ctx, buildErrorReply(req, StatusForErrorKind(app.ErrorKindTimeout))); err != nil {
				e.log.LogAttrs(ctx, slog.LevelWarn, "failed to send async timeout reply", slog.Any("error", err))
			}
		}
		return
	}
	switch d := decision.(type) {
	case app.ReplyDecision:
		if err := e.sendReply(ctx, req, tx, d); err != nil {
			e.log.LogAttrs(ctx, slog.LevelWarn, "failed to send async reply", slog.Any("error", err))
		}
	case app.ErrorDecision:
		if err := tx.Respond(ctx, buildErrorReply(req, StatusForErrorKind(d.Kind))); err != nil {
			e.log.LogAttrs(ctx, slog.LevelWarn, "failed to send async error reply", slog.Any("error", err))
		}
	}
}

func (e *Engine) sendReply(ctx context.Context, req *sip.Request, tx sip.ServerTransaction, d app.ReplyDecision) error {
	res := buildReply(req, d)
	if err := tx.Respond(ctx, res); err != nil {
		return errtrace.Wrap(err)
	}

	if !req.Method().IsDialogCreating() {
		if req.Method().Equal(sip.MethodBye) {
			if dlg, found := e.dialogs.Lookup(req); found {
				e.dialogs.Terminate(dlg.ID)
			}
		}
		return nil
	}
	if (res.IsProvisional() && res.StatusCode() == sip.StatusRinging) || res.Is2xx() {
		if dlg, err := e.dialogs.CreateEarly(res); err == nil {
			e.calls.WithCall(dlg.CallID, func(c *Call) { c.addDialog(dlg.ID) })
			e.metrics.setCallsActive(e.dialogs.Size())
		}
	} else if res.StatusCode().IsFinal() && !res.Is2xx() {
		if dlg, found := e.dialogs.Lookup(req); found {
			e.dialogs.Terminate(dlg.ID)
			e.metrics.setCallsActive(e.dialogs.Size())
		}
	}
	return nil
}
