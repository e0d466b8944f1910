package sip

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"braces.dev/errtrace"
	"github.com/qmuntal/stateless"

	"github.com/ghettovoice/gosip/internal/timeutil"
	"github.com/ghettovoice/gosip/internal/types"
)

// InviteServerTransaction implements the INVITE server transaction state
// machine, RFC 3261 Section 17.2.1 / Figure 7.
type InviteServerTransaction struct {
	*serverTransact

	tmr1xx atomic.Pointer[timeutil.SerializableTimer]
	tmrG   atomic.Pointer[timeutil.SerializableTimer]
	tmrH   atomic.Pointer[timeutil.SerializableTimer]
	tmrI   atomic.Pointer[timeutil.SerializableTimer]
	tmrL   atomic.Pointer[timeutil.SerializableTimer]

	onAck types.CallbackManager[InboundRequestHandler]
}

const (
	txEvtTimer1xx = "timer_100"
	txEvtTimerG   = "timer_g"
	txEvtTimerH   = "timer_h"
	txEvtTimerI   = "timer_i"
	txEvtTimerL   = "timer_l"
)

// NewInviteServerTransaction creates and starts an INVITE server transaction.
// req must be a validated INVITE request; tp delivers responses to the wire.
func NewInviteServerTransaction(
	ctx context.Context,
	req *InboundRequestEnvelope,
	tp ServerTransport,
	opts *ServerTransactionOptions,
) (*InviteServerTransaction, error) {
	if err := req.Validate(); err != nil {
		return nil, errtrace.Wrap(NewInvalidArgumentError(err))
	}
	if !req.Method().Equal(MethodInvite) {
		return nil, errtrace.Wrap(NewInvalidArgumentError(ErrMethodNotAllowed))
	}

	tx := new(InviteServerTransaction)
	base, err := newServerTransact(TransactionTypeServerInvite, req, tp, opts)
	if err != nil {
		return nil, errtrace.Wrap(err)
	}
	tx.serverTransact = base

	if err := tx.initFSM(TransactionStateProceeding); err != nil {
		return nil, errtrace.Wrap(err)
	}
	if err := tx.actProceeding(ctx); err != nil {
		return nil, errtrace.Wrap(err)
	}
	return tx, nil
}

func (tx *InviteServerTransaction) initFSM(start TransactionState) error {
	if err := tx.serverTransact.initFSM(start); err != nil {
		return errtrace.Wrap(err)
	}

	tx.fsm.Configure(TransactionStateProceeding).
		OnEntry(tx.actProceeding).
		InternalTransition(txEvtRecvReq, tx.actResendRes).
		InternalTransition(txEvtSend1xx, tx.actSend1xx).
		InternalTransition(txEvtTimer1xx, tx.actSend100).
		Permit(txEvtSend2xx, TransactionStateAccepted).
		Permit(txEvtSend300699, TransactionStateCompleted).
		Permit(txEvtTranspErr, TransactionStateTerminated).
		Permit(txEvtTerminate, TransactionStateTerminated)

	tx.fsm.Configure(TransactionStateAccepted).
		OnEntry(tx.actAccepted).
		OnEntryFrom(txEvtSend2xx, tx.actSendRes).
		InternalTransition(txEvtSend2xx, tx.actNoop).
		Permit(txEvtTimerL, TransactionStateTerminated).
		Permit(txEvtTerminate, TransactionStateTerminated)

	tx.fsm.Configure(TransactionStateCompleted).
		OnEntry(tx.actCompleted).
		OnEntryFrom(txEvtSend300699, tx.actSendRes).
		InternalTransition(txEvtRecvReq, tx.actResendRes).
		InternalTransition(txEvtSend300699, tx.actNoop).
		Permit(txEvtRecvAck, TransactionStateConfirmed).
		Permit(txEvtTimerH, TransactionStateTerminated).
		Permit(txEvtTranspErr, TransactionStateTerminated).
		Permit(txEvtTerminate, TransactionStateTerminated)

	tx.fsm.Configure(TransactionStateConfirmed).
		OnEntry(tx.actConfirmed).
		InternalTransition(txEvtRecvAck, tx.actNoop).
		Permit(txEvtTimerI, TransactionStateTerminated).
		Permit(txEvtTerminate, TransactionStateTerminated)

	tx.fsm.Configure(TransactionStateTerminated).
		OnEntry(tx.actTerminated).
		OnEntryFrom(txEvtTranspErr, tx.actTranspErr).
		InternalTransition(txEvtTerminate, tx.actNoop)

	return nil
}

//nolint:unparam
func (tx *InviteServerTransaction) actProceeding(ctx context.Context, _ ...any) error {
	tx.log.LogAttrs(ctx, slog.LevelDebug, "transaction proceeding")

	tmr := timeutil.AfterFunc(tx.timings.Time100(), tx.timer1xxHdlr(ctx))
	tx.tmr1xx.Store(tmr)
	return nil
}

func (tx *InviteServerTransaction) timer1xxHdlr(ctx context.Context) func() {
	return func() {
		tx.tmr1xx.Store(nil)
		if tx.State() != TransactionStateProceeding {
			return
		}
		if err := tx.fsm.FireCtx(ctx, txEvtTimer1xx); err != nil {
			tx.log.LogAttrs(ctx, slog.LevelError, "failed to fire timer_100", slog.Any("error", err))
		}
	}
}

//nolint:unparam
func (tx *InviteServerTransaction) actSend100(ctx context.Context, _ ...any) error {
	res := tx.req.Req.NewResponseFromRequest(StatusTrying, "", "", nil)
	return errtrace.Wrap(tx.sendRes(ctx, res))
}

func (tx *InviteServerTransaction) actSend1xx(ctx context.Context, args ...any) error {
	if tmr := tx.tmr1xx.Swap(nil); tmr != nil {
		tmr.Stop()
	}
	return errtrace.Wrap(tx.actSendRes(ctx, args...))
}

//nolint:unparam
func (tx *InviteServerTransaction) actAccepted(ctx context.Context, _ ...any) error {
	if tmr := tx.tmr1xx.Swap(nil); tmr != nil {
		tmr.Stop()
	}

	tmr := timeutil.AfterFunc(tx.timings.TimeL(), tx.timerLHdlr(ctx))
	tx.tmrL.Store(tmr)
	return nil
}

func (tx *InviteServerTransaction) timerLHdlr(ctx context.Context) func() {
	return func() {
		tx.tmrL.Store(nil)
		if tx.State() != TransactionStateAccepted {
			return
		}
		if err := tx.fsm.FireCtx(ctx, txEvtTimerL); err != nil {
			tx.log.LogAttrs(ctx, slog.LevelError, "failed to fire timer_l", slog.Any("error", err))
		}
	}
}

func (tx *InviteServerTransaction) actCompleted(ctx context.Context, _ ...any) error {
	if tmr := tx.tmr1xx.Swap(nil); tmr != nil {
		tmr.Stop()
	}

	var timeG time.Duration
	if !tx.tp.Reliable() {
		timeG = tx.timings.TimeG()
		tmr := timeutil.AfterFunc(timeG, tx.timerGHdlr(ctx, timeG))
		tx.tmrG.Store(tmr)
	}

	tmrH := timeutil.AfterFunc(tx.timings.TimeH(), tx.timerHHdlr(ctx))
	tx.tmrH.Store(tmrH)
	return nil
}

func (tx *InviteServerTransaction) timerGHdlr(ctx context.Context, last time.Duration) func() {
	return func() {
		if tx.State() != TransactionStateCompleted {
			return
		}
		if err := tx.actResendRes(ctx); err != nil {
			tx.log.LogAttrs(ctx, slog.LevelWarn, "timer_g retransmit failed", slog.Any("error", err))
		}

		next := min(2*last, tx.timings.T2())
		tmr := timeutil.AfterFunc(next, tx.timerGHdlr(ctx, next))
		tx.tmrG.Store(tmr)
	}
}

func (tx *InviteServerTransaction) timerHHdlr(ctx context.Context) func() {
	return func() {
		tx.tmrH.Store(nil)
		if tx.State() != TransactionStateCompleted {
			return
		}
		if err := tx.fsm.FireCtx(ctx, txEvtTimerH); err != nil {
			tx.log.LogAttrs(ctx, slog.LevelError, "failed to fire timer_h", slog.Any("error", err))
		}
	}
}

//nolint:unparam
func (tx *InviteServerTransaction) actConfirmed(ctx context.Context, _ ...any) error {
	if tmr := tx.tmrG.Swap(nil); tmr != nil {
		tmr.Stop()
	}
	if tmr := tx.tmrH.Swap(nil); tmr != nil {
		tmr.Stop()
	}

	var timeI time.Duration
	if !tx.tp.Reliable() {
		timeI = tx.timings.TimeI()
	}
	tmr := timeutil.AfterFunc(timeI, tx.timerIHdlr(ctx))
	tx.tmrI.Store(tmr)
	return nil
}

func (tx *InviteServerTransaction) timerIHdlr(ctx context.Context) func() {
	return func() {
		tx.tmrI.Store(nil)
		if tx.State() != TransactionStateConfirmed {
			return
		}
		if err := tx.fsm.FireCtx(ctx, txEvtTimerI); err != nil {
			tx.log.LogAttrs(ctx, slog.LevelError, "failed to fire timer_i", slog.Any("error", err))
		}
	}
}

func (tx *InviteServerTransaction) actTerminated(ctx context.Context, args ...any) error {
	tx.serverTransact.actTerminated(ctx, args...) //nolint:errcheck
	for _, t := range []*atomic.Pointer[timeutil.SerializableTimer]{&tx.tmr1xx, &tx.tmrG, &tx.tmrH, &tx.tmrI, &tx.tmrL} {
		if tmr := t.Swap(nil); tmr != nil {
			tmr.Stop()
		}
	}
	return nil
}

// Respond drives the FSM with an outbound response, classifying it by
// status code as required by RFC 3261 Section 17.2.1.
func (tx *InviteServerTransaction) Respond(ctx context.Context, res *Response) error {
	var evt stateless.Trigger
	switch {
	case res.StatusCode().IsProvisional():
		evt = txEvtSend1xx
	case res.StatusCode().IsSuccess():
		evt = txEvtSend2xx
	default:
		evt = txEvtSend300699
	}
	return errtrace.Wrap(tx.fsm.FireCtx(ctx, evt, res))
}

// RecvRequest handles a retransmitted INVITE or a follow-up ACK.
func (tx *InviteServerTransaction) RecvRequest(ctx context.Context, env *InboundRequestEnvelope) error {
	if env.Method().Equal(MethodAck) {
		for fn := range tx.onAck.All() {
			fn(ctx, env)
		}
		return errtrace.Wrap(tx.fsm.FireCtx(ctx, txEvtRecvAck, env))
	}
	return errtrace.Wrap(tx.fsm.FireCtx(ctx, txEvtRecvReq, env))
}

// OnAck registers a callback invoked for every ACK matched to this
// transaction, including ACKs to non-2xx final responses (RFC 3261
// Section 17.2.1) which terminate the transaction via Timer I/H rather
// than creating a dialog.
func (tx *InviteServerTransaction) OnAck(fn InboundRequestHandler) (unbind func()) {
	return tx.onAck.Add(fn)
}
