package sip

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"braces.dev/errtrace"
	"github.com/qmuntal/stateless"

	"github.com/ghettovoice/gosip/internal/timeutil"
)

// NonInviteServerTransaction implements the non-INVITE server transaction
// state machine, RFC 3261 Section 17.2.2 / Figure 8.
type NonInviteServerTransaction struct {
	*serverTransact

	tmrJ atomic.Pointer[timeutil.SerializableTimer]
}

const txEvtTimerJ = "timer_j"

// NewNonInviteServerTransaction creates and starts a non-INVITE server
// transaction. req must not be INVITE or ACK (ACK is never transacted;
// CANCEL is matched to its INVITE transaction one level up).
func NewNonInviteServerTransaction(
	ctx context.Context,
	req *InboundRequestEnvelope,
	tp ServerTransport,
	opts *ServerTransactionOptions,
) (*NonInviteServerTransaction, error) {
	if err := req.Validate(); err != nil {
		return nil, errtrace.Wrap(NewInvalidArgumentError(err))
	}
	if mtd := req.Method(); mtd.Equal(MethodInvite) || mtd.Equal(MethodAck) {
		return nil, errtrace.Wrap(NewInvalidArgumentError(ErrMethodNotAllowed))
	}

	tx := new(NonInviteServerTransaction)
	base, err := newServerTransact(TransactionTypeServerNonInvite, req, tp, opts)
	if err != nil {
		return nil, errtrace.Wrap(err)
	}
	tx.serverTransact = base

	if err := tx.initFSM(TransactionStateTrying); err != nil {
		return nil, errtrace.Wrap(err)
	}
	return tx, nil
}

func (tx *NonInviteServerTransaction) initFSM(start TransactionState) error {
	if err := tx.serverTransact.initFSM(start); err != nil {
		return errtrace.Wrap(err)
	}

	tx.fsm.Configure(TransactionStateTrying).
		InternalTransition(txEvtRecvReq, tx.actNoop).
		Permit(txEvtSend1xx, TransactionStateProceeding).
		Permit(txEvtSend2xx, TransactionStateCompleted).
		Permit(txEvtSend300699, TransactionStateCompleted).
		Permit(txEvtTerminate, TransactionStateTerminated)

	tx.fsm.Configure(TransactionStateProceeding).
		OnEntry(tx.actProceeding).
		OnEntryFrom(txEvtSend1xx, tx.actSendRes).
		InternalTransition(txEvtRecvReq, tx.actResendRes).
		InternalTransition(txEvtSend1xx, tx.actSendRes).
		Permit(txEvtSend2xx, TransactionStateCompleted).
		Permit(txEvtSend300699, TransactionStateCompleted).
		Permit(txEvtTranspErr, TransactionStateTerminated).
		Permit(txEvtTerminate, TransactionStateTerminated)

	tx.fsm.Configure(TransactionStateCompleted).
		OnEntry(tx.actCompleted).
		OnEntryFrom(txEvtSend2xx, tx.actSendRes).
		OnEntryFrom(txEvtSend300699, tx.actSendRes).
		InternalTransition(txEvtRecvReq, tx.actResendRes).
		InternalTransition(txEvtSend2xx, tx.actNoop).
		InternalTransition(txEvtSend300699, tx.actNoop).
		Permit(txEvtTimerJ, TransactionStateTerminated).
		Permit(txEvtTranspErr, TransactionStateTerminated).
		Permit(txEvtTerminate, TransactionStateTerminated)

	tx.fsm.Configure(TransactionStateTerminated).
		OnEntry(tx.actTerminated).
		OnEntryFrom(txEvtTranspErr, tx.actTranspErr).
		InternalTransition(txEvtTerminate, tx.actNoop)

	return nil
}

//nolint:unparam
func (tx *NonInviteServerTransaction) actProceeding(ctx context.Context, _ ...any) error {
	tx.log.LogAttrs(ctx, slog.LevelDebug, "transaction proceeding")
	return nil
}

func (tx *NonInviteServerTransaction) actCompleted(ctx context.Context, _ ...any) error {
	var timeJ time.Duration
	if !tx.tp.Reliable() {
		timeJ = tx.timings.TimeJ()
	}
	tmr := timeutil.AfterFunc(timeJ, tx.timerJHdlr(ctx))
	tx.tmrJ.Store(tmr)
	return nil
}

func (tx *NonInviteServerTransaction) timerJHdlr(ctx context.Context) func() {
	return func() {
		tx.tmrJ.Store(nil)
		if tx.State() != TransactionStateCompleted {
			return
		}
		if err := tx.fsm.FireCtx(ctx, txEvtTimerJ); err != nil {
			tx.log.LogAttrs(ctx, slog.LevelError, "failed to fire timer_j", slog.Any("error", err))
		}
	}
}

func (tx *NonInviteServerTransaction) actTerminated(ctx context.Context, args ...any) error {
	tx.serverTransact.actTerminated(ctx, args...) //nolint:errcheck
	if tmr := tx.tmrJ.Swap(nil); tmr != nil {
		tmr.Stop()
	}
	return nil
}

// Respond drives the FSM with an outbound response.
func (tx *NonInviteServerTransaction) Respond(ctx context.Context, res *Response) error {
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

// RecvRequest handles a retransmitted non-INVITE request.
func (tx *NonInviteServerTransaction) RecvRequest(ctx context.Context, env *InboundRequestEnvelope) error {
	return errtrace.Wrap(tx.fsm.FireCtx(ctx, txEvtRecvReq, env))
}
