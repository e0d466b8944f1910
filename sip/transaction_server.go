package sip

import (
	"context"
	"log/slog"
	"sync/atomic"

	"braces.dev/errtrace"
	"github.com/qmuntal/stateless"

	"github.com/ghettovoice/gosip/internal/types"
	"github.com/ghettovoice/gosip/log"
)

// FSM trigger names shared by the INVITE and non-INVITE server transaction
// state machines, RFC 3261 Section 17.2.
const (
	txEvtRecvReq    = "recv_request"
	txEvtRecvAck    = "recv_ack"
	txEvtSend1xx    = "send_1xx"
	txEvtSend2xx    = "send_2xx"
	txEvtSend300699 = "send_300_699"
	txEvtTranspErr  = "transport_error"
	txEvtTerminate  = "terminate"
)

// serverTransact holds the state and behaviour shared by
// [InviteServerTransaction] and [NonInviteServerTransaction]; the pack's
// original shared base type was not recovered, so its fields are folded
// directly in here.
type serverTransact struct {
	typ     TransactionType
	key     ServerTransactionKey
	req     *InboundRequestEnvelope
	tp      ServerTransport
	timings TimingConfig

	fsm      *stateless.StateMachine
	stateVal atomic.Int32
	lastRes  atomic.Pointer[Response]

	onStateChanged types.CallbackManager[TransactionStateHandler]

	log *slog.Logger
}

func newServerTransact(
	typ TransactionType,
	req *InboundRequestEnvelope,
	tp ServerTransport,
	opts *ServerTransactionOptions,
) (*serverTransact, error) {
	if req == nil || req.Req == nil {
		return nil, errtrace.Wrap(NewInvalidArgumentError("request is required"))
	}
	if tp == nil {
		return nil, errtrace.Wrap(NewInvalidArgumentError("transport is required"))
	}

	var options ServerTransactionOptions
	if opts != nil {
		options = *opts
	}
	key := options.Key
	if !key.IsValid() {
		k, err := MakeServerTransactionKey(req.Req)
		if err != nil {
			return nil, errtrace.Wrap(err)
		}
		key = k
	}

	tx := &serverTransact{
		typ:     typ,
		key:     key,
		req:     req,
		tp:      tp,
		timings: options.Timings,
		log:     log.Default().With(slog.String("component", "server_tx"), slog.Any("key", key)),
	}
	tx.fsm = stateless.NewStateMachineWithExternalStorage(
		func(_ context.Context) (stateless.State, error) { return tx.state(), nil },
		func(_ context.Context, st stateless.State) error { tx.setState(st.(TransactionState)); return nil },
		stateless.FiringQueued,
	)
	return tx, nil
}

func (tx *serverTransact) state() TransactionState {
	return TransactionState(tx.stateVal.Load())
}

func (tx *serverTransact) setState(s TransactionState) {
	from := tx.state()
	tx.stateVal.Store(int32(s))
	for fn := range tx.onStateChanged.All() {
		fn(context.Background(), from, s)
	}
}

func (tx *serverTransact) Key() ServerTransactionKey       { return tx.key }
func (tx *serverTransact) Type() TransactionType           { return tx.typ }
func (tx *serverTransact) State() TransactionState         { return tx.state() }
func (tx *serverTransact) Request() *InboundRequestEnvelope { return tx.req }
func (tx *serverTransact) LastResponse() *Response          { return tx.lastRes.Load() }

func (tx *serverTransact) OnStateChanged(fn TransactionStateHandler) (unbind func()) {
	return tx.onStateChanged.Add(fn)
}

func (tx *serverTransact) sendRes(ctx context.Context, res *Response) error {
	env := &OutboundResponseEnvelope{Res: res, Transport: tx.req.Transport, RemoteAddr: tx.req.RemoteAddr}
	if err := tx.tp.SendResponse(ctx, env); err != nil {
		tx.log.LogAttrs(ctx, slog.LevelWarn, "failed to send response", slog.Any("error", err))
		if fireErr := tx.fsm.FireCtx(ctx, txEvtTranspErr, err); fireErr != nil {
			return errtrace.Wrap(fireErr)
		}
		return errtrace.Wrap(err)
	}
	tx.lastRes.Store(res)
	return nil
}

//nolint:unparam
func (tx *serverTransact) actSendRes(ctx context.Context, args ...any) error {
	res, _ := args[0].(*Response)
	if res == nil {
		return errtrace.Wrap(NewInvalidArgumentError("send event requires a response argument"))
	}
	return errtrace.Wrap(tx.sendRes(ctx, res))
}

//nolint:unparam
func (tx *serverTransact) actResendRes(ctx context.Context, _ ...any) error {
	if res := tx.LastResponse(); res != nil {
		return errtrace.Wrap(tx.sendRes(ctx, res))
	}
	return nil
}

//nolint:unparam
func (tx *serverTransact) actNoop(context.Context, ...any) error { return nil }

//nolint:unparam
func (tx *serverTransact) actTranspErr(ctx context.Context, args ...any) error {
	var err error
	if len(args) > 0 {
		err, _ = args[0].(error)
	}
	tx.log.LogAttrs(ctx, slog.LevelWarn, "transaction terminated by transport error", slog.Any("error", err))
	return nil
}

//nolint:unparam
func (tx *serverTransact) actTerminated(ctx context.Context, _ ...any) error {
	tx.log.LogAttrs(ctx, slog.LevelDebug, "transaction terminated")
	return nil
}

func (tx *serverTransact) initFSM(start TransactionState) error {
	tx.stateVal.Store(int32(start))
	return nil
}

func (tx *serverTransact) Terminate(ctx context.Context) error {
	if tx.state() == TransactionStateTerminated {
		return nil
	}
	return errtrace.Wrap(tx.fsm.FireCtx(ctx, txEvtTerminate))
}
