package sip

import (
	"context"
	"log/slog"
	"strconv"

	"braces.dev/errtrace"

	"github.com/ghettovoice/gosip/internal/syncutil"
	"github.com/ghettovoice/gosip/internal/types"
	"github.com/ghettovoice/gosip/log"
)

// TransactionLayer owns every live server transaction for a process. It
// matches inbound requests to an existing transaction (RFC 3261
// Section 17.2.3), creates a new one for requests that don't match, detects
// looped requests (Section 16.3 step 4 via the merged-transaction table) and
// matches CANCEL to the INVITE transaction it cancels (Section 9.2).
//
// It has no notion of dialogs, routing, or application callbacks: those are
// the concern of the call engine built on top of it.
type TransactionLayer struct {
	tp ServerTransport

	byKey    *syncutil.ShardMap[ServerTransactionKey, ServerTransaction]
	byLoopID *syncutil.ShardMap[string, ServerTransactionKey]
	keyLock  syncutil.KeyMutex[ServerTransactionKey]

	onNewTx types.CallbackManager[InboundRequestHandler]

	log *slog.Logger
}

// NewTransactionLayer creates a transaction layer bound to a single server
// transport.
func NewTransactionLayer(tp ServerTransport) *TransactionLayer {
	return &TransactionLayer{
		tp:       tp,
		byKey:    syncutil.NewShardMap[ServerTransactionKey, ServerTransaction](),
		byLoopID: syncutil.NewShardMap[string, ServerTransactionKey](),
		log:      log.Default().With(slog.String("component", "transaction_layer")),
	}
}

// LoopID computes the RFC 3261 Section 16.3 step 4 loop-detection key: the
// concatenation of the From tag, Call-ID and CSeq number/method. Branch and
// Request-URI are deliberately excluded: a request that loops back to this
// server arrives with a freshly minted branch, so keying on branch would
// never collide with the original. A second arrival of the same LoopID
// while the first transaction is still alive indicates the request looped
// back to this server.
func LoopID(req *Request) (string, error) {
	from, ok := from(req)
	if !ok {
		return "", NewInvalidArgumentError("missing From header")
	}
	fromTag, _ := from.Params.Get("tag")
	callID, ok := req.CallID()
	if !ok {
		return "", NewInvalidArgumentError("missing Call-ID header")
	}
	cseq, ok := req.CSeq()
	if !ok {
		return "", NewInvalidArgumentError("missing CSeq header")
	}

	var tag string
	if fromTag != nil {
		tag = fromTag.String()
	}
	seq := strconv.FormatUint(uint64(cseq.SeqNo), 10)
	return tag + "|" + string(callID) + "|" + seq + "|" + string(cseq.Method), nil
}

func from(req *Request) (*FromHeader, bool) { return req.From() }

// RecvRequest routes an inbound request to its matching transaction, or
// reports that none exists (ok == false) so the caller can create one and
// run loop detection before doing so.
func (tl *TransactionLayer) RecvRequest(ctx context.Context, env *InboundRequestEnvelope) (ServerTransaction, bool, error) {
	key, err := MakeServerTransactionKey(env.Req)
	if err != nil {
		return nil, false, errtrace.Wrap(err)
	}

	unlock := tl.keyLock.Lock(key)
	defer unlock()

	tx, ok := tl.byKey.Get(key)
	if !ok {
		return nil, false, nil
	}
	if err := tx.RecvRequest(ctx, env); err != nil {
		return tx, true, errtrace.Wrap(err)
	}
	return tx, true, nil
}

// CheckLoop registers the given request's loop ID and reports whether a
// live transaction already owns it (RFC 3261 Section 16.3 step 4 /
// Section 8.2.2.2). It must be called while holding the transaction's key
// lock, i.e. only from a path that is about to create a new transaction.
func (tl *TransactionLayer) CheckLoop(req *Request, key ServerTransactionKey) (looped bool, err error) {
	loopID, err := LoopID(req)
	if err != nil {
		return false, errtrace.Wrap(err)
	}
	if existing, ok := tl.byLoopID.Get(loopID); ok && existing != key {
		if _, alive := tl.byKey.Get(existing); alive {
			return true, nil
		}
	}
	tl.byLoopID.Set(loopID, key)
	return false, nil
}

// AddInviteTransaction creates, registers and returns a new INVITE server
// transaction for req. Callers must have already confirmed via RecvRequest
// that no transaction matches and, if loop detection matters to them,
// called CheckLoop first.
func (tl *TransactionLayer) AddInviteTransaction(
	ctx context.Context, env *InboundRequestEnvelope, timings TimingConfig,
) (*InviteServerTransaction, error) {
	key, err := MakeServerTransactionKey(env.Req)
	if err != nil {
		return nil, errtrace.Wrap(err)
	}
	tx, err := NewInviteServerTransaction(ctx, env, tl.tp, &ServerTransactionOptions{Key: key, Timings: timings})
	if err != nil {
		return nil, errtrace.Wrap(err)
	}
	tl.register(ctx, key, tx)
	return tx, nil
}

// AddNonInviteTransaction creates, registers and returns a new non-INVITE
// server transaction for req.
func (tl *TransactionLayer) AddNonInviteTransaction(
	ctx context.Context, env *InboundRequestEnvelope, timings TimingConfig,
) (*NonInviteServerTransaction, error) {
	key, err := MakeServerTransactionKey(env.Req)
	if err != nil {
		return nil, errtrace.Wrap(err)
	}
	if env.Req.IsCancel() {
		// A CANCEL gets its own transaction, kept apart from the INVITE that
		// MakeServerTransactionKey matches it to.
		key.Method = MethodCancel
	}
	tx, err := NewNonInviteServerTransaction(ctx, env, tl.tp, &ServerTransactionOptions{Key: key, Timings: timings})
	if err != nil {
		return nil, errtrace.Wrap(err)
	}
	tl.register(ctx, key, tx)
	return tx, nil
}

func (tl *TransactionLayer) register(ctx context.Context, key ServerTransactionKey, tx ServerTransaction) {
	tl.byKey.Set(key, tx)
	tx.OnStateChanged(func(ctx context.Context, from, to TransactionState) {
		if to != TransactionStateTerminated {
			return
		}
		tl.byKey.Del(key)
		tl.log.LogAttrs(ctx, slog.LevelDebug, "transaction removed", slog.Any("key", key))
	})
	tl.log.LogAttrs(ctx, slog.LevelDebug, "transaction added", slog.Any("key", key))
}

// FindCancelledInvite looks up the INVITE server transaction that a CANCEL
// request targets, matched by branch and sent-by per RFC 3261 Section 9.2
// (independent of the CANCEL/INVITE method difference, which
// [MakeServerTransactionKey] already folds away).
func (tl *TransactionLayer) FindCancelledInvite(cancel *Request) (*InviteServerTransaction, bool) {
	key, err := MakeServerTransactionKey(cancel)
	if err != nil {
		return nil, false
	}
	tx, ok := tl.byKey.Get(key)
	if !ok {
		return nil, false
	}
	invTx, ok := tx.(*InviteServerTransaction)
	return invTx, ok
}

// Close terminates every live transaction. Used on process shutdown.
func (tl *TransactionLayer) Close(ctx context.Context) {
	for _, tx := range tl.byKey.Items() {
		_ = tx.Terminate(ctx) //nolint:errcheck
	}
}
