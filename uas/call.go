package uas

import (
	"time"

	"github.com/ghettovoice/gosip/internal/syncutil"
	"github.com/ghettovoice/gosip/sip"
)

// Call groups the dialogs and transactions sharing a Call-ID. Most calls
// carry exactly one dialog; a forked INVITE can briefly carry several early
// ones before all but the winner terminate.
type Call struct {
	CallID    sip.CallID
	CreatedAt time.Time
	DialogIDs []string
}

// CallRegistry is the process-wide table of in-progress calls. All mutation
// of a given call goes through [CallRegistry.WithCall], which serializes
// access per Call-ID: a single-writer section in place of a dedicated
// actor goroutine, grounded on the same per-key locking the transaction
// layer already uses to serialize transaction lookups. Calls churn at a
// small fraction of the transaction table's rate, so a single [RWMap]
// covers it without [ShardMap]'s per-shard overhead.
type CallRegistry struct {
	byID *syncutil.RWMap[sip.CallID, *Call]
	lock syncutil.KeyMutex[sip.CallID]
}

func NewCallRegistry() *CallRegistry {
	return &CallRegistry{byID: new(syncutil.RWMap[sip.CallID, *Call])}
}

// WithCall runs fn with exclusive access to the Call-ID's aggregate,
// creating it on first use.
func (r *CallRegistry) WithCall(callID sip.CallID, fn func(*Call)) {
	unlock := r.lock.Lock(callID)
	defer unlock()

	call, ok := r.byID.Get(callID)
	if !ok {
		call = &Call{CallID: callID, CreatedAt: time.Now()}
		r.byID.Set(callID, call)
	}
	fn(call)
}

// Forget drops a call once every dialog it owns has terminated.
func (r *CallRegistry) Forget(callID sip.CallID) {
	unlock := r.lock.Lock(callID)
	defer unlock()
	r.byID.Del(callID)
	r.lock.Del(callID)
}

// Size reports the number of in-progress calls. (The calls_active gauge is
// driven by [DialogRegistry.Size].)
func (r *CallRegistry) Size() int { return r.byID.Len() }

func (c *Call) addDialog(id string) {
	for _, existing := range c.DialogIDs {
		if existing == id {
			return
		}
	}
	c.DialogIDs = append(c.DialogIDs, id)
}

func (c *Call) removeDialog(id string) {
	for i, existing := range c.DialogIDs {
		if existing == id {
			c.DialogIDs = append(c.DialogIDs[:i], c.DialogIDs[i+1:]...)
			return
		}
	}
}
