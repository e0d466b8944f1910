// Package uas implements the call engine that sits on top of the sip
// package's server transaction layer: it authorizes and routes inbound
// requests, dispatches them to application callbacks, couples INVITE
// transactions to dialogs, and maps application decisions and failures
// back onto SIP responses.
package uas

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/ghettovoice/gosip/app"
	"github.com/ghettovoice/gosip/internal/syncutil"
	"github.com/ghettovoice/gosip/log"
	"github.com/ghettovoice/gosip/sip"
)

// DialogState is the lifecycle state of a dialog, RFC 3261 Section 12.
type DialogState int

const (
	DialogStateEarly DialogState = iota
	DialogStateConfirmed
	DialogStateTerminated
)

func (s DialogState) String() string {
	switch s {
	case DialogStateEarly:
		return "early"
	case DialogStateConfirmed:
		return "confirmed"
	case DialogStateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Dialog is the minimal dialog state the engine keeps to couple the
// in-dialog requests of a call (re-INVITE, BYE, INFO, ...) back to the
// transaction that created it, RFC 3261 Section 12.
type Dialog struct {
	ID string

	CallID    sip.CallID
	LocalTag  string
	RemoteTag string
	LocalSeq  uint32
	RemoteSeq uint32
	RouteSet  []*sip.RouteHeader
	RemoteURI *sip.URI
	CreatedAt time.Time

	state atomic.Int32
}

func newDialog(id string, callID sip.CallID, localTag, remoteTag string) *Dialog {
	d := &Dialog{ID: id, CallID: callID, LocalTag: localTag, RemoteTag: remoteTag, CreatedAt: time.Now()}
	d.state.Store(int32(DialogStateEarly))
	return d
}

func (d *Dialog) State() DialogState    { return DialogState(d.state.Load()) }
func (d *Dialog) setState(s DialogState) { d.state.Store(int32(s)) }

// DialogRegistry owns every live dialog for a process, keyed by the
// Call-ID/To-tag/From-tag triple computed by [sip.MakeDialogIDFromMessage].
type DialogRegistry struct {
	byID *syncutil.ShardMap[string, *Dialog]
	log  *slog.Logger
}

func NewDialogRegistry() *DialogRegistry {
	return &DialogRegistry{
		byID: syncutil.NewShardMap[string, *Dialog](),
		log:  log.Default().With(slog.String("component", "dialog_registry")),
	}
}

// CreateEarly registers a new early dialog from a provisional response that
// carries a To-tag (RFC 3261 Section 12.1.1), e.g. 180 Ringing.
func (r *DialogRegistry) CreateEarly(res *sip.Response) (*Dialog, error) {
	id, err := sip.MakeDialogIDFromMessage(res)
	if err != nil {
		return nil, err
	}
	if d, ok := r.byID.Get(id); ok {
		return d, nil
	}
	to, _ := res.To()
	from, _ := res.From()
	toTag, _ := to.Params.Get("tag")
	fromTag, _ := from.Params.Get("tag")
	callID, _ := res.CallID()

	d := newDialog(id, callID, toTag.String(), fromTag.String())
	r.byID.Set(id, d)
	return d, nil
}

// Confirm transitions a dialog to confirmed on the 2xx final response or the
// ACK that confirms it.
func (r *DialogRegistry) Confirm(id string) {
	if d, ok := r.byID.Get(id); ok {
		d.setState(DialogStateConfirmed)
	}
}

// Terminate removes a dialog, e.g. on BYE or on a non-2xx final response to
// the INVITE that created it.
func (r *DialogRegistry) Terminate(id string) {
	if d, ok := r.byID.Get(id); ok {
		d.setState(DialogStateTerminated)
	}
	r.byID.Del(id)
}

// Size reports the number of live dialogs, used to drive the calls_active
// gauge.
func (r *DialogRegistry) Size() int { return r.byID.Size() }

// Lookup finds the dialog an in-dialog request belongs to.
func (r *DialogRegistry) Lookup(req *sip.Request) (*Dialog, bool) {
	id, err := sip.MakeDialogIDFromMessage(req)
	if err != nil {
		return nil, false
	}
	return r.byID.Get(id)
}

// errorResponse is the fixed mapping from an application [app.ErrorKind] to
// a SIP final status, RFC 3261 Section 21.4/21.5.
var errorResponse = map[app.ErrorKind]sip.StatusCode{
	app.ErrorKindInternal:     sip.StatusInternalServerError,
	app.ErrorKindBadRequest:   sip.StatusBadRequest,
	app.ErrorKindForbidden:    sip.StatusForbidden,
	app.ErrorKindNotFound:     sip.StatusNotFound,
	app.ErrorKindUnauthorized: sip.StatusUnauthorized,
	app.ErrorKindTimeout:      sip.StatusServerTimeout,
	app.ErrorKindUnavailable:  sip.StatusServiceUnavailable,
}

// StatusForErrorKind maps a callback failure kind to the SIP final response
// the reply engine should send. Unknown kinds map to 500.
func StatusForErrorKind(kind app.ErrorKind) sip.StatusCode {
	if code, ok := errorResponse[kind]; ok {
		return code
	}
	return sip.StatusInternalServerError
}
