// Package app defines the contract between the UAS call engine and the
// application code that decides how each request is handled: whether to
// answer it directly, proxy it, or hand it off to a long-running callback
// whose result arrives later. It corresponds to the application-callback
// bridge component of the call engine.
package app

import (
	"context"

	"github.com/ghettovoice/gosip/sip"
)

// Token is an opaque handle an application stores when it intends to answer
// a request asynchronously (e.g. after ringing a device) and uses later to
// submit the eventual [ReplyDecision] through [Bridge.Reply]. It is only
// ever compared for equality by the engine, never interpreted.
type Token string

// Decision is the sum type returned by every callback: a module either
// answers directly ([ReplyDecision]), defers the answer to later
// ([AsyncDecision]), declines to handle the request at all
// ([NotExportedDecision], letting the next plugin in the chain try), or
// fails outright ([ErrorDecision]).
type Decision interface {
	isDecision()
}

// ReplyDecision answers the request immediately with the given response
// parameters.
type ReplyDecision struct {
	Status  sip.StatusCode
	Reason  string
	Headers []sip.Header
	Body    []byte
}

func (ReplyDecision) isDecision() {}

// AsyncDecision tells the engine the module has accepted responsibility for
// the request and will reply later via [Bridge.Reply] using Token. The
// engine keeps the transaction open until the reply arrives or
// [DefaultCallbackTimeout] expires; it sends no provisional response of its
// own beyond the INVITE transaction's automatic 100 Trying.
type AsyncDecision struct {
	Token Token
}

func (AsyncDecision) isDecision() {}

// NotExportedDecision means this module does not implement the callback
// for the request's method/event; the engine continues to the next
// candidate module in the dispatch chain, per the plugin "continue"
// strategy. If no module in the chain claims the request, the engine
// answers with the configured fallback (e.g. 501 Not Implemented).
type NotExportedDecision struct{}

func (NotExportedDecision) isDecision() {}

// ErrorDecision means the callback failed; Kind governs which SIP response
// the engine maps the failure to.
type ErrorDecision struct {
	Kind ErrorKind
	Err  error
}

func (ErrorDecision) isDecision() {}

// ErrorKind classifies a callback failure for the purpose of choosing a SIP
// response, independent of the Go error's message.
type ErrorKind int

const (
	ErrorKindInternal ErrorKind = iota
	ErrorKindBadRequest
	ErrorKindForbidden
	ErrorKindNotFound
	ErrorKindUnauthorized
	ErrorKindTimeout
	ErrorKindUnavailable
)

// AuthorizeResult is returned by the Authorize callback. Authenticate or
// ProxyAuthenticate non-empty realms request the engine build the
// corresponding 401/407 digest challenge and return it in place of routing
// the request further.
type AuthorizeResult struct {
	Decision          Decision
	Authenticate      string // WWW-Authenticate realm, if challenging
	ProxyAuthenticate string // Proxy-Authenticate realm, if challenging
}

// RouteResult is returned by the Route callback: where should this request
// go next.
type RouteResult struct {
	Action RouteAction
	// Targets is used by Proxy/StrictProxy to fan the request out to one or
	// more next hops.
	Targets []*sip.URI
	// Reply carries the response to send for RouteActionRespond; ignored by
	// every other action.
	Reply ReplyDecision
}

// RouteAction selects how the route dispatcher handles a request.
type RouteAction int

const (
	// RouteActionProcess hands the request to this engine's own per-method
	// callback (invite/bye/options/...).
	RouteActionProcess RouteAction = iota
	// RouteActionRespond answers directly without further dispatch.
	RouteActionRespond
	// RouteActionProxy relays the request statelessly or stateful-forks it
	// to Targets, RFC 3261 Section 16.
	RouteActionProxy
	// RouteActionStrictProxy relays to a single, strict-routed target
	// (legacy RFC 2543 strict routing, RFC 3261 Section 16.4).
	RouteActionStrictProxy
)

// GetUserPassResult is returned by the GetUserPass callback used to build
// and verify digest authentication challenges/responses.
type GetUserPassResult struct {
	Password string
	Found    bool
}

// Callback function types, one per named application event. Every callback
// receives the request's wire fields decoded to the sip package types and
// returns within the engine's per-callback timeout or is treated as
// [ErrorKindTimeout].
type (
	AuthorizeFunc   func(ctx context.Context, req *sip.Request) (AuthorizeResult, error)
	RouteFunc       func(ctx context.Context, req *sip.Request) (RouteResult, error)
	InviteFunc      func(ctx context.Context, req *sip.Request) (Decision, error)
	ReinviteFunc    func(ctx context.Context, req *sip.Request) (Decision, error)
	ByeFunc         func(ctx context.Context, req *sip.Request) (Decision, error)
	OptionsFunc     func(ctx context.Context, req *sip.Request) (Decision, error)
	RegisterFunc    func(ctx context.Context, req *sip.Request) (Decision, error)
	InfoFunc        func(ctx context.Context, req *sip.Request) (Decision, error)
	MessageFunc     func(ctx context.Context, req *sip.Request) (Decision, error)
	SubscribeFunc   func(ctx context.Context, req *sip.Request) (Decision, error)
	ResubscribeFunc func(ctx context.Context, req *sip.Request) (Decision, error)
	NotifyFunc      func(ctx context.Context, req *sip.Request) (Decision, error)
	ReferFunc       func(ctx context.Context, req *sip.Request) (Decision, error)
	PublishFunc     func(ctx context.Context, req *sip.Request) (Decision, error)
	UpdateFunc      func(ctx context.Context, req *sip.Request) (Decision, error)
	PrackFunc       func(ctx context.Context, req *sip.Request) (Decision, error)
	AckFunc         func(ctx context.Context, req *sip.Request)
	GetUserPassFunc func(ctx context.Context, username, realm string) (GetUserPassResult, error)
)

// Handle is the capability struct an application module registers with the
// engine: a named set of optional callbacks. A nil field means this module
// does not export that callback, equivalent to always returning
// [NotExportedDecision]. Modules are consulted in registration order
// ("process"/module-name dispatch): the first one whose callback for the
// event returns anything other than [NotExportedDecision] wins.
type Handle struct {
	// Name identifies the module in logs and metrics.
	Name string

	Authorize   AuthorizeFunc
	Route       RouteFunc
	Invite      InviteFunc
	Reinvite    ReinviteFunc
	Bye         ByeFunc
	Options     OptionsFunc
	Register    RegisterFunc
	Info        InfoFunc
	Message     MessageFunc
	Subscribe   SubscribeFunc
	Resubscribe ResubscribeFunc
	Notify      NotifyFunc
	Refer       ReferFunc
	Publish     PublishFunc
	Update      UpdateFunc
	Prack       PrackFunc
	Ack         AckFunc
	GetUserPass GetUserPassFunc
}
