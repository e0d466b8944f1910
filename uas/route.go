package uas

import (
	"github.com/ghettovoice/gosip/app"
	"github.com/ghettovoice/gosip/sip"
)

// supportedMethods lists the request methods the engine's per-method
// callback dispatch table in [app.Handle] covers; anything else gets
// 405 Method Not Allowed before any module's per-method callback is consulted.
var supportedMethods = map[sip.Method]bool{
	sip.MethodInvite:    true,
	sip.MethodBye:       true,
	sip.MethodOptions:   true,
	sip.MethodRegister:  true,
	sip.MethodInfo:      true,
	sip.MethodMessage:   true,
	sip.MethodSubscribe: true,
	sip.MethodNotify:    true,
	sip.MethodRefer:     true,
	sip.MethodPublish:   true,
	sip.MethodUpdate:    true,
	sip.MethodPrack:     true,
}

// routeVerdict is the dispatcher's decision once local RFC 3261 rules and
// the application's Route callback have both been consulted.
type routeVerdict struct {
	action  app.RouteAction
	targets []*sip.URI
	reply   app.ReplyDecision
	// reject, when non-zero, short-circuits directly to a final response
	// without ever consulting a module's per-method callback.
	reject sip.StatusCode
	// reasons holds, for a StatusBadExtension reject, every unsupported
	// Require token in the order they appeared.
	reasons []string
}

// routeRequest applies the RFC 3261 Section 8.2/16 gating rules (Max-Forwards,
// unsupported mandatory extensions, method support, missing dialog for
// in-dialog requests) and, only once those pass, the application's Route
// decision.
func routeRequest(req *sip.Request, dialogs *DialogRegistry, routeResult app.RouteResult, hasRoute bool) routeVerdict {
	if mf, ok := req.MaxForwards(); ok && mf == 0 {
		return routeVerdict{reject: sip.StatusTooManyHops}
	}

	for _, h := range req.GetHeaders("Require") {
		if sl, ok := h.(*sip.StringListHeader); ok && len(sl.Values) > 0 {
			return routeVerdict{reject: sip.StatusBadExtension, reasons: sl.Values}
		}
	}

	if !req.Method().Equal(sip.MethodInvite) && !req.Method().Equal(sip.MethodCancel) && !req.Method().Equal(sip.MethodRegister) {
		if _, exists := dialogs.Lookup(req); !exists {
			if dialogRequired(req.Method()) {
				return routeVerdict{reject: sip.StatusCallTransactionDoesNotExist}
			}
		}
	}

	if !supportedMethods[req.Method()] {
		return routeVerdict{reject: sip.StatusMethodNotAllowed}
	}

	if !hasRoute {
		return routeVerdict{action: app.RouteActionProcess}
	}
	return routeVerdict{action: routeResult.Action, targets: routeResult.Targets, reply: routeResult.Reply}
}

// dialogRequired reports whether a method only ever occurs inside a
// previously established dialog.
func dialogRequired(m sip.Method) bool {
	return m.Equal(sip.MethodBye) || m.Equal(sip.MethodInfo) || m.Equal(sip.MethodUpdate) || m.Equal(sip.MethodPrack)
}
