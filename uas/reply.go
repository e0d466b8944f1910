package uas

import (
	"context"
	"strings"

	"github.com/ghettovoice/gosip/app"
	"github.com/ghettovoice/gosip/sip"
)

// buildReply turns an application [app.ReplyDecision] into a wire response
// for the given request, filling in the dialog-identifying headers RFC 3261
// Section 8.2.6.2 requires and minting a To-tag whenever the request's To
// header carries none.
func buildReply(req *sip.Request, d app.ReplyDecision) *sip.Response {
	toTag := ""
	if to, ok := req.To(); ok {
		if _, hasTag := to.Params.Get("tag"); !hasTag {
			toTag = sip.GenerateTag()
		}
	}
	res := req.NewResponseFromRequest(d.Status, d.Reason, toTag, d.Body)
	for _, h := range d.Headers {
		res.AppendHeader(h)
	}
	if len(d.Body) > 0 {
		res.SetBody(d.Body, true)
	}
	return res
}

// buildChallengeReply builds a 401/407 challenge response for an
// [app.AuthorizeResult] that requested one.
func buildChallengeReply(req *sip.Request, ar app.AuthorizeResult) *sip.Response {
	toTag := sip.GenerateTag()
	status := sip.StatusUnauthorized
	headerName := "WWW-Authenticate"
	realm := ar.Authenticate
	if realm == "" {
		status = sip.StatusProxyAuthenticationRequired
		headerName = "Proxy-Authenticate"
		realm = ar.ProxyAuthenticate
	}
	res := req.NewResponseFromRequest(status, "", toTag, nil)
	res.AppendHeader(challengeHeader(headerName, DigestRealm{Realm: realm}, sip.GenerateTag()))
	return res
}

// buildErrorReply turns a routing rejection or an [app.ErrorDecision] into a
// final response. For [sip.StatusBadExtension], reasons lists every
// unsupported Require token in the order they were received; they are
// carried verbatim into the Unsupported header (RFC 3261 Section 20.32).
func buildErrorReply(req *sip.Request, status sip.StatusCode, reasons ...string) *sip.Response {
	var toTag string
	if to, ok := req.To(); ok {
		if _, hasTag := to.Params.Get("tag"); !hasTag {
			toTag = sip.GenerateTag()
		}
	}
	res := req.NewResponseFromRequest(status, strings.Join(reasons, ","), toTag, nil)
	if status == sip.StatusBadExtension && len(reasons) > 0 {
		res.AppendHeader(sip.NewUnsupported(reasons...))
	}
	return res
}

// sendFinal drives the request's server transaction to its final response.
func sendFinal(ctx context.Context, tx sip.ServerTransaction, res *sip.Response) error {
	return tx.Respond(ctx, res) //nolint:wrapcheck
}
