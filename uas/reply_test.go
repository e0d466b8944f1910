package uas

import (
	"testing"

	"github.com/ghettovoice/gosip/app"
	"github.com/ghettovoice/gosip/sip"
)

func TestBuildReply_MintsToTagWhenAbsent(t *testing.T) {
	t.Parallel()

	req := newRouteTestRequest(sip.MethodOptions, "")
	res := buildReply(req, app.ReplyDecision{Status: sip.StatusOK})

	to, ok := res.To()
	if !ok {
		t.Fatalf("response has no To header")
	}
	if _, hasTag := to.Params.Get("tag"); !hasTag {
		t.Errorf("buildReply() did not mint a To-tag for a request whose To lacked one")
	}
}

func TestBuildReply_KeepsExistingToTag(t *testing.T) {
	t.Parallel()

	req := newRouteTestRequest(sip.MethodBye, "to-tag")
	res := buildReply(req, app.ReplyDecision{Status: sip.StatusOK})

	to, ok := res.To()
	if !ok {
		t.Fatalf("response has no To header")
	}
	tag, _ := to.Params.Get("tag")
	if tag.String() != "to-tag" {
		t.Errorf("buildReply() To-tag = %q, want \"to-tag\" (already present on the request)", tag.String())
	}
}

func TestBuildReply_SetsBodyAndHeaders(t *testing.T) {
	t.Parallel()

	req := newRouteTestRequest(sip.MethodOptions, "")
	extra := sip.NewUnsupported("100rel")
	body := []byte("v=0")

	res := buildReply(req, app.ReplyDecision{Status: sip.StatusOK, Headers: []sip.Header{extra}, Body: body})

	if string(res.Body()) != string(body) {
		t.Errorf("buildReply() body = %q, want %q", res.Body(), body)
	}
	if h := res.GetHeaders("Unsupported"); len(h) == 0 {
		t.Errorf("buildReply() did not append the extra Unsupported header")
	}
}

func TestBuildChallengeReply_WWWAuthenticate(t *testing.T) {
	t.Parallel()

	req := newRouteTestRequest(sip.MethodInvite, "")
	res := buildChallengeReply(req, app.AuthorizeResult{Authenticate: "example.com"})

	if res.StatusCode() != sip.StatusUnauthorized {
		t.Errorf("buildChallengeReply() status = %v, want StatusUnauthorized", res.StatusCode())
	}
	if h := res.GetHeaders("WWW-Authenticate"); len(h) == 0 {
		t.Errorf("buildChallengeReply() missing WWW-Authenticate header")
	}
}

func TestBuildChallengeReply_ProxyAuthenticate(t *testing.T) {
	t.Parallel()

	req := newRouteTestRequest(sip.MethodInvite, "")
	res := buildChallengeReply(req, app.AuthorizeResult{ProxyAuthenticate: "example.com"})

	if res.StatusCode() != sip.StatusProxyAuthenticationRequired {
		t.Errorf("buildChallengeReply() status = %v, want StatusProxyAuthenticationRequired", res.StatusCode())
	}
	if h := res.GetHeaders("Proxy-Authenticate"); len(h) == 0 {
		t.Errorf("buildChallengeReply() missing Proxy-Authenticate header")
	}
}

func TestBuildErrorReply_AddsUnsupportedForBadExtension(t *testing.T) {
	t.Parallel()

	req := newRouteTestRequest(sip.MethodOptions, "")
	res := buildErrorReply(req, sip.StatusBadExtension, "100rel")

	if res.StatusCode() != sip.StatusBadExtension {
		t.Errorf("buildErrorReply() status = %v, want StatusBadExtension", res.StatusCode())
	}
	h := res.GetHeaders("Unsupported")
	if len(h) == 0 {
		t.Fatalf("buildErrorReply() missing Unsupported header")
	}
}

func TestBuildErrorReply_AddsUnsupportedForBadExtensionWithMultipleTokens(t *testing.T) {
	t.Parallel()

	req := newRouteTestRequest(sip.MethodOptions, "")
	res := buildErrorReply(req, sip.StatusBadExtension, "100rel", "foo")

	if res.StatusCode() != sip.StatusBadExtension {
		t.Errorf("buildErrorReply() status = %v, want StatusBadExtension", res.StatusCode())
	}
	h := res.GetHeaders("Unsupported")
	if len(h) == 0 {
		t.Fatalf("buildErrorReply() missing Unsupported header")
	}
	sl, ok := h[0].(*sip.StringListHeader)
	if !ok {
		t.Fatalf("buildErrorReply() Unsupported header type = %T, want *sip.StringListHeader", h[0])
	}
	want := []string{"100rel", "foo"}
	if len(sl.Values) != len(want) || sl.Values[0] != want[0] || sl.Values[1] != want[1] {
		t.Errorf("buildErrorReply() Unsupported values = %v, want %v (order preserved)", sl.Values, want)
	}
}

func TestBuildErrorReply_NoUnsupportedHeaderForOtherStatuses(t *testing.T) {
	t.Parallel()

	req := newRouteTestRequest(sip.MethodOptions, "")
	res := buildErrorReply(req, sip.StatusTooManyHops, "")

	if h := res.GetHeaders("Unsupported"); len(h) != 0 {
		t.Errorf("buildErrorReply() added an Unsupported header for a non-420 status")
	}
}
