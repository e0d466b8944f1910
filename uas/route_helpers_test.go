package uas

import (
	"github.com/ghettovoice/gosip/sip"
)

// newRouteTestRequest builds a minimally valid in-dialog-capable request for
// the routing and dialog tests: a To/From with tags, Call-ID and CSeq.
func newRouteTestRequest(method sip.Method, toTag string) *sip.Request {
	uri := &sip.URI{Scheme: "sip", Host: "example.com", UParams: sip.NewParams(), Headers: sip.NewParams()}
	viaParams := sip.NewParams().Set("branch", sip.String{Str: sip.GenerateBranch()})
	via := sip.ViaHeader{{ProtocolName: "SIP", ProtocolVersion: "2.0", Transport: "UDP", Host: "127.0.0.1", Params: viaParams}}

	toParams := sip.NewParams()
	if toTag != "" {
		toParams = toParams.Set("tag", sip.String{Str: toTag})
	}
	to := (*sip.ToHeader)(&sip.Address{URI: uri, Params: toParams})
	from := (*sip.FromHeader)(&sip.Address{URI: uri, Params: sip.NewParams().Set("tag", sip.String{Str: "from-tag"})})

	return sip.NewRequest(method, uri, "", []sip.Header{
		via, to, from, sip.CallID("call-1"), &sip.CSeq{SeqNo: 1, Method: method}, sip.MaxForwards(70),
	}, nil)
}
