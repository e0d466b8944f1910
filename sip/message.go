package sip

import (
	"strings"
)

// Message is the common interface for SIP requests and responses,
// RFC 3261 Section 7.
type Message interface {
	// SipVersion returns the SIP protocol version, e.g. "SIP/2.0".
	SipVersion() string

	Headers() []Header
	GetHeaders(name string) []Header
	AppendHeader(h Header)
	PrependHeader(h Header)
	RemoveHeader(name string)

	Body() []byte
	SetBody(body []byte, setContentLength bool)

	CallID() (CallID, bool)
	Via() (ViaHeader, bool)
	ViaHop() (*ViaHop, bool)
	From() (*FromHeader, bool)
	To() (*ToHeader, bool)
	CSeq() (*CSeq, bool)
	ContentLength() (ContentLength, bool)
	MaxForwards() (MaxForwards, bool)

	Transport() string
	Source() string
	SetSource(src string)
	Destination() string
	SetDestination(dst string)

	String() string
}

// headers is the ordered multimap of header fields shared by requests and
// responses.
type headers struct {
	byName map[string][]Header
	order  []string
}

func newHeaders(hdrs []Header) *headers {
	hs := &headers{byName: make(map[string][]Header)}
	for _, h := range hdrs {
		hs.AppendHeader(h)
	}
	return hs
}

func (hs *headers) AppendHeader(h Header) {
	name := strings.ToLower(h.Name())
	if _, ok := hs.byName[name]; !ok {
		hs.order = append(hs.order, name)
	}
	hs.byName[name] = append(hs.byName[name], h)
}

func (hs *headers) PrependHeader(h Header) {
	name := strings.ToLower(h.Name())
	if _, ok := hs.byName[name]; !ok {
		hs.order = append([]string{name}, hs.order...)
	}
	hs.byName[name] = append([]Header{h}, hs.byName[name]...)
}

func (hs *headers) RemoveHeader(name string) {
	name = strings.ToLower(name)
	delete(hs.byName, name)
	for i, n := range hs.order {
		if n == name {
			hs.order = append(hs.order[:i], hs.order[i+1:]...)
			break
		}
	}
}

func (hs *headers) Headers() []Header {
	out := make([]Header, 0, len(hs.order))
	for _, name := range hs.order {
		out = append(out, hs.byName[name]...)
	}
	return out
}

func (hs *headers) GetHeaders(name string) []Header {
	return hs.byName[strings.ToLower(name)]
}

func (hs *headers) CallID() (CallID, bool) {
	h := hs.GetHeaders("Call-ID")
	if len(h) == 0 {
		return "", false
	}
	v, ok := h[0].(CallID)
	return v, ok
}

func (hs *headers) Via() (ViaHeader, bool) {
	h := hs.GetHeaders("Via")
	if len(h) == 0 {
		return nil, false
	}
	v, ok := h[0].(ViaHeader)
	return v, ok
}

func (hs *headers) ViaHop() (*ViaHop, bool) {
	v, ok := hs.Via()
	if !ok {
		return nil, false
	}
	return v.Top()
}

func (hs *headers) From() (*FromHeader, bool) {
	h := hs.GetHeaders("From")
	if len(h) == 0 {
		return nil, false
	}
	v, ok := h[0].(*FromHeader)
	return v, ok
}

func (hs *headers) To() (*ToHeader, bool) {
	h := hs.GetHeaders("To")
	if len(h) == 0 {
		return nil, false
	}
	v, ok := h[0].(*ToHeader)
	return v, ok
}

func (hs *headers) CSeq() (*CSeq, bool) {
	h := hs.GetHeaders("CSeq")
	if len(h) == 0 {
		return nil, false
	}
	v, ok := h[0].(*CSeq)
	return v, ok
}

func (hs *headers) ContentLength() (ContentLength, bool) {
	h := hs.GetHeaders("Content-Length")
	if len(h) == 0 {
		return 0, false
	}
	v, ok := h[0].(ContentLength)
	return v, ok
}

func (hs *headers) MaxForwards() (MaxForwards, bool) {
	h := hs.GetHeaders("Max-Forwards")
	if len(h) == 0 {
		return 0, false
	}
	v, ok := h[0].(MaxForwards)
	return v, ok
}

func (hs *headers) String() string {
	var b strings.Builder
	for _, h := range hs.Headers() {
		b.WriteString(h.String())
		b.WriteString("\r\n")
	}
	return b.String()
}

// message is the base embedded in Request and Response.
type message struct {
	*headers
	sipVersion string
	body       []byte
	src, dst   string
}

func (m *message) SipVersion() string { return m.sipVersion }
func (m *message) Body() []byte       { return m.body }

func (m *message) SetBody(body []byte, setContentLength bool) {
	m.body = body
	if setContentLength {
		m.RemoveHeader("Content-Length")
		m.AppendHeader(ContentLength(len(body)))
	}
}

func (m *message) Transport() string {
	if hop, ok := m.ViaHop(); ok {
		return hop.Transport
	}
	return DefaultProtocol
}

func (m *message) Source() string       { return m.src }
func (m *message) SetSource(src string) { m.src = src }
func (m *message) Destination() string  { return m.dst }
func (m *message) SetDestination(d string) { m.dst = d }

// CopyHeaders copies every header of the given name from one message to
// another, appending clones to the destination's header list.
func CopyHeaders(name string, from, to Message) {
	for _, h := range from.GetHeaders(name) {
		to.AppendHeader(h.Clone())
	}
}
