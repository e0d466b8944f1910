package sip

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Header is the common interface implemented by every SIP header type.
type Header interface {
	// Name returns the canonical (long-form) header name.
	Name() string
	String() string
	Clone() Header
}

// ViaHop is a single hop of a Via header field, RFC 3261 Section 20.42.
type ViaHop struct {
	ProtocolName    string
	ProtocolVersion string
	Transport       string
	Host            string
	Port            *Port
	Params          Params
}

func (v *ViaHop) Branch() (string, bool) {
	b, ok := v.Params.Get("branch")
	if !ok {
		return "", false
	}
	return b.String(), true
}

func (v *ViaHop) Clone() *ViaHop {
	return &ViaHop{
		ProtocolName:    v.ProtocolName,
		ProtocolVersion: v.ProtocolVersion,
		Transport:       v.Transport,
		Host:            v.Host,
		Port:            v.Port.Clone(),
		Params:          v.Params.Clone(),
	}
}

func (v *ViaHop) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s/%s/%s %s", v.ProtocolName, v.ProtocolVersion, v.Transport, v.Host)
	if v.Port != nil {
		fmt.Fprintf(&b, ":%s", v.Port)
	}
	if v.Params.Length() > 0 {
		b.WriteByte(';')
		b.WriteString(v.Params.ToString(';'))
	}
	return b.String()
}

// ViaHeader is a list of Via hops carried by a single Via header line
// (the transaction layer only ever needs the topmost one, via[0]).
type ViaHeader []*ViaHop

func (v ViaHeader) Name() string { return "Via" }

func (v ViaHeader) Clone() Header {
	cp := make(ViaHeader, len(v))
	for i, hop := range v {
		cp[i] = hop.Clone()
	}
	return cp
}

func (v ViaHeader) String() string {
	parts := make([]string, len(v))
	for i, hop := range v {
		parts[i] = hop.String()
	}
	return "Via: " + strings.Join(parts, ", ")
}

func (v ViaHeader) Top() (*ViaHop, bool) {
	if len(v) == 0 {
		return nil, false
	}
	return v[0], true
}

// CallID is the Call-ID header, RFC 3261 Section 20.8.
type CallID string

func (c CallID) Name() string   { return "Call-ID" }
func (c CallID) Clone() Header  { return c }
func (c CallID) String() string { return "Call-ID: " + string(c) }

// CSeq is the CSeq header, RFC 3261 Section 20.16.
type CSeq struct {
	SeqNo  uint32
	Method Method
}

func (c *CSeq) Name() string { return "CSeq" }
func (c *CSeq) Clone() Header {
	return &CSeq{SeqNo: c.SeqNo, Method: c.Method}
}
func (c *CSeq) String() string { return fmt.Sprintf("CSeq: %d %s", c.SeqNo, c.Method) }

// FromHeader is the From header, RFC 3261 Section 20.20.
type FromHeader Address

func (f *FromHeader) Name() string  { return "From" }
func (f *FromHeader) Clone() Header { return (*FromHeader)((*Address)(f).Clone()) }
func (f *FromHeader) String() string {
	return "From: " + (*Address)(f).String()
}

// ToHeader is the To header, RFC 3261 Section 20.39.
type ToHeader Address

func (t *ToHeader) Name() string  { return "To" }
func (t *ToHeader) Clone() Header { return (*ToHeader)((*Address)(t).Clone()) }
func (t *ToHeader) String() string {
	return "To: " + (*Address)(t).String()
}

// ContactHeader is the Contact header, RFC 3261 Section 20.10.
type ContactHeader Address

func (c *ContactHeader) Name() string  { return "Contact" }
func (c *ContactHeader) Clone() Header { return (*ContactHeader)((*Address)(c).Clone()) }
func (c *ContactHeader) String() string {
	return "Contact: " + (*Address)(c).String()
}

// MaxForwards is the Max-Forwards header, RFC 3261 Section 20.22.
type MaxForwards uint32

func (m MaxForwards) Name() string   { return "Max-Forwards" }
func (m MaxForwards) Clone() Header  { return m }
func (m MaxForwards) String() string { return fmt.Sprintf("Max-Forwards: %d", uint32(m)) }

// ContentLength is the Content-Length header, RFC 3261 Section 20.14.
type ContentLength uint32

func (c ContentLength) Name() string   { return "Content-Length" }
func (c ContentLength) Clone() Header  { return c }
func (c ContentLength) String() string { return fmt.Sprintf("Content-Length: %d", uint32(c)) }

// Expires is the Expires header, RFC 3261 Section 20.19.
type Expires uint32

func (e Expires) Name() string   { return "Expires" }
func (e Expires) Clone() Header  { return e }
func (e Expires) String() string { return fmt.Sprintf("Expires: %d", uint32(e)) }

func (e Expires) Duration() time.Duration { return time.Duration(e) * time.Second }

// RetryAfter is the Retry-After header, RFC 3261 Section 20.33.
type RetryAfter struct {
	Seconds uint32
	Params  Params
}

func (r *RetryAfter) Name() string  { return "Retry-After" }
func (r *RetryAfter) Clone() Header { return &RetryAfter{Seconds: r.Seconds, Params: r.Params.Clone()} }
func (r *RetryAfter) String() string {
	s := fmt.Sprintf("Retry-After: %d", r.Seconds)
	if r.Params.Length() > 0 {
		s += ";" + r.Params.ToString(';')
	}
	return s
}

// StringListHeader models header fields whose value is a comma-separated
// token list: Require, Supported, Unsupported, Proxy-Require, Allow.
type StringListHeader struct {
	HeaderName string
	Values     []string
}

func (h *StringListHeader) Name() string { return h.HeaderName }
func (h *StringListHeader) Clone() Header {
	return &StringListHeader{HeaderName: h.HeaderName, Values: append([]string(nil), h.Values...)}
}
func (h *StringListHeader) String() string {
	return h.HeaderName + ": " + strings.Join(h.Values, ", ")
}

func (h *StringListHeader) Has(token string) bool {
	for _, v := range h.Values {
		if strings.EqualFold(v, token) {
			return true
		}
	}
	return false
}

func NewRequire(values ...string) *StringListHeader {
	return &StringListHeader{HeaderName: "Require", Values: values}
}

func NewSupported(values ...string) *StringListHeader {
	return &StringListHeader{HeaderName: "Supported", Values: values}
}

func NewUnsupported(values ...string) *StringListHeader {
	return &StringListHeader{HeaderName: "Unsupported", Values: values}
}

// RouteHeader is a single entry of a Route or Record-Route header,
// RFC 3261 Sections 20.30, 20.34.
type RouteHeader struct {
	HeaderName string // "Route" or "Record-Route"
	Address    *Address
}

func (r *RouteHeader) Name() string { return r.HeaderName }
func (r *RouteHeader) Clone() Header {
	return &RouteHeader{HeaderName: r.HeaderName, Address: r.Address.Clone()}
}
func (r *RouteHeader) String() string { return r.HeaderName + ": " + r.Address.String() }

// ParseUint32 is a small helper used by header construction code.
func ParseUint32(s string) (uint32, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0, NewInvalidArgumentError(err)
	}
	return uint32(v), nil
}
