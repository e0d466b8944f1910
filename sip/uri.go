package sip

import (
	"fmt"
	"strings"
)

// URI is a minimal sip:/sips:/tel: URI, RFC 3261 Section 19.1.
// Only the fields needed to route and match requests are modeled; full
// grammar validation happens upstream of the transaction core.
type URI struct {
	Scheme   string
	User     string
	Password string
	Host     string
	Port     *Port
	UParams  Params // URI parameters, e.g. transport, maddr, ttl, lr, user
	Headers  Params // URI headers (the part after '?')
}

func (u *URI) Clone() *URI {
	if u == nil {
		return nil
	}
	return &URI{
		Scheme:   u.Scheme,
		User:     u.User,
		Password: u.Password,
		Host:     u.Host,
		Port:     u.Port.Clone(),
		UParams:  u.UParams.Clone(),
		Headers:  u.Headers.Clone(),
	}
}

func (u *URI) Equal(other interface{}) bool {
	v, ok := other.(*URI)
	if !ok || v == nil || u == nil {
		return u == nil && (v == nil || !ok)
	}
	return strings.EqualFold(u.Scheme, v.Scheme) &&
		u.User == v.User &&
		strings.EqualFold(u.Host, v.Host) &&
		u.Port.Equal(v.Port) &&
		u.UParams.Equal(v.UParams)
}

// IsSIP reports whether the scheme is sip or sips.
func (u *URI) IsSIP() bool {
	return strings.EqualFold(u.Scheme, "sip") || strings.EqualFold(u.Scheme, "sips")
}

// Transport returns the explicit ";transport=" URI parameter, or "" if absent.
func (u *URI) Transport() string {
	if v, ok := u.UParams.Get("transport"); ok {
		return v.String()
	}
	return ""
}

// IsLooseRouting reports whether the URI carries the ";lr" parameter,
// RFC 3261 Section 19.1.1.
func (u *URI) IsLooseRouting() bool {
	return u.UParams.Has("lr")
}

func (u *URI) String() string {
	if u == nil {
		return ""
	}
	var b strings.Builder
	scheme := u.Scheme
	if scheme == "" {
		scheme = "sip"
	}
	b.WriteString(scheme)
	b.WriteByte(':')
	if u.User != "" {
		b.WriteString(u.User)
		if u.Password != "" {
			b.WriteByte(':')
			b.WriteString(u.Password)
		}
		b.WriteByte('@')
	}
	b.WriteString(u.Host)
	if u.Port != nil {
		b.WriteByte(':')
		b.WriteString(u.Port.String())
	}
	if u.UParams.Length() > 0 {
		b.WriteByte(';')
		b.WriteString(u.UParams.ToString(';'))
	}
	if u.Headers.Length() > 0 {
		b.WriteByte('?')
		b.WriteString(u.Headers.ToString('&'))
	}
	return b.String()
}

// ParseURI does a minimal best-effort parse of a sip/sips/tel URI sufficient
// for routing decisions. It does not validate full RFC 3261 grammar.
func ParseURI(raw string) (*URI, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(strings.TrimSuffix(raw, ">"), "<")
	schemeIdx := strings.Index(raw, ":")
	if schemeIdx < 0 {
		return nil, NewInvalidArgumentError(fmt.Sprintf("malformed URI %q: missing scheme", raw))
	}
	u := &URI{Scheme: raw[:schemeIdx], UParams: NewParams(), Headers: NewParams()}
	rest := raw[schemeIdx+1:]

	if hIdx := strings.Index(rest, "?"); hIdx >= 0 {
		for _, kv := range strings.Split(rest[hIdx+1:], "&") {
			k, v, _ := strings.Cut(kv, "=")
			u.Headers = u.Headers.Set(k, String{v})
		}
		rest = rest[:hIdx]
	}
	for {
		pIdx := strings.LastIndex(rest, ";")
		if pIdx < 0 {
			break
		}
		k, v, _ := strings.Cut(rest[pIdx+1:], "=")
		u.UParams = u.UParams.Set(k, String{v})
		rest = rest[:pIdx]
	}
	if atIdx := strings.Index(rest, "@"); atIdx >= 0 {
		userinfo := rest[:atIdx]
		rest = rest[atIdx+1:]
		u.User, u.Password, _ = strings.Cut(userinfo, ":")
	}
	host, port, ok := strings.Cut(rest, ":")
	u.Host = host
	if ok {
		var p uint16
		if _, err := fmt.Sscanf(port, "%d", &p); err != nil {
			return nil, NewInvalidArgumentError(fmt.Sprintf("malformed URI %q: bad port", raw))
		}
		pp := Port(p)
		u.Port = &pp
	}
	return u, nil
}

// Address is a display-name/URI/params triple as used in From, To and
// Contact headers, RFC 3261 Section 20.10.
type Address struct {
	DisplayName MaybeString
	URI         *URI
	Params      Params
}

func (a *Address) Clone() *Address {
	if a == nil {
		return nil
	}
	return &Address{DisplayName: a.DisplayName, URI: a.URI.Clone(), Params: a.Params.Clone()}
}

func (a *Address) Equal(other interface{}) bool {
	v, ok := other.(*Address)
	if !ok || v == nil {
		return false
	}
	dn := a.DisplayName == nil && v.DisplayName == nil ||
		(a.DisplayName != nil && v.DisplayName != nil && a.DisplayName.Equal(v.DisplayName))
	return dn && a.URI.Equal(v.URI) && a.Params.Equal(v.Params)
}

func (a *Address) Tag() (string, bool) {
	v, ok := a.Params.Get("tag")
	if !ok {
		return "", false
	}
	return v.String(), true
}

func (a *Address) String() string {
	var b strings.Builder
	if a.DisplayName != nil && a.DisplayName.String() != "" {
		fmt.Fprintf(&b, "%q ", a.DisplayName.String())
	}
	fmt.Fprintf(&b, "<%s>", a.URI)
	if a.Params.Length() > 0 {
		b.WriteByte(';')
		b.WriteString(a.Params.ToString(';'))
	}
	return b.String()
}
