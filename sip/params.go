package sip

import "strings"

// Params is an ordered collection of SIP generic-params (header or URI
// parameters), e.g. ";tag=abc;ttl=5". Order is preserved for rendering.
type Params struct {
	keys   []string
	values map[string]MaybeString
}

// NewParams returns an empty parameter set.
func NewParams() Params {
	return Params{values: make(map[string]MaybeString)}
}

// Get returns the value for key and whether it was present.
func (p Params) Get(key string) (MaybeString, bool) {
	if p.values == nil {
		return nil, false
	}
	v, ok := p.values[strings.ToLower(key)]
	return v, ok
}

// Has reports whether key is present, regardless of its value.
func (p Params) Has(key string) bool {
	_, ok := p.Get(key)
	return ok
}

// Set adds or replaces a parameter. It returns the receiver for chaining.
func (p Params) Set(key string, value MaybeString) Params {
	key = strings.ToLower(key)
	if p.values == nil {
		p.values = make(map[string]MaybeString)
	}
	if _, exists := p.values[key]; !exists {
		p.keys = append(p.keys, key)
	}
	p.values[key] = value
	return p
}

// Remove deletes a parameter, if present.
func (p Params) Remove(key string) Params {
	key = strings.ToLower(key)
	if _, ok := p.values[key]; !ok {
		return p
	}
	delete(p.values, key)
	for i, k := range p.keys {
		if k == key {
			p.keys = append(p.keys[:i], p.keys[i+1:]...)
			break
		}
	}
	return p
}

// Length returns the number of parameters.
func (p Params) Length() int { return len(p.keys) }

// Clone returns a deep copy.
func (p Params) Clone() Params {
	np := NewParams()
	for _, k := range p.keys {
		np = np.Set(k, p.values[k])
	}
	return np
}

// Equal reports whether two parameter sets have the same key/value pairs,
// regardless of order.
func (p Params) Equal(other Params) bool {
	if p.Length() != other.Length() {
		return false
	}
	for _, k := range p.keys {
		ov, ok := other.Get(k)
		if !ok || !p.values[k].Equal(ov) {
			return false
		}
	}
	return true
}

// ToString renders the parameters joined by sep, in the form key=value
// (or bare key for valueless flags).
func (p Params) ToString(sep uint8) string {
	var b strings.Builder
	for i, k := range p.keys {
		if i > 0 {
			b.WriteByte(sep)
		}
		b.WriteString(k)
		if v := p.values[k]; v != nil && v.String() != "" {
			b.WriteByte('=')
			b.WriteString(v.String())
		}
	}
	return b.String()
}
