package sip_test

import (
	"testing"

	"github.com/ghettovoice/gosip/sip"
)

func TestParams(t *testing.T) {
	t.Parallel()

	p := sip.NewParams()
	if p.Length() != 0 {
		t.Fatalf("NewParams().Length() = %d, want 0", p.Length())
	}

	p = p.Set("tag", sip.String{Str: "abc"})
	p = p.Set("TTL", sip.String{Str: "5"})

	if !p.Has("tag") {
		t.Errorf("Has(\"tag\") = false, want true")
	}
	if !p.Has("ttl") {
		t.Errorf("Has(\"ttl\") = false, want true, lookup should be case-insensitive")
	}
	if v, ok := p.Get("Tag"); !ok || v.String() != "abc" {
		t.Errorf("Get(\"Tag\") = (%v, %v), want (abc, true)", v, ok)
	}
	if p.Length() != 2 {
		t.Fatalf("Length() = %d, want 2", p.Length())
	}

	want := "tag=abc;ttl=5"
	if got := p.ToString(';'); got != want {
		t.Errorf("ToString(';') = %q, want %q", got, want)
	}

	p = p.Remove("tag")
	if p.Has("tag") {
		t.Errorf("Has(\"tag\") = true after Remove, want false")
	}
	if p.Length() != 1 {
		t.Fatalf("Length() = %d after Remove, want 1", p.Length())
	}
}

func TestParamsClone(t *testing.T) {
	t.Parallel()

	p := sip.NewParams().Set("lr", sip.String{})
	clone := p.Clone()

	if !clone.Equal(p) {
		t.Fatalf("clone.Equal(original) = false, want true")
	}

	clone = clone.Set("lr", sip.String{Str: "changed"})
	if v, _ := p.Get("lr"); v.String() != "" {
		t.Errorf("mutating the clone changed the original: p.Get(\"lr\") = %q, want \"\"", v.String())
	}
}

func TestParamsEqual(t *testing.T) {
	t.Parallel()

	a := sip.NewParams().Set("transport", sip.String{Str: "tcp"}).Set("lr", sip.String{})
	b := sip.NewParams().Set("lr", sip.String{}).Set("transport", sip.String{Str: "tcp"})
	c := sip.NewParams().Set("transport", sip.String{Str: "udp"})

	if !a.Equal(b) {
		t.Errorf("a.Equal(b) = false, want true (order should not matter)")
	}
	if a.Equal(c) {
		t.Errorf("a.Equal(c) = true, want false")
	}
}
