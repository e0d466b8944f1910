package uas_test

import (
	"crypto/md5" //nolint:gosec // test fixture only, matches the RFC 2617 algorithm under test.
	"fmt"
	"strings"
	"testing"

	"github.com/icholy/digest"

	"github.com/ghettovoice/gosip/uas"
)

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s)) //nolint:gosec
	return fmt.Sprintf("%x", sum)
}

func TestBuildChallenge(t *testing.T) {
	t.Parallel()

	got := uas.BuildChallenge(uas.DigestRealm{Realm: "example.com"}, "nonce-1")
	for _, want := range []string{`realm="example.com"`, `nonce="nonce-1"`, `algorithm=MD5`, `qop=`} {
		if !strings.Contains(got, want) {
			t.Errorf("BuildChallenge() = %q, want it to contain %q", got, want)
		}
	}
}

func TestVerifyCredentials(t *testing.T) {
	t.Parallel()

	const (
		username = "alice"
		realm    = "example.com"
		password = "secret"
		method   = "INVITE"
		uri      = "sip:bob@example.com"
	)

	valid := &digest.Credentials{
		Username: username,
		Realm:    realm,
		Nonce:    "n1",
		URI:      uri,
		Response: mustDigestResponse(t, username, realm, password, method, uri, "", "", ""),
	}
	if !uas.VerifyCredentials(valid, method, password) {
		t.Errorf("VerifyCredentials() = false, want true for a correctly computed response")
	}

	wrongPassword := *valid
	if uas.VerifyCredentials(&wrongPassword, method, "incorrect") {
		t.Errorf("VerifyCredentials() = true, want false for the wrong password")
	}

	if uas.VerifyCredentials(nil, method, password) {
		t.Errorf("VerifyCredentials(nil, ...) = true, want false")
	}
}

func TestVerifyCredentials_Qop(t *testing.T) {
	t.Parallel()

	const (
		username = "alice"
		realm    = "example.com"
		password = "secret"
		method   = "INVITE"
		uri      = "sip:bob@example.com"
	)
	cred := &digest.Credentials{
		Username:   username,
		Realm:      realm,
		Nonce:      "n1",
		URI:        uri,
		MessageQop: "auth",
		NonceCount: "00000001",
		Cnonce:     "c1",
	}
	cred.Response = mustDigestResponse(t, username, realm, password, method, uri, cred.MessageQop, cred.NonceCount, cred.Cnonce)

	if !uas.VerifyCredentials(cred, method, password) {
		t.Errorf("VerifyCredentials() with qop=auth = false, want true")
	}
}

func TestParseCredentials(t *testing.T) {
	t.Parallel()

	header := `Digest username="alice", realm="example.com", nonce="n1", uri="sip:bob@example.com", response="deadbeef"`
	cred, err := uas.ParseCredentials(header)
	if err != nil {
		t.Fatalf("ParseCredentials() error = %v, want nil", err)
	}
	if cred.Username != "alice" || cred.Realm != "example.com" {
		t.Errorf("ParseCredentials() = %+v, want username=alice realm=example.com", cred)
	}
}

// mustDigestResponse computes the RFC 2617 Section 3.2.2.1 expected digest
// response the same way uas.VerifyCredentials does, for building fixtures.
func mustDigestResponse(t *testing.T, username, realm, password, method, uri, qop, nc, cnonce string) string {
	t.Helper()
	ha1 := md5Hex(username + ":" + realm + ":" + password)
	ha2 := md5Hex(method + ":" + uri)
	if qop != "" {
		return md5Hex(ha1 + ":n1:" + nc + ":" + cnonce + ":" + qop + ":" + ha2)
	}
	return md5Hex(ha1 + ":n1:" + ha2)
}
