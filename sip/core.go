package sip

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Transport default ports and protocol names.
const (
	DefaultHost     = "127.0.0.1"
	DefaultProtocol = "UDP"

	DefaultUDPPort Port = 5060
	DefaultTCPPort Port = 5060
	DefaultTLSPort Port = 5061
)

// Port is a transport port number.
type Port uint16

func (port *Port) Clone() *Port {
	if port == nil {
		return nil
	}
	p := *port
	return &p
}

func (port *Port) String() string {
	if port == nil {
		return ""
	}
	return fmt.Sprintf("%d", *port)
}

func (port *Port) Equal(other *Port) bool {
	if port == nil || other == nil {
		return port == other
	}
	return *port == *other
}

// MaybeString is the common interface for header and param values that may
// be a bare string or a more structured value.
type MaybeString interface {
	String() string
	Equal(other interface{}) bool
}

// String is the trivial MaybeString implementation wrapping a Go string.
type String struct{ Str string }

func (s String) String() string { return s.Str }

func (s String) Equal(other interface{}) bool {
	v, ok := other.(String)
	return ok && s.Str == v.Str
}

// MessageError is the common interface for errors raised while validating
// or matching an inbound message.
type MessageError interface {
	error
	// Malformed reports that the message is syntactically well-formed but
	// violates a semantic rule, e.g. a missing mandatory header.
	Malformed() bool
	// Broken reports that the message could not be parsed at all.
	Broken() bool
}

type BrokenMessageError struct {
	Err error
	Msg string
}

func (e *BrokenMessageError) Malformed() bool { return false }
func (e *BrokenMessageError) Broken() bool    { return true }
func (e *BrokenMessageError) Unwrap() error   { return e.Err }
func (e *BrokenMessageError) Error() string {
	if e == nil {
		return "<nil>"
	}
	s := "broken message: " + e.Err.Error()
	if e.Msg != "" {
		s += "\n" + e.Msg
	}
	return s
}

type MalformedMessageError struct {
	Err error
	Msg string
}

func (e *MalformedMessageError) Malformed() bool { return true }
func (e *MalformedMessageError) Broken() bool    { return false }
func (e *MalformedMessageError) Unwrap() error   { return e.Err }
func (e *MalformedMessageError) Error() string {
	if e == nil {
		return "<nil>"
	}
	s := "malformed message: " + e.Err.Error()
	if e.Msg != "" {
		s += "\n" + e.Msg
	}
	return s
}

type UnsupportedMessageError struct {
	Err error
	Msg string
}

func (e *UnsupportedMessageError) Malformed() bool { return true }
func (e *UnsupportedMessageError) Broken() bool    { return false }
func (e *UnsupportedMessageError) Unwrap() error   { return e.Err }
func (e *UnsupportedMessageError) Error() string {
	if e == nil {
		return "<nil>"
	}
	s := "unsupported message: " + e.Err.Error()
	if e.Msg != "" {
		s += "\n" + e.Msg
	}
	return s
}

// RFC3261BranchMagicCookie is the required prefix of a compliant Via branch
// parameter, RFC 3261 Section 8.1.1.7.
const RFC3261BranchMagicCookie = "z9hG4bK"

// GenerateBranch returns a new RFC 3261 compliant branch parameter value.
func GenerateBranch() string {
	return RFC3261BranchMagicCookie + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// GenerateTag returns a new random From/To tag value.
func GenerateTag() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
}

// DefaultPort returns the default port for a transport protocol name.
func DefaultPort(protocol string) Port {
	switch strings.ToUpper(protocol) {
	case "TLS":
		return DefaultTLSPort
	case "TCP":
		return DefaultTCPPort
	default:
		return DefaultUDPPort
	}
}

// DialogID computes the stable identifier of a dialog from its Call-ID and
// the local/remote tags, RFC 3261 Section 12.
func DialogID(callID, localTag, remoteTag string) string {
	return strings.Join([]string{callID, localTag, remoteTag}, "__")
}

// MakeDialogIDFromMessage computes the dialog identifier as seen by the UAS:
// Call-ID, To-tag (local), From-tag (remote).
func MakeDialogIDFromMessage(msg Message) (string, error) {
	callID, ok := msg.CallID()
	if !ok {
		return "", NewInvalidArgumentError("missing Call-ID header")
	}
	to, ok := msg.To()
	if !ok {
		return "", NewInvalidArgumentError("missing To header")
	}
	toTag, ok := to.Params.Get("tag")
	if !ok {
		return "", NewInvalidArgumentError("missing tag param in To header")
	}
	from, ok := msg.From()
	if !ok {
		return "", NewInvalidArgumentError("missing From header")
	}
	fromTag, ok := from.Params.Get("tag")
	if !ok {
		return "", NewInvalidArgumentError("missing tag param in From header")
	}
	return DialogID(string(callID), toTag.String(), fromTag.String()), nil
}
