package sip

import "strings"

// Method is a SIP request method as defined in RFC 3261 Section 7.1 and extensions.
// It is syntactic sugar around the string type; use Equal rather than built-in
// equality so that case differences on the wire don't cause false mismatches.
type Method string

// Standard and extension request methods.
const (
	MethodInvite    Method = "INVITE"
	MethodAck       Method = "ACK"
	MethodCancel    Method = "CANCEL"
	MethodBye       Method = "BYE"
	MethodRegister  Method = "REGISTER"
	MethodOptions   Method = "OPTIONS"
	MethodSubscribe Method = "SUBSCRIBE"
	MethodNotify    Method = "NOTIFY"
	MethodRefer     Method = "REFER"
	MethodPublish   Method = "PUBLISH"
	MethodInfo      Method = "INFO"
	MethodMessage   Method = "MESSAGE"
	MethodPrack     Method = "PRACK"
	MethodUpdate    Method = "UPDATE"
)

// Equal reports whether two methods are the same, ignoring case.
func (m Method) Equal(other Method) bool {
	return strings.EqualFold(string(m), string(other))
}

func (m Method) String() string { return string(m) }

// IsDialogCreating reports whether a 2xx response to a request of this method
// establishes a dialog (RFC 3261 Section 12.1.1).
func (m Method) IsDialogCreating() bool {
	return m.Equal(MethodInvite) || m.Equal(MethodSubscribe) || m.Equal(MethodRefer)
}
