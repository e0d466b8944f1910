package sip

import "fmt"

// Response is an inbound or outbound SIP response, RFC 3261 Section 7.2.
type Response struct {
	message
	statusCode StatusCode
	reason     string
}

// NewResponse builds a response with the given status code and headers.
// If reason is empty, the default reason phrase for the code is used.
func NewResponse(status StatusCode, reason, sipVersion string, hdrs []Header, body []byte) *Response {
	if sipVersion == "" {
		sipVersion = "SIP/2.0"
	}
	if reason == "" {
		reason = ReasonPhrase(status)
	}
	return &Response{
		message: message{
			headers:    newHeaders(hdrs),
			sipVersion: sipVersion,
			body:       body,
		},
		statusCode: status,
		reason:     reason,
	}
}

func (r *Response) StatusCode() StatusCode { return r.statusCode }
func (r *Response) Reason() string         { return r.reason }

func (r *Response) StartLine() string {
	return fmt.Sprintf("%s %d %s", r.sipVersion, r.statusCode, r.reason)
}

func (r *Response) String() string {
	return r.StartLine() + "\r\n" + r.headers.String() + "\r\n" + string(r.body)
}

func (r *Response) Short() string {
	cseq, _ := r.CSeq()
	callID, _ := r.CallID()
	return fmt.Sprintf("%d %s (cseq=%v call-id=%v)", r.statusCode, r.reason, cseq, callID)
}

func (r *Response) Clone() *Response {
	clone := &Response{
		message: message{
			headers:    newHeaders(nil),
			sipVersion: r.sipVersion,
			body:       append([]byte(nil), r.body...),
			src:        r.src,
			dst:        r.dst,
		},
		statusCode: r.statusCode,
		reason:     r.reason,
	}
	for _, h := range r.Headers() {
		clone.AppendHeader(h.Clone())
	}
	return clone
}

// IsProvisional reports whether the status code is 1xx.
func (r *Response) IsProvisional() bool { return r.statusCode.IsProvisional() }

// Is2xx reports whether the status code is a success (2xx) response.
func (r *Response) Is2xx() bool { return r.statusCode.IsSuccess() }
