package sip

import "fmt"

// Request is an inbound or outbound SIP request, RFC 3261 Section 7.1.
type Request struct {
	message
	method     Method
	requestURI *URI
}

// NewRequest builds a request with the given method, Request-URI and headers.
func NewRequest(method Method, requestURI *URI, sipVersion string, hdrs []Header, body []byte) *Request {
	if sipVersion == "" {
		sipVersion = "SIP/2.0"
	}
	r := &Request{
		message: message{
			headers:    newHeaders(hdrs),
			sipVersion: sipVersion,
			body:       body,
		},
		method:     method,
		requestURI: requestURI,
	}
	return r
}

func (r *Request) Method() Method      { return r.method }
func (r *Request) RequestURI() *URI    { return r.requestURI }
func (r *Request) SetRequestURI(u *URI) { r.requestURI = u }

func (r *Request) StartLine() string {
	return fmt.Sprintf("%s %s %s", r.method, r.requestURI, r.sipVersion)
}

func (r *Request) String() string {
	return r.StartLine() + "\r\n" + r.headers.String() + "\r\n" + string(r.body)
}

func (r *Request) Short() string {
	cseq, _ := r.CSeq()
	callID, _ := r.CallID()
	return fmt.Sprintf("%s %s (cseq=%v call-id=%v)", r.method, r.requestURI, cseq, callID)
}

// Clone returns a deep copy of the request.
func (r *Request) Clone() *Request {
	clone := &Request{
		message: message{
			headers:    newHeaders(nil),
			sipVersion: r.sipVersion,
			body:       append([]byte(nil), r.body...),
			src:        r.src,
			dst:        r.dst,
		},
		method:     r.method,
		requestURI: r.requestURI.Clone(),
	}
	for _, h := range r.Headers() {
		clone.AppendHeader(h.Clone())
	}
	return clone
}

// IsInvite reports whether the request's method is INVITE.
func (r *Request) IsInvite() bool { return r.method.Equal(MethodInvite) }

// IsAck reports whether the request's method is ACK.
func (r *Request) IsAck() bool { return r.method.Equal(MethodAck) }

// IsCancel reports whether the request's method is CANCEL.
func (r *Request) IsCancel() bool { return r.method.Equal(MethodCancel) }

// Validate checks that the request carries the mandatory RFC 3261 headers
// needed to build a transaction (Section 8.1.1): To, From, CSeq, Call-ID, Via.
func (r *Request) Validate() error {
	if _, ok := r.To(); !ok {
		return &MalformedMessageError{Err: fmt.Errorf("missing To header")}
	}
	if _, ok := r.From(); !ok {
		return &MalformedMessageError{Err: fmt.Errorf("missing From header")}
	}
	if _, ok := r.CSeq(); !ok {
		return &MalformedMessageError{Err: fmt.Errorf("missing CSeq header")}
	}
	if _, ok := r.CallID(); !ok {
		return &MalformedMessageError{Err: fmt.Errorf("missing Call-ID header")}
	}
	if _, ok := r.ViaHop(); !ok {
		return &MalformedMessageError{Err: fmt.Errorf("missing Via header")}
	}
	if cseq, _ := r.CSeq(); cseq != nil && !cseq.Method.Equal(r.method) {
		return &MalformedMessageError{Err: fmt.Errorf("CSeq method %s does not match request method %s", cseq.Method, r.method)}
	}
	return nil
}

// NewResponseFromRequest builds a response to this request, copying the
// dialog-identifying headers per RFC 3261 Section 8.2.6.2.
func (r *Request) NewResponseFromRequest(status StatusCode, reason string, toTag string, body []byte) *Response {
	resp := NewResponse(status, reason, r.sipVersion, nil, body)
	CopyHeaders("Via", r, resp)
	CopyHeaders("From", r, resp)
	CopyHeaders("Call-ID", r, resp)
	CopyHeaders("CSeq", r, resp)

	to, ok := r.To()
	if ok {
		toClone := (*ToHeader)((*Address)(to).Clone())
		if toTag != "" {
			if _, hasTag := toClone.Params.Get("tag"); !hasTag {
				toClone.Params = toClone.Params.Set("tag", String{toTag})
			}
		}
		resp.AppendHeader(toClone)
	}
	return resp
}
