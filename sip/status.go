package sip

import "fmt"

// StatusCode is a SIP response status code, 1xx-6xx, RFC 3261 Section 21.
type StatusCode uint16

// Provisional and final status codes used by the transaction core and the
// application-callback bridge.
const (
	StatusTrying               StatusCode = 100
	StatusRinging              StatusCode = 180
	StatusCallIsBeingForwarded StatusCode = 181
	StatusQueued               StatusCode = 182
	StatusSessionProgress      StatusCode = 183

	StatusOK StatusCode = 200

	StatusMovedPermanently StatusCode = 301
	StatusMovedTemporarily StatusCode = 302
	StatusUseProxy         StatusCode = 305

	StatusBadRequest                  StatusCode = 400
	StatusUnauthorized                StatusCode = 401
	StatusForbidden                   StatusCode = 403
	StatusNotFound                    StatusCode = 404
	StatusMethodNotAllowed            StatusCode = 405
	StatusRequestTimeout              StatusCode = 408
	StatusGone                        StatusCode = 410
	StatusRequestEntityTooLarge       StatusCode = 413
	StatusUnsupportedMediaType        StatusCode = 415
	StatusUnsupportedURIScheme        StatusCode = 416
	StatusBadExtension                StatusCode = 420
	StatusExtensionRequired           StatusCode = 421
	StatusIntervalTooBrief            StatusCode = 423
	StatusTemporarilyUnavailable      StatusCode = 480
	StatusCallTransactionDoesNotExist StatusCode = 481
	StatusLoopDetected                StatusCode = 482
	StatusTooManyHops                 StatusCode = 483
	StatusAddressIncomplete           StatusCode = 484
	StatusAmbiguous                   StatusCode = 485
	StatusBusyHere                    StatusCode = 486
	StatusRequestTerminated           StatusCode = 487
	StatusNotAcceptableHere           StatusCode = 488
	StatusRequestPending              StatusCode = 491
	StatusProxyAuthenticationRequired StatusCode = 407

	StatusInternalServerError StatusCode = 500
	StatusNotImplemented      StatusCode = 501
	StatusBadGateway          StatusCode = 502
	StatusServiceUnavailable  StatusCode = 503
	StatusServerTimeout       StatusCode = 504
	StatusVersionNotSupported StatusCode = 505

	StatusBusyEverywhere       StatusCode = 600
	StatusDecline              StatusCode = 603
	StatusDoesNotExistAnywhere StatusCode = 604
)

var reasonPhrases = map[StatusCode]string{
	StatusTrying:                      "Trying",
	StatusRinging:                     "Ringing",
	StatusCallIsBeingForwarded:        "Call Is Being Forwarded",
	StatusQueued:                      "Queued",
	StatusSessionProgress:             "Session Progress",
	StatusOK:                          "OK",
	StatusMovedPermanently:            "Moved Permanently",
	StatusMovedTemporarily:            "Moved Temporarily",
	StatusUseProxy:                    "Use Proxy",
	StatusBadRequest:                  "Bad Request",
	StatusUnauthorized:                "Unauthorized",
	StatusForbidden:                   "Forbidden",
	StatusNotFound:                    "Not Found",
	StatusMethodNotAllowed:            "Method Not Allowed",
	StatusRequestTimeout:              "Request Timeout",
	StatusGone:                        "Gone",
	StatusRequestEntityTooLarge:       "Request Entity Too Large",
	StatusUnsupportedMediaType:        "Unsupported Media Type",
	StatusUnsupportedURIScheme:        "Unsupported URI Scheme",
	StatusBadExtension:                "Bad Extension",
	StatusExtensionRequired:           "Extension Required",
	StatusIntervalTooBrief:            "Interval Too Brief",
	StatusTemporarilyUnavailable:      "Temporarily Unavailable",
	StatusCallTransactionDoesNotExist: "Call/Transaction Does Not Exist",
	StatusLoopDetected:                "Loop Detected",
	StatusTooManyHops:                 "Too Many Hops",
	StatusAddressIncomplete:           "Address Incomplete",
	StatusAmbiguous:                   "Ambiguous",
	StatusBusyHere:                    "Busy Here",
	StatusRequestTerminated:           "Request Terminated",
	StatusNotAcceptableHere:           "Not Acceptable Here",
	StatusRequestPending:              "Request Pending",
	StatusProxyAuthenticationRequired: "Proxy Authentication Required",
	StatusInternalServerError:         "Internal Server Error",
	StatusNotImplemented:              "Not Implemented",
	StatusBadGateway:                  "Bad Gateway",
	StatusServiceUnavailable:          "Service Unavailable",
	StatusServerTimeout:               "Server Time-out",
	StatusVersionNotSupported:         "Version Not Supported",
	StatusBusyEverywhere:              "Busy Everywhere",
	StatusDecline:                     "Decline",
	StatusDoesNotExistAnywhere:        "Does Not Exist Anywhere",
}

// ReasonPhrase returns the default reason phrase for a status code, or
// a generic placeholder if the code is not one of the well-known ones.
func ReasonPhrase(code StatusCode) string {
	if r, ok := reasonPhrases[code]; ok {
		return r
	}
	return fmt.Sprintf("Unknown Status %d", code)
}

// Class returns the response class, i.e. the code divided by 100.
func (c StatusCode) Class() int { return int(c) / 100 }

func (c StatusCode) IsProvisional() bool { return c.Class() == 1 }
func (c StatusCode) IsSuccess() bool     { return c.Class() == 2 }
func (c StatusCode) IsFinal() bool       { return c.Class() >= 2 }
