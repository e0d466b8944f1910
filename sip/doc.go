// Package sip provides the SIP (RFC 3261) message model and the server
// transaction layer: requests, responses, headers, URIs, and the INVITE and
// non-INVITE server transaction state machines with their retransmission
// and timeout timers.
//
// Wire parsing/serialization, the transport layer, full URI/header grammar,
// and the UAC (client transaction) side are intentionally out of scope:
// callers supply already-parsed messages and a [ServerTransport]
// implementation. The call-level orchestration built on top of this
// package -- authorization, routing, application callbacks, dialogs --
// lives in the app and uas packages.
package sip
