// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package conduit adapts the raw protocol events of a single HTTP or WebSocket
// connection into typed operations for application handlers.
//
// The adapter is split into a few packages:
//
//   - gateway: the event shapes exchanged with the transport, plus net/http
//     and gorilla/websocket backed implementations
//   - httpconn: reading HTTP request bodies and sending HTTP responses
//   - websocket: the accept, message exchange and close lifecycle of one socket
//   - request: the per connection context handed to every handler
//   - server: a dispatcher mapping handler failures onto the wire
//
// This package holds the error taxonomy shared by all of them. Every failure
// which crosses into a dispatcher is an [*Error] and carries a [Kind]:
//
//	err := handler(ctx, rc)
//	e, ok := conduit.AsError(err)
//	switch {
//	case !ok:
//	    // programming defect, log it and answer with a generic 500
//	case e.Kind == conduit.KindConnectionClosed:
//	    // peer is gone, send nothing
//	default:
//	    // write e.Status, e.Payload and e.Headers back to the peer
//	}
package conduit
