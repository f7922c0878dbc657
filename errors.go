// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package conduit

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/z5labs/conduit/header"
)

// Protocol identifies which wire protocol an Error should be rendered to.
type Protocol int

const (
	ProtocolHTTP Protocol = iota
	ProtocolWebsocket
)

// String implements the [fmt.Stringer] interface.
func (p Protocol) String() string {
	switch p {
	case ProtocolHTTP:
		return "http"
	case ProtocolWebsocket:
		return "websocket"
	default:
		return "unknown"
	}
}

// Kind classifies an Error so dispatchers can switch on it instead of
// matching concrete types.
type Kind int

const (
	// KindResponse is an application chosen status with no further classification.
	KindResponse Kind = iota
	KindBadRequest
	KindForbidden
	KindInternal

	// KindConnectionClosed signals the peer went away. It carries no status
	// or payload and must never be written back to the connection.
	KindConnectionClosed
)

// String implements the [fmt.Stringer] interface.
func (k Kind) String() string {
	switch k {
	case KindResponse:
		return "response"
	case KindBadRequest:
		return "bad request"
	case KindForbidden:
		return "forbidden"
	case KindInternal:
		return "internal"
	case KindConnectionClosed:
		return "connection closed"
	default:
		return "unknown"
	}
}

// Error is a failure which maps onto a wire level response.
type Error struct {
	Kind     Kind
	Protocol Protocol
	Status   int
	Payload  any
	Headers  header.Map

	// Cause is kept for logging only and is never written to the wire.
	Cause error
}

// ErrorOption configures optional fields of an Error.
type ErrorOption func(*Error)

// WithHeader adds a single header to the Error response.
func WithHeader(name, value string) ErrorOption {
	return func(e *Error) {
		if e.Headers == nil {
			e.Headers = make(header.Map)
		}
		e.Headers[name] = value
	}
}

// WithHeaders adds all of the given headers to the Error response.
func WithHeaders(h header.Map) ErrorOption {
	return func(e *Error) {
		for name, value := range h {
			WithHeader(name, value)(e)
		}
	}
}

// WithCause records the underlying error.
func WithCause(err error) ErrorOption {
	return func(e *Error) {
		e.Cause = err
	}
}

var (
	// ErrConnectionClosed is returned when an HTTP peer disconnects mid request.
	ErrConnectionClosed = &Error{Kind: KindConnectionClosed, Protocol: ProtocolHTTP}

	// ErrWebsocketConnectionClosed is returned when a websocket peer disconnects.
	ErrWebsocketConnectionClosed = &Error{Kind: KindConnectionClosed, Protocol: ProtocolWebsocket}
)

func newError(kind Kind, proto Protocol, status int, payload any, opts ...ErrorOption) *Error {
	e := &Error{
		Kind:     kind,
		Protocol: proto,
		Status:   status,
		Payload:  payload,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewHTTPError returns an HTTP Error with an arbitrary status.
func NewHTTPError(status int, payload any, opts ...ErrorOption) *Error {
	return newError(KindResponse, ProtocolHTTP, status, payload, opts...)
}

// BadRequest returns a 400 HTTP Error.
func BadRequest(payload any, opts ...ErrorOption) *Error {
	return newError(KindBadRequest, ProtocolHTTP, http.StatusBadRequest, payload, opts...)
}

// Forbidden returns a 403 HTTP Error.
func Forbidden(payload any, opts ...ErrorOption) *Error {
	return newError(KindForbidden, ProtocolHTTP, http.StatusForbidden, payload, opts...)
}

// InternalServerError returns a 500 HTTP Error.
func InternalServerError(payload any, opts ...ErrorOption) *Error {
	return newError(KindInternal, ProtocolHTTP, http.StatusInternalServerError, payload, opts...)
}

// NewWebsocketError returns a websocket Error with an arbitrary status.
func NewWebsocketError(status int, payload any, opts ...ErrorOption) *Error {
	return newError(KindResponse, ProtocolWebsocket, status, payload, opts...)
}

// WebsocketBadMessage returns a 400 websocket Error. It reports protocol
// violations as well as payloads which fail to decode or validate.
func WebsocketBadMessage(payload any, opts ...ErrorOption) *Error {
	return newError(KindBadRequest, ProtocolWebsocket, http.StatusBadRequest, payload, opts...)
}

// WebsocketForbidden returns a 403 websocket Error.
func WebsocketForbidden(payload any, opts ...ErrorOption) *Error {
	return newError(KindForbidden, ProtocolWebsocket, http.StatusForbidden, payload, opts...)
}

// WebsocketInternalServerError returns a 500 websocket Error.
func WebsocketInternalServerError(payload any, opts ...ErrorOption) *Error {
	return newError(KindInternal, ProtocolWebsocket, http.StatusInternalServerError, payload, opts...)
}

// BadRequestFor returns the bad request variant for the given protocol.
func BadRequestFor(proto Protocol, payload any, opts ...ErrorOption) *Error {
	return newError(KindBadRequest, proto, http.StatusBadRequest, payload, opts...)
}

// ForbiddenFor returns the forbidden variant for the given protocol.
func ForbiddenFor(proto Protocol, payload any, opts ...ErrorOption) *Error {
	return newError(KindForbidden, proto, http.StatusForbidden, payload, opts...)
}

// InternalServerErrorFor returns the internal variant for the given protocol.
func InternalServerErrorFor(proto Protocol, payload any, opts ...ErrorOption) *Error {
	return newError(KindInternal, proto, http.StatusInternalServerError, payload, opts...)
}

// ConnectionClosedFor returns the connection closed sentinel for the given protocol.
func ConnectionClosedFor(proto Protocol) *Error {
	if proto == ProtocolWebsocket {
		return ErrWebsocketConnectionClosed
	}
	return ErrConnectionClosed
}

// Error implements the [error] interface.
func (e *Error) Error() string {
	if e.Kind == KindConnectionClosed {
		return fmt.Sprintf("conduit: %s connection closed", e.Protocol)
	}
	return fmt.Sprintf("conduit: %s %d %s: %v", e.Protocol, e.Status, e.Kind, e.Payload)
}

// Is implements the implicit interface used by [errors.Is]. Two Errors
// match when they share a Kind and Protocol.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Protocol == t.Protocol
}

// Unwrap implements the implicit interface used by [errors.Is] and [errors.As].
func (e *Error) Unwrap() error {
	return e.Cause
}

// AsError unwraps err into an *Error if one exists in its chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if !errors.As(err, &e) {
		return nil, false
	}
	return e, true
}

// IsConnectionClosed reports whether err signals a peer disconnect on either protocol.
func IsConnectionClosed(err error) bool {
	e, ok := AsError(err)
	return ok && e.Kind == KindConnectionClosed
}
