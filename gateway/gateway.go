// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package gateway defines the events exchanged between the transport and the
// protocol adapter for a single connection.
//
// A gateway owns the connection. It delivers inbound events in arrival order
// through a receiver and accepts outbound events through a sender. Neither is
// safe for concurrent use; exactly one goroutine drives a connection.
package gateway

import (
	"context"

	"github.com/z5labs/conduit/header"
)

// ScopeType is the protocol kind of a connection.
type ScopeType string

const (
	ScopeHTTP      ScopeType = "http"
	ScopeWebsocket ScopeType = "websocket"
)

// Scope is read-only metadata describing a connection.
type Scope struct {
	Type     ScopeType
	Method   string
	Path     string
	RawQuery string
	Headers  header.List
}

// HTTPEventType discriminates inbound HTTP events.
type HTTPEventType string

const (
	HTTPRequest    HTTPEventType = "http.request"
	HTTPDisconnect HTTPEventType = "http.disconnect"
)

// HTTPEvent is an inbound HTTP event. For [HTTPRequest] events Body holds the
// next chunk of the request body and MoreBody reports whether another chunk follows.
type HTTPEvent struct {
	Type     HTTPEventType
	Body     []byte
	MoreBody bool
}

// HTTPOutboundEvent is implemented by [HTTPResponseStart] and [HTTPResponseBody].
type HTTPOutboundEvent interface {
	httpOutbound()
}

// HTTPResponseStart begins a response.
type HTTPResponseStart struct {
	Status  int
	Headers header.List
}

func (HTTPResponseStart) httpOutbound() {}

// HTTPResponseBody carries response body bytes.
type HTTPResponseBody struct {
	Body     []byte
	MoreBody bool
}

func (HTTPResponseBody) httpOutbound() {}

// WebsocketEventType discriminates inbound websocket events.
type WebsocketEventType string

const (
	WebsocketConnect    WebsocketEventType = "websocket.connect"
	WebsocketReceive    WebsocketEventType = "websocket.receive"
	WebsocketDisconnect WebsocketEventType = "websocket.disconnect"
)

// WebsocketEvent is an inbound websocket event.
//
// For [WebsocketReceive] exactly one of Bytes and Text is expected to be
// non-nil. A non-nil, zero length Bytes is a valid empty binary message.
// Code is only set for [WebsocketDisconnect].
type WebsocketEvent struct {
	Type  WebsocketEventType
	Bytes []byte
	Text  *string
	Code  int
}

// WebsocketOutboundEvent is implemented by [WebsocketAccept],
// [WebsocketSend] and [WebsocketClose].
type WebsocketOutboundEvent interface {
	websocketOutbound()
}

// WebsocketAccept completes the handshake. An empty Subprotocol means none.
type WebsocketAccept struct {
	Subprotocol string
	Headers     header.List
}

func (WebsocketAccept) websocketOutbound() {}

// WebsocketSend sends one message. Bytes takes precedence over Text.
type WebsocketSend struct {
	Bytes []byte
	Text  *string
}

func (WebsocketSend) websocketOutbound() {}

// WebsocketClose closes the connection. Sent before accept it rejects the handshake.
type WebsocketClose struct {
	Code   int
	Reason string
}

func (WebsocketClose) websocketOutbound() {}

// HTTPReceiver delivers inbound HTTP events.
type HTTPReceiver interface {
	Receive(context.Context) (HTTPEvent, error)
}

// HTTPReceiverFunc is a functional implementation of [HTTPReceiver].
type HTTPReceiverFunc func(context.Context) (HTTPEvent, error)

// Receive implements the [HTTPReceiver] interface.
func (f HTTPReceiverFunc) Receive(ctx context.Context) (HTTPEvent, error) {
	return f(ctx)
}

// HTTPSender accepts outbound HTTP events.
type HTTPSender interface {
	Send(context.Context, HTTPOutboundEvent) error
}

// HTTPSenderFunc is a functional implementation of [HTTPSender].
type HTTPSenderFunc func(context.Context, HTTPOutboundEvent) error

// Send implements the [HTTPSender] interface.
func (f HTTPSenderFunc) Send(ctx context.Context, ev HTTPOutboundEvent) error {
	return f(ctx, ev)
}

// WebsocketReceiver delivers inbound websocket events.
type WebsocketReceiver interface {
	Receive(context.Context) (WebsocketEvent, error)
}

// WebsocketReceiverFunc is a functional implementation of [WebsocketReceiver].
type WebsocketReceiverFunc func(context.Context) (WebsocketEvent, error)

// Receive implements the [WebsocketReceiver] interface.
func (f WebsocketReceiverFunc) Receive(ctx context.Context) (WebsocketEvent, error) {
	return f(ctx)
}

// WebsocketSender accepts outbound websocket events.
type WebsocketSender interface {
	Send(context.Context, WebsocketOutboundEvent) error
}

// WebsocketSenderFunc is a functional implementation of [WebsocketSender].
type WebsocketSenderFunc func(context.Context, WebsocketOutboundEvent) error

// Send implements the [WebsocketSender] interface.
func (f WebsocketSenderFunc) Send(ctx context.Context, ev WebsocketOutboundEvent) error {
	return f(ctx, ev)
}

// HTTPConn is everything a gateway exposes for one HTTP connection.
type HTTPConn interface {
	Scope() Scope
	HTTPReceiver
	HTTPSender
}

// WebsocketConn is everything a gateway exposes for one websocket connection.
type WebsocketConn interface {
	Scope() Scope
	WebsocketReceiver
	WebsocketSender
}

// TextOf returns a pointer to s for use in [WebsocketEvent.Text] and [WebsocketSend.Text].
func TextOf(s string) *string {
	return &s
}
