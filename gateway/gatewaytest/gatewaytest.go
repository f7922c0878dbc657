// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package gatewaytest provides scripted in-memory gateways for tests.
package gatewaytest

import (
	"context"
	"errors"

	"github.com/z5labs/conduit/gateway"
)

// ErrExhausted is returned by Receive once every scripted event was delivered.
var ErrExhausted = errors.New("gatewaytest: no more scripted events")

// HTTPConn replays Events in order and records every event sent to it.
type HTTPConn struct {
	ScopeValue gateway.Scope
	Events     []gateway.HTTPEvent
	Sent       []gateway.HTTPOutboundEvent

	// SendErr, if set, is returned from every Send.
	SendErr error

	received int
}

// NewHTTPConn returns an HTTPConn which will replay events.
func NewHTTPConn(scope gateway.Scope, events ...gateway.HTTPEvent) *HTTPConn {
	scope.Type = gateway.ScopeHTTP
	return &HTTPConn{ScopeValue: scope, Events: events}
}

// Scope implements the [gateway.HTTPConn] interface.
func (c *HTTPConn) Scope() gateway.Scope {
	return c.ScopeValue
}

// Receive implements the [gateway.HTTPReceiver] interface.
func (c *HTTPConn) Receive(ctx context.Context) (gateway.HTTPEvent, error) {
	if c.received >= len(c.Events) {
		return gateway.HTTPEvent{}, ErrExhausted
	}
	ev := c.Events[c.received]
	c.received++
	return ev, nil
}

// Send implements the [gateway.HTTPSender] interface.
func (c *HTTPConn) Send(ctx context.Context, ev gateway.HTTPOutboundEvent) error {
	if c.SendErr != nil {
		return c.SendErr
	}
	c.Sent = append(c.Sent, ev)
	return nil
}

// Received reports how many events have been delivered.
func (c *HTTPConn) Received() int {
	return c.received
}

// WebsocketConn replays Events in order and records every event sent to it.
type WebsocketConn struct {
	ScopeValue gateway.Scope
	Events     []gateway.WebsocketEvent
	Sent       []gateway.WebsocketOutboundEvent

	// SendErr, if set, is returned from every Send.
	SendErr error

	received int
}

// NewWebsocketConn returns a WebsocketConn which will replay events.
func NewWebsocketConn(scope gateway.Scope, events ...gateway.WebsocketEvent) *WebsocketConn {
	scope.Type = gateway.ScopeWebsocket
	return &WebsocketConn{ScopeValue: scope, Events: events}
}

// Scope implements the [gateway.WebsocketConn] interface.
func (c *WebsocketConn) Scope() gateway.Scope {
	return c.ScopeValue
}

// Receive implements the [gateway.WebsocketReceiver] interface.
func (c *WebsocketConn) Receive(ctx context.Context) (gateway.WebsocketEvent, error) {
	if c.received >= len(c.Events) {
		return gateway.WebsocketEvent{}, ErrExhausted
	}
	ev := c.Events[c.received]
	c.received++
	return ev, nil
}

// Send implements the [gateway.WebsocketSender] interface.
func (c *WebsocketConn) Send(ctx context.Context, ev gateway.WebsocketOutboundEvent) error {
	if c.SendErr != nil {
		return c.SendErr
	}
	c.Sent = append(c.Sent, ev)
	return nil
}

// Received reports how many events have been delivered.
func (c *WebsocketConn) Received() int {
	return c.received
}

// Chunk is a shorthand for an http.request event.
func Chunk(body string, more bool) gateway.HTTPEvent {
	return gateway.HTTPEvent{Type: gateway.HTTPRequest, Body: []byte(body), MoreBody: more}
}

// HTTPDisconnect is a shorthand for an http.disconnect event.
func HTTPDisconnect() gateway.HTTPEvent {
	return gateway.HTTPEvent{Type: gateway.HTTPDisconnect}
}

// Connect is a shorthand for a websocket.connect event.
func Connect() gateway.WebsocketEvent {
	return gateway.WebsocketEvent{Type: gateway.WebsocketConnect}
}

// Text is a shorthand for a websocket.receive event carrying text.
func Text(s string) gateway.WebsocketEvent {
	return gateway.WebsocketEvent{Type: gateway.WebsocketReceive, Text: gateway.TextOf(s)}
}

// Binary is a shorthand for a websocket.receive event carrying bytes.
func Binary(b []byte) gateway.WebsocketEvent {
	if b == nil {
		b = []byte{}
	}
	return gateway.WebsocketEvent{Type: gateway.WebsocketReceive, Bytes: b}
}

// Disconnect is a shorthand for a websocket.disconnect event.
func Disconnect(code int) gateway.WebsocketEvent {
	return gateway.WebsocketEvent{Type: gateway.WebsocketDisconnect, Code: code}
}
