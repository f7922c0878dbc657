// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package wsgw implements a [gateway.WebsocketConn] on top of gorilla/websocket.
//
// The upgrade is deferred until the accept event is sent, so a connection
// can still be rejected with a plain HTTP response before the handshake
// completes.
package wsgw

import (
	"context"
	"errors"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/z5labs/conduit/gateway"
	"github.com/z5labs/conduit/gateway/httpgw"

	"github.com/gorilla/websocket"
)

// MaxCloseReasonSize is the largest close reason which fits in a control frame.
const MaxCloseReasonSize = 123

// DefaultWriteTimeout bounds writes when the context carries no deadline.
const DefaultWriteTimeout = 10 * time.Second

var (
	ErrNotAccepted      = errors.New("wsgw: connection has not been accepted")
	ErrAlreadyAccepted  = errors.New("wsgw: connection has already been accepted")
	ErrConnectionClosed = errors.New("wsgw: connection is closed")
)

// Option configures a Conn.
type Option func(*Conn)

// ReadLimit sets the maximum size of an inbound message.
func ReadLimit(n int64) Option {
	return func(c *Conn) {
		c.readLimit = n
	}
}

// WriteTimeout bounds every write which is not already bounded by a context deadline.
func WriteTimeout(d time.Duration) Option {
	return func(c *Conn) {
		c.writeTimeout = d
	}
}

// CheckOrigin overrides the origin check performed during the upgrade.
func CheckOrigin(f func(*http.Request) bool) Option {
	return func(c *Conn) {
		c.upgrader.CheckOrigin = f
	}
}

// Conn adapts one websocket upgrade request.
type Conn struct {
	w http.ResponseWriter
	r *http.Request

	scope        gateway.Scope
	upgrader     websocket.Upgrader
	readLimit    int64
	writeTimeout time.Duration

	ws        *websocket.Conn
	connected bool
	closed    bool
}

// New returns a Conn for the given upgrade request.
func New(w http.ResponseWriter, r *http.Request, opts ...Option) *Conn {
	c := &Conn{
		w:            w,
		r:            r,
		scope:        httpgw.ScopeFrom(r, gateway.ScopeWebsocket),
		writeTimeout: DefaultWriteTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IsUpgrade reports whether r asks for a websocket upgrade.
func IsUpgrade(r *http.Request) bool {
	return websocket.IsWebSocketUpgrade(r)
}

// Scope implements the [gateway.WebsocketConn] interface.
func (c *Conn) Scope() gateway.Scope {
	return c.scope
}

// Receive implements the [gateway.WebsocketReceiver] interface. The first
// call always yields the connect event.
func (c *Conn) Receive(ctx context.Context) (gateway.WebsocketEvent, error) {
	if !c.connected {
		c.connected = true
		return gateway.WebsocketEvent{Type: gateway.WebsocketConnect}, nil
	}
	if c.closed {
		return gateway.WebsocketEvent{Type: gateway.WebsocketDisconnect, Code: websocket.CloseAbnormalClosure}, nil
	}
	if c.ws == nil {
		return gateway.WebsocketEvent{}, ErrNotAccepted
	}

	deadline, _ := ctx.Deadline()
	err := c.ws.SetReadDeadline(deadline)
	if err != nil {
		return gateway.WebsocketEvent{}, err
	}

	mt, data, err := c.ws.ReadMessage()
	if err != nil {
		c.closed = true
		code := websocket.CloseAbnormalClosure
		var cerr *websocket.CloseError
		if errors.As(err, &cerr) {
			code = cerr.Code
		}
		return gateway.WebsocketEvent{Type: gateway.WebsocketDisconnect, Code: code}, nil
	}

	if mt == websocket.TextMessage {
		return gateway.WebsocketEvent{Type: gateway.WebsocketReceive, Text: gateway.TextOf(string(data))}, nil
	}
	if data == nil {
		data = []byte{}
	}
	return gateway.WebsocketEvent{Type: gateway.WebsocketReceive, Bytes: data}, nil
}

// Send implements the [gateway.WebsocketSender] interface.
func (c *Conn) Send(ctx context.Context, ev gateway.WebsocketOutboundEvent) error {
	if c.closed {
		return ErrConnectionClosed
	}

	switch x := ev.(type) {
	case gateway.WebsocketAccept:
		return c.accept(x)
	case gateway.WebsocketSend:
		if c.ws == nil {
			return ErrNotAccepted
		}
		err := c.ws.SetWriteDeadline(c.writeDeadline(ctx))
		if err != nil {
			return err
		}
		if x.Bytes == nil && x.Text != nil {
			return c.ws.WriteMessage(websocket.TextMessage, []byte(*x.Text))
		}
		return c.ws.WriteMessage(websocket.BinaryMessage, x.Bytes)
	case gateway.WebsocketClose:
		return c.close(ctx, x)
	default:
		return UnknownEventError{Event: ev}
	}
}

func (c *Conn) accept(ev gateway.WebsocketAccept) error {
	if c.ws != nil {
		return ErrAlreadyAccepted
	}

	h := make(http.Header, len(ev.Headers)+1)
	for _, f := range ev.Headers {
		h.Add(string(f.Name), string(f.Value))
	}
	if ev.Subprotocol != "" {
		h.Set("Sec-Websocket-Protocol", ev.Subprotocol)
	}

	ws, err := c.upgrader.Upgrade(c.w, c.r, h)
	if err != nil {
		c.closed = true
		return err
	}
	if c.readLimit > 0 {
		ws.SetReadLimit(c.readLimit)
	}
	c.ws = ws
	return nil
}

func (c *Conn) close(ctx context.Context, ev gateway.WebsocketClose) error {
	c.closed = true
	if c.ws == nil {
		http.Error(c.w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return nil
	}

	ws := c.ws
	c.ws = nil

	msg := websocket.FormatCloseMessage(ev.Code, TruncateReason(ev.Reason))
	err := ws.WriteControl(websocket.CloseMessage, msg, c.writeDeadline(ctx))
	cerr := ws.Close()
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		return err
	}
	return cerr
}

// Close releases the underlying connection without a close handshake.
// It is safe to call more than once.
func (c *Conn) Close() error {
	c.closed = true
	if c.ws == nil {
		return nil
	}
	ws := c.ws
	c.ws = nil
	return ws.Close()
}

func (c *Conn) writeDeadline(ctx context.Context) time.Time {
	if deadline, ok := ctx.Deadline(); ok {
		return deadline
	}
	return time.Now().Add(c.writeTimeout)
}

// TruncateReason shortens reason to fit a close frame without splitting a
// UTF-8 sequence.
func TruncateReason(reason string) string {
	if len(reason) <= MaxCloseReasonSize {
		return reason
	}
	end := MaxCloseReasonSize
	for end > 0 && !utf8.RuneStart(reason[end]) {
		end--
	}
	return reason[:end]
}

// UnknownEventError is returned when Send is given an event it does not support.
type UnknownEventError struct {
	Event any
}

// Error implements the [error] interface.
func (e UnknownEventError) Error() string {
	return "wsgw: unknown outbound event"
}
