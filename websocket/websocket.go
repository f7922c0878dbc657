// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package websocket manages the accept, message exchange and close
// lifecycle of a single websocket connection.
package websocket

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"unicode/utf8"

	"github.com/z5labs/conduit"
	"github.com/z5labs/conduit/codec"
	"github.com/z5labs/conduit/gateway"
	"github.com/z5labs/conduit/header"
	"github.com/z5labs/conduit/internal/payload"
	"github.com/z5labs/conduit/o11y"
	"github.com/z5labs/conduit/validate"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/z5labs/conduit/websocket")

// Close codes defined by RFC 6455.
const (
	StatusNormalClosure   = 1000
	StatusGoingAway       = 1001
	StatusProtocolError   = 1002
	StatusUnsupportedData = 1003
	StatusInvalidPayload  = 1007
	StatusPolicyViolation = 1008
	StatusInternalError   = 1011
)

// StatusFromHTTP maps an HTTP status onto the application reserved close
// code range, e.g. 403 becomes 4403.
func StatusFromHTTP(status int) int {
	return 4000 + status
}

// Result is how a websocket handler wants the connection to be closed.
// A zero Code means [StatusNormalClosure].
type Result struct {
	Code   int
	Reason string
}

// State is the lifecycle state of a Session.
type State int

const (
	AwaitingAccept State = iota
	Open
	Closed
)

// String implements the [fmt.Stringer] interface.
func (s State) String() string {
	switch s {
	case AwaitingAccept:
		return "awaiting_accept"
	case Open:
		return "open"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

type options struct {
	codec     codec.Codec
	validator validate.Validator
}

// Option configures a Session.
type Option func(*options)

// Codec overrides the [codec.Codec] used to parse messages.
func Codec(c codec.Codec) Option {
	return func(o *options) {
		o.codec = c
	}
}

// Validator overrides the [validate.Validator] used by [Session.ReceiveInto].
func Validator(v validate.Validator) Option {
	return func(o *options) {
		o.validator = v
	}
}

// Session drives one websocket connection through its lifecycle.
//
// A Session is owned by a single goroutine and is not safe for concurrent use.
type Session struct {
	recv gateway.WebsocketReceiver
	send gateway.WebsocketSender

	codec     codec.Codec
	validator validate.Validator

	state State
	sent  int64
}

// NewSession returns a Session in the [AwaitingAccept] state.
func NewSession(recv gateway.WebsocketReceiver, send gateway.WebsocketSender, opts ...Option) *Session {
	o := &options{
		codec:     codec.JSON,
		validator: validate.Default,
	}
	for _, opt := range opts {
		opt(o)
	}
	return &Session{
		recv:      recv,
		send:      send,
		codec:     o.codec,
		validator: o.validator,
		state:     AwaitingAccept,
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return s.state
}

type acceptOptions struct {
	subprotocol string
	headers     header.Map
}

// AcceptOption configures [Session.Accept].
type AcceptOption func(*acceptOptions)

// WithSubprotocol selects the subprotocol sent with the accept event.
func WithSubprotocol(name string) AcceptOption {
	return func(ao *acceptOptions) {
		ao.subprotocol = name
	}
}

// WithAcceptHeaders adds headers to the accept event.
func WithAcceptHeaders(h header.Map) AcceptOption {
	return func(ao *acceptOptions) {
		if ao.headers == nil {
			ao.headers = make(header.Map, len(h))
		}
		for k, v := range h {
			ao.headers[k] = v
		}
	}
}

// Accept consumes the connect event and completes the handshake. Only the
// first call can succeed; every later call fails with a bad message error
// without receiving anything.
func (s *Session) Accept(ctx context.Context, opts ...AcceptOption) error {
	ctx, span := tracer.Start(ctx, "accept websocket")
	defer span.End()

	if s.state != AwaitingAccept {
		return recordErr(span, conduit.WebsocketBadMessage("connection has already been accepted"))
	}

	ao := &acceptOptions{}
	for _, opt := range opts {
		opt(ao)
	}

	ev, err := s.recv.Receive(ctx)
	if err != nil {
		return recordErr(span, err)
	}
	switch ev.Type {
	case gateway.WebsocketConnect:
	case gateway.WebsocketDisconnect:
		s.state = Closed
		return conduit.ErrWebsocketConnectionClosed
	default:
		return recordErr(span, conduit.WebsocketBadMessage("cannot accept connection without connection request"))
	}

	headers, err := ao.headers.Encode()
	if err != nil {
		return recordErr(span, err)
	}

	err = s.send.Send(ctx, gateway.WebsocketAccept{
		Subprotocol: ao.subprotocol,
		Headers:     headers,
	})
	if err != nil {
		return recordErr(span, err)
	}

	span.SetAttributes(attribute.String("subprotocol", ao.subprotocol))
	s.state = Open
	return nil
}

// ReceiveMessage returns the payload of the next message. Binary payloads
// are returned as is and text payloads are UTF-8 encoded. A message with
// neither set is rejected as empty.
func (s *Session) ReceiveMessage(ctx context.Context) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "read websocket message")
	defer span.End()

	switch s.state {
	case AwaitingAccept:
		return nil, recordErr(span, conduit.WebsocketBadMessage("connection has not been accepted"))
	case Closed:
		return nil, conduit.ErrWebsocketConnectionClosed
	}

	ev, err := s.recv.Receive(ctx)
	if err != nil {
		return nil, recordErr(span, err)
	}

	switch ev.Type {
	case gateway.WebsocketReceive:
	case gateway.WebsocketDisconnect:
		s.state = Closed
		span.SetAttributes(attribute.Int("code", ev.Code))
		return nil, conduit.ErrWebsocketConnectionClosed
	case gateway.WebsocketConnect:
		return nil, recordErr(span, conduit.WebsocketBadMessage("connection has already been established"))
	default:
		return nil, recordErr(span, conduit.WebsocketBadMessage(fmt.Sprintf("unexpected event type: %s", ev.Type)))
	}

	var msg []byte
	switch {
	case ev.Bytes != nil:
		msg = ev.Bytes
	case ev.Text != nil:
		msg = []byte(*ev.Text)
	default:
		return nil, recordErr(span, conduit.WebsocketBadMessage("empty message"))
	}

	span.SetAttributes(attribute.Int("size", len(msg)))
	return msg, nil
}

// MessageIterator yields messages until the peer closes the connection.
//
// Iteration ending because the connection closed is the normal way for a
// sequence to end, and Err reports nil. Any other failure ends iteration and
// is reported by Err. Once Next returns false it always returns false.
type MessageIterator struct {
	s   *Session
	ctx context.Context

	msg  []byte
	err  error
	done bool
}

// Messages returns a fresh iterator over the Session. Each call starts
// reading at the next undelivered message; a finished iterator can not be resumed.
func (s *Session) Messages(ctx context.Context) *MessageIterator {
	return &MessageIterator{s: s, ctx: ctx}
}

// Next advances to the next message.
func (it *MessageIterator) Next() bool {
	if it.done {
		return false
	}

	msg, err := it.s.ReceiveMessage(it.ctx)
	if err != nil {
		it.done = true
		it.msg = nil
		if !conduit.IsConnectionClosed(err) {
			it.err = err
		}
		return false
	}
	it.msg = msg
	return true
}

// Message returns the message read by the last call to Next.
func (it *MessageIterator) Message() []byte {
	return it.msg
}

// Err returns the error which ended iteration, if it was not a connection close.
func (it *MessageIterator) Err() error {
	return it.err
}

// All adapts [Session.Messages] for use with range. A failure other than
// connection close is yielded once as the final element.
func (s *Session) All(ctx context.Context) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		it := s.Messages(ctx)
		for it.Next() {
			if !yield(it.Message(), nil) {
				return
			}
		}
		if err := it.Err(); err != nil {
			yield(nil, err)
		}
	}
}

// ReceiveJSON reads the next message and parses it.
func (s *Session) ReceiveJSON(ctx context.Context) (any, error) {
	msg, err := s.ReceiveMessage(ctx)
	if err != nil {
		return nil, err
	}
	return payload.Parse(s.codec, conduit.ProtocolWebsocket, msg)
}

// ReceiveInto reads and parses the next message and validates it into target.
// The raw decoded value is returned alongside.
func (s *Session) ReceiveInto(ctx context.Context, target any) (any, error) {
	raw, err := s.ReceiveJSON(ctx)
	if err != nil {
		return nil, err
	}
	err = payload.Validate(s.validator, conduit.ProtocolWebsocket, raw, target)
	if err != nil {
		return raw, err
	}
	return raw, nil
}

// ReceiveClass is the generic form of [Session.ReceiveInto].
func ReceiveClass[T any](ctx context.Context, s *Session) (any, T, error) {
	var v T
	raw, err := s.ReceiveInto(ctx, &v)
	return raw, v, err
}

// SendMessage sends data as exactly one message.
func (s *Session) SendMessage(ctx context.Context, data []byte) error {
	reqSpan := o11y.RequestSpan(ctx)
	ctx, span := tracer.Start(ctx, "send websocket message")
	defer span.End()

	switch s.state {
	case AwaitingAccept:
		return recordErr(span, conduit.WebsocketBadMessage("connection has not been accepted"))
	case Closed:
		return conduit.ErrWebsocketConnectionClosed
	}

	if data == nil {
		data = []byte{}
	}
	err := s.send.Send(ctx, gateway.WebsocketSend{Bytes: data})
	if err != nil {
		return recordErr(span, err)
	}

	s.sent += int64(len(data))
	span.SetAttributes(attribute.Int("size", len(data)))
	reqSpan.SetAttributes(attribute.Int64("websocket.sent_message_content_length", s.sent))
	return nil
}

// SendString sends the UTF-8 encoding of msg as one message.
func (s *Session) SendString(ctx context.Context, msg string) error {
	return s.SendMessage(ctx, []byte(msg))
}

// Close sends a close event and moves the Session to [Closed]. Closing a
// Session which was never accepted rejects the handshake.
func (s *Session) Close(ctx context.Context, code int, reason string) error {
	reqSpan := o11y.RequestSpan(ctx)
	ctx, span := tracer.Start(ctx, "websocket close")
	defer span.End()

	if s.state == Closed {
		return conduit.ErrWebsocketConnectionClosed
	}
	reason = strings.ToValidUTF8(reason, string(utf8.RuneError))

	span.SetAttributes(
		attribute.Int("code", code),
		attribute.String("websocket close reason", reason),
	)
	reqSpan.SetAttributes(attribute.String("websocket.http.close_reason", reason))

	s.state = Closed
	err := s.send.Send(ctx, gateway.WebsocketClose{Code: code, Reason: reason})
	if err != nil {
		return recordErr(span, err)
	}
	return nil
}

func recordErr(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
