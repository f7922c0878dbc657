// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package httpconn reads HTTP request bodies from, and writes HTTP responses
// to, a gateway.
package httpconn

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

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
)

var tracer = otel.Tracer("github.com/z5labs/conduit/httpconn")

// DefaultContentType is sent with string and byte payloads.
const DefaultContentType = "text/plain"

type options struct {
	maxBodySize int64
	codec       codec.Codec
	validator   validate.Validator
	contentType *string
	headers     header.Map
}

// Option configures receive and send operations.
type Option func(*options)

// MaxBodySize limits the number of request body bytes accepted. Bodies
// which grow past n fail with a 413 error. Zero means unlimited.
func MaxBodySize(n int64) Option {
	return func(o *options) {
		o.maxBodySize = n
	}
}

// Codec overrides the [codec.Codec] used to parse and serialize payloads.
func Codec(c codec.Codec) Option {
	return func(o *options) {
		o.codec = c
	}
}

// Validator overrides the [validate.Validator] used by [ReceiveInto].
func Validator(v validate.Validator) Option {
	return func(o *options) {
		o.validator = v
	}
}

// ContentType overrides the content type of a response. An empty string
// omits the Content-Type header.
func ContentType(ct string) Option {
	return func(o *options) {
		o.contentType = &ct
	}
}

// Headers adds caller supplied headers to a response. A Content-Length
// entry is ignored since the adapter always computes its own.
func Headers(h header.Map) Option {
	return func(o *options) {
		if o.headers == nil {
			o.headers = make(header.Map, len(h))
		}
		for k, v := range h {
			o.headers[k] = v
		}
	}
}

func newOptions(opts []Option) *options {
	o := &options{
		codec:     codec.JSON,
		validator: validate.Default,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// UnexpectedEventError is returned when the gateway delivers an event of a
// type which is not valid for the current operation.
type UnexpectedEventError struct {
	Type gateway.HTTPEventType
}

// Error implements the [error] interface.
func (e UnexpectedEventError) Error() string {
	return fmt.Sprintf("httpconn: unexpected event type: %q", e.Type)
}

// ReceiveBody reads the full request body. Chunks are appended in delivery
// order until one arrives with MoreBody unset. A disconnect before that
// fails with [conduit.ErrConnectionClosed] and no partial body is returned.
func ReceiveBody(ctx context.Context, recv gateway.HTTPReceiver, opts ...Option) ([]byte, error) {
	o := newOptions(opts)

	body := make([]byte, 0)
	more := true
	for more {
		ev, err := receiveChunk(ctx, recv)
		if err != nil {
			return nil, err
		}
		if o.maxBodySize > 0 && int64(len(body)+len(ev.Body)) > o.maxBodySize {
			return nil, conduit.NewHTTPError(http.StatusRequestEntityTooLarge, "Request body too large")
		}

		body = append(body, ev.Body...)
		more = ev.MoreBody
	}

	o11y.RequestSpan(ctx).SetAttributes(attribute.Int("http.request_content_length", len(body)))
	return body, nil
}

func receiveChunk(ctx context.Context, recv gateway.HTTPReceiver) (gateway.HTTPEvent, error) {
	ctx, span := tracer.Start(ctx, "read chunk")
	defer span.End()

	ev, err := recv.Receive(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ev, err
	}

	switch ev.Type {
	case gateway.HTTPDisconnect:
		return ev, conduit.ErrConnectionClosed
	case gateway.HTTPRequest:
	default:
		return ev, UnexpectedEventError{Type: ev.Type}
	}

	span.SetAttributes(
		attribute.Int("size", len(ev.Body)),
		attribute.Bool("more_body", ev.MoreBody),
	)
	return ev, nil
}

// ReceiveJSON reads the request body and parses it. A body which fails to
// parse is reported as a bad request without echoing the parser error.
func ReceiveJSON(ctx context.Context, recv gateway.HTTPReceiver, opts ...Option) (any, error) {
	ctx = o11y.ContextWithRequestSpan(ctx, o11y.RequestSpan(ctx))
	ctx, span := tracer.Start(ctx, "receive json")
	defer span.End()

	o := newOptions(opts)
	b, err := ReceiveBody(ctx, recv, opts...)
	if err != nil {
		return nil, err
	}
	return payload.Parse(o.codec, conduit.ProtocolHTTP, b)
}

// ReceiveInto reads and parses the request body, then validates it into
// target which must be a non-nil pointer. The raw decoded value is returned
// alongside so callers can log the untyped form.
func ReceiveInto(ctx context.Context, recv gateway.HTTPReceiver, target any, opts ...Option) (any, error) {
	ctx = o11y.ContextWithRequestSpan(ctx, o11y.RequestSpan(ctx))
	ctx, span := tracer.Start(ctx, "receive class")
	defer span.End()

	o := newOptions(opts)
	raw, err := ReceiveJSON(ctx, recv, opts...)
	if err != nil {
		return nil, err
	}

	err = payload.Validate(o.validator, conduit.ProtocolHTTP, raw, target)
	if err != nil {
		return raw, err
	}
	return raw, nil
}

// ReceiveClass is the generic form of [ReceiveInto].
func ReceiveClass[T any](ctx context.Context, recv gateway.HTTPReceiver, opts ...Option) (any, T, error) {
	var v T
	raw, err := ReceiveInto(ctx, recv, &v, opts...)
	return raw, v, err
}

// SerializeError is returned when a response payload can not be serialized.
type SerializeError struct {
	Cause error
}

// Error implements the [error] interface.
func (e SerializeError) Error() string {
	return fmt.Sprintf("httpconn: failed to serialize response: %s", e.Cause)
}

// Unwrap implements the implicit interface used by [errors.Is] and [errors.As].
func (e SerializeError) Unwrap() error {
	return e.Cause
}

// SendResponse sends a complete response. String and byte payloads are sent
// as is with a text/plain content type. Any other value is serialized with
// the configured codec and sent as application/json.
func SendResponse(ctx context.Context, send gateway.HTTPSender, status int, data any, opts ...Option) error {
	o := newOptions(opts)

	switch x := data.(type) {
	case []byte:
		return sendData(ctx, send, status, x, o, DefaultContentType)
	case string:
		return sendData(ctx, send, status, []byte(x), o, DefaultContentType)
	default:
		return sendJSON(ctx, send, status, data, o)
	}
}

// SendJSON serializes data with the configured codec regardless of its type.
func SendJSON(ctx context.Context, send gateway.HTTPSender, status int, data any, opts ...Option) error {
	return sendJSON(ctx, send, status, data, newOptions(opts))
}

// SendData sends raw bytes.
func SendData(ctx context.Context, send gateway.HTTPSender, status int, data []byte, opts ...Option) error {
	return sendData(ctx, send, status, data, newOptions(opts), DefaultContentType)
}

func sendJSON(ctx context.Context, send gateway.HTTPSender, status int, data any, o *options) error {
	b, err := o.codec.Serialize(data)
	if err != nil {
		return SerializeError{Cause: err}
	}
	return sendData(ctx, send, status, b, o, codec.MediaType)
}

func sendData(ctx context.Context, send gateway.HTTPSender, status int, data []byte, o *options, defaultContentType string) error {
	reqSpan := o11y.RequestSpan(ctx)
	ctx, span := tracer.Start(ctx, "send response")
	defer span.End()

	span.SetAttributes(
		attribute.Int("status", status),
		attribute.Int("size", len(data)),
	)

	headers, err := responseHeaders(len(data), o, defaultContentType)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	err = send.Send(ctx, gateway.HTTPResponseStart{Status: status, Headers: headers})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	err = send.Send(ctx, gateway.HTTPResponseBody{Body: data, MoreBody: false})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	reqSpan.SetAttributes(attribute.Int("http.response_content_length", len(data)))
	return nil
}

func responseHeaders(size int, o *options, defaultContentType string) (header.List, error) {
	caller, err := o.headers.Encode()
	if err != nil {
		return nil, err
	}
	caller = caller.Without("Content-Length")

	headers := make(header.List, 0, len(caller)+2)
	headers = append(headers, header.Field{
		Name:  []byte("Content-Length"),
		Value: []byte(strconv.Itoa(size)),
	})
	headers = append(headers, caller...)

	contentType := defaultContentType
	if o.contentType != nil {
		contentType = *o.contentType
	}
	if contentType == "" || caller.Has("Content-Type") {
		return headers, nil
	}

	ct, err := header.EncodeLatin1(contentType)
	if err != nil {
		return nil, err
	}
	return append(headers, header.Field{Name: []byte("Content-Type"), Value: ct}), nil
}
