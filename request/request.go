// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package request provides the per connection context handed to handlers.
//
// Constructing a context verifies the connection's authorization header and
// fails with a forbidden error when no valid authorization is present, so
// no handler ever runs for an unauthenticated connection.
package request

import (
	"context"
	"strconv"

	"github.com/z5labs/conduit"
	"github.com/z5labs/conduit/auth"
	"github.com/z5labs/conduit/codec"
	"github.com/z5labs/conduit/gateway"
	"github.com/z5labs/conduit/header"
	"github.com/z5labs/conduit/o11y"
	"github.com/z5labs/conduit/validate"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("github.com/z5labs/conduit/request")

// AuthorizationHeader is the header passed to the [auth.Verifier].
const AuthorizationHeader = "authorization"

type options struct {
	codec       codec.Codec
	validator   validate.Validator
	maxBodySize int64
}

// Option configures a request context.
type Option func(*options)

// WithCodec overrides the codec used to parse and serialize payloads.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		o.codec = c
	}
}

// WithValidator overrides the validator used to check payloads.
func WithValidator(v validate.Validator) Option {
	return func(o *options) {
		o.validator = v
	}
}

// WithMaxBodySize limits the size of HTTP request bodies.
func WithMaxBodySize(n int64) Option {
	return func(o *options) {
		o.maxBodySize = n
	}
}

func newOptions(opts []Option) options {
	o := options{
		codec:     codec.JSON,
		validator: validate.Default,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Context is the protocol independent state shared by [HTTP] and [Websocket].
type Context struct {
	scope   gateway.Scope
	headers *header.Cache
	auth    auth.Authorization

	dbResponses int
}

func newContext(ctx context.Context, scope gateway.Scope, verifier auth.Verifier, proto conduit.Protocol) (*Context, error) {
	c := &Context{
		scope:   scope,
		headers: header.NewCache(scope.Headers),
	}

	a, err := c.authorize(ctx, verifier, proto)
	if err != nil {
		return nil, err
	}
	c.auth = a

	if a.HasSubject() {
		o11y.RequestSpan(ctx).SetAttributes(attribute.String("enduser.id", a.Subject))
	}

	err = a.Require(proto)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Context) authorize(ctx context.Context, verifier auth.Verifier, proto conduit.Protocol) (auth.Authorization, error) {
	spanCtx, span := tracer.Start(ctx, "find Authentication header")
	value, ok := c.headers.LookupString(AuthorizationHeader)
	span.SetAttributes(attribute.Bool("found", ok))
	span.End()

	if !ok || verifier == nil {
		return auth.Authorization{}, nil
	}

	spanCtx, span = tracer.Start(ctx, "verify authorization")
	defer span.End()

	a, err := verifier.Verify(spanCtx, value)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return auth.Authorization{}, conduit.InternalServerErrorFor(proto, "Internal Server Error", conduit.WithCause(err))
	}
	return a, nil
}

// Scope returns the connection metadata supplied by the gateway.
func (c *Context) Scope() gateway.Scope {
	return c.scope
}

// Auth returns the verified authorization of the connection.
func (c *Context) Auth() auth.Authorization {
	return c.auth
}

// Header looks up a header by name, ignoring case.
func (c *Context) Header(name string) ([]byte, bool) {
	return c.headers.Lookup(name)
}

// HeaderString looks up a header by name and decodes it as Latin-1.
func (c *Context) HeaderString(name string) (string, bool) {
	return c.headers.LookupString(name)
}

// AddRequestSpanAttrs writes data to the request span with every key prefixed.
func (c *Context) AddRequestSpanAttrs(ctx context.Context, data o11y.Attributes, prefix string) {
	o11y.RequestSpan(ctx).SetAttributes(o11y.FlattenAttributes(data, prefix)...)
}

// AddDBResponse records data on the request span under db.response.<i>,
// where i counts calls on this Context starting from zero.
func (c *Context) AddDBResponse(ctx context.Context, data o11y.Attributes) {
	reqSpan := o11y.RequestSpan(ctx)

	_, span := tracer.Start(ctx, "add db response")
	defer span.End()

	prefix := "db.response." + strconv.Itoa(c.dbResponses)
	c.dbResponses++

	span.SetAttributes(attribute.String("prefix", prefix))
	reqSpan.SetAttributes(o11y.FlattenAttributes(data, prefix)...)
}
