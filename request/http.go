// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package request

import (
	"context"

	"github.com/z5labs/conduit"
	"github.com/z5labs/conduit/auth"
	"github.com/z5labs/conduit/gateway"
	"github.com/z5labs/conduit/httpconn"
)

// HTTP is the context of one HTTP request.
type HTTP struct {
	*Context

	conn      gateway.HTTPConn
	opts      []httpconn.Option
	responded bool
}

// NewHTTP builds the context for conn. It fails with a forbidden error if
// the request carries no valid authorization.
func NewHTTP(ctx context.Context, conn gateway.HTTPConn, verifier auth.Verifier, opts ...Option) (*HTTP, error) {
	o := newOptions(opts)

	c, err := newContext(ctx, conn.Scope(), verifier, conduit.ProtocolHTTP)
	if err != nil {
		return nil, err
	}

	return &HTTP{
		Context: c,
		conn:    conn,
		opts: []httpconn.Option{
			httpconn.Codec(o.codec),
			httpconn.Validator(o.validator),
			httpconn.MaxBodySize(o.maxBodySize),
		},
	}, nil
}

// ReceiveBody reads the full request body.
func (r *HTTP) ReceiveBody(ctx context.Context) ([]byte, error) {
	return httpconn.ReceiveBody(ctx, r.conn, r.opts...)
}

// ReceiveJSON reads and parses the request body.
func (r *HTTP) ReceiveJSON(ctx context.Context) (any, error) {
	return httpconn.ReceiveJSON(ctx, r.conn, r.opts...)
}

// ReceiveInto reads, parses and validates the request body into target.
func (r *HTTP) ReceiveInto(ctx context.Context, target any) (any, error) {
	return httpconn.ReceiveInto(ctx, r.conn, target, r.opts...)
}

// SendResponse sends the response. See [httpconn.SendResponse].
func (r *HTTP) SendResponse(ctx context.Context, status int, data any, opts ...httpconn.Option) error {
	r.responded = true
	return httpconn.SendResponse(ctx, r.conn, status, data, r.sendOptions(opts)...)
}

// SendJSON sends data serialized with the codec regardless of its type.
func (r *HTTP) SendJSON(ctx context.Context, status int, data any, opts ...httpconn.Option) error {
	r.responded = true
	return httpconn.SendJSON(ctx, r.conn, status, data, r.sendOptions(opts)...)
}

// Responded reports whether a response has been attempted.
func (r *HTTP) Responded() bool {
	return r.responded
}

func (r *HTTP) sendOptions(opts []httpconn.Option) []httpconn.Option {
	all := make([]httpconn.Option, 0, len(r.opts)+len(opts))
	all = append(all, r.opts...)
	return append(all, opts...)
}

// ReceiveHTTPClass reads the request body of r into a new T.
func ReceiveHTTPClass[T any](ctx context.Context, r *HTTP) (any, T, error) {
	return httpconn.ReceiveClass[T](ctx, r.conn, r.opts...)
}
