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
	"github.com/z5labs/conduit/websocket"
)

// Websocket is the context of one websocket connection. The session
// operations are promoted from the embedded [websocket.Session].
type Websocket struct {
	*Context
	*websocket.Session
}

// NewWebsocket builds the context for conn. It fails with a websocket
// forbidden error if the handshake carries no valid authorization.
func NewWebsocket(ctx context.Context, conn gateway.WebsocketConn, verifier auth.Verifier, opts ...Option) (*Websocket, error) {
	o := newOptions(opts)

	c, err := newContext(ctx, conn.Scope(), verifier, conduit.ProtocolWebsocket)
	if err != nil {
		return nil, err
	}

	return &Websocket{
		Context: c,
		Session: websocket.NewSession(
			conn,
			conn,
			websocket.Codec(o.codec),
			websocket.Validator(o.validator),
		),
	}, nil
}

// ReceiveWebsocketClass reads the next message of r into a new T.
func ReceiveWebsocketClass[T any](ctx context.Context, r *Websocket) (any, T, error) {
	return websocket.ReceiveClass[T](ctx, r.Session)
}
