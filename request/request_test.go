// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package request

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/z5labs/conduit"
	"github.com/z5labs/conduit/auth"
	"github.com/z5labs/conduit/gateway"
	"github.com/z5labs/conduit/gateway/gatewaytest"
	"github.com/z5labs/conduit/header"
	"github.com/z5labs/conduit/o11y"
	"github.com/z5labs/conduit/websocket"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

var tokens = auth.BearerTokens{"t0ken": "alice"}

func authorizedScope(extra ...header.Field) gateway.Scope {
	headers := header.List{
		{Name: []byte("Host"), Value: []byte("example.com")},
		{Name: []byte("Authorization"), Value: []byte("Bearer t0ken")},
	}
	return gateway.Scope{
		Method:  http.MethodPost,
		Path:    "/",
		Headers: append(headers, extra...),
	}
}

type spanFixture struct {
	recorder *tracetest.SpanRecorder
	ctx      context.Context
	end      func()
}

func newSpanFixture() spanFixture {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	ctx, span := tp.Tracer("test").Start(context.Background(), "request")
	return spanFixture{
		recorder: sr,
		ctx:      o11y.ContextWithRequestSpan(ctx, span),
		end:      func() { span.End() },
	}
}

func (f spanFixture) attributes(t *testing.T) map[attribute.Key]attribute.Value {
	t.Helper()

	f.end()
	ended := f.recorder.Ended()
	require.Len(t, ended, 1)

	m := make(map[attribute.Key]attribute.Value)
	for _, kv := range ended[0].Attributes() {
		m[kv.Key] = kv.Value
	}
	return m
}

func TestNewHTTP(t *testing.T) {
	t.Run("will set enduser.id on the request span", func(t *testing.T) {
		t.Run("if the authorization names a subject", func(t *testing.T) {
			f := newSpanFixture()
			conn := gatewaytest.NewHTTPConn(authorizedScope())

			r, err := NewHTTP(f.ctx, conn, tokens)
			require.Nil(t, err)
			assert.Equal(t, "alice", r.Auth().Subject)

			attrs := f.attributes(t)
			assert.Equal(t, "alice", attrs["enduser.id"].AsString())
		})
	})

	t.Run("will fail with forbidden", func(t *testing.T) {
		t.Run("if there is no authorization header", func(t *testing.T) {
			conn := gatewaytest.NewHTTPConn(gateway.Scope{})

			r, err := NewHTTP(context.Background(), conn, tokens)
			assert.Nil(t, r)

			e, ok := conduit.AsError(err)
			require.True(t, ok)
			assert.Equal(t, conduit.KindForbidden, e.Kind)
			assert.Equal(t, conduit.ProtocolHTTP, e.Protocol)
			assert.Equal(t, http.StatusForbidden, e.Status)
		})

		t.Run("if the token is invalid", func(t *testing.T) {
			scope := gateway.Scope{Headers: header.List{
				{Name: []byte("authorization"), Value: []byte("Bearer wrong")},
			}}
			conn := gatewaytest.NewHTTPConn(scope)

			_, err := NewHTTP(context.Background(), conn, tokens)

			e, ok := conduit.AsError(err)
			require.True(t, ok)
			assert.Equal(t, conduit.KindForbidden, e.Kind)
		})

		t.Run("if no verifier is configured", func(t *testing.T) {
			conn := gatewaytest.NewHTTPConn(authorizedScope())

			_, err := NewHTTP(context.Background(), conn, nil)

			e, ok := conduit.AsError(err)
			require.True(t, ok)
			assert.Equal(t, conduit.KindForbidden, e.Kind)
		})
	})

	t.Run("will fail with an internal error", func(t *testing.T) {
		t.Run("if the verifier fails", func(t *testing.T) {
			verifyErr := errors.New("key server unavailable")
			verifier := auth.VerifierFunc(func(ctx context.Context, h string) (auth.Authorization, error) {
				return auth.Authorization{}, verifyErr
			})
			conn := gatewaytest.NewHTTPConn(authorizedScope())

			_, err := NewHTTP(context.Background(), conn, verifier)

			e, ok := conduit.AsError(err)
			require.True(t, ok)
			assert.Equal(t, conduit.KindInternal, e.Kind)
			assert.ErrorIs(t, err, verifyErr)
		})
	})

	t.Run("will pass the header to the verifier as received", func(t *testing.T) {
		var got string
		verifier := auth.VerifierFunc(func(ctx context.Context, h string) (auth.Authorization, error) {
			got = h
			return auth.Authorized("", nil), nil
		})
		scope := gateway.Scope{Headers: header.List{
			{Name: []byte("AUTHORIZATION"), Value: []byte("Custom caf\xe9")},
		}}

		r, err := NewHTTP(context.Background(), gatewaytest.NewHTTPConn(scope), verifier)
		require.Nil(t, err)
		assert.Equal(t, "Custom café", got)
		assert.False(t, r.Auth().HasSubject())
	})
}

func TestNewWebsocket(t *testing.T) {
	t.Run("will fail with websocket forbidden", func(t *testing.T) {
		t.Run("if there is no authorization header", func(t *testing.T) {
			conn := gatewaytest.NewWebsocketConn(gateway.Scope{}, gatewaytest.Connect())

			_, err := NewWebsocket(context.Background(), conn, tokens)

			e, ok := conduit.AsError(err)
			require.True(t, ok)
			assert.Equal(t, conduit.KindForbidden, e.Kind)
			assert.Equal(t, conduit.ProtocolWebsocket, e.Protocol)
			assert.Equal(t, 0, conn.Received())
		})
	})

	t.Run("will expose the session operations", func(t *testing.T) {
		conn := gatewaytest.NewWebsocketConn(
			authorizedScope(),
			gatewaytest.Connect(),
			gatewaytest.Text(`{"n":1}`),
			gatewaytest.Disconnect(1000),
		)

		r, err := NewWebsocket(context.Background(), conn, tokens)
		require.Nil(t, err)
		assert.Equal(t, websocket.AwaitingAccept, r.State())

		require.Nil(t, r.Accept(context.Background()))

		type msg struct {
			N int `json:"n"`
		}
		_, m, err := ReceiveWebsocketClass[msg](context.Background(), r)
		require.Nil(t, err)
		assert.Equal(t, 1, m.N)

		_, err = r.ReceiveMessage(context.Background())
		assert.True(t, conduit.IsConnectionClosed(err))
		assert.Equal(t, websocket.Closed, r.State())
	})
}

func TestContext_Header(t *testing.T) {
	t.Run("will look up headers case-insensitively", func(t *testing.T) {
		conn := gatewaytest.NewHTTPConn(authorizedScope(header.Field{
			Name:  []byte("X-Trace"),
			Value: []byte("abc"),
		}))

		r, err := NewHTTP(context.Background(), conn, tokens)
		require.Nil(t, err)

		v, ok := r.Header("x-trace")
		require.True(t, ok)
		assert.Equal(t, []byte("abc"), v)

		s, ok := r.HeaderString("X-TRACE")
		require.True(t, ok)
		assert.Equal(t, "abc", s)

		_, ok = r.Header("missing")
		assert.False(t, ok)
	})
}

func TestContext_AddDBResponse(t *testing.T) {
	t.Run("will namespace each call with an increasing index", func(t *testing.T) {
		f := newSpanFixture()
		r, err := NewHTTP(f.ctx, gatewaytest.NewHTTPConn(authorizedScope()), tokens)
		require.Nil(t, err)

		r.AddDBResponse(f.ctx, o11y.Attributes{"rows": 1})
		r.AddDBResponse(f.ctx, o11y.Attributes{"rows": 2})
		r.AddDBResponse(f.ctx, o11y.Attributes{"rows": 3, "table": o11y.Attributes{"name": "users"}})

		attrs := f.attributes(t)
		assert.Equal(t, int64(1), attrs["db.response.0.rows"].AsInt64())
		assert.Equal(t, int64(2), attrs["db.response.1.rows"].AsInt64())
		assert.Equal(t, int64(3), attrs["db.response.2.rows"].AsInt64())
		assert.Equal(t, "users", attrs["db.response.2.table.name"].AsString())
	})
}

func TestContext_AddRequestSpanAttrs(t *testing.T) {
	t.Run("will flatten attributes under the prefix", func(t *testing.T) {
		f := newSpanFixture()
		r, err := NewHTTP(f.ctx, gatewaytest.NewHTTPConn(authorizedScope()), tokens)
		require.Nil(t, err)

		r.AddRequestSpanAttrs(f.ctx, o11y.Attributes{"id": "42", "skip": nil}, "app.user")

		attrs := f.attributes(t)
		assert.Equal(t, "42", attrs["app.user.id"].AsString())
		_, ok := attrs["app.user.skip"]
		assert.False(t, ok)
	})
}

func TestHTTP_SendResponse(t *testing.T) {
	t.Run("will mark the request as responded", func(t *testing.T) {
		conn := gatewaytest.NewHTTPConn(authorizedScope(), gatewaytest.Chunk(`{"a":1}`, false))
		r, err := NewHTTP(context.Background(), conn, tokens)
		require.Nil(t, err)
		assert.False(t, r.Responded())

		v, err := r.ReceiveJSON(context.Background())
		require.Nil(t, err)

		err = r.SendResponse(context.Background(), http.StatusOK, v)
		require.Nil(t, err)
		assert.True(t, r.Responded())

		body := conn.Sent[1].(gateway.HTTPResponseBody)
		assert.Equal(t, `{"a":1}`, string(body.Body))
	})

	t.Run("will enforce the configured body limit", func(t *testing.T) {
		conn := gatewaytest.NewHTTPConn(authorizedScope(), gatewaytest.Chunk("too long", false))
		r, err := NewHTTP(context.Background(), conn, tokens, WithMaxBodySize(3))
		require.Nil(t, err)

		_, err = r.ReceiveBody(context.Background())

		e, ok := conduit.AsError(err)
		require.True(t, ok)
		assert.Equal(t, http.StatusRequestEntityTooLarge, e.Status)
	})
}

func TestReceiveHTTPClass(t *testing.T) {
	t.Run("will return bad request", func(t *testing.T) {
		t.Run("if the body does not match", func(t *testing.T) {
			type order struct {
				ID string `json:"id" required:"true"`
			}
			conn := gatewaytest.NewHTTPConn(authorizedScope(), gatewaytest.Chunk(`{"id":7}`, false))
			r, err := NewHTTP(context.Background(), conn, tokens)
			require.Nil(t, err)

			raw, _, err := ReceiveHTTPClass[order](context.Background(), r)
			assert.NotNil(t, raw)

			e, ok := conduit.AsError(err)
			require.True(t, ok)
			assert.Equal(t, conduit.KindBadRequest, e.Kind)
		})
	})
}
