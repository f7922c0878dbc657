// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package httpgw

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/z5labs/conduit/gateway"
	"github.com/z5labs/conduit/header"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScopeFrom(t *testing.T) {
	t.Run("will include the host and every header value", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "http://example.com/items?page=2", nil)
		r.Header.Add("X-B", "2")
		r.Header.Add("X-A", "1")
		r.Header.Add("X-A", "one")

		scope := ScopeFrom(r, gateway.ScopeHTTP)
		assert.Equal(t, gateway.ScopeHTTP, scope.Type)
		assert.Equal(t, http.MethodGet, scope.Method)
		assert.Equal(t, "/items", scope.Path)
		assert.Equal(t, "page=2", scope.RawQuery)

		require.Len(t, scope.Headers, 4)
		assert.Equal(t, "Host", string(scope.Headers[0].Name))
		assert.Equal(t, "example.com", string(scope.Headers[0].Value))

		c := header.NewCache(scope.Headers)
		v, ok := c.LookupString("x-a")
		require.True(t, ok)
		assert.Equal(t, "1", v)
	})
}

func TestConn_Receive(t *testing.T) {
	t.Run("will deliver the body in chunks", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("abcdefg"))
		c := New(httptest.NewRecorder(), r, ChunkSize(3))

		var (
			body   string
			events int
		)
		for {
			ev, err := c.Receive(context.Background())
			require.Nil(t, err)
			require.Equal(t, gateway.HTTPRequest, ev.Type)
			body += string(ev.Body)
			events++
			if !ev.MoreBody {
				break
			}
		}
		assert.Equal(t, "abcdefg", body)
		assert.Equal(t, 3, events)
	})

	t.Run("will end with an empty chunk", func(t *testing.T) {
		t.Run("if the body is a multiple of the chunk size", func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("abcd"))
			c := New(httptest.NewRecorder(), r, ChunkSize(2))

			var chunks []string
			for {
				ev, err := c.Receive(context.Background())
				require.Nil(t, err)
				chunks = append(chunks, string(ev.Body))
				if !ev.MoreBody {
					break
				}
			}
			assert.Equal(t, []string{"ab", "cd", ""}, chunks)
		})

		t.Run("if there is no body", func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			c := New(httptest.NewRecorder(), r)

			ev, err := c.Receive(context.Background())
			require.Nil(t, err)
			assert.Equal(t, gateway.HTTPRequest, ev.Type)
			assert.False(t, ev.MoreBody)
			assert.Empty(t, ev.Body)
		})
	})

	t.Run("will report a disconnect", func(t *testing.T) {
		t.Run("if reading the body fails", func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", iotest.ErrReader(errors.New("reset")))
			c := New(httptest.NewRecorder(), r)

			ev, err := c.Receive(context.Background())
			require.Nil(t, err)
			assert.Equal(t, gateway.HTTPDisconnect, ev.Type)
		})

		t.Run("if the request context is cancelled", func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("abc")).WithContext(ctx)
			c := New(httptest.NewRecorder(), r)

			ev, err := c.Receive(context.Background())
			require.Nil(t, err)
			assert.Equal(t, gateway.HTTPDisconnect, ev.Type)
		})

		t.Run("if receive is called after the body completed", func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("a"))
			c := New(httptest.NewRecorder(), r)

			_, err := c.Receive(context.Background())
			require.Nil(t, err)

			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			ev, err := c.Receive(ctx)
			require.Nil(t, err)
			assert.Equal(t, gateway.HTTPDisconnect, ev.Type)
		})
	})
}

func TestConn_Send(t *testing.T) {
	t.Run("will write the status headers and body", func(t *testing.T) {
		w := httptest.NewRecorder()
		c := New(w, httptest.NewRequest(http.MethodGet, "/", nil))

		err := c.Send(context.Background(), gateway.HTTPResponseStart{
			Status: http.StatusAccepted,
			Headers: header.List{
				{Name: []byte("Content-Length"), Value: []byte("2")},
				{Name: []byte("Content-Type"), Value: []byte("text/plain")},
			},
		})
		require.Nil(t, err)
		assert.True(t, c.Started())

		err = c.Send(context.Background(), gateway.HTTPResponseBody{Body: []byte("ok")})
		require.Nil(t, err)

		resp := w.Result()
		assert.Equal(t, http.StatusAccepted, resp.StatusCode)
		assert.Equal(t, "text/plain", resp.Header.Get("Content-Type"))
		assert.Equal(t, "ok", w.Body.String())
	})

	t.Run("will return an error", func(t *testing.T) {
		t.Run("if the body is sent before the start", func(t *testing.T) {
			c := New(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

			err := c.Send(context.Background(), gateway.HTTPResponseBody{Body: []byte("ok")})
			assert.ErrorIs(t, err, ErrResponseNotStarted)
		})

		t.Run("if the response is started twice", func(t *testing.T) {
			c := New(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

			require.Nil(t, c.Send(context.Background(), gateway.HTTPResponseStart{Status: http.StatusOK}))
			err := c.Send(context.Background(), gateway.HTTPResponseStart{Status: http.StatusOK})
			assert.ErrorIs(t, err, ErrResponseStarted)
		})

		t.Run("if the body is sent after the response finished", func(t *testing.T) {
			c := New(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

			require.Nil(t, c.Send(context.Background(), gateway.HTTPResponseStart{Status: http.StatusOK}))
			require.Nil(t, c.Send(context.Background(), gateway.HTTPResponseBody{Body: []byte("a")}))
			err := c.Send(context.Background(), gateway.HTTPResponseBody{Body: []byte("b")})
			assert.ErrorIs(t, err, ErrResponseFinished)
		})
	})
}
