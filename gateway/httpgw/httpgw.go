// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package httpgw implements a [gateway.HTTPConn] on top of net/http.
package httpgw

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sort"

	"github.com/z5labs/conduit/gateway"
	"github.com/z5labs/conduit/header"
)

// DefaultChunkSize is the largest body chunk delivered by a single Receive.
const DefaultChunkSize = 64 * 1024

var (
	ErrResponseStarted    = errors.New("httpgw: response already started")
	ErrResponseNotStarted = errors.New("httpgw: response body sent before response start")
	ErrResponseFinished   = errors.New("httpgw: response already finished")
)

// Option configures a Conn.
type Option func(*Conn)

// ChunkSize sets the maximum size of delivered body chunks.
func ChunkSize(n int) Option {
	return func(c *Conn) {
		if n > 0 {
			c.chunkSize = n
		}
	}
}

// Conn adapts one net/http request and its response writer.
type Conn struct {
	w http.ResponseWriter
	r *http.Request

	scope     gateway.Scope
	chunkSize int
	buf       []byte

	bodyDone bool
	started  bool
	finished bool
}

// New returns a Conn for the given request.
func New(w http.ResponseWriter, r *http.Request, opts ...Option) *Conn {
	c := &Conn{
		w:         w,
		r:         r,
		scope:     ScopeFrom(r, gateway.ScopeHTTP),
		chunkSize: DefaultChunkSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ScopeFrom describes r as a connection scope. Header names are delivered
// in sorted order with the Host header first.
func ScopeFrom(r *http.Request, typ gateway.ScopeType) gateway.Scope {
	headers := make(header.List, 0, len(r.Header)+1)
	if r.Host != "" {
		headers = append(headers, header.Field{Name: []byte("Host"), Value: []byte(r.Host)})
	}

	names := make([]string, 0, len(r.Header))
	for name := range r.Header {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		for _, value := range r.Header[name] {
			headers = append(headers, header.Field{Name: []byte(name), Value: []byte(value)})
		}
	}

	return gateway.Scope{
		Type:     typ,
		Method:   r.Method,
		Path:     r.URL.Path,
		RawQuery: r.URL.RawQuery,
		Headers:  headers,
	}
}

// Scope implements the [gateway.HTTPConn] interface.
func (c *Conn) Scope() gateway.Scope {
	return c.scope
}

// Receive implements the [gateway.HTTPReceiver] interface.
//
// Once the body has been fully delivered Receive blocks until either ctx or
// the request context is done and then reports a disconnect.
func (c *Conn) Receive(ctx context.Context) (gateway.HTTPEvent, error) {
	disconnect := gateway.HTTPEvent{Type: gateway.HTTPDisconnect}
	if c.bodyDone {
		select {
		case <-ctx.Done():
		case <-c.r.Context().Done():
		}
		return disconnect, nil
	}
	if c.r.Context().Err() != nil {
		return disconnect, nil
	}
	if c.r.Body == nil || c.r.Body == http.NoBody {
		c.bodyDone = true
		return gateway.HTTPEvent{Type: gateway.HTTPRequest, Body: []byte{}}, nil
	}

	if c.buf == nil {
		c.buf = make([]byte, c.chunkSize)
	}
	n, err := io.ReadFull(c.r.Body, c.buf)
	switch {
	case err == nil:
	case errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF):
		c.bodyDone = true
	default:
		return disconnect, nil
	}

	body := make([]byte, n)
	copy(body, c.buf[:n])
	return gateway.HTTPEvent{
		Type:     gateway.HTTPRequest,
		Body:     body,
		MoreBody: !c.bodyDone,
	}, nil
}

// Send implements the [gateway.HTTPSender] interface.
func (c *Conn) Send(ctx context.Context, ev gateway.HTTPOutboundEvent) error {
	switch x := ev.(type) {
	case gateway.HTTPResponseStart:
		if c.started {
			return ErrResponseStarted
		}
		c.started = true

		h := c.w.Header()
		for _, f := range x.Headers {
			h.Add(string(f.Name), string(f.Value))
		}
		c.w.WriteHeader(x.Status)
		return nil
	case gateway.HTTPResponseBody:
		if !c.started {
			return ErrResponseNotStarted
		}
		if c.finished {
			return ErrResponseFinished
		}

		_, err := c.w.Write(x.Body)
		if err != nil {
			return err
		}
		if x.MoreBody {
			if f, ok := c.w.(http.Flusher); ok {
				f.Flush()
			}
			return nil
		}
		c.finished = true
		return nil
	default:
		return UnknownEventError{Event: ev}
	}
}

// Started reports whether a response start event has been sent.
func (c *Conn) Started() bool {
	return c.started
}

// UnknownEventError is returned when Send is given an event it does not support.
type UnknownEventError struct {
	Event any
}

// Error implements the [error] interface.
func (e UnknownEventError) Error() string {
	return "httpgw: unknown outbound event"
}
