// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package server dispatches net/http connections to conduit handlers.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/z5labs/conduit"
	"github.com/z5labs/conduit/auth"
	"github.com/z5labs/conduit/codec"
	"github.com/z5labs/conduit/gateway/httpgw"
	"github.com/z5labs/conduit/gateway/wsgw"
	"github.com/z5labs/conduit/httpconn"
	"github.com/z5labs/conduit/internal/try"
	"github.com/z5labs/conduit/o11y"
	"github.com/z5labs/conduit/pkg/otelslog"
	"github.com/z5labs/conduit/pkg/slogfield"
	"github.com/z5labs/conduit/request"
	"github.com/z5labs/conduit/websocket"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
)

// InternalServerErrorMessage is the payload sent for errors which do not
// carry their own wire representation.
const InternalServerErrorMessage = "Internal Server Error"

// ErrNoResponse is reported when an HTTP handler returns without error
// but never sent a response.
var ErrNoResponse = errors.New("handler returned without sending a response")

// HTTPHandlerFunc handles one HTTP request.
type HTTPHandlerFunc func(context.Context, *request.HTTP) error

// WebsocketHandlerFunc handles one websocket connection. If the connection
// is still open when it returns without error, it is closed with the Result.
type WebsocketHandlerFunc func(context.Context, *request.Websocket) (websocket.Result, error)

type options struct {
	logHandler  slog.Handler
	verifier    auth.Verifier
	codec       codec.Codec
	requestOpts []request.Option
	httpOpts    []httpgw.Option
	wsOpts      []wsgw.Option
	ws          WebsocketHandlerFunc
	registerer  prometheus.Registerer
}

// Option configures a Handler.
type Option func(*options)

// LogHandler sets the slog.Handler connection logs are written to.
// It is wrapped so records carry trace and connection ids.
func LogHandler(h slog.Handler) Option {
	return func(o *options) {
		o.logHandler = h
	}
}

// Verifier sets how the Authorization header is checked. Without one every
// connection is rejected as forbidden.
func Verifier(v auth.Verifier) Option {
	return func(o *options) {
		o.verifier = v
	}
}

// Codec overrides the codec used for payloads and for rendering error payloads.
func Codec(c codec.Codec) Option {
	return func(o *options) {
		o.codec = c
	}
}

// RequestOptions are applied to every request context.
func RequestOptions(opts ...request.Option) Option {
	return func(o *options) {
		o.requestOpts = append(o.requestOpts, opts...)
	}
}

// HTTPGatewayOptions are applied to every HTTP gateway.
func HTTPGatewayOptions(opts ...httpgw.Option) Option {
	return func(o *options) {
		o.httpOpts = append(o.httpOpts, opts...)
	}
}

// WebsocketGatewayOptions are applied to every websocket gateway.
func WebsocketGatewayOptions(opts ...wsgw.Option) Option {
	return func(o *options) {
		o.wsOpts = append(o.wsOpts, opts...)
	}
}

// Websocket routes upgrade requests to f. Without it upgrade requests are
// handled as plain HTTP.
func Websocket(f WebsocketHandlerFunc) Option {
	return func(o *options) {
		o.ws = f
	}
}

// Registerer registers the connection metrics with reg.
func Registerer(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = reg
	}
}

// Handler is a net/http.Handler which runs each connection through the
// protocol adapter.
type Handler struct {
	log         *slog.Logger
	verifier    auth.Verifier
	codec       codec.Codec
	requestOpts []request.Option
	httpOpts    []httpgw.Option
	wsOpts      []wsgw.Option

	http HTTPHandlerFunc
	ws   WebsocketHandlerFunc

	metrics *metrics
}

// NewHandler returns a Handler serving HTTP requests with h.
func NewHandler(h HTTPHandlerFunc, opts ...Option) *Handler {
	o := &options{
		logHandler: slog.DiscardHandler,
		codec:      codec.JSON,
	}
	for _, opt := range opts {
		opt(o)
	}

	return &Handler{
		log:         otelslog.New(o.logHandler),
		verifier:    o.verifier,
		codec:       o.codec,
		requestOpts: append([]request.Option{request.WithCodec(o.codec)}, o.requestOpts...),
		httpOpts:    o.httpOpts,
		wsOpts:      o.wsOpts,
		http:        h,
		ws:          o.ws,
		metrics:     newMetrics(o.registerer),
	}
}

// ServeHTTP implements the [http.Handler] interface.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := o11y.ContextWithConnectionID(r.Context(), uuid.NewString())
	ctx = o11y.ContextWithRequestSpan(ctx, trace.SpanFromContext(ctx))

	proto := conduit.ProtocolHTTP
	if h.ws != nil && wsgw.IsUpgrade(r) {
		proto = conduit.ProtocolWebsocket
	}
	label := proto.String()

	h.metrics.active.WithLabelValues(label).Inc()
	defer h.metrics.active.WithLabelValues(label).Dec()

	h.log.DebugContext(
		ctx,
		"handling connection",
		slogfield.Protocol(label),
		slogfield.Path(r.URL.Path),
	)

	start := time.Now()
	var outcome string
	if proto == conduit.ProtocolWebsocket {
		outcome = h.serveWebsocket(ctx, w, r)
	} else {
		outcome = h.serveHTTP(ctx, w, r)
	}
	elapsed := time.Since(start)

	h.metrics.duration.WithLabelValues(label).Observe(elapsed.Seconds())
	h.metrics.connections.WithLabelValues(label, outcome).Inc()

	h.log.DebugContext(
		ctx,
		"handled connection",
		slogfield.Protocol(label),
		slog.String("outcome", outcome),
		slogfield.Duration("duration", elapsed),
	)
}

func (h *Handler) serveHTTP(ctx context.Context, w http.ResponseWriter, r *http.Request) string {
	if h.http == nil {
		http.NotFound(w, r)
		return OutcomeResponse
	}

	conn := httpgw.New(w, r, h.httpOpts...)
	err := try.Do(func() error {
		req, err := request.NewHTTP(ctx, conn, h.verifier, h.requestOpts...)
		if err != nil {
			return err
		}

		err = h.http(ctx, req)
		if err == nil && !req.Responded() {
			return ErrNoResponse
		}
		return err
	})
	return h.writeHTTPError(ctx, conn, err)
}

func (h *Handler) writeHTTPError(ctx context.Context, conn *httpgw.Conn, err error) string {
	if err == nil {
		return OutcomeOK
	}
	if conduit.IsConnectionClosed(err) {
		h.log.DebugContext(ctx, "peer closed connection", slogfield.Error(err))
		return OutcomeConnectionClosed
	}

	e := h.asError(ctx, conduit.ProtocolHTTP, err)
	if conn.Started() {
		h.log.ErrorContext(
			ctx,
			"failed after response was started",
			slogfield.Status(e.Status),
			slogfield.Error(err),
		)
		return outcomeOf(e)
	}

	serr := httpconn.SendResponse(
		ctx,
		conn,
		e.Status,
		e.Payload,
		httpconn.Codec(h.codec),
		httpconn.Headers(e.Headers),
	)
	if serr != nil {
		h.log.ErrorContext(ctx, "failed to send error response", slogfield.Error(serr))
	}
	return outcomeOf(e)
}

func (h *Handler) serveWebsocket(ctx context.Context, w http.ResponseWriter, r *http.Request) string {
	conn := wsgw.New(w, r, h.wsOpts...)
	defer func() {
		err := conn.Close()
		if err != nil {
			h.log.WarnContext(ctx, "failed to release websocket connection", slogfield.Error(err))
		}
	}()

	session := websocket.NewSession(conn, conn)
	err := try.Do(func() error {
		req, err := request.NewWebsocket(ctx, conn, h.verifier, h.requestOpts...)
		if err != nil {
			return err
		}
		session = req.Session

		res, err := h.ws(ctx, req)
		if err != nil {
			return err
		}
		if req.State() == websocket.Closed {
			return nil
		}

		code := res.Code
		if code == 0 {
			code = websocket.StatusNormalClosure
		}
		return req.Close(ctx, code, res.Reason)
	})
	return h.closeWebsocket(ctx, session, err)
}

func (h *Handler) closeWebsocket(ctx context.Context, s *websocket.Session, err error) string {
	if err == nil {
		return OutcomeOK
	}
	if conduit.IsConnectionClosed(err) {
		h.log.DebugContext(ctx, "peer closed connection", slogfield.Error(err))
		return OutcomeConnectionClosed
	}

	e := h.asError(ctx, conduit.ProtocolWebsocket, err)
	if s.State() == websocket.Closed {
		h.log.ErrorContext(ctx, "failed after websocket was closed", slogfield.Error(err))
		return outcomeOf(e)
	}

	code := websocket.StatusFromHTTP(e.Status)
	if _, ok := conduit.AsError(err); !ok {
		code = websocket.StatusInternalError
	}
	cerr := s.Close(ctx, code, h.render(e.Payload))
	if cerr != nil && !conduit.IsConnectionClosed(cerr) {
		h.log.ErrorContext(ctx, "failed to close websocket", slogfield.Error(cerr))
	}
	return outcomeOf(e)
}

// asError returns the *conduit.Error in err's chain or an internal error
// wrapping err. Internal errors are logged with their cause.
func (h *Handler) asError(ctx context.Context, proto conduit.Protocol, err error) *conduit.Error {
	e, ok := conduit.AsError(err)
	if !ok {
		h.log.ErrorContext(ctx, "unexpected error while handling connection", slogfield.Error(err))
		return conduit.InternalServerErrorFor(proto, InternalServerErrorMessage, conduit.WithCause(err))
	}
	if e.Kind == conduit.KindInternal {
		h.log.ErrorContext(ctx, "internal error while handling connection", slogfield.Error(err))
	}
	return e
}

// render turns an error payload into a close reason.
func (h *Handler) render(payload any) string {
	switch x := payload.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	}

	b, err := h.codec.Serialize(payload)
	if err != nil {
		return ""
	}
	return string(b)
}

func outcomeOf(e *conduit.Error) string {
	switch e.Kind {
	case conduit.KindBadRequest:
		return OutcomeBadRequest
	case conduit.KindForbidden:
		return OutcomeForbidden
	case conduit.KindInternal:
		return OutcomeInternal
	case conduit.KindConnectionClosed:
		return OutcomeConnectionClosed
	default:
		return OutcomeResponse
	}
}
