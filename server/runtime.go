// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/z5labs/conduit/pkg/health"
	"github.com/z5labs/conduit/pkg/otelslog"
	"github.com/z5labs/conduit/pkg/slogfield"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"
)

// DefaultShutdownTimeout bounds how long Run waits for in flight requests.
const DefaultShutdownTimeout = 10 * time.Second

type runtimeOptions struct {
	addr            string
	listener        net.Listener
	mux             *http.ServeMux
	logHandler      slog.Handler
	shutdownTimeout time.Duration
	readiness       *health.Binary
	readyChecks     []health.Metric
	liveness        *health.Binary
}

// RuntimeOption configures a Runtime.
type RuntimeOption func(*runtimeOptions)

// ListenOn will configure the server to listen on the given address.
//
// Default address is ":8080".
func ListenOn(addr string) RuntimeOption {
	return func(ro *runtimeOptions) {
		ro.addr = addr
	}
}

// Listener serves on an already bound listener instead of listening on an address.
func Listener(ls net.Listener) RuntimeOption {
	return func(ro *runtimeOptions) {
		ro.listener = ls
	}
}

// RuntimeLogHandler sets the slog.Handler lifecycle logs are written to.
func RuntimeLogHandler(h slog.Handler) RuntimeOption {
	return func(ro *runtimeOptions) {
		ro.logHandler = h
	}
}

// Handle registers a http.Handler for the given path pattern.
func Handle(pattern string, h http.Handler) RuntimeOption {
	return func(ro *runtimeOptions) {
		registerEndpoint(ro.mux, pattern, h)
	}
}

// ShutdownTimeout overrides [DefaultShutdownTimeout].
func ShutdownTimeout(d time.Duration) RuntimeOption {
	return func(ro *runtimeOptions) {
		ro.shutdownTimeout = d
	}
}

// Readiness is reported on /health/readiness. The Runtime marks it ready
// once serving and not ready when shutdown begins.
func Readiness(m *health.Binary) RuntimeOption {
	return func(ro *runtimeOptions) {
		ro.readiness = m
	}
}

// ReadinessCheck must also be healthy for /health/readiness to report ready.
func ReadinessCheck(m health.Metric) RuntimeOption {
	return func(ro *runtimeOptions) {
		ro.readyChecks = append(ro.readyChecks, m)
	}
}

// Liveness is reported on /health/liveness.
func Liveness(m *health.Binary) RuntimeOption {
	return func(ro *runtimeOptions) {
		ro.liveness = m
	}
}

// Runtime serves registered handlers until its context is cancelled.
type Runtime struct {
	addr     string
	listener net.Listener
	listen   func(string, string) (net.Listener, error)

	log             *slog.Logger
	shutdownTimeout time.Duration
	h               http.Handler

	liveness  *health.Binary
	readiness *health.Binary
}

// NewRuntime returns a Runtime with the health endpoints registered.
func NewRuntime(opts ...RuntimeOption) *Runtime {
	ros := &runtimeOptions{
		addr:            ":8080",
		mux:             http.NewServeMux(),
		logHandler:      slog.DiscardHandler,
		shutdownTimeout: DefaultShutdownTimeout,
		readiness:       &health.Binary{},
		liveness:        &health.Binary{},
	}
	for _, opt := range opts {
		opt(ros)
	}

	rt := &Runtime{
		addr:            ros.addr,
		listener:        ros.listener,
		listen:          net.Listen,
		log:             otelslog.New(ros.logHandler),
		shutdownTimeout: ros.shutdownTimeout,
		h:               ros.mux,
		liveness:        ros.liveness,
		readiness:       ros.readiness,
	}

	registerEndpoint(ros.mux, "/health/liveness", health.Handler(rt.liveness))
	ready := append([]health.Metric{rt.readiness}, ros.readyChecks...)
	registerEndpoint(ros.mux, "/health/readiness", health.Handler(health.And(ready...)))

	return rt
}

// Run serves until ctx is cancelled and then shuts the server down
// gracefully. A clean shutdown returns nil.
func (rt *Runtime) Run(ctx context.Context) error {
	ls := rt.listener
	if ls == nil {
		var err error
		ls, err = rt.listen("tcp", rt.addr)
		if err != nil {
			rt.log.ErrorContext(ctx, "failed to listen for connections", slogfield.Error(err))
			return err
		}
	}

	s := &http.Server{
		Handler: otelhttp.NewHandler(
			rt.h,
			"server",
			otelhttp.WithMessageEvents(otelhttp.ReadEvents, otelhttp.WriteEvents),
		),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		rt.readiness.Set(false)

		ctx, cancel := context.WithTimeout(context.Background(), rt.shutdownTimeout)
		defer cancel()
		defer rt.log.Info("shut down service")

		rt.log.Info("shutting down service")
		return s.Shutdown(ctx)
	})
	g.Go(func() error {
		rt.liveness.Set(true)
		rt.readiness.Set(true)
		rt.log.Info("started service", slog.String("addr", ls.Addr().String()))
		return s.Serve(ls)
	})

	err := g.Wait()
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	rt.log.Error("service encountered unexpected error", slogfield.Error(err))
	return err
}

func registerEndpoint(mux *http.ServeMux, path string, h http.Handler) {
	mux.Handle(
		path,
		otelhttp.WithRouteTag(path, h),
	)
}
