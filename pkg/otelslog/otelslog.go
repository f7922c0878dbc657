// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package otelslog provides a OpenTelemetry aware slog.Handler implementation.
package otelslog

import (
	"context"
	"log/slog"

	"github.com/z5labs/conduit/o11y"
	"github.com/z5labs/conduit/pkg/slogfield"

	"go.opentelemetry.io/otel/trace"
)

// Handler is an slog.Handler which correlates logs with traces and
// connections. Records logged with a context carrying a valid span get the
// Trace ID and Span ID, and records logged with a context carrying a
// connection id get that id.
type Handler struct {
	slog slog.Handler
}

// NewHandler wraps h.
func NewHandler(h slog.Handler) *Handler {
	return &Handler{slog: h}
}

// New provides a simple wrapper for slog.New(NewHandler(h)).
func New(h slog.Handler) *slog.Logger {
	return slog.New(NewHandler(h))
}

// Enabled implements the slog.Handler interface.
func (h *Handler) Enabled(ctx context.Context, lvl slog.Level) bool {
	return h.slog.Enabled(ctx, lvl)
}

// Handle implements the slog.Handler interface.
func (h *Handler) Handle(ctx context.Context, record slog.Record) error {
	spanCtx := trace.SpanContextFromContext(ctx)
	connID, hasConnID := o11y.ConnectionID(ctx)
	if !spanCtx.IsValid() && !hasConnID {
		return h.slog.Handle(ctx, record)
	}

	r := record.Clone()
	if hasConnID {
		r.AddAttrs(slogfield.ConnectionID(connID))
	}
	if spanCtx.IsValid() {
		r.AddAttrs(
			slog.Group(
				"otel",
				slogfield.String("trace_id", spanCtx.TraceID().String()),
				slogfield.String("span_id", spanCtx.SpanID().String()),
			),
		)
	}
	return h.slog.Handle(ctx, r)
}

// WithAttrs implements the slog.Handler interface.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return NewHandler(h.slog.WithAttrs(attrs))
}

// WithGroup implements the slog.Handler interface.
func (h *Handler) WithGroup(name string) slog.Handler {
	return NewHandler(h.slog.WithGroup(name))
}
