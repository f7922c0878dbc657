// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package maskslog provides a slog.Handler which masks sensitive values
// such as credentials before they are written.
package maskslog

import (
	"context"
	"log/slog"
	"strings"
)

// Mask is what masked values are replaced with.
const Mask = "****"

// CredentialKeys are the attribute keys masked by [Credentials].
var CredentialKeys = []string{"authorization", "token", "tokens", "password", "secret"}

type options struct {
	attrs    map[string]func(slog.Attr) slog.Attr
	messages []func(string) string
}

// Option helps configure the Handler.
type Option interface {
	applyOption(*options)
}

type optionFunc func(*options)

func (f optionFunc) applyOption(opts *options) {
	f(opts)
}

// Message registers a function for masking slog.Record messages.
func Message(f func(string) string) Option {
	return optionFunc(func(o *options) {
		o.messages = append(o.messages, f)
	})
}

// Attr registers a function for masking a slog.Attr given its key.
// Keys are matched case insensitively at any group depth.
func Attr(key string, f func(slog.Attr) slog.Attr) Option {
	return optionFunc(func(o *options) {
		o.attrs[strings.ToLower(key)] = f
	})
}

// Credentials masks every key in [CredentialKeys].
func Credentials() Option {
	return optionFunc(func(o *options) {
		for _, key := range CredentialKeys {
			o.attrs[key] = AnonymousStringAttr
		}
	})
}

// AnonymousStringAttr is a helper function for converting any slog.Attr
// into the anonymized string, [Mask]. It completely ignores the given
// slog.Attr value type and always return a string value.
func AnonymousStringAttr(a slog.Attr) slog.Attr {
	return slog.String(a.Key, Mask)
}

// Handler is an slog.Handler.
type Handler struct {
	slog slog.Handler

	attrs    map[string]func(slog.Attr) slog.Attr
	messages []func(string) string
}

// NewHandler returns a new Handler.
func NewHandler(h slog.Handler, opts ...Option) *Handler {
	o := &options{
		attrs: make(map[string]func(slog.Attr) slog.Attr),
	}
	for _, opt := range opts {
		opt.applyOption(o)
	}
	return &Handler{
		slog:     h,
		attrs:    o.attrs,
		messages: o.messages,
	}
}

// Enabled implements the slog.Handler interface.
func (h *Handler) Enabled(ctx context.Context, lvl slog.Level) bool {
	return h.slog.Enabled(ctx, lvl)
}

// Handle implements the slog.Handler interface.
func (h *Handler) Handle(ctx context.Context, record slog.Record) error {
	msg := record.Message
	for _, f := range h.messages {
		msg = f(msg)
	}

	nr := slog.NewRecord(record.Time, record.Level, msg, record.PC)
	record.Attrs(func(a slog.Attr) bool {
		nr.AddAttrs(h.mask(a))
		return true
	})
	return h.slog.Handle(ctx, nr)
}

// WithAttrs implements the slog.Handler interface.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	masked := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		masked[i] = h.mask(a)
	}
	return h.with(h.slog.WithAttrs(masked))
}

// WithGroup implements the slog.Handler interface.
func (h *Handler) WithGroup(name string) slog.Handler {
	return h.with(h.slog.WithGroup(name))
}

func (h *Handler) with(sh slog.Handler) *Handler {
	return &Handler{
		slog:     sh,
		attrs:    h.attrs,
		messages: h.messages,
	}
}

func (h *Handler) mask(a slog.Attr) slog.Attr {
	if f, ok := h.attrs[strings.ToLower(a.Key)]; ok {
		return f(a)
	}
	if a.Value.Kind() != slog.KindGroup {
		return a
	}

	group := a.Value.Group()
	masked := make([]any, len(group))
	for i, ga := range group {
		masked[i] = h.mask(ga)
	}
	return slog.Group(a.Key, masked...)
}
