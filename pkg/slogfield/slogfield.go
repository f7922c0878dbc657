// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package slogfield provides the slog attributes logged for connections.
package slogfield

import (
	"log/slog"
	"time"
)

// Error returns an slog.Attr for a error.
func Error(err error) slog.Attr {
	return slog.Any("error", err)
}

// String returns an slog.Attr for a string.
func String(key, value string) slog.Attr {
	return slog.String(key, value)
}

// Duration returns an slog.Attr for a time.Duration.
func Duration(key string, d time.Duration) slog.Attr {
	return slog.Duration(key, d)
}

// ConnectionID returns the slog.Attr identifying a connection.
func ConnectionID(id string) slog.Attr {
	return slog.String("connection_id", id)
}

// Protocol returns the slog.Attr naming the protocol of a connection.
func Protocol(p string) slog.Attr {
	return slog.String("protocol", p)
}

// Path returns the slog.Attr for a request path.
func Path(p string) slog.Attr {
	return slog.String("path", p)
}

// Status returns the slog.Attr for an HTTP status or websocket close code.
func Status(code int) slog.Attr {
	return slog.Int("status", code)
}
