// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package o11y carries the request span through a context.Context and
// converts nested attribute maps into OpenTelemetry attributes.
package o11y

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type contextKey string

const (
	requestSpanKey  = contextKey("requestSpan")
	connectionIDKey = contextKey("connectionID")
)

// ContextWithRequestSpan records s as the span which represents the whole
// connection. Attributes describing the request as a whole are written to it,
// independent of whichever child span is current.
func ContextWithRequestSpan(ctx context.Context, s trace.Span) context.Context {
	return context.WithValue(ctx, requestSpanKey, s)
}

// RequestSpan returns the span recorded by [ContextWithRequestSpan]. If none
// was recorded, the span currently in ctx is used instead, which for servers
// wrapped with otelhttp is the server span.
func RequestSpan(ctx context.Context) trace.Span {
	if s, ok := ctx.Value(requestSpanKey).(trace.Span); ok {
		return s
	}
	return trace.SpanFromContext(ctx)
}

// ContextWithConnectionID records the identifier assigned to a connection.
func ContextWithConnectionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, connectionIDKey, id)
}

// ConnectionID returns the identifier recorded by [ContextWithConnectionID].
func ConnectionID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(connectionIDKey).(string)
	return id, ok
}

// Attributes is a possibly nested attribute mapping. Nested
// Attributes or map[string]any values are flattened into dotted keys.
type Attributes map[string]any

// FlattenAttributes converts data into span attributes with every key prefixed
// by prefix. Keys are emitted in sorted order and nil values are skipped.
func FlattenAttributes(data Attributes, prefix string) []attribute.KeyValue {
	var kvs []attribute.KeyValue
	flatten(&kvs, data, prefix)
	return kvs
}

func flatten(kvs *[]attribute.KeyValue, data map[string]any, prefix string) {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		name := k
		if prefix != "" {
			name = prefix + "." + k
		}

		switch x := data[k].(type) {
		case nil:
		case Attributes:
			flatten(kvs, x, name)
		case map[string]any:
			flatten(kvs, x, name)
		default:
			*kvs = append(*kvs, keyValue(name, x))
		}
	}
}

func keyValue(name string, v any) attribute.KeyValue {
	switch x := v.(type) {
	case string:
		return attribute.String(name, x)
	case bool:
		return attribute.Bool(name, x)
	case int:
		return attribute.Int(name, x)
	case int8:
		return attribute.Int64(name, int64(x))
	case int16:
		return attribute.Int64(name, int64(x))
	case int32:
		return attribute.Int64(name, int64(x))
	case int64:
		return attribute.Int64(name, x)
	case uint8:
		return attribute.Int64(name, int64(x))
	case uint16:
		return attribute.Int64(name, int64(x))
	case uint32:
		return attribute.Int64(name, int64(x))
	case uint:
		return unsigned(name, uint64(x))
	case uint64:
		return unsigned(name, x)
	case float32:
		return attribute.Float64(name, float64(x))
	case float64:
		return attribute.Float64(name, x)
	case []string:
		return attribute.StringSlice(name, x)
	case []bool:
		return attribute.BoolSlice(name, x)
	case []int:
		return attribute.IntSlice(name, x)
	case []int64:
		return attribute.Int64Slice(name, x)
	case []float64:
		return attribute.Float64Slice(name, x)
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return attribute.Int64(name, i)
		}
		if f, err := x.Float64(); err == nil {
			return attribute.Float64(name, f)
		}
		return attribute.String(name, x.String())
	case fmt.Stringer:
		return attribute.String(name, x.String())
	default:
		return attribute.String(name, fmt.Sprint(x))
	}
}

// unsigned values beyond the int64 range are kept as their decimal string.
func unsigned(name string, v uint64) attribute.KeyValue {
	if v > math.MaxInt64 {
		return attribute.String(name, fmt.Sprint(v))
	}
	return attribute.Int64(name, int64(v))
}
