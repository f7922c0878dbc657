// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package config reads layered configuration from maps, YAML documents and
// environment variables and decodes it into structs tagged with `config`.
package config

import (
	"encoding"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"time"

	"github.com/z5labs/conduit/config/key"

	"github.com/go-viper/mapstructure/v2"
)

// Store represents a general key value structure.
type Store interface {
	Set(key.Keyer, any) error
}

// Source defines valid config sources as those who can
// serialize themselves into a key value like structure.
type Source interface {
	Apply(Store) error
}

// SourceFunc is a functional implementation of [Source].
type SourceFunc func(Store) error

// Apply implements the [Source] interface.
func (f SourceFunc) Apply(store Store) error {
	return f(store)
}

// NamedSource is a Source which names itself in [Manager.Origin] and
// [ConflictError].
type NamedSource interface {
	Source
	Name() string
}

type namedSource struct {
	Source
	name string
}

func (s namedSource) Name() string {
	return s.name
}

// Named labels src with name.
func Named(name string, src Source) NamedSource {
	return namedSource{Source: src, name: name}
}

// Manager holds the merged result of every Source.
type Manager struct {
	store *tree
}

// Read applies every source in order. Subsequent sources override
// previous sources. Sources which are not a [NamedSource] are named
// by their position.
func Read(srcs ...Source) (*Manager, error) {
	store := newTree()
	for i, src := range srcs {
		store.source = fmt.Sprintf("source %d", i)
		if ns, ok := src.(NamedSource); ok {
			store.source = ns.Name()
		}

		err := src.Apply(store)
		if err != nil {
			return nil, err
		}
	}
	return &Manager{store: store}, nil
}

// Origin returns the name of the source which set the value at the
// dotted key k.
func (m *Manager) Origin(k string) (string, bool) {
	name, ok := m.store.origins[k]
	return name, ok
}

// Keys returns the dotted key of every value, sorted.
func (m *Manager) Keys() []string {
	keys := make([]string, 0, len(m.store.origins))
	for k := range m.store.origins {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Unmarshal decodes the merged config into v. Strings are weakly
// converted to the field type, so values sourced from the environment
// decode into numeric and boolean fields.
func (m *Manager) Unmarshal(v any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "config",
		Result:           v,
		WeaklyTypedInput: true,
		DecodeHook: composeDecodeHooks(
			textUnmarshalerHookFunc(),
			timeDurationHookFunc(),
		),
	})
	if err != nil {
		return err
	}
	return dec.Decode(m.store.values)
}

var errInvalidDecodeCondition = errors.New("invalid decode condition")

// TypeCoercionError occurs when attempting to unmarshal a config
// value to a struct field whose type does not match the config
// value type, up to, coercion.
type TypeCoercionError struct {
	from  reflect.Value
	to    reflect.Value
	Cause error
}

// Error implements the error interface.
func (e TypeCoercionError) Error() string {
	return fmt.Sprintf("failed to coerce value from %s to %s: %s", e.from.Type(), e.to.Type(), e.Cause)
}

// Unwrap implements the implicit interface for usage with errors.Is and errors.As.
func (e TypeCoercionError) Unwrap() error {
	return e.Cause
}

func composeDecodeHooks(hs ...mapstructure.DecodeHookFunc) mapstructure.DecodeHookFuncValue {
	return func(f, t reflect.Value) (any, error) {
		for _, h := range hs {
			v, err := mapstructure.DecodeHookExec(h, f, t)
			if err == nil {
				return v, nil
			}
			if errors.Is(err, errInvalidDecodeCondition) {
				continue
			}
			return nil, TypeCoercionError{
				from:  f,
				to:    t,
				Cause: err,
			}
		}
		return f.Interface(), nil
	}
}

func textUnmarshalerHookFunc() mapstructure.DecodeHookFuncType {
	return func(f reflect.Type, t reflect.Type, data any) (any, error) {
		if f.Kind() != reflect.String {
			return nil, errInvalidDecodeCondition
		}
		result := reflect.New(t).Interface()
		u, ok := result.(encoding.TextUnmarshaler)
		if !ok {
			return nil, errInvalidDecodeCondition
		}
		err := u.UnmarshalText([]byte(data.(string)))
		if err != nil {
			return nil, err
		}
		return result, nil
	}
}

func timeDurationHookFunc() mapstructure.DecodeHookFuncType {
	return func(f reflect.Type, t reflect.Type, data any) (any, error) {
		if t != reflect.TypeOf(time.Duration(0)) {
			return nil, errInvalidDecodeCondition
		}

		switch f.Kind() {
		case reflect.String:
			return time.ParseDuration(data.(string))
		case reflect.Int:
			return time.Duration(int64(data.(int))), nil
		default:
			return nil, errInvalidDecodeCondition
		}
	}
}
