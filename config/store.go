// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/z5labs/conduit/config/key"
)

// UnknownKeyerError is returned when a Source sets a value with a
// key.Keyer other than key.Name or key.Chain.
type UnknownKeyerError struct {
	key key.Keyer
}

// Error implements the error interface.
func (e UnknownKeyerError) Error() string {
	return fmt.Sprintf("config source tried setting config value with unknown key.Keyer: %s", e.key.Key())
}

// EmptyKeyChainError is returned when a value is set with an empty key.Chain.
type EmptyKeyChainError struct {
	Value any
}

// Error implements the error interface.
func (e EmptyKeyChainError) Error() string {
	return fmt.Sprintf("attempted to set value to an empty key chain: %v", e.Value)
}

// ConflictError is returned when a source sets a key in a way that
// contradicts an earlier source. Either a value is nested under a key
// which holds a plain value, or a plain value would replace a section.
type ConflictError struct {
	Key      string
	Source   string
	Previous string
}

// Error implements the error interface.
func (e ConflictError) Error() string {
	return fmt.Sprintf("config key %s from %s conflicts with the value from %s", e.Key, e.Source, e.Previous)
}

// tree is the Store sources are applied to by Read. Besides the merged
// values it records the source which last set each dotted key.
type tree struct {
	values  map[string]any
	origins map[string]string
	source  string
}

func newTree() *tree {
	return &tree{
		values:  make(map[string]any),
		origins: make(map[string]string),
	}
}

// Set implements the [Store] interface. A nil value leaves whatever an
// earlier source set in place.
func (t *tree) Set(k key.Keyer, v any) error {
	chain, err := flattenKey(nil, k)
	if err != nil {
		return err
	}
	if len(chain) == 0 {
		return EmptyKeyChainError{Value: v}
	}
	if v == nil {
		return nil
	}

	m := t.values
	for i, name := range chain[:len(chain)-1] {
		next, ok := m[name.Key()]
		if !ok {
			sub := make(map[string]any)
			m[name.Key()] = sub
			m = sub
			continue
		}

		sub, ok := next.(map[string]any)
		if !ok {
			path := chain[:i+1].Key()
			return ConflictError{Key: path, Source: t.source, Previous: t.origins[path]}
		}
		m = sub
	}

	path := chain.Key()
	last := chain[len(chain)-1].Key()
	if section, ok := m[last].(map[string]any); ok && len(section) > 0 {
		return ConflictError{Key: path, Source: t.source, Previous: t.originUnder(path)}
	}

	m[last] = v
	t.origins[path] = t.source
	return nil
}

// originUnder returns the source of the first key, in sorted order,
// nested under prefix.
func (t *tree) originUnder(prefix string) string {
	keys := make([]string, 0)
	for k := range t.origins {
		if strings.HasPrefix(k, prefix+".") {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return ""
	}
	sort.Strings(keys)
	return t.origins[keys[0]]
}

func flattenKey(chain key.Chain, k key.Keyer) (key.Chain, error) {
	switch x := k.(type) {
	case key.Name:
		return append(chain, x), nil
	case key.Chain:
		var err error
		for _, sub := range x {
			chain, err = flattenKey(chain, sub)
			if err != nil {
				return nil, err
			}
		}
		return chain, nil
	default:
		return nil, UnknownKeyerError{key: k}
	}
}
