// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package header provides the byte oriented header list delivered by a gateway
// along with a lazily populated lookup cache and Latin-1 helpers for moving
// between wire bytes and Go strings.
package header

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// Field is a single header as it appears on the wire.
type Field struct {
	Name  []byte
	Value []byte
}

// List is an ordered list of header fields. A List received from a
// gateway must be treated as immutable.
type List []Field

// Map is the caller facing form of outbound headers.
type Map map[string]string

// Encode converts m into a List with every name and value encoded as Latin-1.
// Fields are emitted in sorted name order so the wire form is deterministic.
func (m Map) Encode() (List, error) {
	if len(m) == 0 {
		return nil, nil
	}

	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)

	l := make(List, 0, len(m))
	for _, name := range names {
		f, err := NewField(name, m[name])
		if err != nil {
			return nil, err
		}
		l = append(l, f)
	}
	return l, nil
}

// NewField Latin-1 encodes name and value into a Field.
func NewField(name, value string) (Field, error) {
	n, err := EncodeLatin1(name)
	if err != nil {
		return Field{}, err
	}
	v, err := EncodeLatin1(value)
	if err != nil {
		return Field{}, err
	}
	return Field{Name: n, Value: v}, nil
}

// Has reports whether l contains a field with the given name, ignoring case.
func (l List) Has(name string) bool {
	for _, f := range l {
		if strings.EqualFold(string(f.Name), name) {
			return true
		}
	}
	return false
}

// Without returns a copy of l with every field named name removed, ignoring case.
func (l List) Without(name string) List {
	out := make(List, 0, len(l))
	for _, f := range l {
		if strings.EqualFold(string(f.Name), name) {
			continue
		}
		out = append(out, f)
	}
	return out
}

// Cache memoizes header lookups over an immutable List.
//
// The List is walked at most once over the lifetime of the Cache. Each lookup
// that misses the memo resumes the walk where the previous one stopped and
// memoizes every field it passes, not just the one being searched for. When
// a name appears more than once the first occurrence wins.
//
// A Cache is owned by a single connection and is not safe for concurrent use.
type Cache struct {
	fields List
	memo   map[string][]byte
	cursor int
}

// NewCache returns a Cache over the given fields.
func NewCache(fields List) *Cache {
	return &Cache{
		fields: fields,
		memo:   make(map[string][]byte, len(fields)),
	}
}

// Lookup returns the value of the named header. Names are matched case-insensitively.
func (c *Cache) Lookup(name string) ([]byte, bool) {
	key := strings.ToLower(name)
	if v, ok := c.memo[key]; ok {
		return v, true
	}
	return c.scanUntil(key)
}

// LookupString returns the Latin-1 decoded value of the named header.
func (c *Cache) LookupString(name string) (string, bool) {
	v, ok := c.Lookup(name)
	if !ok {
		return "", false
	}
	return DecodeLatin1(v), true
}

// Scanned reports how many fields have been visited so far.
func (c *Cache) Scanned() int {
	return c.cursor
}

// Fields returns the underlying List.
func (c *Cache) Fields() List {
	return c.fields
}

func (c *Cache) scanUntil(key string) ([]byte, bool) {
	for c.cursor < len(c.fields) {
		f := c.fields[c.cursor]
		c.cursor++

		name := string(bytes.ToLower(f.Name))
		if _, seen := c.memo[name]; !seen {
			c.memo[name] = f.Value
		}
		if name == key {
			return c.memo[name], true
		}
	}
	return nil, false
}

// NonLatin1Error is returned when a string cannot be represented in Latin-1.
type NonLatin1Error struct {
	Value string
	Rune  rune
	Cause error
}

// Error implements the [error] interface.
func (e NonLatin1Error) Error() string {
	return fmt.Sprintf("header value contains non latin-1 character %q: %q", e.Rune, e.Value)
}

// Unwrap returns the encoder error.
func (e NonLatin1Error) Unwrap() error {
	return e.Cause
}

// EncodeLatin1 encodes s as Latin-1. Characters outside of Latin-1 are
// rejected instead of being truncated.
func EncodeLatin1(s string) ([]byte, error) {
	b, err := charmap.ISO8859_1.NewEncoder().Bytes([]byte(s))
	if err == nil {
		return b, nil
	}

	nerr := NonLatin1Error{Value: s, Rune: utf8.RuneError, Cause: err}
	for _, r := range s {
		if _, ok := charmap.ISO8859_1.EncodeRune(r); !ok {
			nerr.Rune = r
			break
		}
	}
	return nil, nerr
}

// DecodeLatin1 decodes Latin-1 bytes into a string. Every byte is a valid
// Latin-1 character so decoding never fails.
func DecodeLatin1(b []byte) string {
	var sb strings.Builder
	sb.Grow(len(b))
	for _, c := range b {
		sb.WriteRune(charmap.ISO8859_1.DecodeByte(c))
	}
	return sb.String()
}
