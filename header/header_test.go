// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package header

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFields() List {
	return List{
		{Name: []byte("Host"), Value: []byte("example.com")},
		{Name: []byte("Content-Type"), Value: []byte("application/json")},
		{Name: []byte("Authorization"), Value: []byte("Bearer abc")},
		{Name: []byte("X-Dup"), Value: []byte("first")},
		{Name: []byte("x-dup"), Value: []byte("second")},
	}
}

func TestCache_Lookup(t *testing.T) {
	t.Run("will find a header", func(t *testing.T) {
		t.Run("if the name differs only by case", func(t *testing.T) {
			c := NewCache(testFields())

			v, ok := c.Lookup("AUTHORIZATION")
			require.True(t, ok)
			assert.Equal(t, []byte("Bearer abc"), v)
		})

		t.Run("if it was memoized while searching for another header", func(t *testing.T) {
			c := NewCache(testFields())

			_, ok := c.Lookup("authorization")
			require.True(t, ok)
			scanned := c.Scanned()

			v, ok := c.Lookup("content-type")
			require.True(t, ok)
			assert.Equal(t, []byte("application/json"), v)
			assert.Equal(t, scanned, c.Scanned())
		})
	})

	t.Run("will not rescan the header list", func(t *testing.T) {
		t.Run("if the same key is looked up twice", func(t *testing.T) {
			c := NewCache(testFields())

			first, ok := c.Lookup("Content-Type")
			require.True(t, ok)
			scanned := c.Scanned()

			second, ok := c.Lookup("content-type")
			require.True(t, ok)
			assert.Equal(t, first, second)
			assert.Equal(t, scanned, c.Scanned())
		})

		t.Run("if a missing key is looked up twice", func(t *testing.T) {
			c := NewCache(testFields())

			_, ok := c.Lookup("x-missing")
			require.False(t, ok)
			assert.Equal(t, len(testFields()), c.Scanned())

			_, ok = c.Lookup("x-missing")
			require.False(t, ok)
			assert.Equal(t, len(testFields()), c.Scanned())
		})
	})

	t.Run("will return the first occurrence", func(t *testing.T) {
		t.Run("if a header is repeated", func(t *testing.T) {
			c := NewCache(testFields())

			_, _ = c.Lookup("x-missing")

			v, ok := c.Lookup("x-dup")
			require.True(t, ok)
			assert.Equal(t, []byte("first"), v)
		})
	})
}

func TestCache_LookupString(t *testing.T) {
	t.Run("will decode the value as latin-1", func(t *testing.T) {
		c := NewCache(List{{Name: []byte("x-name"), Value: []byte{'c', 'a', 'f', 0xe9}}})

		v, ok := c.LookupString("x-name")
		require.True(t, ok)
		assert.Equal(t, "café", v)
	})
}

func TestEncodeLatin1(t *testing.T) {
	testCases := []struct {
		name       string
		value      string
		expect     []byte
		expectErr  bool
		expectRune rune
	}{
		{
			name:   "ascii",
			value:  "text/plain",
			expect: []byte("text/plain"),
		},
		{
			name:   "latin-1 supplement",
			value:  "café",
			expect: []byte{'c', 'a', 'f', 0xe9},
		},
		{
			name:       "outside latin-1",
			value:      "snow ☃",
			expectErr:  true,
			expectRune: '☃',
		},
		{
			name:       "euro sign after latin-1 characters",
			value:      "café€",
			expectErr:  true,
			expectRune: '€',
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			b, err := EncodeLatin1(tc.value)
			if tc.expectErr {
				var nerr NonLatin1Error
				require.ErrorAs(t, err, &nerr)
				assert.Equal(t, tc.expectRune, nerr.Rune)
				assert.Error(t, errors.Unwrap(nerr))
				assert.Nil(t, b)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expect, b)
		})
	}
}

func TestDecodeLatin1(t *testing.T) {
	t.Run("will map every byte to the rune of the same value", func(t *testing.T) {
		s := DecodeLatin1([]byte{'c', 'a', 'f', 0xe9, 0xff})

		assert.Equal(t, "café\u00ff", s)
	})
}

func TestMap_Encode(t *testing.T) {
	t.Run("will emit fields in sorted order", func(t *testing.T) {
		l, err := Map{"X-B": "2", "X-A": "1"}.Encode()
		require.NoError(t, err)

		assert.Equal(t, List{
			{Name: []byte("X-A"), Value: []byte("1")},
			{Name: []byte("X-B"), Value: []byte("2")},
		}, l)
	})

	t.Run("will return an error", func(t *testing.T) {
		t.Run("if a value is not latin-1", func(t *testing.T) {
			_, err := Map{"X-A": "☃"}.Encode()
			require.Error(t, err)
		})
	})
}

func TestList_Without(t *testing.T) {
	l := List{
		{Name: []byte("Content-Length"), Value: []byte("3")},
		{Name: []byte("X-A"), Value: []byte("1")},
	}

	out := l.Without("content-length")
	assert.False(t, out.Has("Content-Length"))
	assert.True(t, out.Has("x-a"))
	assert.Len(t, l, 2)
}
