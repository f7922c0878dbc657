// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package config

import (
	"sort"

	"github.com/z5labs/conduit/config/key"
)

// Map is a nested map[string]any which implements the Source interface.
type Map map[string]any

// Apply implements the Source interface. Every leaf is set under the
// key.Chain of the names leading to it, visiting keys in sorted order so
// conflicts are always reported against the same key.
func (m Map) Apply(store Store) error {
	return applyLeaves(store, nil, m)
}

func applyLeaves(store Store, prefix key.Chain, m map[string]any) error {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		chain := append(prefix[:len(prefix):len(prefix)], key.Name(name))

		var err error
		switch x := m[name].(type) {
		case Map:
			err = applyLeaves(store, chain, x)
		case map[string]any:
			err = applyLeaves(store, chain, x)
		default:
			err = store.Set(chain, x)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
