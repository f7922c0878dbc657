// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package config

import (
	"os"
	"strings"

	"github.com/z5labs/conduit/config/key"
)

// EnvSeparator separates nested key names in environment variable names.
const EnvSeparator = "__"

// Env represents a Source where its underlying values
// are extracted from environment variables.
type Env struct {
	prefix  string
	environ func() []string
}

// FromEnv returns a Source which will apply its config from the environment
// variables whose name starts with prefix followed by an underscore. The
// remainder of the name is lower cased and split on [EnvSeparator], so with
// the prefix CONDUIT the variable CONDUIT_HTTP__PORT sets http.port.
func FromEnv(prefix string) Env {
	return Env{
		prefix:  prefix,
		environ: os.Environ,
	}
}

// Name implements the [NamedSource] interface.
func (src Env) Name() string {
	return "env " + strings.ToUpper(src.prefix) + "_*"
}

// Apply implements the Source interface.
func (src Env) Apply(store Store) error {
	prefix := strings.ToUpper(src.prefix) + "_"
	for _, pair := range src.environ() {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		name, ok := strings.CutPrefix(k, prefix)
		if !ok {
			continue
		}

		chain := key.Split(strings.ToLower(name), EnvSeparator)
		if len(chain) == 0 {
			continue
		}
		err := store.Set(chain, v)
		if err != nil {
			return err
		}
	}
	return nil
}
