// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package config

import (
	"errors"
	"io"
	"net/netip"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/z5labs/conduit/config/key"

	"github.com/stretchr/testify/assert"
)

type storeFunc func(key.Keyer, any) error

func (f storeFunc) Set(k key.Keyer, v any) error {
	return f(k, v)
}

type unknownKeyer string

func (k unknownKeyer) Key() string {
	return string(k)
}

type closeTracker struct {
	io.Reader
	closed bool
}

func (c *closeTracker) Close() error {
	c.closed = true
	return nil
}

type serverConfig struct {
	HTTP struct {
		Addr            string        `config:"addr"`
		Port            int           `config:"port"`
		ShutdownTimeout time.Duration `config:"shutdown_timeout"`
	} `config:"http"`
	Trusted netip.Addr `config:"trusted"`
	Debug   bool       `config:"debug"`
}

func TestRead(t *testing.T) {
	t.Run("will let later sources override earlier ones", func(t *testing.T) {
		env := Env{
			prefix: "CONDUIT",
			environ: func() []string {
				return []string{
					"CONDUIT_HTTP__PORT=9090",
					"CONDUIT_DEBUG=true",
					"OTHER_HTTP__PORT=1",
				}
			},
		}
		yml := FromYaml(strings.NewReader(`
http:
  addr: 0.0.0.0
  port: 8080
  shutdown_timeout: 5s
trusted: 10.0.0.1
`))

		m, err := Read(yml, env)
		if !assert.Nil(t, err) {
			return
		}

		var cfg serverConfig
		err = m.Unmarshal(&cfg)
		if !assert.Nil(t, err) {
			return
		}
		if !assert.Equal(t, "0.0.0.0", cfg.HTTP.Addr) {
			return
		}
		if !assert.Equal(t, 9090, cfg.HTTP.Port) {
			return
		}
		if !assert.Equal(t, 5*time.Second, cfg.HTTP.ShutdownTimeout) {
			return
		}
		if !assert.Equal(t, netip.MustParseAddr("10.0.0.1"), cfg.Trusted) {
			return
		}
		if !assert.True(t, cfg.Debug) {
			return
		}
	})

	t.Run("will return an empty config", func(t *testing.T) {
		t.Run("if no sources are given", func(t *testing.T) {
			m, err := Read()
			if !assert.Nil(t, err) {
				return
			}

			var cfg serverConfig
			err = m.Unmarshal(&cfg)
			if !assert.Nil(t, err) {
				return
			}
			if !assert.Zero(t, cfg.HTTP.Port) {
				return
			}
		})
	})

	t.Run("will return an error", func(t *testing.T) {
		t.Run("if a source fails to apply", func(t *testing.T) {
			applyErr := errors.New("failed to apply")
			src := SourceFunc(func(Store) error {
				return applyErr
			})

			_, err := Read(src)
			if !assert.ErrorIs(t, err, applyErr) {
				return
			}
		})

		t.Run("if a duration can not be parsed", func(t *testing.T) {
			m, err := Read(Map{"http": map[string]any{"shutdown_timeout": "soon"}})
			if !assert.Nil(t, err) {
				return
			}

			var cfg serverConfig
			err = m.Unmarshal(&cfg)

			var terr TypeCoercionError
			if !assert.ErrorAs(t, err, &terr) {
				return
			}
			if !assert.NotEmpty(t, terr.Error()) {
				return
			}
		})
	})
}

func TestMap_Apply(t *testing.T) {
	t.Run("will set key.Chains in sorted order for", func(t *testing.T) {
		testCases := []struct {
			Name   string
			M      Map
			Chains []key.Chain
		}{
			{
				Name:   "single top level key",
				M:      Map{"hello": "world"},
				Chains: []key.Chain{{key.Name("hello")}},
			},
			{
				Name: "multiple nested keys",
				M: Map{
					"hello": map[string]any{
						"good":  "bye",
						"alice": "hi bob",
					},
				},
				Chains: []key.Chain{
					{key.Name("hello"), key.Name("alice")},
					{key.Name("hello"), key.Name("good")},
				},
			},
			{
				Name: "nested Map values",
				M: Map{
					"http": Map{"port": 8080},
				},
				Chains: []key.Chain{
					{key.Name("http"), key.Name("port")},
				},
			},
		}

		for _, testCase := range testCases {
			t.Run(testCase.Name, func(t *testing.T) {
				chains := make([]key.Chain, 0, len(testCase.Chains))
				store := storeFunc(func(k key.Keyer, a any) error {
					kc, ok := k.(key.Chain)
					if !ok {
						return errors.New("should only set using a key chain")
					}
					chains = append(chains, kc)
					return nil
				})

				err := testCase.M.Apply(store)
				if !assert.Nil(t, err) {
					return
				}

				if !assert.Equal(t, testCase.Chains, chains) {
					return
				}
			})
		}
	})
}

func TestTree_Set(t *testing.T) {
	t.Run("will record the source of each value", func(t *testing.T) {
		defaults := Map{"http": map[string]any{"addr": ":8080", "port": 8080}}
		env := Env{
			prefix: "CONDUIT",
			environ: func() []string {
				return []string{"CONDUIT_HTTP__PORT=9090"}
			},
		}

		m, err := Read(Named("defaults", defaults), env, Map{"debug": true})
		if !assert.Nil(t, err) {
			return
		}
		if !assert.Equal(t, []string{"debug", "http.addr", "http.port"}, m.Keys()) {
			return
		}

		origin, ok := m.Origin("http.addr")
		if !assert.True(t, ok) {
			return
		}
		if !assert.Equal(t, "defaults", origin) {
			return
		}

		origin, _ = m.Origin("http.port")
		if !assert.Equal(t, "env CONDUIT_*", origin) {
			return
		}

		origin, _ = m.Origin("debug")
		if !assert.Equal(t, "source 2", origin) {
			return
		}

		_, ok = m.Origin("http")
		if !assert.False(t, ok) {
			return
		}
	})

	t.Run("will keep earlier values", func(t *testing.T) {
		t.Run("if a later source sets nil", func(t *testing.T) {
			m, err := Read(
				Map{"http": map[string]any{"addr": ":8080"}},
				FromYaml(strings.NewReader("http:\n")),
			)
			if !assert.Nil(t, err) {
				return
			}

			var cfg serverConfig
			err = m.Unmarshal(&cfg)
			if !assert.Nil(t, err) {
				return
			}
			if !assert.Equal(t, ":8080", cfg.HTTP.Addr) {
				return
			}
		})
	})

	t.Run("will return an error", func(t *testing.T) {
		t.Run("if an empty key.Chain is used", func(t *testing.T) {
			store := newTree()
			err := store.Set(key.Chain{}, "world")

			var ierr EmptyKeyChainError
			if !assert.ErrorAs(t, err, &ierr) {
				return
			}
		})

		t.Run("if an unknown key.Keyer is used", func(t *testing.T) {
			store := newTree()
			err := store.Set(key.Chain{key.Name("a"), unknownKeyer("b")}, "world")

			var uerr UnknownKeyerError
			if !assert.ErrorAs(t, err, &uerr) {
				return
			}
		})

		t.Run("if a value is nested under a plain value", func(t *testing.T) {
			_, err := Read(
				Named("defaults", Map{"http": "disabled"}),
				Named("override", Map{"http": map[string]any{"addr": ":9000"}}),
			)

			var cerr ConflictError
			if !assert.ErrorAs(t, err, &cerr) {
				return
			}
			if !assert.Equal(t, ConflictError{Key: "http", Source: "override", Previous: "defaults"}, cerr) {
				return
			}
		})

		t.Run("if a plain value replaces a section", func(t *testing.T) {
			env := Env{
				prefix: "CONDUIT",
				environ: func() []string {
					return []string{"CONDUIT_HTTP=off"}
				},
			}

			_, err := Read(Named("defaults", Map{"http": map[string]any{"addr": ":8080"}}), env)

			var cerr ConflictError
			if !assert.ErrorAs(t, err, &cerr) {
				return
			}
			if !assert.Equal(t, ConflictError{Key: "http", Source: "env CONDUIT_*", Previous: "defaults"}, cerr) {
				return
			}
		})
	})
}

func TestEnv_Apply(t *testing.T) {
	t.Run("will only apply variables with the prefix", func(t *testing.T) {
		env := Env{
			prefix: "app",
			environ: func() []string {
				return []string{
					"APP_WEBSOCKET__READ_LIMIT=1024",
					"APPLE=1",
					"HOME=/root",
					"APP_=ignored",
					"broken",
				}
			},
		}

		store := newTree()
		err := env.Apply(store)
		if !assert.Nil(t, err) {
			return
		}
		if !assert.Equal(t, map[string]any{"websocket": map[string]any{"read_limit": "1024"}}, store.values) {
			return
		}
	})
}

func TestYaml_Apply(t *testing.T) {
	t.Run("will close the reader", func(t *testing.T) {
		r := &closeTracker{Reader: strings.NewReader("a: 1")}

		err := FromYaml(r).Apply(newTree())
		if !assert.Nil(t, err) {
			return
		}
		if !assert.True(t, r.closed) {
			return
		}
	})

	t.Run("will return InvalidYamlError", func(t *testing.T) {
		t.Run("if the document is not yaml", func(t *testing.T) {
			err := FromYaml(strings.NewReader("a: [")).Apply(newTree())

			var yerr InvalidYamlError
			if !assert.ErrorAs(t, err, &yerr) {
				return
			}
			if !assert.NotEmpty(t, yerr.Error()) {
				return
			}
		})
	})
}

func TestFileReader(t *testing.T) {
	t.Run("will read the file lazily", func(t *testing.T) {
		fsys := fstest.MapFS{
			"conduit.yaml": &fstest.MapFile{Data: []byte("http:\n  port: 8081\n")},
		}

		m, err := Read(FromYaml(NewFSFileReader(fsys, "conduit.yaml")))
		if !assert.Nil(t, err) {
			return
		}

		var cfg serverConfig
		err = m.Unmarshal(&cfg)
		if !assert.Nil(t, err) {
			return
		}
		if !assert.Equal(t, 8081, cfg.HTTP.Port) {
			return
		}
	})

	t.Run("will return an error", func(t *testing.T) {
		t.Run("if the file does not exist", func(t *testing.T) {
			_, err := Read(FromYaml(NewFSFileReader(fstest.MapFS{}, "missing.yaml")))
			if !assert.Error(t, err) {
				return
			}
		})
	})
}
