// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/z5labs/conduit/auth"
	"github.com/z5labs/conduit/config"
	"github.com/z5labs/conduit/gateway/httpgw"
	"github.com/z5labs/conduit/gateway/wsgw"
	"github.com/z5labs/conduit/pkg/health"
	"github.com/z5labs/conduit/pkg/maskslog"
	"github.com/z5labs/conduit/pkg/otelconfig"
	"github.com/z5labs/conduit/pkg/slogfield"
	"github.com/z5labs/conduit/request"
	"github.com/z5labs/conduit/server"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// EnvPrefix prefixes every environment variable read as config.
const EnvPrefix = "CONDUIT"

// Config is the configuration of conduit-echo.
type Config struct {
	Log struct {
		Level slog.Level `config:"level"`
	} `config:"log"`

	HTTP struct {
		Addr            string        `config:"addr"`
		ShutdownTimeout time.Duration `config:"shutdown_timeout"`
		MaxBodySize     int64         `config:"max_body_size"`
		ChunkSize       int           `config:"chunk_size"`
	} `config:"http"`

	Websocket struct {
		ReadLimit    int64         `config:"read_limit"`
		WriteTimeout time.Duration `config:"write_timeout"`
	} `config:"websocket"`

	Auth struct {
		// Tokens maps bearer tokens to the subject they authenticate.
		Tokens map[string]string `config:"tokens"`
	} `config:"auth"`

	Tracing struct {
		// Exporter is one of none, stdout or otlp.
		Exporter    string  `config:"exporter"`
		Target      string  `config:"target"`
		ServiceName string  `config:"service_name"`
		SampleRatio float64 `config:"sample_ratio"`
	} `config:"tracing"`

	// sources lists, per top level section, the sources its values were read from.
	sources map[string][]string
}

var defaults = config.Map{
	"log": map[string]any{
		"level": "info",
	},
	"http": map[string]any{
		"addr":             ":8080",
		"shutdown_timeout": "10s",
		"chunk_size":       httpgw.DefaultChunkSize,
	},
	"websocket": map[string]any{
		"write_timeout": wsgw.DefaultWriteTimeout.String(),
	},
	"tracing": map[string]any{
		"exporter":     "none",
		"service_name": "conduit-echo",
		"sample_ratio": 1.0,
	},
}

func newCommand() *cobra.Command {
	var cfgPath string

	cmd := &cobra.Command{
		Use:          "conduit-echo",
		Short:        "Serve echo endpoints over HTTP and websocket",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cfgPath)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, cmd.ErrOrStderr())
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to a YAML config file")

	return cmd
}

// loadConfig merges the defaults, the optional YAML file at path and the
// environment, in that order of precedence from lowest to highest.
func loadConfig(path string) (Config, error) {
	srcs := []config.Source{config.Named("defaults", defaults)}
	if path != "" {
		srcs = append(srcs, config.Named(path, config.FromYaml(config.NewFileReader(path))))
	}
	srcs = append(srcs, config.FromEnv(EnvPrefix))

	m, err := config.Read(srcs...)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	err = m.Unmarshal(&cfg)
	if err != nil {
		return Config{}, err
	}
	cfg.sources = sectionSources(m)
	return cfg, nil
}

// sectionSources groups sources by top level section so no nested key,
// which for auth.tokens is a credential, ends up in the logs.
func sectionSources(m *config.Manager) map[string][]string {
	sources := make(map[string][]string)
	for _, k := range m.Keys() {
		origin, _ := m.Origin(k)
		section, _, _ := strings.Cut(k, ".")
		if !slices.Contains(sources[section], origin) {
			sources[section] = append(sources[section], origin)
		}
	}
	return sources
}

// UnknownExporterError is returned when the tracing exporter is not supported.
type UnknownExporterError struct {
	Exporter string
}

// Error implements the error interface.
func (e UnknownExporterError) Error() string {
	return fmt.Sprintf("unknown tracing exporter: %q", e.Exporter)
}

func tracing(cfg Config, out io.Writer) (otelconfig.Initializer, error) {
	common := []otelconfig.CommonOption{
		otelconfig.ServiceName(cfg.Tracing.ServiceName),
		otelconfig.SampleRatio(cfg.Tracing.SampleRatio),
	}

	switch cfg.Tracing.Exporter {
	case "", "none":
		return otelconfig.Noop, nil
	case "stdout":
		opts := []otelconfig.LocalOption{otelconfig.Output(out)}
		for _, opt := range common {
			opts = append(opts, opt)
		}
		return otelconfig.Local(opts...), nil
	case "otlp":
		opts := []otelconfig.OTLPOption{otelconfig.Target(cfg.Tracing.Target)}
		for _, opt := range common {
			opts = append(opts, opt)
		}
		return otelconfig.OTLP(opts...), nil
	default:
		return nil, UnknownExporterError{Exporter: cfg.Tracing.Exporter}
	}
}

func run(ctx context.Context, cfg Config, out io.Writer) error {
	logHandler := maskslog.NewHandler(
		slog.NewJSONHandler(out, &slog.HandlerOptions{Level: cfg.Log.Level}),
		maskslog.Credentials(),
	)
	log := slog.New(logHandler)
	log.DebugContext(
		ctx,
		"loaded config",
		slog.Any("sources", cfg.sources),
		slog.Group("http", slog.String("addr", cfg.HTTP.Addr)),
		slog.Group("auth", slog.Any("tokens", cfg.Auth.Tokens)),
		slog.Group("tracing", slog.String("exporter", cfg.Tracing.Exporter)),
	)

	initializer, err := tracing(cfg, out)
	if err != nil {
		log.ErrorContext(ctx, "failed to configure tracing", slogfield.Error(err))
		return err
	}
	tp, err := initializer.Init(ctx)
	if err != nil {
		log.ErrorContext(ctx, "failed to initialize tracing", slogfield.Error(err))
		return err
	}
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	defer func() {
		s, ok := tp.(interface{ Shutdown(context.Context) error })
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()

		err := s.Shutdown(ctx)
		if err != nil {
			log.Error("failed to flush traces", slogfield.Error(err))
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	opts := []server.RuntimeOption{
		server.ListenOn(cfg.HTTP.Addr),
		server.RuntimeLogHandler(logHandler),
		server.ShutdownTimeout(cfg.HTTP.ShutdownTimeout),
		server.ReadinessCheck(authReadiness(cfg)),
	}
	if len(cfg.Auth.Tokens) == 0 {
		log.WarnContext(ctx, "no auth tokens configured, every connection will be rejected")
	}

	eps := endpoints(cfg, logHandler, reg)
	patterns := make([]string, 0, len(eps))
	for pattern := range eps {
		patterns = append(patterns, pattern)
	}
	sort.Strings(patterns)
	for _, pattern := range patterns {
		opts = append(opts, server.Handle(pattern, eps[pattern]))
	}

	return server.NewRuntime(opts...).Run(ctx)
}

// authReadiness is healthy once at least one bearer token can be verified.
func authReadiness(cfg Config) *health.Binary {
	ready := &health.Binary{}
	ready.Set(len(cfg.Auth.Tokens) > 0)
	return ready
}

func endpoints(cfg Config, logHandler slog.Handler, reg *prometheus.Registry) map[string]http.Handler {
	opts := []server.Option{
		server.LogHandler(logHandler),
		server.Verifier(auth.BearerTokens(cfg.Auth.Tokens)),
		server.Registerer(reg),
		server.RequestOptions(request.WithMaxBodySize(cfg.HTTP.MaxBodySize)),
		server.WebsocketGatewayOptions(
			wsgw.ReadLimit(cfg.Websocket.ReadLimit),
			wsgw.WriteTimeout(cfg.Websocket.WriteTimeout),
		),
	}
	if cfg.HTTP.ChunkSize > 0 {
		opts = append(opts, server.HTTPGatewayOptions(httpgw.ChunkSize(cfg.HTTP.ChunkSize)))
	}

	return map[string]http.Handler{
		"/echo":    server.NewHandler(echoHTTP, opts...),
		"/greet":   server.NewHandler(greet, opts...),
		"/ws":      server.NewHandler(nil, append(opts, server.Websocket(echoWebsocket))...),
		"/metrics": promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}
}
