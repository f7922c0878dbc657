// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package otelconfig builds OpenTelemetry tracer providers.
package otelconfig

import (
	"context"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// Common holds the settings shared by every Initializer.
type Common struct {
	ServiceName string `config:"service_name"`

	// SampleRatio is the fraction of root traces recorded. Child spans
	// follow their parent's decision.
	SampleRatio float64 `config:"sample_ratio"`
}

// CommonOption configures Common for any Initializer.
type CommonOption interface {
	LocalOption
	OTLPOption
}

type commonOptionFunc func(*Common)

func (f commonOptionFunc) ApplyOTLP(cfg *OTLPConfig) {
	f(&cfg.Common)
}

func (f commonOptionFunc) ApplyLocal(cfg *LocalConfig) {
	f(&cfg.Common)
}

// ServiceName sets the service.name resource attribute.
func ServiceName(name string) CommonOption {
	return commonOptionFunc(func(c *Common) {
		c.ServiceName = name
	})
}

// SampleRatio sets [Common.SampleRatio].
func SampleRatio(r float64) CommonOption {
	return commonOptionFunc(func(c *Common) {
		c.SampleRatio = r
	})
}

func (c Common) resource(ctx context.Context) (*resource.Resource, error) {
	return resource.New(
		ctx,
		resource.WithTelemetrySDK(),
		resource.WithAttributes(
			semconv.ServiceName(c.ServiceName),
		),
	)
}

func (c Common) sampler() sdktrace.Sampler {
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(c.SampleRatio))
}

// Initializer creates a TracerProvider.
type Initializer interface {
	Init(context.Context) (trace.TracerProvider, error)
}

// Noop returns the global TracerProvider unchanged.
var Noop = noopConfiger{}

type noopConfiger struct{}

func (noopConfiger) Init(_ context.Context) (trace.TracerProvider, error) {
	return otel.GetTracerProvider(), nil
}

// LocalConfig writes spans as JSON to Out.
type LocalConfig struct {
	Common

	Out io.Writer
}

// LocalOption configures LocalConfig.
type LocalOption interface {
	ApplyLocal(*LocalConfig)
}

type localOptionFunc func(*LocalConfig)

func (f localOptionFunc) ApplyLocal(cfg *LocalConfig) {
	f(cfg)
}

// Output sets where spans are written. Default is os.Stdout.
func Output(w io.Writer) LocalOption {
	return localOptionFunc(func(lc *LocalConfig) {
		lc.Out = w
	})
}

// Local returns an Initializer which writes spans to stdout.
func Local(opts ...LocalOption) Initializer {
	cfg := LocalConfig{
		Common: Common{SampleRatio: 1},
		Out:    os.Stdout,
	}
	for _, opt := range opts {
		opt.ApplyLocal(&cfg)
	}
	return cfg
}

// Init implements Initializer interface.
func (cfg LocalConfig) Init(ctx context.Context) (trace.TracerProvider, error) {
	exporter, err := stdouttrace.New(
		stdouttrace.WithWriter(cfg.Out),
	)
	if err != nil {
		return nil, err
	}

	res, err := cfg.resource(ctx)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(cfg.sampler()),
	)
	return tp, nil
}
