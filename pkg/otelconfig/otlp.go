// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package otelconfig

import (
	"context"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// OTLPConfig exports spans to an OTLP collector over gRPC.
type OTLPConfig struct {
	Common

	// gRPC target string which is passed to grpc.DialContext()
	Target string `config:"target"`
}

// OTLPOption configures OTLPConfig.
type OTLPOption interface {
	ApplyOTLP(*OTLPConfig)
}

type otlpOptionFunc func(*OTLPConfig)

func (f otlpOptionFunc) ApplyOTLP(cfg *OTLPConfig) {
	f(cfg)
}

// Target sets the collector's gRPC target.
func Target(target string) OTLPOption {
	return otlpOptionFunc(func(oc *OTLPConfig) {
		oc.Target = target
	})
}

// OTLP returns an Initializer which exports to a collector.
func OTLP(opts ...OTLPOption) Initializer {
	c := OTLPConfig{
		Common: Common{SampleRatio: 1},
	}
	for _, opt := range opts {
		opt.ApplyOTLP(&c)
	}
	return c
}

// Init implements Initializer interface.
func (cfg OTLPConfig) Init(ctx context.Context) (trace.TracerProvider, error) {
	res, err := cfg.resource(ctx)
	if err != nil {
		return nil, err
	}

	conn, err := grpc.DialContext(
		ctx,
		cfg.Target,
		// Note the use of insecure transport here. TLS is recommended in production.
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, err
	}

	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}

	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(cfg.sampler()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp),
	)
	return tp, nil
}
