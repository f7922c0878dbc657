// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package server

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Connection outcomes reported by the conduit_connections_total counter.
const (
	OutcomeOK               = "ok"
	OutcomeConnectionClosed = "connection_closed"
	OutcomeBadRequest       = "bad_request"
	OutcomeForbidden        = "forbidden"
	OutcomeInternal         = "internal"
	OutcomeResponse         = "response"
)

type metrics struct {
	connections *prometheus.CounterVec
	active      *prometheus.GaugeVec
	duration    *prometheus.HistogramVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		connections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "conduit",
				Name:      "connections_total",
				Help:      "Connections handled, by protocol and outcome.",
			},
			[]string{"protocol", "outcome"},
		),
		active: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "conduit",
				Name:      "active_connections",
				Help:      "Connections currently being handled.",
			},
			[]string{"protocol"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "conduit",
				Name:      "handler_duration_seconds",
				Help:      "Time spent handling a connection.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"protocol"},
		),
	}
	if reg == nil {
		return m
	}

	m.connections = register(reg, m.connections)
	m.active = register(reg, m.active)
	m.duration = register(reg, m.duration)
	return m
}

// register reuses an identical collector if one was already registered,
// which happens when more than one Handler shares a registry.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	err := reg.Register(c)
	if err == nil {
		return c
	}

	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(T); ok {
			return existing
		}
	}
	panic(err)
}
