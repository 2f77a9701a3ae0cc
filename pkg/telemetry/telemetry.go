// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package telemetry holds the counter/gauge emission points exporters
// consume, backed by prometheus/client_golang: one struct of
// pre-registered vectors, exposed via /metrics.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every counter/gauge this core emits. Construct once per
// process with NewMetrics and pass it down to the components that report.
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal      *prometheus.CounterVec
	RequestDuration     *prometheus.HistogramVec
	SessionsActive      prometheus.Gauge
	SessionsTotal       prometheus.Counter
	SecurityDenialsTotal *prometheus.CounterVec
	RateLimitDeniedTotal *prometheus.CounterVec
	DLQSize              prometheus.Gauge
	DLQRetriesTotal      prometheus.Counter
	WorkflowsActive      prometheus.Gauge
	WorkflowStepsTotal   *prometheus.CounterVec
	QueueDepth           prometheus.Gauge
}

// NewMetrics registers every collector against a fresh registry and
// returns the handle. Safe to call once per process; a second call
// returns an independent registry (useful in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mcpcore",
			Name:      "requests_total",
			Help:      "Total MCP requests dispatched, by method and outcome.",
		}, []string{"method", "outcome"}),

		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "mcpcore",
			Name:      "request_duration_seconds",
			Help:      "MCP request handler duration in seconds, by method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),

		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "mcpcore",
			Name:      "sessions_active",
			Help:      "Number of currently initialized sessions.",
		}),

		SessionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "mcpcore",
			Name:      "sessions_total",
			Help:      "Total sessions created since process start.",
		}),

		SecurityDenialsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mcpcore",
			Name:      "security_denials_total",
			Help:      "Security pipeline denials, by layer.",
		}, []string{"layer"}),

		RateLimitDeniedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mcpcore",
			Name:      "ratelimit_denied_total",
			Help:      "Rate-limit denials, by operation.",
		}, []string{"operation"}),

		DLQSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "mcpcore",
			Name:      "dlq_size",
			Help:      "Number of entries currently in the dead-letter queue.",
		}),

		DLQRetriesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "mcpcore",
			Name:      "dlq_retries_total",
			Help:      "Total DLQ retry attempts dispatched.",
		}),

		WorkflowsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "mcpcore",
			Name:      "workflows_active",
			Help:      "Number of workflow executions currently running.",
		}),

		WorkflowStepsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mcpcore",
			Name:      "workflow_steps_total",
			Help:      "Workflow step completions, by outcome.",
		}, []string{"outcome"}),

		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "mcpcore",
			Name:      "queue_depth",
			Help:      "Number of undelivered messages across all connections.",
		}),
	}
}

// Handler returns the /metrics HTTP handler exposing this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
