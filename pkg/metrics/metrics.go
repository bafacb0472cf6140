// Package metrics exposes the collector's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts gateway requests by logical operation and
	// attempt outcome.
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "querylens",
		Subsystem: "gateway",
		Name:      "requests_total",
		Help:      "Gateway requests by operation and outcome",
	}, []string{"operation", "outcome"})

	// RetriesTotal counts retried gateway requests by operation.
	RetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "querylens",
		Subsystem: "gateway",
		Name:      "retries_total",
		Help:      "Retried gateway requests by operation",
	}, []string{"operation"})

	// RecordsTotal counts records handled per collection pass by entity
	// type and disposition (inserted, updated, skipped, failed).
	RecordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "querylens",
		Subsystem: "collector",
		Name:      "records_total",
		Help:      "Records handled by entity type and disposition",
	}, []string{"entity", "disposition"})

	// PassDuration observes end-to-end collection pass duration.
	PassDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "querylens",
		Subsystem: "collector",
		Name:      "pass_duration_seconds",
		Help:      "End-to-end collection pass duration",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
	})

	// PassesTotal counts collection passes by result.
	PassesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "querylens",
		Subsystem: "collector",
		Name:      "passes_total",
		Help:      "Collection passes by result",
	}, []string{"result"})
)
