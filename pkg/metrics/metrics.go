// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TurnDuration tracks end-to-end chat turn duration.
	TurnDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "planner_turn_duration_seconds",
			Help:    "Chat turn duration in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"status"},
	)

	// TurnsTotal tracks total chat turns processed.
	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "planner_turns_total",
			Help: "Total chat turns processed",
		},
		[]string{"status"},
	)

	// ProviderDuration tracks generation provider call duration.
	ProviderDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "planner_provider_duration_seconds",
			Help:    "Generation provider call duration in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 20, 30, 60, 90},
		},
		[]string{"kind", "status"},
	)

	// ProviderItemsTotal tracks items returned by providers after truncation.
	ProviderItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "planner_provider_items_total",
			Help: "Generation items returned by providers",
		},
		[]string{"kind"},
	)

	// ExtractionDegradedTotal tracks turns that ran with a degraded extractor.
	ExtractionDegradedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "planner_extraction_degraded_total",
			Help: "Turns processed with degraded field extraction",
		},
	)

	// MemoryWriteFailuresTotal tracks non-fatal memory store write failures.
	MemoryWriteFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "planner_memory_write_failures_total",
			Help: "Memory store writes that failed after the turn completed",
		},
	)
)

// RecordTurn records metrics for one processed chat turn.
func RecordTurn(status string, seconds float64) {
	TurnDuration.WithLabelValues(status).Observe(seconds)
	TurnsTotal.WithLabelValues(status).Inc()
}

// RecordProvider records metrics for one provider dispatch.
func RecordProvider(kind, status string, seconds float64, items int) {
	ProviderDuration.WithLabelValues(kind, status).Observe(seconds)
	if items > 0 {
		ProviderItemsTotal.WithLabelValues(kind).Add(float64(items))
	}
}
