// Package metrics exposes the controller's prometheus instruments.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

var (
	// AggregateMetric is the weighted connection count of the last cycle
	AggregateMetric = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "seedbrake_aggregate_connections",
			Help: "Weighted sum of connections through enabled services in the last cycle",
		},
	)

	// Limited is 1 while limits are applied, 0 otherwise
	Limited = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "seedbrake_limited",
			Help: "1 while the controller is in limited mode",
		},
	)

	// HysteresisTimer tracks the on and off timers in seconds
	HysteresisTimer = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "seedbrake_hysteresis_timer_seconds",
			Help: "Accumulated hysteresis timer by direction",
		},
		[]string{"direction"},
	)

	// SourceConnections tracks the enabled connections per source
	SourceConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "seedbrake_source_connections",
			Help: "Connections through enabled services per source in the last cycle",
		},
		[]string{"source"},
	)

	// CollectionsTotal counts fetches per source and outcome
	CollectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seedbrake_collections_total",
			Help: "Total number of source fetches",
		},
		[]string{"source", "status"},
	)

	// CollectionDuration tracks fetch duration including retries
	CollectionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "seedbrake_collection_duration_seconds",
			Help:    "Duration of source fetches in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15},
		},
		[]string{"source"},
	)

	// ActuationsTotal counts limit changes per target, action and outcome
	ActuationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seedbrake_actuations_total",
			Help: "Total number of speed limit changes",
		},
		[]string{"target", "action", "status"},
	)

	// TransitionsTotal counts mode changes by destination mode
	TransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seedbrake_transitions_total",
			Help: "Total number of mode transitions",
		},
		[]string{"to"},
	)

	// CycleErrorsTotal counts cycles that failed or panicked
	CycleErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "seedbrake_cycle_errors_total",
			Help: "Total number of controller cycles that ended in an error",
		},
	)

	// FailureRecordsTotal counts entries appended to the failure ledger
	FailureRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seedbrake_failure_records_total",
			Help: "Total number of failure records written",
		},
		[]string{"target", "action"},
	)
)

// RecordCycle publishes the outcome of one control cycle.
func RecordCycle(metric float64, limited bool, onSeconds, offSeconds float64) {
	AggregateMetric.Set(metric)
	if limited {
		Limited.Set(1)
	} else {
		Limited.Set(0)
	}
	HysteresisTimer.WithLabelValues("on").Set(onSeconds)
	HysteresisTimer.WithLabelValues("off").Set(offSeconds)
}

// RecordCollection records one source fetch.
func RecordCollection(source string, ok bool, connections int64, durationSeconds float64) {
	status := StatusSuccess
	if !ok {
		status = StatusFailure
	}
	CollectionsTotal.WithLabelValues(source, status).Inc()
	CollectionDuration.WithLabelValues(source).Observe(durationSeconds)
	SourceConnections.WithLabelValues(source).Set(float64(connections))
}

// RecordActuation records a limit change attempt against a target.
func RecordActuation(target, action string, ok bool) {
	status := StatusSuccess
	if !ok {
		status = StatusFailure
	}
	ActuationsTotal.WithLabelValues(target, action, status).Inc()
}

// RecordTransition records a mode change.
func RecordTransition(to string) {
	TransitionsTotal.WithLabelValues(to).Inc()
}

// RecordCycleError records a failed or panicked cycle.
func RecordCycleError() {
	CycleErrorsTotal.Inc()
}

// RecordFailure records a failure ledger entry.
func RecordFailure(target, action string) {
	FailureRecordsTotal.WithLabelValues(target, action).Inc()
}
