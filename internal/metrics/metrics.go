// Package metrics holds the Prometheus instruments for the record store.
//
// Metrics are registered on a caller-owned registry, never the global
// default, so tests and embedders can run several stores side by side.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "dotlog"

// Metrics holds all Prometheus metrics for the record store.
type Metrics struct {
	// Push metrics
	PushesTotal          *prometheus.CounterVec
	PushBytes            prometheus.Histogram
	PushRetriesTotal     *prometheus.CounterVec
	AppendConflictsTotal *prometheus.CounterVec

	// Import metrics
	ImportedRecordsTotal *prometheus.CounterVec
	SkippedRecordsTotal  *prometheus.CounterVec

	// Read-path failures
	AuthFailuresTotal   *prometheus.CounterVec
	DecodeFailuresTotal *prometheus.CounterVec

	// Projection metrics
	ProjectionRecordsTotal  *prometheus.CounterVec
	ProjectionFailuresTotal *prometheus.CounterVec
	ProjectionDuration      *prometheus.HistogramVec
}

// New creates all metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		PushesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "pushes_total",
			Help:      "Total number of records pushed by this host",
		}, []string{"tag"}),
		PushBytes: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "push_bytes",
			Help:      "Histogram of pushed plaintext sizes in bytes",
			Buckets:   prometheus.ExponentialBuckets(64, 4, 8), // 64B to 1MB
		}),
		PushRetriesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "push_retries_total",
			Help:      "Total number of push attempts retried after an append conflict",
		}, []string{"tag"}),
		AppendConflictsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "append_conflicts_total",
			Help:      "Total number of appends rejected because idx or timestamp was not next",
		}, []string{"tag"}),

		ImportedRecordsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "imported_records_total",
			Help:      "Total number of records imported from other hosts",
		}, []string{"tag"}),
		SkippedRecordsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "skipped_records_total",
			Help:      "Total number of imported records that were already present",
		}, []string{"tag"}),

		AuthFailuresTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "seal",
			Name:      "auth_failures_total",
			Help:      "Total number of records that failed authentication",
		}, []string{"tag"}),
		DecodeFailuresTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "codec",
			Name:      "decode_failures_total",
			Help:      "Total number of payloads that failed to decode",
		}, []string{"tag", "reason"}),

		ProjectionRecordsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "projection",
			Name:      "records_total",
			Help:      "Total number of records folded into projections",
		}, []string{"tag"}),
		ProjectionFailuresTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "projection",
			Name:      "failures_total",
			Help:      "Total number of projections aborted by a failing record",
		}, []string{"tag"}),
		ProjectionDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "projection",
			Name:      "duration_seconds",
			Help:      "Histogram of projection durations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tag"}),
	}
}

// ObservePush records one successful push of size plaintext bytes.
func (m *Metrics) ObservePush(tag string, size int) {
	if m == nil {
		return
	}
	m.PushesTotal.WithLabelValues(tag).Inc()
	m.PushBytes.Observe(float64(size))
}

// IncConflict records an append conflict and the retry it triggers.
// retried is false when the push gave up.
func (m *Metrics) IncConflict(tag string, retried bool) {
	if m == nil {
		return
	}
	m.AppendConflictsTotal.WithLabelValues(tag).Inc()
	if retried {
		m.PushRetriesTotal.WithLabelValues(tag).Inc()
	}
}

// ObserveImport records the outcome of importing records for tag.
func (m *Metrics) ObserveImport(tag string, imported, skipped int) {
	if m == nil {
		return
	}
	m.ImportedRecordsTotal.WithLabelValues(tag).Add(float64(imported))
	m.SkippedRecordsTotal.WithLabelValues(tag).Add(float64(skipped))
}

// IncAuthFailure records a record that failed to unwrap.
func (m *Metrics) IncAuthFailure(tag string) {
	if m == nil {
		return
	}
	m.AuthFailuresTotal.WithLabelValues(tag).Inc()
}

// IncDecodeFailure records a payload that failed to decode.
func (m *Metrics) IncDecodeFailure(tag, reason string) {
	if m == nil {
		return
	}
	m.DecodeFailuresTotal.WithLabelValues(tag, reason).Inc()
}

// ObserveProjection records one projection run over records entries.
func (m *Metrics) ObserveProjection(tag string, records int, elapsed time.Duration, failed bool) {
	if m == nil {
		return
	}
	m.ProjectionRecordsTotal.WithLabelValues(tag).Add(float64(records))
	m.ProjectionDuration.WithLabelValues(tag).Observe(elapsed.Seconds())
	if failed {
		m.ProjectionFailuresTotal.WithLabelValues(tag).Inc()
	}
}
