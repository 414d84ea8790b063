package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	attempts *prometheus.CounterVec
	resolved *prometheus.CounterVec
	coverage *prometheus.GaugeVec
	latency  *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		attempts: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketpull_source_attempts_total",
				Help: "Fetch attempts per source and outcome",
			},
			[]string{"source", "result"},
		),
		resolved: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketpull_resolved_total",
				Help: "Resolved observations per asset, key and quality",
			},
			[]string{"asset", "key", "quality"},
		),
		coverage: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "marketpull_coverage_ratio",
				Help: "Mandatory-key coverage of the last run per phase",
			},
			[]string{"phase"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "marketpull_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordAttempt records one source fetch attempt and its outcome.
func (r *Recorder) RecordAttempt(source, result string) {
	r.attempts.WithLabelValues(source, result).Inc()
}

// RecordResolved records a resolved observation.
func (r *Recorder) RecordResolved(asset, key, quality string) {
	r.resolved.WithLabelValues(asset, key, quality).Inc()
}

// RecordCoverage records the run's mandatory-key coverage.
func (r *Recorder) RecordCoverage(phase string, ratio float64) {
	r.coverage.WithLabelValues(phase).Set(ratio)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
