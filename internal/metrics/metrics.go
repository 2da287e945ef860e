// Package metrics exposes Prometheus instrumentation for extraction runs.
//
// Metrics:
//   - moodle_api_calls_total{function,outcome}: remote calls by outcome
//     (success, remote_error, transport_error, rejected)
//   - moodle_api_retries_total{function}: retried attempts
//   - moodle_api_call_duration_seconds{function}: call latency incl. retries
//   - elt_records_extracted_total{instance,entity}
//   - elt_records_persisted_total{instance,entity}: newly inserted rows
//   - elt_fanout_failures_total{instance,entity}: per-course sub-calls excluded from a batch
//   - elt_validation_warnings_total{entity}
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Call outcomes.
const (
	OutcomeSuccess        = "success"
	OutcomeRemoteError    = "remote_error"
	OutcomeTransportError = "transport_error"
	OutcomeRejected       = "rejected"
)

var (
	APICalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moodle_api_calls_total",
			Help: "Moodle web service calls by function and outcome",
		},
		[]string{"function", "outcome"},
	)

	APIRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moodle_api_retries_total",
			Help: "Retried Moodle web service attempts",
		},
		[]string{"function"},
	)

	APICallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "moodle_api_call_duration_seconds",
			Help:    "Moodle web service call latency including retries",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"function"},
	)

	RecordsExtracted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "elt_records_extracted_total",
			Help: "Records returned by extraction steps",
		},
		[]string{"instance", "entity"},
	)

	RecordsPersisted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "elt_records_persisted_total",
			Help: "Raw rows newly inserted into moodle_raw",
		},
		[]string{"instance", "entity"},
	)

	FanOutFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "elt_fanout_failures_total",
			Help: "Per-parent sub-calls that failed and were excluded from a batch",
		},
		[]string{"instance", "entity"},
	)

	ValidationWarnings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "elt_validation_warnings_total",
			Help: "Records persisted despite a missing required field",
		},
		[]string{"entity"},
	)
)
