// Package retry exports request retry metrics to Prometheus.
package retry

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	// The POSIX process that emits metrics
	discoveryProcess = "discovery"

	retriesTotalMetric      = "request_retries_total"
	retrySuccessTotalMetric = "request_retry_success_total"
	retryLatencyMetric      = "request_retry_latency_seconds"
)

func init() {
	prometheus.MustRegister(RetriesTotal)
	prometheus.MustRegister(retrySuccessTotal)
	prometheus.MustRegister(retryLatency)
}

var (
	// RetriesTotal tracks retries attempted by the request executor.
	// Labels:
	//   - endpoint_domain: Effective TLD+1 domain of the endpoint that failed
	//   - retry_reason: timeout, 5xx, connection_error, stale, not_found
	//   - attempt: Retry attempt number (1, 2, 3, 3+)
	//
	// Use to analyze:
	//   - Which failure class consumes the retry budget
	//   - Which operators trigger the most retries
	RetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: discoveryProcess,
			Name:      retriesTotalMetric,
			Help:      "Total number of request retry attempts",
		},
		[]string{"endpoint_domain", "retry_reason", "attempt"},
	)

	// retrySuccessTotal tracks requests that succeeded after at least one retry.
	// Labels:
	//   - endpoint_domain: Effective TLD+1 domain of the endpoint that answered
	//   - attempt: Retry attempt number that succeeded
	retrySuccessTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: discoveryProcess,
			Name:      retrySuccessTotalMetric,
			Help:      "Total number of requests that succeeded after retrying",
		},
		[]string{"endpoint_domain", "attempt"},
	)

	// retryLatency tracks the end-to-end latency of requests that retried.
	// Labels:
	//   - success: Whether the final result was successful after retries (true/false)
	retryLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Subsystem: discoveryProcess,
			Name:      retryLatencyMetric,
			Help:      "End-to-end latency of requests that needed retries, in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"success"},
	)
)

// Retry reason constants for metrics labeling.
const (
	RetryReasonTimeout         = "timeout"
	RetryReason5xx             = "5xx"
	RetryReasonConnectionError = "connection_error"
	RetryReasonUnexpected      = "unexpected_status"
	RetryReasonStale           = "stale"
	RetryReasonNotFound        = "not_found"
)

// RecordRetryAttempt records a retry attempt.
func RecordRetryAttempt(endpointDomain, reason string, attempt int) {
	RetriesTotal.With(prometheus.Labels{
		"endpoint_domain": endpointDomain,
		"retry_reason":    reason,
		"attempt":         formatAttempt(attempt),
	}).Inc()
}

// RecordRetrySuccess records a request that succeeded on a retry.
func RecordRetrySuccess(endpointDomain string, attempt int) {
	retrySuccessTotal.With(prometheus.Labels{
		"endpoint_domain": endpointDomain,
		"attempt":         formatAttempt(attempt),
	}).Inc()
}

// RecordRetryLatency records the end-to-end latency of a request that retried.
func RecordRetryLatency(success bool, latencySeconds float64) {
	successStr := "false"
	if success {
		successStr = "true"
	}
	retryLatency.With(prometheus.Labels{
		"success": successStr,
	}).Observe(latencySeconds)
}

// formatAttempt converts attempt number to string.
func formatAttempt(attempt int) string {
	switch attempt {
	case 1:
		return "1"
	case 2:
		return "2"
	case 3:
		return "3"
	default:
		return "3+"
	}
}
