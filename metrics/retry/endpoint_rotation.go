// Package retry provides endpoint rotation metrics for retry operations.
package retry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	reselectionTotalMetric        = "request_reselections_total"
	endpointExhaustionTotalMetric = "request_endpoint_exhaustion_total"
)

// Reselection reasons.
const (
	ReselectReasonNotFound    = "not_found"
	ReselectReasonStale       = "stale"
	ReselectReasonRetryBudget = "retry_budget"
)

var (
	// ReselectionsTotal tracks forced reselections during a logical request.
	// Labels:
	//   - reason: not_found, stale, retry_budget
	//   - attempt: Which attempt triggered the reselection
	//
	// Use to analyze:
	//   - 404 storms (not_found reselections) vs genuine staleness
	//   - Whether the retry budget is sized correctly
	ReselectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: discoveryProcess,
			Name:      reselectionTotalMetric,
			Help:      "Total number of forced endpoint reselections during request execution",
		},
		[]string{"reason", "attempt"},
	)

	// endpointExhaustionTotal tracks requests that found no endpoint at all.
	// Labels:
	//   - num_candidates: How many candidates the registry listed when exhausted
	//
	// Use to analyze:
	//   - How often the whole population is unreachable
	//   - Whether candidate pools are too small for reliability
	endpointExhaustionTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: discoveryProcess,
			Name:      endpointExhaustionTotalMetric,
			Help:      "Total times no discovery node could be selected for a request",
		},
		[]string{"num_candidates"},
	)
)

// RecordReselection records a forced reselection.
func RecordReselection(reason string, attempt int) {
	ReselectionsTotal.With(prometheus.Labels{
		"reason":  reason,
		"attempt": formatAttempt(attempt),
	}).Inc()
}

// RecordEndpointExhaustion records a request that found no selectable endpoint.
func RecordEndpointExhaustion(numCandidates int) {
	endpointExhaustionTotal.With(prometheus.Labels{
		"num_candidates": formatEndpointCount(numCandidates),
	}).Inc()
}

// formatEndpointCount formats the endpoint count for metric labels.
// Groups into ranges for better cardinality control.
func formatEndpointCount(count int) string {
	switch {
	case count <= 0:
		return "0"
	case count == 1:
		return "1"
	case count == 2:
		return "2"
	case count >= 3 && count <= 5:
		return "3-5"
	case count >= 6 && count <= 10:
		return "6-10"
	case count >= 11 && count <= 20:
		return "11-20"
	default:
		return "20+"
	}
}
