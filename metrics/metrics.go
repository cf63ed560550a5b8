// Package metrics provides Prometheus metrics for discovery node selection and
// request execution. Labels are domain-centric: node operators are identified
// by the effective TLD+1 of their endpoint, never by full URL.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// The POSIX process that emits metrics
	discoveryProcess = "discovery"

	// --- Label names used across metrics

	LabelDomain        = "domain"
	LabelMethod        = "method"
	LabelOutcome       = "outcome"
	LabelStatusCode    = "status_code"
	LabelResult        = "result"
	LabelLatencySignal = "latency_signal"
	LabelReason        = "reason"

	// --- Latency signal values

	LatencySignalCheetah = "Cheetah"
	LatencySignalGazelle = "Gazelle"
	LatencySignalRabbit  = "Rabbit"
	LatencySignalTurtle  = "Turtle"
	LatencySignalSnail   = "Snail"

	// --- Selection round results

	SelectionResultSelected  = "selected"
	SelectionResultRegressed = "regressed"
	SelectionResultNone      = "none"
	SelectionResultError     = "error"
	SelectionResultRestored  = "restored"

	// --- Monitoring sink failures

	SinkFailureError   = "error"
	SinkFailurePanic   = "panic"
	SinkFailureDropped = "dropped"
)

/* --------------------------------- Selection -------------------------------- */

// SelectionRoundsTotal counts probing rounds by result.
var SelectionRoundsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: discoveryProcess,
		Name:      "selection_rounds_total",
		Help:      "Total number of discovery node selection rounds by result",
	},
	[]string{LabelResult},
)

// SelectionRoundDuration tracks how long a full probing round takes.
var SelectionRoundDuration = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Subsystem: discoveryProcess,
		Name:      "selection_round_duration_seconds",
		Help:      "Histogram of discovery node selection round duration in seconds",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	},
)

// SelectionRegressed is 1 while the cached selection was made in regressed mode.
var SelectionRegressed = promauto.NewGauge(
	prometheus.GaugeOpts{
		Subsystem: discoveryProcess,
		Name:      "selection_regressed",
		Help:      "Whether the current discovery node selection is in regressed mode (1) or not (0)",
	},
)

// SelectedEndpointLag is the primary lag of the selected node at selection time.
var SelectedEndpointLag = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Subsystem: discoveryProcess,
		Name:      "selected_endpoint_lag",
		Help:      "Primary indexing lag of the selected discovery node at selection time",
	},
	[]string{LabelDomain},
)

// BlacklistSize is the number of nodes permanently excluded in this process.
var BlacklistSize = promauto.NewGauge(
	prometheus.GaugeOpts{
		Subsystem: discoveryProcess,
		Name:      "blacklist_size",
		Help:      "Number of discovery nodes in the unhealthy blacklist",
	},
)

// EndpointExclusionsTotal counts temporary exclusions by reason (stale, not_found).
var EndpointExclusionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: discoveryProcess,
		Name:      "endpoint_exclusions_total",
		Help:      "Total number of temporary discovery node exclusions by reason",
	},
	[]string{LabelDomain, LabelReason},
)

/* --------------------------------- Requests -------------------------------- */

// RequestsTotal counts classified request attempts.
var RequestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: discoveryProcess,
		Name:      "requests_total",
		Help:      "Total number of discovery node request attempts by outcome",
	},
	[]string{LabelDomain, LabelMethod, LabelOutcome, LabelStatusCode},
)

// RequestLatency tracks attempt latency by outcome.
var RequestLatency = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Subsystem: discoveryProcess,
		Name:      "request_latency_seconds",
		Help:      "Histogram of discovery node request attempt latency in seconds",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	},
	[]string{LabelDomain, LabelOutcome},
)

// LatencySignalsTotal buckets successful attempts into coarse latency signals per domain.
var LatencySignalsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: discoveryProcess,
		Name:      "latency_signals_total",
		Help:      "Total number of successful request attempts by latency signal",
	},
	[]string{LabelDomain, LabelLatencySignal},
)

// MonitoringSinkFailuresTotal counts monitoring callbacks that failed, panicked or were dropped.
var MonitoringSinkFailuresTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: discoveryProcess,
		Name:      "monitoring_sink_failures_total",
		Help:      "Total number of monitoring sink invocations that did not complete",
	},
	[]string{LabelReason},
)

/* --------------------------------- Recorders -------------------------------- */

// RecordSelectionRound records the result and duration of a probing round.
func RecordSelectionRound(result string, durationSeconds float64) {
	SelectionRoundsTotal.WithLabelValues(result).Inc()
	SelectionRoundDuration.Observe(durationSeconds)
}

// SetSelection publishes the state of a new selection.
func SetSelection(domain string, regressed bool, primaryLag int64) {
	if regressed {
		SelectionRegressed.Set(1)
	} else {
		SelectionRegressed.Set(0)
	}
	SelectedEndpointLag.WithLabelValues(domain).Set(float64(primaryLag))
}

// RecordExclusion records a temporary exclusion.
func RecordExclusion(domain, reason string) {
	EndpointExclusionsTotal.WithLabelValues(domain, reason).Inc()
}

// RecordRequest records one classified attempt.
func RecordRequest(domain, method, outcome string, statusCode int, latencySeconds float64) {
	RequestsTotal.WithLabelValues(domain, method, outcome, GetStatusCodeCategory(statusCode)).Inc()
	RequestLatency.WithLabelValues(domain, outcome).Observe(latencySeconds)
}

// RecordLatencySignal records the latency signal of a successful attempt.
func RecordLatencySignal(domain string, latencyMs float64) {
	LatencySignalsTotal.WithLabelValues(domain, GetLatencySignal(latencyMs)).Inc()
}

// RecordSinkFailure records a monitoring sink invocation that did not complete.
func RecordSinkFailure(reason string) {
	MonitoringSinkFailuresTotal.WithLabelValues(reason).Inc()
}

/* --------------------------------- Helpers -------------------------------- */

// LatencyThresholds defines the latency signal boundaries in milliseconds.
type LatencyThresholds struct {
	FastMs   float64 // <= this = Cheetah
	NormalMs float64 // <= this = Gazelle
	SlowMs   float64 // <= this = Rabbit
	SevereMs float64 // <= this = Turtle
}

// DefaultLatencyThresholds returns the thresholds used when none are configured.
func DefaultLatencyThresholds() *LatencyThresholds {
	return &LatencyThresholds{
		FastMs:   100,
		NormalMs: 500,
		SlowMs:   1000,
		SevereMs: 3000,
	}
}

// GetLatencySignal converts latency in milliseconds to a latency signal category.
func GetLatencySignal(latencyMs float64) string {
	return GetLatencySignalWithThresholds(latencyMs, nil)
}

// GetLatencySignalWithThresholds converts latency to a signal based on provided thresholds.
// If thresholds are nil, use default fixed thresholds.
func GetLatencySignalWithThresholds(latencyMs float64, thresholds *LatencyThresholds) string {
	if thresholds == nil {
		thresholds = DefaultLatencyThresholds()
	}

	switch {
	case latencyMs <= thresholds.FastMs:
		return LatencySignalCheetah
	case latencyMs <= thresholds.NormalMs:
		return LatencySignalGazelle
	case latencyMs <= thresholds.SlowMs:
		return LatencySignalRabbit
	case latencyMs <= thresholds.SevereMs:
		return LatencySignalTurtle
	default:
		return LatencySignalSnail
	}
}

// GetStatusCodeCategory returns the status code as a string, grouping 4xx and 5xx.
// 404 is kept separate since it drives reselection.
func GetStatusCodeCategory(statusCode int) string {
	switch {
	case statusCode == 0:
		return "none"
	case statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices:
		return "200"
	case statusCode == http.StatusNotFound:
		return strconv.Itoa(http.StatusNotFound)
	case statusCode >= http.StatusBadRequest && statusCode < http.StatusInternalServerError:
		return "4xx"
	case statusCode >= http.StatusInternalServerError:
		return "5xx"
	default:
		return "other"
	}
}
