// Package healthcheck exports discovery node health probe metrics to Prometheus.
package healthcheck

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	// The POSIX process that emits metrics
	discoveryProcess = "discovery"

	healthProbesTotalMetric          = "health_probes_total"
	healthProbeDurationSecondsMetric = "health_probe_duration_seconds"
	healthProbeLagMetric             = "health_probe_lag"
	healthProbeCandidatesMetric      = "health_probe_candidates"
)

func init() {
	prometheus.MustRegister(healthProbesTotal)
	prometheus.MustRegister(healthProbeDurationSeconds)
	prometheus.MustRegister(healthProbeLag)
	prometheus.MustRegister(healthProbeCandidates)
}

var (
	// healthProbesTotal tracks health probes sent to discovery nodes.
	// Labels:
	//   - endpoint_domain: Effective TLD+1 domain extracted from endpoint URL
	//   - success: Whether the node answered with a usable health snapshot
	//   - error_type: timeout, connection_error, unexpected_status, malformed (empty if success)
	//
	// Use to analyze:
	//   - Which operators fail probes most often
	//   - Malformed health responses after node upgrades
	healthProbesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: discoveryProcess,
			Name:      healthProbesTotalMetric,
			Help:      "Total number of discovery node health probes",
		},
		[]string{"endpoint_domain", "success", "error_type"},
	)

	// healthProbeDurationSeconds tracks probe round-trip time.
	healthProbeDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Subsystem: discoveryProcess,
			Name:      healthProbeDurationSecondsMetric,
			Help:      "Histogram of discovery node health probe duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"endpoint_domain"},
	)

	// healthProbeLag is the last lag reported by a node, per axis.
	// Labels:
	//   - endpoint_domain: Effective TLD+1 domain extracted from endpoint URL
	//   - axis: primary (blocks) or secondary (plays slots)
	healthProbeLag = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Subsystem: discoveryProcess,
			Name:      healthProbeLagMetric,
			Help:      "Last observed indexing lag of a discovery node",
		},
		[]string{"endpoint_domain", "axis"},
	)

	// healthProbeCandidates is the number of candidates probed in the last round.
	healthProbeCandidates = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Subsystem: discoveryProcess,
			Name:      healthProbeCandidatesMetric,
			Help:      "Number of discovery nodes probed in the last selection round",
		},
	)
)

// RecordProbeResult records one health probe.
func RecordProbeResult(endpointDomain string, success bool, errorType string, durationSeconds float64) {
	successStr := "false"
	if success {
		successStr = "true"
	}

	healthProbesTotal.With(prometheus.Labels{
		"endpoint_domain": endpointDomain,
		"success":         successStr,
		"error_type":      errorType,
	}).Inc()

	healthProbeDurationSeconds.With(prometheus.Labels{
		"endpoint_domain": endpointDomain,
	}).Observe(durationSeconds)
}

// RecordProbeLag records the lag figures of a successful probe.
// The secondary axis is skipped when the node did not report it.
func RecordProbeLag(endpointDomain string, primaryLag int64, secondaryLag int64, hasSecondary bool) {
	healthProbeLag.With(prometheus.Labels{
		"endpoint_domain": endpointDomain,
		"axis":            "primary",
	}).Set(float64(primaryLag))

	if hasSecondary {
		healthProbeLag.With(prometheus.Labels{
			"endpoint_domain": endpointDomain,
			"axis":            "secondary",
		}).Set(float64(secondaryLag))
	}
}

// SetCandidatesProbed sets the number of candidates probed in the last round.
func SetCandidatesProbed(count int) {
	healthProbeCandidates.Set(float64(count))
}
