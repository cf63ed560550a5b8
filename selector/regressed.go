package selector

import (
	"sort"
	"time"

	"github.com/pokt-network/discovery/protocol"
)

// probeResult is the outcome of probing one candidate in a round.
type probeResult struct {
	record   protocol.EndpointRecord
	snapshot protocol.HealthSnapshot
	latency  time.Duration
	err      error
}

func (r probeResult) responsive() bool {
	return r.err == nil
}

// RegressedModeDetector decides whether a round with stale candidates is a
// network-wide regression or a handful of individually unhealthy nodes.
type RegressedModeDetector struct {
	// Ratio is the fraction of stale responsive candidates at which the round is regressed.
	Ratio float64
}

// IsRegressed reports whether stale/responsive reaches the ratio.
// A round with no responsive or no stale candidates is never regressed.
func (d RegressedModeDetector) IsRegressed(responsive, stale int) bool {
	if responsive == 0 || stale == 0 {
		return false
	}
	ratio := d.Ratio
	if ratio <= 0 {
		ratio = DefaultRegressedRatio
	}
	return float64(stale)/float64(responsive) >= ratio
}

// roundDecision is what a probing round concluded.
type roundDecision struct {
	chosen    probeResult
	found     bool
	regressed bool
	// widespread is set when the stale share of the round reaches the
	// detector's ratio. It never overrides a fresh winner.
	widespread bool
	responsive int
	stale      int
}

// ranker orders responsive candidates from best to worst.
type ranker struct {
	thresholds        protocol.FreshnessThresholds
	lagEquivalency    int64
	preferHigherPatch bool
}

// decide picks the round's winner.
//
// Normal mode: the best candidate within both thresholds, whenever one exists.
// Regressed mode: no candidate is fresh, so the least-stale responsive one
// wins, flagged regressed.
// No responsive candidate: nothing.
func (rk ranker) decide(results []probeResult, detector RegressedModeDetector) roundDecision {
	var fresh, responsive []probeResult
	for _, r := range results {
		if !r.responsive() {
			continue
		}
		responsive = append(responsive, r)
		if !rk.thresholds.IsStale(r.snapshot) {
			fresh = append(fresh, r)
		}
	}

	decision := roundDecision{
		responsive: len(responsive),
		stale:      len(responsive) - len(fresh),
	}
	if len(responsive) == 0 {
		return decision
	}

	decision.widespread = detector.IsRegressed(decision.responsive, decision.stale)
	pool := fresh
	if len(fresh) == 0 {
		pool = responsive
		decision.regressed = true
	}

	rk.sort(pool)
	decision.chosen = pool[0]
	decision.found = true
	return decision
}

// sort orders by lag bucket on each axis, then declared version (if
// configured), then probe latency, then address.
func (rk ranker) sort(results []probeResult) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]

		if ap, bp := rk.bucket(a.snapshot.PrimaryLag()), rk.bucket(b.snapshot.PrimaryLag()); ap != bp {
			return ap < bp
		}
		if rk.thresholds.SecondaryLag > 0 {
			if as, bs := rk.bucket(a.snapshot.SecondaryLag()), rk.bucket(b.snapshot.SecondaryLag()); as != bs {
				return as < bs
			}
		}
		if rk.preferHigherPatch {
			if cmp := declaredVersion(a).Compare(declaredVersion(b)); cmp != 0 {
				return cmp > 0
			}
		}
		if a.latency != b.latency {
			return a.latency < b.latency
		}
		return a.record.Addr < b.record.Addr
	})
}

func (rk ranker) bucket(lag int64) int64 {
	return lag / (rk.lagEquivalency + 1)
}

// declaredVersion prefers the registry's version and falls back to the one the node reported.
func declaredVersion(r probeResult) protocol.Version {
	if !r.record.Version.IsZero() {
		return r.record.Version
	}
	return r.snapshot.Version
}
