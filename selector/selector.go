// Package selector picks the discovery node a client talks to.
//
// A NodeSelector lists candidates from the registry, drops blacklisted and
// excluded ones, probes the rest concurrently, and caches the best node for a
// TTL. When every responsive node is behind, it still returns the least-stale
// one, flagged as regressed, instead of leaving the caller with nothing.
//
// Concurrent Select calls share a single probing round.
package selector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/pokt-network/poktroll/pkg/polylog"
	"golang.org/x/sync/singleflight"

	"github.com/pokt-network/discovery/metrics"
	"github.com/pokt-network/discovery/metrics/healthcheck"
	"github.com/pokt-network/discovery/protocol"
	"github.com/pokt-network/discovery/registry"
)

const (
	selectionGroupKey = "select"

	// maxSelectionRounds bounds how often Select re-runs a round whose winner
	// was blacklisted while the round was in flight.
	maxSelectionRounds = 3

	storeOpTimeout = 2 * time.Second

	blacklistReasonUnhealthy = "unhealthy"
)

var (
	// ErrNoEndpointAvailable is returned when no candidate is selectable or none responded.
	ErrNoEndpointAvailable = errors.New("no discovery node available for selection")

	// ErrRegistryUnavailable wraps registry failures.
	ErrRegistryUnavailable = errors.New("failed to list discovery nodes")

	errProbeNotRun = errors.New("health probe did not run")
)

// Selection is the cached result of a selection round.
type Selection struct {
	Endpoint protocol.EndpointRecord
	// Health is empty for selections restored from a Store.
	Health     protocol.HealthSnapshot
	SelectedAt time.Time
	TTL        time.Duration
	// Regressed is set when no candidate cleared the freshness bar.
	Regressed bool
	Restored  bool
}

func (s Selection) Addr() protocol.EndpointAddr {
	return s.Endpoint.Addr
}

func (s Selection) ExpiresAt() time.Time {
	return s.SelectedAt.Add(s.TTL)
}

func (s Selection) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt())
}

// Option configures a NodeSelector.
type Option func(*NodeSelector)

// WithProber replaces the default HTTP prober.
func WithProber(p Prober) Option {
	return func(s *NodeSelector) { s.prober = p }
}

// WithClock replaces time.Now for cache expiry.
func WithClock(now func() time.Time) Option {
	return func(s *NodeSelector) { s.now = now }
}

// WithStore persists selections to store.
func WithStore(store Store) Option {
	return func(s *NodeSelector) { s.store = store }
}

// WithOnSelect registers a callback invoked after each fresh selection.
func WithOnSelect(fn func(Selection)) Option {
	return func(s *NodeSelector) { s.onSelect = fn }
}

// NodeSelector owns the selection cache and the blacklist.
// All methods are safe for concurrent use.
type NodeSelector struct {
	logger   polylog.Logger
	registry registry.Registry
	prober   Prober
	store    Store
	now      func() time.Time
	onSelect func(Selection)
	pool     pond.Pool

	blacklist      *BlacklistSet
	exclusions     *ExclusionSet
	whitelistCfg   AddrSet
	blacklistCfg   AddrSet
	minimumVersion protocol.Version
	detector       RegressedModeDetector

	group  singleflight.Group
	rounds atomic.Int64

	mu  sync.RWMutex
	cfg Config
	// cached is nil when there is no live selection.
	cached *Selection
	// generation is bumped on every invalidation; a round only caches its
	// result if no invalidation happened while it ran.
	generation uint64
}

// NewNodeSelector builds a selector over reg.
// cfg is hydrated with defaults and validated.
func NewNodeSelector(logger polylog.Logger, reg registry.Registry, cfg Config, opts ...Option) (*NodeSelector, error) {
	cfg.HydrateDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid selection config: %w", err)
	}

	whitelist, _ := NewAddrSet(cfg.Whitelist)
	blacklist, _ := NewAddrSet(cfg.Blacklist)
	minimumVersion, _ := protocol.ParseVersion(cfg.MinimumVersion)

	s := &NodeSelector{
		logger:         logger.With("component", "node_selector"),
		registry:       reg,
		now:            time.Now,
		blacklist:      NewBlacklistSet(),
		exclusions:     NewExclusionSet(cfg.ExclusionTTL),
		whitelistCfg:   whitelist,
		blacklistCfg:   blacklist,
		minimumVersion: minimumVersion,
		detector:       RegressedModeDetector{Ratio: cfg.RegressedRatio},
		cfg:            cfg,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.prober == nil {
		s.prober = NewHTTPProber(nil, cfg.HealthCheckPath)
	}
	s.pool = pond.NewPool(cfg.ProbeConcurrency)

	return s, nil
}

/* --------------------------------- Selection -------------------------------- */

// Select returns the cached selection or runs a probing round.
// Concurrent callers during a round wait on that same round.
func (s *NodeSelector) Select(ctx context.Context) (Selection, error) {
	for range maxSelectionRounds {
		if sel, ok := s.cachedSelection(); ok {
			return sel, nil
		}

		// The round outlives any single caller; probes carry their own deadlines.
		ch := s.group.DoChan(selectionGroupKey, func() (any, error) {
			return s.runRound(context.WithoutCancel(ctx))
		})

		var res singleflight.Result
		select {
		case <-ctx.Done():
			return Selection{}, ctx.Err()
		case res = <-ch:
		}
		if res.Err != nil {
			return Selection{}, res.Err
		}

		sel := res.Val.(Selection)
		if s.isExcluded(sel.Addr()) {
			continue
		}
		return sel, nil
	}
	return Selection{}, ErrNoEndpointAvailable
}

// Current returns the live cached selection, without probing.
func (s *NodeSelector) Current() (Selection, bool) {
	return s.cachedSelection()
}

func (s *NodeSelector) cachedSelection() (Selection, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.cached == nil || s.cached.Expired(s.now()) {
		return Selection{}, false
	}
	return *s.cached, true
}

func (s *NodeSelector) runRound(ctx context.Context) (Selection, error) {
	// A round that finished just before this one was scheduled may have filled the cache.
	if sel, ok := s.cachedSelection(); ok {
		return sel, nil
	}

	s.mu.RLock()
	generation := s.generation
	cfg := s.cfg
	s.mu.RUnlock()

	start := time.Now()

	records, err := s.registry.Endpoints(ctx)
	if err != nil {
		metrics.RecordSelectionRound(metrics.SelectionResultError, time.Since(start).Seconds())
		s.logger.Warn().Err(err).Msg("Failed to list discovery nodes from registry")
		return Selection{}, fmt.Errorf("%w: %w", ErrRegistryUnavailable, err)
	}

	candidates := s.candidates(records)
	if len(candidates) == 0 {
		metrics.RecordSelectionRound(metrics.SelectionResultNone, time.Since(start).Seconds())
		s.logger.Warn().
			Int("registry_count", len(records)).
			Int("blacklist_count", s.blacklist.Count()).
			Int("excluded_count", s.exclusions.Count()).
			Msg("No selectable discovery node candidates")
		return Selection{}, ErrNoEndpointAvailable
	}

	if sel, ok := s.restore(ctx, generation, candidates); ok {
		return sel, nil
	}

	results := s.probeAll(ctx, candidates, cfg.ProbeTimeout)
	s.rounds.Add(1)

	rk := ranker{
		thresholds:        cfg.Thresholds(),
		lagEquivalency:    cfg.LagEquivalency,
		preferHigherPatch: cfg.PreferHigherPatchVersion,
	}
	decision := rk.decide(results, s.detector)
	if !decision.found {
		metrics.RecordSelectionRound(metrics.SelectionResultNone, time.Since(start).Seconds())
		s.logger.Warn().
			Int("candidate_count", len(candidates)).
			Msg("No discovery node responded to health probes")
		return Selection{}, ErrNoEndpointAvailable
	}

	sel := Selection{
		Endpoint:   decision.chosen.record,
		Health:     decision.chosen.snapshot,
		SelectedAt: s.now(),
		TTL:        cfg.SelectionTTL,
		Regressed:  decision.regressed,
	}

	result := metrics.SelectionResultSelected
	if sel.Regressed {
		result = metrics.SelectionResultRegressed
	}
	metrics.RecordSelectionRound(result, time.Since(start).Seconds())

	logEvent := s.logger.Info()
	if sel.Regressed || decision.widespread {
		logEvent = s.logger.Warn()
	}
	logEvent.
		Str("endpoint", string(sel.Addr())).
		Str("version", sel.Endpoint.Version.String()).
		Int64("primary_lag", sel.Health.PrimaryLag()).
		Int64("secondary_lag", sel.Health.SecondaryLag()).
		Bool("regressed", sel.Regressed).
		Bool("widespread_staleness", decision.widespread).
		Int("responsive_count", decision.responsive).
		Int("stale_count", decision.stale).
		Int("candidate_count", len(candidates)).
		Msg("Selected discovery node")

	s.commit(generation, sel)
	return sel, nil
}

// candidates applies every exclusion source to a registry snapshot.
func (s *NodeSelector) candidates(records protocol.EndpointRecords) protocol.EndpointRecords {
	filtered := FilterCandidates(records, s.whitelistCfg, s.blacklistCfg)
	filtered = filterMinimumVersion(filtered, s.minimumVersion)

	out := make(protocol.EndpointRecords, 0, len(filtered))
	for _, rec := range filtered {
		if s.isExcluded(rec.Addr) {
			continue
		}
		out = append(out, rec)
	}
	return out
}

func (s *NodeSelector) isExcluded(addr protocol.EndpointAddr) bool {
	return s.blacklist.Contains(addr) || s.exclusions.IsExcluded(addr)
}

func (s *NodeSelector) probeAll(ctx context.Context, candidates protocol.EndpointRecords, timeout time.Duration) []probeResult {
	results := make([]probeResult, len(candidates))
	group := s.pool.NewGroup()

	for i, rec := range candidates {
		results[i] = probeResult{record: rec, err: errProbeNotRun}
		group.Submit(func() {
			results[i] = s.probe(ctx, rec, timeout)
		})
	}

	if err := group.Wait(); err != nil {
		s.logger.Warn().Err(err).
			Int("candidate_count", len(candidates)).
			Msg("Health probe round interrupted")
	}

	healthcheck.SetCandidatesProbed(len(candidates))
	return results
}

func (s *NodeSelector) probe(ctx context.Context, rec protocol.EndpointRecord, timeout time.Duration) probeResult {
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	snapshot, err := s.prober.Probe(probeCtx, rec)
	latency := time.Since(start)

	domain := metrics.EndpointDomain(string(rec.Addr))
	healthcheck.RecordProbeResult(domain, err == nil, categorizeProbeError(err), latency.Seconds())

	if err != nil {
		s.logger.Debug().Err(err).
			Str("endpoint", string(rec.Addr)).
			Dur("latency", latency).
			Msg("Discovery node failed health probe")
		return probeResult{record: rec, latency: latency, err: err}
	}

	healthcheck.RecordProbeLag(domain, snapshot.PrimaryLag(), snapshot.SecondaryLag(), snapshot.HasSecondary)
	return probeResult{record: rec, snapshot: snapshot, latency: latency}
}

// commit caches sel unless the cache was invalidated, or sel's node
// blacklisted, while the round ran.
func (s *NodeSelector) commit(generation uint64, sel Selection) {
	s.mu.Lock()
	cached := false
	if s.generation == generation && !s.isExcluded(sel.Addr()) {
		s.cached = &sel
		cached = true
	}
	s.mu.Unlock()

	if cached {
		metrics.SetSelection(metrics.EndpointDomain(string(sel.Addr())), sel.Regressed, sel.Health.PrimaryLag())
		s.persist(sel)
	}
	if s.onSelect != nil {
		s.onSelect(sel)
	}
}

/* --------------------------------- Persistence -------------------------------- */

// restore reuses a stored selection if it is live and its node is still a candidate.
func (s *NodeSelector) restore(ctx context.Context, generation uint64, candidates protocol.EndpointRecords) (Selection, bool) {
	if s.store == nil {
		return Selection{}, false
	}

	loadCtx, cancel := context.WithTimeout(ctx, storeOpTimeout)
	defer cancel()

	stored, err := s.store.Load(loadCtx)
	if err != nil {
		if !errors.Is(err, ErrNoStoredSelection) {
			s.logger.Warn().Err(err).Msg("Failed to load stored selection")
		}
		return Selection{}, false
	}
	if stored.Expired(s.now()) {
		return Selection{}, false
	}
	rec, ok := candidates.Find(stored.Addr)
	if !ok {
		return Selection{}, false
	}

	sel := Selection{
		Endpoint:   rec,
		SelectedAt: stored.SelectedAt,
		TTL:        stored.ExpiresAt.Sub(stored.SelectedAt),
		Regressed:  stored.Regressed,
		Restored:   true,
	}

	s.mu.Lock()
	if s.generation == generation {
		s.cached = &sel
	}
	s.mu.Unlock()

	metrics.RecordSelectionRound(metrics.SelectionResultRestored, 0)
	s.logger.Info().
		Str("endpoint", string(sel.Addr())).
		Time("expires_at", sel.ExpiresAt()).
		Msg("Restored stored discovery node selection")
	return sel, true
}

func (s *NodeSelector) persist(sel Selection) {
	if s.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeOpTimeout)
	defer cancel()

	err := s.store.Save(ctx, StoredSelection{
		Addr:       sel.Addr(),
		SelectedAt: sel.SelectedAt,
		ExpiresAt:  sel.ExpiresAt(),
		Regressed:  sel.Regressed,
	})
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to persist selection")
	}
}

func (s *NodeSelector) clearStore() {
	if s.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeOpTimeout)
	defer cancel()

	if err := s.store.Clear(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to clear stored selection")
	}
}

/* --------------------------------- Invalidation -------------------------------- */

// ClearCached drops the cached selection. The next Select runs a fresh round.
// Calling it repeatedly has the same effect as calling it once.
func (s *NodeSelector) ClearCached() {
	s.mu.Lock()
	s.cached = nil
	s.generation++
	s.mu.Unlock()

	s.clearStore()
}

// AddUnhealthy blacklists addr for the rest of the process lifetime and drops
// the cached selection if it points at addr.
func (s *NodeSelector) AddUnhealthy(addr protocol.EndpointAddr) {
	if addr == "" {
		return
	}

	if s.blacklist.Add(addr, blacklistReasonUnhealthy) {
		s.logger.Info().
			Str("endpoint", string(addr)).
			Int("blacklist_count", s.blacklist.Count()).
			Msg("Blacklisted unhealthy discovery node")
	}
	metrics.BlacklistSize.Set(float64(s.blacklist.Count()))

	s.invalidateIfSelected(addr)
}

// ExcludeTemporarily keeps addr out of selection for the exclusion TTL without
// blacklisting it, and drops the cached selection if it points at addr.
func (s *NodeSelector) ExcludeTemporarily(addr protocol.EndpointAddr, reason string) {
	if addr == "" {
		return
	}

	s.exclusions.Exclude(addr, reason)
	metrics.RecordExclusion(metrics.EndpointDomain(string(addr)), reason)
	s.logger.Debug().
		Str("endpoint", string(addr)).
		Str("reason", reason).
		Msg("Temporarily excluded discovery node")

	s.invalidateIfSelected(addr)
}

func (s *NodeSelector) invalidateIfSelected(addr protocol.EndpointAddr) {
	s.mu.Lock()
	hit := s.cached != nil && s.cached.Addr() == addr
	if hit {
		s.cached = nil
		s.generation++
	}
	s.mu.Unlock()

	if hit {
		s.clearStore()
	}
}

// ResetBlacklist empties the blacklist and every temporary exclusion.
func (s *NodeSelector) ResetBlacklist() {
	s.blacklist.Reset()
	s.exclusions.Flush()
	metrics.BlacklistSize.Set(0)
}

// Blacklisted lists the blacklisted nodes.
func (s *NodeSelector) Blacklisted() []BlacklistedEndpoint {
	return s.blacklist.List()
}

// ExclusionCount is the number of live temporary exclusions.
func (s *NodeSelector) ExclusionCount() int {
	return s.exclusions.Count()
}

// Rounds is the number of probing rounds run so far.
func (s *NodeSelector) Rounds() int64 {
	return s.rounds.Load()
}

/* --------------------------------- Thresholds -------------------------------- */

// Thresholds returns the freshness thresholds currently in force.
func (s *NodeSelector) Thresholds() protocol.FreshnessThresholds {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Thresholds()
}

// SetUnhealthyPrimaryLag updates the tolerated block lag for subsequent rounds
// and staleness checks.
func (s *NodeSelector) SetUnhealthyPrimaryLag(lag int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.UnhealthyPrimaryLag = lag
}

// SetUnhealthySecondaryLag updates the tolerated plays slot lag. Zero disables the axis.
func (s *NodeSelector) SetUnhealthySecondaryLag(lag int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.UnhealthySecondaryLag = lag
}

// Stop waits for in-flight probes and closes the store.
func (s *NodeSelector) Stop() {
	s.pool.StopAndWait()
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to close selection store")
		}
	}
}
