package registry

import (
	"context"
	"sync"
	"time"

	"github.com/pokt-network/poktroll/pkg/polylog"
	"github.com/viccon/sturdyc"

	"github.com/pokt-network/discovery/protocol"
)

const (
	// The cache holds a single snapshot; capacity and sharding only matter to sturdyc.
	cacheCapacity      = 16
	numShards          = 1
	evictionPercentage = 10

	endpointsCacheKey = "registry:endpoints"

	// DefaultRefreshInterval is how long a registry snapshot is reused.
	DefaultRefreshInterval = 5 * time.Minute
)

// Compile-time check that CachingRegistry implements Registry.
var _ Registry = (*CachingRegistry)(nil)

// CachingRegistry wraps a slow Registry (e.g. one backed by a contract read or
// an HTTP listing) and reuses its snapshot for a refresh interval.
//
// SturdyC GetOrFetch provides stampede protection: concurrent selection rounds
// that miss the cache trigger a single upstream fetch.
type CachingRegistry struct {
	logger     polylog.Logger
	underlying Registry
	ttl        time.Duration

	cacheMu sync.RWMutex
	cache   *sturdyc.Client[protocol.EndpointRecords]
}

// NewCachingRegistry wraps underlying with a snapshot cache.
// A non-positive ttl falls back to DefaultRefreshInterval.
func NewCachingRegistry(logger polylog.Logger, underlying Registry, ttl time.Duration) *CachingRegistry {
	if ttl <= 0 {
		ttl = DefaultRefreshInterval
	}
	return &CachingRegistry{
		logger:     logger.With("component", "caching_registry"),
		underlying: underlying,
		ttl:        ttl,
		cache:      newCache(ttl),
	}
}

func newCache(ttl time.Duration) *sturdyc.Client[protocol.EndpointRecords] {
	return sturdyc.New[protocol.EndpointRecords](
		cacheCapacity,
		numShards,
		ttl,
		evictionPercentage,
	)
}

// Endpoints returns the cached snapshot, fetching it on a miss.
func (c *CachingRegistry) Endpoints(ctx context.Context) (protocol.EndpointRecords, error) {
	c.cacheMu.RLock()
	cache := c.cache
	c.cacheMu.RUnlock()

	records, err := cache.GetOrFetch(
		ctx,
		endpointsCacheKey,
		func(fetchCtx context.Context) (protocol.EndpointRecords, error) {
			c.logger.Debug().Msg("Cache miss - fetching discovery node list from registry")

			records, err := c.underlying.Endpoints(fetchCtx)
			if err != nil {
				return nil, err
			}
			if len(records) == 0 {
				return nil, ErrEmptyRegistry
			}

			c.logger.Info().
				Int("endpoint_count", len(records)).
				Msg("Refreshed discovery node list")
			return records, nil
		},
	)
	if err != nil {
		return nil, err
	}

	out := make(protocol.EndpointRecords, len(records))
	copy(out, records)
	return out, nil
}

// Invalidate drops the cached snapshot so the next call refetches.
func (c *CachingRegistry) Invalidate() {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	c.cache = newCache(c.ttl)
}
