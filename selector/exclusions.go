package selector

import (
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/pokt-network/discovery/protocol"
)

// Interval for purging expired exclusions.
const exclusionCleanupInterval = time.Minute

// Exclusion reasons.
const (
	ExclusionReasonStale    = "stale"
	ExclusionReasonNotFound = "not_found"
)

// ExclusionSet holds freshness-only exclusions: nodes that served a stale or
// not-found response and should sit out selection for a while without being
// blacklisted. Entries expire automatically via go-cache.
type ExclusionSet struct {
	cache *cache.Cache
	ttl   time.Duration
}

func NewExclusionSet(ttl time.Duration) *ExclusionSet {
	return &ExclusionSet{
		cache: cache.New(ttl, exclusionCleanupInterval),
		ttl:   ttl,
	}
}

// Exclude excludes addr for the configured TTL, refreshing any existing exclusion.
func (e *ExclusionSet) Exclude(addr protocol.EndpointAddr, reason string) {
	e.cache.Set(string(addr), reason, cache.DefaultExpiration)
}

// IsExcluded reports whether addr is currently excluded.
func (e *ExclusionSet) IsExcluded(addr protocol.EndpointAddr) bool {
	_, found := e.cache.Get(string(addr))
	return found
}

// Reason returns why addr is excluded.
func (e *ExclusionSet) Reason(addr protocol.EndpointAddr) (string, bool) {
	v, found := e.cache.Get(string(addr))
	if !found {
		return "", false
	}
	reason, _ := v.(string)
	return reason, true
}

func (e *ExclusionSet) Remove(addr protocol.EndpointAddr) {
	e.cache.Delete(string(addr))
}

// Count returns the number of live exclusions.
func (e *ExclusionSet) Count() int {
	return len(e.cache.Items())
}

func (e *ExclusionSet) Flush() {
	e.cache.Flush()
}
