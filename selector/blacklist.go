package selector

import (
	"sort"
	"sync"
	"time"

	"github.com/pokt-network/discovery/protocol"
)

// BlacklistSet tracks nodes excluded from selection for the rest of the
// process lifetime. Entries never expire; only Reset clears them.
type BlacklistSet struct {
	mu      sync.RWMutex
	entries map[protocol.EndpointAddr]blacklistEntry
}

type blacklistEntry struct {
	reason    string
	timestamp time.Time
}

// BlacklistedEndpoint is a read-only view of a blacklist entry.
type BlacklistedEndpoint struct {
	Addr      protocol.EndpointAddr `json:"address"`
	Reason    string                `json:"reason"`
	Timestamp time.Time             `json:"timestamp"`
}

func NewBlacklistSet() *BlacklistSet {
	return &BlacklistSet{
		entries: make(map[protocol.EndpointAddr]blacklistEntry),
	}
}

// Add blacklists addr. Returns false if it was already blacklisted,
// in which case the original reason is kept.
func (b *BlacklistSet) Add(addr protocol.EndpointAddr, reason string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.entries[addr]; exists {
		return false
	}
	b.entries[addr] = blacklistEntry{
		reason:    reason,
		timestamp: time.Now(),
	}
	return true
}

func (b *BlacklistSet) Contains(addr protocol.EndpointAddr) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	_, exists := b.entries[addr]
	return exists
}

// Count returns the number of blacklisted nodes (for metrics/debugging).
func (b *BlacklistSet) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}

// List returns the entries sorted by address.
func (b *BlacklistSet) List() []BlacklistedEndpoint {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]BlacklistedEndpoint, 0, len(b.entries))
	for addr, entry := range b.entries {
		out = append(out, BlacklistedEndpoint{
			Addr:      addr,
			Reason:    entry.reason,
			Timestamp: entry.timestamp,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Addr < out[j].Addr })
	return out
}

// Reset empties the set.
func (b *BlacklistSet) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = make(map[protocol.EndpointAddr]blacklistEntry)
}
