package selector

import (
	"context"
	"errors"
	"time"

	"github.com/pokt-network/discovery/protocol"
)

var (
	// ErrNoStoredSelection is returned by a Store holding no live selection.
	ErrNoStoredSelection = errors.New("no stored selection")

	// ErrStoreClosed is returned when operating on a closed store.
	ErrStoreClosed = errors.New("selection store is closed")
)

// StoredSelection is the persisted form of a selection.
// Health data is not persisted; a restored selection carries only the address.
type StoredSelection struct {
	Addr       protocol.EndpointAddr
	SelectedAt time.Time
	ExpiresAt  time.Time
	Regressed  bool
}

// Expired reports whether the selection is past its expiry at now.
func (s StoredSelection) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Store persists the current selection so that a restarted process, or a
// sibling process sharing the store, can reuse it without a probing round.
//
// Implementations:
//   - storage.MemoryStore: process-local
//   - storage.RedisStore: shared across instances
type Store interface {
	// Load returns the stored selection, or ErrNoStoredSelection.
	Load(ctx context.Context) (StoredSelection, error)

	// Save replaces the stored selection.
	Save(ctx context.Context, selection StoredSelection) error

	// Clear drops the stored selection. Clearing an empty store is not an error.
	Clear(ctx context.Context) error

	Close() error
}
