package storage

import (
	"context"
	"sync"

	"github.com/pokt-network/discovery/selector"
)

// Compile-time check that MemoryStore implements selector.Store.
var _ selector.Store = (*MemoryStore)(nil)

// MemoryStore keeps the selection in process memory.
//
// Note: Data is lost on process restart and is not shared across instances.
type MemoryStore struct {
	mu       sync.RWMutex
	selected *selector.StoredSelection
	closed   bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load returns the stored selection. Expiry is left to the caller.
func (m *MemoryStore) Load(_ context.Context) (selector.StoredSelection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return selector.StoredSelection{}, selector.ErrStoreClosed
	}
	if m.selected == nil {
		return selector.StoredSelection{}, selector.ErrNoStoredSelection
	}
	return *m.selected, nil
}

func (m *MemoryStore) Save(_ context.Context, selection selector.StoredSelection) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return selector.ErrStoreClosed
	}
	m.selected = &selection
	return nil
}

func (m *MemoryStore) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return selector.ErrStoreClosed
	}
	m.selected = nil
	return nil
}

// Close releases the stored selection. Further calls return ErrStoreClosed.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.selected = nil
	return nil
}
