package store

import (
	"context"
	"slices"
	"sync"

	storeerrors "github.com/abgdnv/storefront/internal/errors"
)

// Memory implements Slot with an in-process map. Values do not survive a restart.
type Memory struct {
	mu     sync.RWMutex
	values map[string][]byte
}

// NewMemory creates an empty in-memory slot store.
func NewMemory() *Memory {
	return &Memory{values: make(map[string][]byte)}
}

// Read returns a copy of the value stored under key.
func (m *Memory) Read(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.values[key]
	if !ok {
		return nil, storeerrors.ErrSlotEmpty
	}
	return slices.Clone(v), nil
}

// Write stores a copy of value under key.
func (m *Memory) Write(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.values[key] = slices.Clone(value)
	return nil
}
