// ABOUTME: In-memory Store implementation for testing and ephemeral runs.

package trust

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory Store. Safe for concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	granted map[int64]bool
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{granted: make(map[int64]bool)}
}

// IsTrusted reports whether consent was recorded for the bot.
func (m *MemoryStore) IsTrusted(ctx context.Context, botID int64) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.granted[botID], nil
}

// MarkTrusted records consent for the bot.
func (m *MemoryStore) MarkTrusted(ctx context.Context, botID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.granted[botID] = true
	return nil
}

var _ Store = (*MemoryStore)(nil)
