package counter

import (
	"context"
	"sync"
)

// MemoryStore is an in-process counter store used by the native server and
// tests. Counts reset on restart.
type MemoryStore struct {
	mu     sync.Mutex
	counts map[string]int64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{counts: make(map[string]int64)}
}

func (m *MemoryStore) Incr(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[key]++
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[key], nil
}
