package access

import (
	"context"
	"sync"
)

// Cache stores context snapshots keyed by internal user id. Implementations
// may outlive expiry: the resolver checks ComputedAt at read time, so a
// backend returning a stale entry is correct, just wasteful.
type Cache interface {
	Get(ctx context.Context, userID string) (Entry, bool, error)
	Put(ctx context.Context, userID string, entry Entry) error
}

// MemoryCache is the default process-local cache. Created at startup, never
// torn down; stale entries are overwritten on the next miss for the same key.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]Entry)}
}

func (c *MemoryCache) Get(_ context.Context, userID string) (Entry, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[userID]
	return entry, ok, nil
}

func (c *MemoryCache) Put(_ context.Context, userID string, entry Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[userID] = entry
	return nil
}
