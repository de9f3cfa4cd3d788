package cache

import (
	"context"
	"sync"
	"time"

	"github.com/stockx/market-engine/internal/model"
)

// MemoryCache implements PriceCache with an in-process map. Used for
// testing and for running without Redis.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	state     model.PriceState
	expiresAt time.Time
}

// NewMemoryCache creates an in-memory price cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry)}
}

func (c *MemoryCache) Get(_ context.Context, instrumentID string) (*model.PriceState, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[instrumentID]
	if !ok || time.Now().After(e.expiresAt) {
		return nil, ErrMiss
	}
	state := e.state
	return &state, nil
}

func (c *MemoryCache) Set(_ context.Context, instrumentID string, state *model.PriceState) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[instrumentID] = memoryEntry{
		state:     *state,
		expiresAt: time.Now().Add(TTL),
	}
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, instrumentID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, instrumentID)
	return nil
}

func (c *MemoryCache) Clear(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]memoryEntry)
	return nil
}
