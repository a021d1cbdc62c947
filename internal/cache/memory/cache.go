// Package memory provides an in-process TTL cache.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/JakeFAU/page-insights/internal/cache"
	"github.com/JakeFAU/page-insights/internal/clock/system"
	"github.com/JakeFAU/page-insights/internal/insights"
)

type entry struct {
	value   []byte
	expires time.Time
}

// Cache is a mutex-guarded map with lazy expiry.
type Cache struct {
	mu    sync.RWMutex
	clock insights.Clock
	items map[string]entry
}

// New constructs a Cache. A nil clock uses the system clock.
func New(clock insights.Clock) *Cache {
	if clock == nil {
		clock = system.New()
	}
	return &Cache{clock: clock, items: make(map[string]entry)}
}

// Get returns a copy of the live value for key.
func (c *Cache) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.RLock()
	e, ok := c.items[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if !c.clock.Now().Before(e.expires) {
		c.mu.Lock()
		if cur, still := c.items[key]; still && cur.expires.Equal(e.expires) {
			delete(c.items, key)
		}
		c.mu.Unlock()
		return nil, false
	}
	return append([]byte(nil), e.value...), true
}

// Set stores value until ttl elapses.
func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = entry{
		value:   append([]byte(nil), value...),
		expires: c.clock.Now().Add(cache.TTL(ttl)),
	}
}

// Delete removes key.
func (c *Cache) Delete(_ context.Context, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// Len reports the number of stored entries, expired or not.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

var _ cache.Cache = (*Cache)(nil)
