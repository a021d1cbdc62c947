// Package cache defines the short-lived response cache in front of the
// document store. Backends never fail a request: errors degrade to a miss
// (reads) or a no-op (writes).
package cache

import (
	"context"
	"encoding/json"
	"time"
)

// DefaultTTL applies when Set is called with a non-positive ttl.
const DefaultTTL = 300 * time.Second

// Cache stores serialized values by key.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
	Delete(ctx context.Context, key string)
}

// Noop is used when caching is disabled.
type Noop struct{}

// Get always misses.
func (Noop) Get(context.Context, string) ([]byte, bool) { return nil, false }

// Set discards the value.
func (Noop) Set(context.Context, string, []byte, time.Duration) {}

// Delete does nothing.
func (Noop) Delete(context.Context, string) {}

// TTL resolves the effective expiry.
func TTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return DefaultTTL
	}
	return ttl
}

// GetJSON reads key and decodes it into T. Undecodable entries count as a miss.
func GetJSON[T any](ctx context.Context, c Cache, key string) (T, bool) {
	var out T
	raw, ok := c.Get(ctx, key)
	if !ok {
		return out, false
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, false
	}
	return out, true
}

// SetJSON encodes value and stores it under key.
func SetJSON(ctx context.Context, c Cache, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err //nolint:wrapcheck // caller adds key context
	}
	c.Set(ctx, key, raw, ttl)
	return nil
}
