// Package redis implements the response cache on go-redis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/JakeFAU/page-insights/internal/cache"
	"github.com/JakeFAU/page-insights/internal/metrics"
)

const backend = "redis"

// Config controls the Redis connection.
type Config struct {
	Addr        string
	Password    string
	DB          int
	PoolSize    int
	DialTimeout time.Duration
	KeyPrefix   string
}

// Cache stores values in Redis. Errors are logged, counted and swallowed.
type Cache struct {
	client goredis.UniversalClient
	prefix string
	logger *zap.Logger
}

// New builds a client for cfg. The connection is established lazily, so an
// unreachable server only degrades lookups.
func New(cfg Config, logger *zap.Logger) (*Cache, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("cache.redis.addr is required")
	}
	opts := &goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	return NewWithClient(goredis.NewClient(opts), cfg.KeyPrefix, logger), nil
}

// NewWithClient wraps an existing client (primarily for testing).
func NewWithClient(client goredis.UniversalClient, prefix string, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{client: client, prefix: prefix, logger: logger}
}

// Get returns the stored bytes, or a miss on absence or backend failure.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	val, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			c.fail("get", key, err)
		}
		return nil, false
	}
	return val, true
}

// Set stores value with the given ttl (DefaultTTL when non-positive).
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if err := c.client.Set(ctx, c.prefix+key, value, cache.TTL(ttl)).Err(); err != nil {
		c.fail("set", key, err)
	}
}

// Delete removes key.
func (c *Cache) Delete(ctx context.Context, key string) {
	if err := c.client.Del(ctx, c.prefix+key).Err(); err != nil {
		c.fail("delete", key, err)
	}
}

// Ping reports whether the server is reachable.
func (c *Cache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

// Close releases the client's connections.
func (c *Cache) Close() error {
	if err := c.client.Close(); err != nil {
		return fmt.Errorf("close redis: %w", err)
	}
	return nil
}

func (c *Cache) fail(op, key string, err error) {
	metrics.ObserveCacheError(backend, op)
	c.logger.Warn("cache operation failed",
		zap.String("op", op),
		zap.String("key", key),
		zap.Error(err),
	)
}

var _ cache.Cache = (*Cache)(nil)
