package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type mapCache struct {
	mu   sync.Mutex
	data map[string][]byte
	ttls map[string]time.Duration
}

func newMapCache() *mapCache {
	return &mapCache{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (m *mapCache) Get(_ context.Context, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok
}

func (m *mapCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	m.ttls[key] = ttl
}

func (m *mapCache) Delete(_ context.Context, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
}

func TestNoopAlwaysMisses(t *testing.T) {
	t.Parallel()

	var c Cache = Noop{}
	c.Set(context.Background(), "posts:acme", []byte("[]"), time.Minute)
	_, ok := c.Get(context.Background(), "posts:acme")
	require.False(t, ok)
}

func TestTTLDefaults(t *testing.T) {
	t.Parallel()

	require.Equal(t, 300*time.Second, TTL(0))
	require.Equal(t, 300*time.Second, TTL(-time.Second))
	require.Equal(t, time.Minute, TTL(time.Minute))
}

func TestJSONHelpers(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := newMapCache()
	require.NoError(t, SetJSON(ctx, c, "people:acme", []string{"jane", "joe"}, 0))

	got, ok := GetJSON[[]string](ctx, c, "people:acme")
	require.True(t, ok)
	require.Equal(t, []string{"jane", "joe"}, got)

	c.Set(ctx, "broken", []byte("{"), 0)
	_, ok = GetJSON[[]string](ctx, c, "broken")
	require.False(t, ok)

	_, ok = GetJSON[[]string](ctx, c, "absent")
	require.False(t, ok)
}
