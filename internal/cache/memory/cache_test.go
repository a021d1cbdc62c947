package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestCacheExpiresAfterTTL(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clk := &manualClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := New(clk)

	c.Set(ctx, "organizations:acme", []byte(`{"page_id":"acme"}`), time.Minute)
	got, ok := c.Get(ctx, "organizations:acme")
	require.True(t, ok)
	require.JSONEq(t, `{"page_id":"acme"}`, string(got))

	clk.Advance(time.Minute)
	_, ok = c.Get(ctx, "organizations:acme")
	require.False(t, ok)
	require.Zero(t, c.Len())
}

func TestCacheDefaultTTL(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clk := &manualClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := New(clk)

	c.Set(ctx, "posts:acme", []byte(`[]`), 0)
	clk.Advance(299 * time.Second)
	_, ok := c.Get(ctx, "posts:acme")
	require.True(t, ok)
	clk.Advance(time.Second)
	_, ok = c.Get(ctx, "posts:acme")
	require.False(t, ok)
}

func TestCacheCopiesAndDeletes(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := New(nil)
	value := []byte("abc")
	c.Set(ctx, "k", value, time.Minute)
	value[0] = 'X'

	got, ok := c.Get(ctx, "k")
	require.True(t, ok)
	require.Equal(t, "abc", string(got))
	got[1] = 'Y'
	again, _ := c.Get(ctx, "k")
	require.Equal(t, "abc", string(again))

	c.Delete(ctx, "k")
	_, ok = c.Get(ctx, "k")
	require.False(t, ok)
}
