package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestCache(t *testing.T, opts ...MemoryOption) (*MemoryCache, *fakeClock) {
	clk := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	opts = append([]MemoryOption{WithMemoryCleanup(0), WithMemoryClock(clk.Now)}, opts...)
	mc := NewMemoryCache(opts...)
	t.Cleanup(func() { _ = mc.Close() })
	return mc, clk
}

func TestMemoryCacheSetGet(t *testing.T) {
	ctx := context.Background()
	mc, clk := newTestCache(t)

	require.NoError(t, mc.Set(ctx, "k", []byte("v"), time.Minute))
	got, err := mc.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	clk.Advance(time.Minute)
	_, err = mc.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryCacheMiss(t *testing.T) {
	mc, _ := newTestCache(t)
	_, err := mc.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	mc, clk := newTestCache(t, WithMemoryMaxSize(2))

	require.NoError(t, mc.Set(ctx, "a", []byte("1"), time.Hour))
	clk.Advance(time.Second)
	require.NoError(t, mc.Set(ctx, "b", []byte("2"), time.Hour))
	clk.Advance(time.Second)
	_, err := mc.Get(ctx, "a")
	require.NoError(t, err)
	clk.Advance(time.Second)
	require.NoError(t, mc.Set(ctx, "c", []byte("3"), time.Hour))

	assert.Equal(t, 2, mc.Len())
	_, err = mc.Get(ctx, "b")
	assert.ErrorIs(t, err, ErrCacheMiss)
	_, err = mc.Get(ctx, "a")
	assert.NoError(t, err)
}

func TestMemoryCacheLock(t *testing.T) {
	ctx := context.Background()
	mc, clk := newTestCache(t)

	ok, err := mc.TryLock(ctx, "pass", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = mc.TryLock(ctx, "pass", 30*time.Second)
	assert.False(t, ok)

	clk.Advance(31 * time.Second)
	ok, _ = mc.TryLock(ctx, "pass", 30*time.Second)
	assert.True(t, ok, "expired lock can be taken again")

	require.NoError(t, mc.Unlock(ctx, "pass"))
	ok, _ = mc.TryLock(ctx, "pass", 30*time.Second)
	assert.True(t, ok)
}

func TestJSONHelpers(t *testing.T) {
	ctx := context.Background()
	mc, _ := newTestCache(t)

	type quote struct {
		Price float64 `json:"price"`
	}
	require.NoError(t, SetJSON(ctx, mc, Key("quote", "EUR/USD"), quote{Price: 1.1}, time.Minute))
	got, err := GetJSON[quote](ctx, mc, "quote:EUR/USD")
	require.NoError(t, err)
	assert.Equal(t, 1.1, got.Price)
}
