// SPDX-License-Identifier: MIT

package cache

import (
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCacheSetGet(t *testing.T) {
	c := NewMemoryCache(0)

	_, ok := c.Get("missing")
	assert.False(t, ok)

	c.Set("k", []byte("v"), time.Minute)
	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, []byte("v"), got)

	c.Delete("k")
	_, ok = c.Get("k")
	assert.False(t, ok)
}

func TestMemoryCacheExpiration(t *testing.T) {
	c := NewMemoryCache(0)

	c.Set("k", []byte("v"), 10*time.Millisecond)
	_, ok := c.Get("k")
	require.True(t, ok)

	time.Sleep(20 * time.Millisecond)
	_, ok = c.Get("k")
	assert.False(t, ok, "expired entries must not be served")
}

func TestMemoryCacheStats(t *testing.T) {
	c := NewMemoryCache(0)

	c.Set("a", []byte("1"), time.Minute)
	c.Set("b", []byte("2"), time.Minute)
	c.Get("a")
	c.Get("missing")

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(2), stats.Sets)
	assert.Equal(t, 2, stats.CurrentSize)
}

func TestMemoryCacheJanitor(t *testing.T) {
	c := NewMemoryCache(20 * time.Millisecond)
	defer c.(interface{ Stop() }).Stop()

	c.Set("k", []byte("v"), 5*time.Millisecond)

	assert.Eventually(t, func() bool {
		return c.Stats().CurrentSize == 0
	}, time.Second, 10*time.Millisecond, "janitor must drop expired entries")
}

func TestNoOpCache(t *testing.T) {
	c := NewNoOpCache()

	c.Set("k", []byte("v"), time.Minute)
	_, ok := c.Get("k")
	assert.False(t, ok)
	assert.Equal(t, Stats{}, c.Stats())
}

func newTestRedisCache(t *testing.T) (*miniredis.Miniredis, *RedisCache) {
	t.Helper()
	srv := miniredis.RunT(t)

	c, err := NewRedisCache(RedisConfig{Addr: srv.Addr()}, zerolog.New(io.Discard))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return srv, c
}

func TestRedisCacheSetGet(t *testing.T) {
	_, c := newTestRedisCache(t)

	c.Set("k", []byte("v"), time.Minute)
	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, []byte("v"), got)

	c.Delete("k")
	_, ok = c.Get("k")
	assert.False(t, ok)
}

func TestRedisCacheExpiration(t *testing.T) {
	srv, c := newTestRedisCache(t)

	c.Set("k", []byte("v"), 5*time.Second)
	srv.FastForward(10 * time.Second)

	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestRedisCacheStats(t *testing.T) {
	_, c := newTestRedisCache(t)

	c.Set("a", []byte("1"), time.Minute)
	c.Get("a")
	c.Get("missing")

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Sets)
	assert.Equal(t, 1, stats.CurrentSize)
}

func TestNewRedisCacheConnectFailure(t *testing.T) {
	_, err := NewRedisCache(RedisConfig{Addr: "127.0.0.1:1"}, zerolog.New(io.Discard))
	require.Error(t, err)
}
