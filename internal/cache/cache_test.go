package cache

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryClient_GetSet(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryClient(10, 0)
	defer func() { _ = c.Close() }()

	_, err := c.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrCacheMiss)

	val := []byte("result")
	require.NoError(t, c.Set(ctx, "k", val, time.Minute))
	val[0] = 'X'

	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("result"), got)

	require.NoError(t, c.Delete(ctx, "k"))
	_, err = c.Get(ctx, "k")
	require.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryClient_Expiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryClient(10, 0)
	defer func() { _ = c.Close() }()

	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "short", []byte("a"), time.Second))
	require.NoError(t, c.Set(ctx, "forever", []byte("b"), 0))

	now = now.Add(2 * time.Second)
	_, err := c.Get(ctx, "short")
	require.ErrorIs(t, err, ErrCacheMiss)
	_, err = c.Get(ctx, "forever")
	require.NoError(t, err)

	assert.Equal(t, 1, c.Len())
}

func TestMemoryClient_Eviction(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryClient(2, time.Hour)
	defer func() { _ = c.Close() }()

	require.NoError(t, c.Set(ctx, "a", []byte("1"), time.Second))
	require.NoError(t, c.Set(ctx, "b", []byte("2"), time.Hour))
	require.NoError(t, c.Set(ctx, "c", []byte("3"), time.Hour))

	assert.Equal(t, 2, c.Len())
	_, err := c.Get(ctx, "a")
	require.ErrorIs(t, err, ErrCacheMiss)

	// overwriting an existing key does not evict
	require.NoError(t, c.Set(ctx, "b", []byte("4"), time.Hour))
	assert.Equal(t, 2, c.Len())
}

func TestMemoryClient_EvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	const size = 3
	c := NewMemoryClient(size, 0)
	defer func() { _ = c.Close() }()

	for i := range size + 1 {
		require.NoError(t, c.Set(ctx, fmt.Sprintf("k%d", i), []byte("v"), 0))
	}
	assert.Equal(t, size, c.Len())
	_, err := c.Get(ctx, "k0")
	require.ErrorIs(t, err, ErrCacheMiss, "first inserted key must be evicted")
	for i := 1; i <= size; i++ {
		_, err := c.Get(ctx, fmt.Sprintf("k%d", i))
		require.NoError(t, err)
	}

	// k1 was read before k2 and k3; reading k1 again makes k2 the oldest
	_, err = c.Get(ctx, "k1")
	require.NoError(t, err)
	require.NoError(t, c.Set(ctx, "k4", []byte("v"), 0))
	_, err = c.Get(ctx, "k2")
	require.ErrorIs(t, err, ErrCacheMiss)
	_, err = c.Get(ctx, "k1")
	require.NoError(t, err)
}

func TestMemoryClient_DefaultTTL(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryClient(10, 20*time.Millisecond)
	defer func() { _ = c.Close() }()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), 0))
	_, err := c.Get(ctx, "k")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, err := c.Get(ctx, "k")
		return errors.Is(err, ErrCacheMiss)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestMemoryClient_DeleteByPrefix(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryClient(10, 0)
	defer func() { _ = c.Close() }()

	require.NoError(t, c.Set(ctx, Key("extract", "v1", "aa"), []byte("1"), 0))
	require.NoError(t, c.Set(ctx, Key("extract", "v1", "bb"), []byte("2"), 0))
	require.NoError(t, c.Set(ctx, Key("other", "cc"), []byte("3"), 0))

	require.NoError(t, c.DeleteByPrefix(ctx, "extract:"))
	assert.Equal(t, 1, c.Len())
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
}

func TestNew(t *testing.T) {
	cfg := DefaultConfig()
	c, err := New(cfg)
	require.NoError(t, err)
	assert.Nil(t, c)

	cfg.Enabled = true
	c, err = New(cfg)
	require.NoError(t, err)
	require.IsType(t, &MemoryClient{}, c)
	require.NoError(t, c.Close())

	cfg.Backend = "memcached"
	_, err = New(cfg)
	require.Error(t, err)

	cfg.Backend = BackendRedis
	cfg.RedisAddr = "127.0.0.1:1"
	_, err = New(cfg)
	require.Error(t, err)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "a:b:c", Key("a", "b", "c"))
	assert.Equal(t, "solo", Key("solo"))
}
