package cache

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// MemoryClient is an in-process Client backed by a size-bounded LRU.
// The LRU expires entries after the default TTL; a shorter per-call TTL is
// tracked on the entry itself.
type MemoryClient struct {
	lru *expirable.LRU[string, memoryEntry]
	now func() time.Time
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time // zero means no per-entry expiry
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// NewMemoryClient creates a cache holding at most maxSize entries.
// ttl <= 0 keeps entries until they are evicted.
func NewMemoryClient(maxSize int, ttl time.Duration) *MemoryClient {
	if maxSize <= 0 {
		maxSize = 10000
	}
	return &MemoryClient{
		lru: expirable.NewLRU[string, memoryEntry](maxSize, nil, ttl),
		now: time.Now,
	}
}

// Get retrieves a copy of a value.
func (c *MemoryClient) Get(_ context.Context, key string) ([]byte, error) {
	entry, ok := c.lru.Get(key)
	if !ok {
		return nil, ErrCacheMiss
	}
	if entry.expired(c.now()) {
		c.lru.Remove(key)
		return nil, ErrCacheMiss
	}
	return slices.Clone(entry.value), nil
}

// Set stores a copy of value; ttl zero falls back to the client default.
func (c *MemoryClient) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	entry := memoryEntry{value: slices.Clone(value)}
	if ttl > 0 {
		entry.expiresAt = c.now().Add(ttl)
	}
	c.lru.Add(key, entry)
	return nil
}

// Delete removes a value from cache.
func (c *MemoryClient) Delete(_ context.Context, key string) error {
	c.lru.Remove(key)
	return nil
}

// DeleteByPrefix removes all keys with the given prefix.
func (c *MemoryClient) DeleteByPrefix(_ context.Context, prefix string) error {
	for _, key := range c.lru.Keys() {
		if strings.HasPrefix(key, prefix) {
			c.lru.Remove(key)
		}
	}
	return nil
}

// Len returns the number of stored entries.
func (c *MemoryClient) Len() int {
	return c.lru.Len()
}

// Close drops every entry.
func (c *MemoryClient) Close() error {
	c.lru.Purge()
	return nil
}
