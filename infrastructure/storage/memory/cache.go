package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/felixgeelhaar/kvguard/domain/cache"
)

// defaultMaxSize bounds the number of entries held in process.
const defaultMaxSize = 1000

// cacheEntry holds a cached value with expiration.
type cacheEntry struct {
	value     []byte
	expiresAt time.Time
}

// isExpired checks if the entry has expired at now.
func (e cacheEntry) isExpired(now time.Time) bool {
	return !now.Before(e.expiresAt)
}

// Cache is an in-memory implementation of cache.Store.
// Entries expire individually; the least recently used entry is evicted
// when the cache is at capacity.
type Cache struct {
	entries   *lru.Cache[string, cacheEntry]
	maxSize   int
	now       func() time.Time
	mu        sync.Mutex
	hits      int64
	misses    int64
	evictions int64
}

// CacheOption configures the cache.
type CacheOption func(*Cache)

// WithMaxSize sets the maximum number of entries. Non-positive sizes keep the default.
func WithMaxSize(size int) CacheOption {
	return func(c *Cache) {
		if size > 0 {
			c.maxSize = size
		}
	}
}

// WithClock overrides the time source used for expiry.
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) {
		c.now = now
	}
}

// NewCache creates a new in-memory cache.
func NewCache(opts ...CacheOption) *Cache {
	c := &Cache{
		maxSize: defaultMaxSize,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	// lru.New only fails for non-positive sizes, guarded by WithMaxSize.
	c.entries, _ = lru.New[string, cacheEntry](c.maxSize)
	return c
}

// Get retrieves a value from the cache.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries.Get(key)
	if !ok {
		c.misses++
		return nil, false, nil
	}

	if entry.isExpired(c.now()) {
		c.entries.Remove(key)
		c.misses++
		return nil, false, nil
	}

	c.hits++

	value := make([]byte, len(entry.value))
	copy(value, entry.value)
	return value, true, nil
}

// Set stores a value in the cache.
func (c *Cache) Set(ctx context.Context, key string, value []byte, opts cache.SetOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if key == "" {
		return cache.ErrInvalidKey
	}

	ttl, err := opts.EffectiveTTL()
	if err != nil {
		return err
	}

	valueCopy := make([]byte, len(value))
	copy(valueCopy, value)

	c.mu.Lock()
	defer c.mu.Unlock()

	evicted := c.entries.Add(key, cacheEntry{
		value:     valueCopy,
		expiresAt: c.now().Add(ttl),
	})
	if evicted {
		c.evictions++
	}
	return nil
}

// Delete removes a value from the cache.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries.Remove(key)
	return nil
}

// DeletePrefix removes all entries whose key starts with prefix.
func (c *Cache) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var removed int
	for _, key := range c.entries.Keys() {
		if strings.HasPrefix(key, prefix) && c.entries.Remove(key) {
			removed++
		}
	}
	return removed, nil
}

// Exists checks if a key exists in the cache.
func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries.Peek(key)
	if !ok {
		return false, nil
	}
	return !entry.isExpired(c.now()), nil
}

// Flush removes all entries from the cache.
func (c *Cache) Flush(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries.Purge()
	return nil
}

// Stats returns cache statistics.
func (c *Cache) Stats() cache.Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return cache.Stats{
		Hits:    c.hits,
		Misses:  c.misses,
		Size:    int64(c.entries.Len()),
		MaxSize: int64(c.maxSize),
	}
}

// Evictions returns the number of entries dropped to stay within capacity.
func (c *Cache) Evictions() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictions
}

// Cleanup removes expired entries and returns how many were dropped.
func (c *Cache) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	var removed int
	for _, key := range c.entries.Keys() {
		if entry, ok := c.entries.Peek(key); ok && entry.isExpired(now) {
			c.entries.Remove(key)
			removed++
		}
	}
	return removed
}

// Size returns the current number of entries, including expired ones not yet cleaned up.
func (c *Cache) Size() int {
	return c.entries.Len()
}

// Ensure Cache implements cache.Store and cache.StatsProvider
var (
	_ cache.Store         = (*Cache)(nil)
	_ cache.StatsProvider = (*Cache)(nil)
)
