package redis

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	rediscache "github.com/go-redis/cache/v9"
	"github.com/redis/go-redis/v9"

	"github.com/felixgeelhaar/kvguard/domain/cache"
)

// scanBatch is the COUNT hint for SCAN and the chunk size for bulk DEL.
const scanBatch = 500

// Cache is a Redis-backed implementation of cache.Store.
// Reads and writes go through go-redis/cache so an optional TinyLFU tier
// can serve hot keys without a round trip. Local tiers are per process:
// other instances see invalidations only once their local TTL lapses.
//
// Only Set fills the local tier, and only for entries whose TTL is at
// least the tier's TTL, so a local copy never outlives its Redis entry.
type Cache struct {
	client    *redis.Client
	tier      atomic.Pointer[tier]
	keyPrefix string
	localSize int
	localTTL  time.Duration
	hits      atomic.Int64
	misses    atomic.Int64
}

// NewCache connects to Redis with the given configuration.
func NewCache(ctx context.Context, cfg Config, opts ...ConfigOption) (*Cache, error) {
	for _, opt := range opts {
		opt(&cfg)
	}

	client, err := Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return NewCacheFromConfig(client, cfg), nil
}

// NewCacheFromConfig creates a cache over an existing client using the key
// prefix and local tier settings of cfg. Connection settings are ignored.
func NewCacheFromConfig(client *redis.Client, cfg Config) *Cache {
	c := &Cache{
		client:    client,
		keyPrefix: cfg.KeyPrefix,
		localSize: cfg.LocalCacheSize,
		localTTL:  cfg.LocalCacheTTL,
	}
	c.resetCodec()
	return c
}

// NewCacheFromClient creates a cache from an existing Redis client without
// a local tier. The client stays owned by the caller unless Close is called.
func NewCacheFromClient(client *redis.Client, keyPrefix string) *Cache {
	return NewCacheFromConfig(client, Config{KeyPrefix: keyPrefix})
}

// tier pairs a go-redis/cache codec with its optional local cache.
type tier struct {
	codec *rediscache.Cache
	local rediscache.LocalCache
	ttl   time.Duration
}

// resetCodec installs a fresh go-redis/cache instance, discarding the
// local tier's contents.
func (c *Cache) resetCodec() {
	t := &tier{}
	opts := &rediscache.Options{}
	if c.client != nil {
		opts.Redis = c.client
	}
	if c.localSize > 0 {
		t.ttl = c.localTTL
		if t.ttl <= 0 {
			t.ttl = time.Minute
		}
		t.local = rediscache.NewTinyLFU(c.localSize, t.ttl)
		opts.LocalCache = t.local
	}
	t.codec = rediscache.New(opts)
	c.tier.Store(t)
}

// prefixKey adds the key prefix.
func (c *Cache) prefixKey(key string) string {
	return c.keyPrefix + key
}

// Get retrieves a value from the cache.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	t := c.tier.Load()
	key = c.prefixKey(key)

	var value []byte
	if t.local != nil {
		if b, ok := t.local.Get(key); ok {
			if err := t.codec.Unmarshal(b, &value); err != nil {
				return nil, false, errors.Join(cache.ErrCorruptValue, err)
			}
			c.hits.Add(1)
			return value, true, nil
		}
	}

	// Reads never fill the local tier: the entry's remaining TTL is unknown.
	err := t.codec.GetSkippingLocalCache(ctx, key, &value)
	if err != nil {
		if errors.Is(err, rediscache.ErrCacheMiss) {
			c.misses.Add(1)
			return nil, false, nil
		}
		return nil, false, wrapError(err)
	}

	c.hits.Add(1)
	return value, true, nil
}

// Set stores a value in the cache with SET key value EX ttl.
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

	t := c.tier.Load()
	err = t.codec.Set(&rediscache.Item{
		Ctx:            ctx,
		Key:            c.prefixKey(key),
		Value:          value,
		TTL:            ttl,
		SkipLocalCache: ttl < t.ttl,
	})
	return wrapError(err)
}

// Delete removes a value from the cache.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := c.tier.Load().codec.Delete(ctx, c.prefixKey(key))
	if err != nil && !errors.Is(err, rediscache.ErrCacheMiss) {
		return wrapError(err)
	}
	return nil
}

// DeletePrefix lists keys matching prefix with SCAN, then removes them with
// bulk DEL commands. Keys created after the scan passes them survive.
func (c *Cache) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	pattern := escapePattern(c.prefixKey(prefix)) + "*"
	iter := c.client.Scan(ctx, 0, pattern, scanBatch).Iterator()

	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return 0, wrapError(err)
	}
	if len(keys) == 0 {
		return 0, nil
	}

	codec := c.tier.Load().codec
	var removed int64
	for start := 0; start < len(keys); start += scanBatch {
		batch := keys[start:min(start+scanBatch, len(keys))]
		n, err := c.client.Del(ctx, batch...).Result()
		if err != nil {
			return int(removed), wrapError(err)
		}
		removed += n
		for _, key := range batch {
			codec.DeleteFromLocalCache(key)
		}
	}

	return int(removed), nil
}

// Exists checks if a key exists in the cache.
func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	result, err := c.client.Exists(ctx, c.prefixKey(key)).Result()
	if err != nil {
		return false, wrapError(err)
	}

	return result > 0, nil
}

// Flush empties the whole Redis server with FLUSHALL, including keys
// outside this cache's prefix, and drops the local tier.
func (c *Cache) Flush(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := c.client.FlushAll(ctx).Err(); err != nil {
		return wrapError(err)
	}
	c.resetCodec()
	return nil
}

// Stats returns cache statistics.
func (c *Cache) Stats() cache.Stats {
	return cache.Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		// Size and MaxSize are not tracked for Redis
	}
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	return c.client.Close()
}

// Ping checks the Redis connection.
func (c *Cache) Ping(ctx context.Context) error {
	return wrapError(c.client.Ping(ctx).Err())
}

// escapePattern escapes glob metacharacters so prefix matches literally.
func escapePattern(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// Ensure Cache implements cache.Store, cache.StatsProvider and cache.Closer
var (
	_ cache.Store         = (*Cache)(nil)
	_ cache.StatsProvider = (*Cache)(nil)
	_ cache.Closer        = (*Cache)(nil)
)
