package application

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/felixgeelhaar/kvguard/domain/cache"
	"github.com/felixgeelhaar/kvguard/infrastructure/logging"
)

// Cache is a typed view over a cache.Store. Values cross the store
// boundary as JSON, so T must round-trip through encoding/json.
type Cache[T any] struct {
	store      cache.Store
	prefix     string
	fallback   bool
	defaultTTL time.Duration
}

// CacheOption configures a typed cache.
type CacheOption func(*cacheOptions)

type cacheOptions struct {
	prefix     string
	fallback   bool
	defaultTTL time.Duration
}

// WithPrefix namespaces every key of the cache.
func WithPrefix(prefix string) CacheOption {
	return func(o *cacheOptions) {
		o.prefix = prefix
	}
}

// WithFallback makes GetOrCompute recompute when the store is unreachable
// instead of surfacing the infrastructure error.
func WithFallback(enabled bool) CacheOption {
	return func(o *cacheOptions) {
		o.fallback = enabled
	}
}

// WithDefaultTTL replaces cache.DefaultTTL for Set calls without a ttl.
func WithDefaultTTL(ttl time.Duration) CacheOption {
	return func(o *cacheOptions) {
		o.defaultTTL = ttl
	}
}

// NewCache creates a typed cache over store.
func NewCache[T any](store cache.Store, opts ...CacheOption) *Cache[T] {
	var o cacheOptions
	for _, opt := range opts {
		opt(&o)
	}
	return &Cache[T]{
		store:      store,
		prefix:     o.prefix,
		fallback:   o.fallback,
		defaultTTL: o.defaultTTL,
	}
}

// Namespace returns a cache sharing the store whose keys live under prefix.
func (c *Cache[T]) Namespace(prefix string) *Cache[T] {
	return &Cache[T]{
		store:      c.store,
		prefix:     c.prefix + prefix,
		fallback:   c.fallback,
		defaultTTL: c.defaultTTL,
	}
}

func (c *Cache[T]) key(key string) string {
	return c.prefix + key
}

// Set encodes value and stores it under key. The optional ttl defaults to
// the cache's default TTL, itself cache.DefaultTTL unless configured.
// Store failures are returned as-is; nothing is retried.
func (c *Cache[T]) Set(ctx context.Context, key string, value T, ttl ...time.Duration) error {
	data, err := encode(value)
	if err != nil {
		return err
	}

	opts := cache.SetOptions{TTL: c.defaultTTL}
	if len(ttl) > 0 {
		opts.TTL = ttl[0]
	}
	return c.store.Set(ctx, c.key(key), data, opts)
}

// Get returns the value stored under key. A missing or expired entry yields
// the zero value and false. Content that does not decode as T yields
// cache.ErrCorruptValue.
func (c *Cache[T]) Get(ctx context.Context, key string) (T, bool, error) {
	var zero T

	data, ok, err := c.store.Get(ctx, c.key(key))
	if err != nil || !ok {
		return zero, false, err
	}

	value, err := decode[T](data)
	if err != nil {
		logging.Error().
			Add(logging.Component("cache")).
			Add(logging.Key(c.key(key))).
			Add(logging.ErrorField(err)).
			Msg("stored value failed to decode")
		return zero, false, err
	}
	return value, true, nil
}

// Delete removes key. Deleting an absent key is not an error.
func (c *Cache[T]) Delete(ctx context.Context, key string) error {
	return c.store.Delete(ctx, c.key(key))
}

// DeletePrefix removes every entry whose key starts with prefix.
// Invalidation is best-effort: keys written concurrently may survive.
func (c *Cache[T]) DeletePrefix(ctx context.Context, prefix string) error {
	_, err := c.EvictPrefix(ctx, prefix)
	return err
}

// EvictPrefix is DeletePrefix that also reports how many keys were removed.
func (c *Cache[T]) EvictPrefix(ctx context.Context, prefix string) (int, error) {
	full := c.key(prefix)
	removed, err := c.store.DeletePrefix(ctx, full)
	if err != nil {
		return removed, err
	}

	if removed == 0 {
		logging.Info().
			Add(logging.Component("cache")).
			Add(logging.Prefix(full)).
			Msg("no keys matched prefix")
		return 0, nil
	}

	logging.Debug().
		Add(logging.Component("cache")).
		Add(logging.Prefix(full)).
		Add(logging.Count(removed)).
		Msg("evicted keys by prefix")
	return removed, nil
}

// FlushAll empties the entire underlying store, not just this cache's
// namespace. Intended for administration and tests.
func (c *Cache[T]) FlushAll(ctx context.Context) error {
	if err := c.store.Flush(ctx); err != nil {
		return err
	}
	logging.Warn().
		Add(logging.Component("cache")).
		Add(logging.Operation("flush_all")).
		Msg("cache flushed")
	return nil
}

// GetOrCompute returns the cached value for key, computing and storing it
// on a miss. With WithFallback, an unreachable store is treated as a miss.
// Corrupt values are never recomputed over. When storing the computed value
// fails without fallback, the value is returned together with the error.
func (c *Cache[T]) GetOrCompute(ctx context.Context, key string, compute func(context.Context) (T, error), ttl ...time.Duration) (T, error) {
	value, ok, err := c.Get(ctx, key)
	switch {
	case err == nil && ok:
		return value, nil
	case err != nil && !c.absorbs(err):
		return value, err
	case err != nil:
		logging.Warn().
			Add(logging.Component("cache")).
			Add(logging.Key(c.key(key))).
			Add(logging.ErrorField(err)).
			Msg("cache unavailable, recomputing")
	}

	value, err = compute(ctx)
	if err != nil {
		return value, err
	}

	if err := c.Set(ctx, key, value, ttl...); err != nil {
		if !c.absorbs(err) {
			return value, err
		}
		logging.Warn().
			Add(logging.Component("cache")).
			Add(logging.Key(c.key(key))).
			Add(logging.ErrorField(err)).
			Msg("cache write skipped")
	}
	return value, nil
}

// absorbs reports whether err may be swallowed in favour of recomputation.
func (c *Cache[T]) absorbs(err error) bool {
	return c.fallback && cache.IsInfrastructure(err)
}

// encode is the serialization boundary into the store.
func encode[T any](value T) ([]byte, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, errors.Join(cache.ErrUnsupportedValue, err)
	}
	return data, nil
}

// decode is the serialization boundary out of the store.
func decode[T any](data []byte) (T, error) {
	var value T
	if err := json.Unmarshal(data, &value); err != nil {
		var zero T
		return zero, errors.Join(cache.ErrCorruptValue, err)
	}
	return value, nil
}
