package telemetry

import (
	"context"
	"errors"

	"github.com/felixgeelhaar/kvguard/domain/cache"
	"github.com/felixgeelhaar/kvguard/domain/ratelimit"
)

// InstrumentedStore records metrics for every operation of a cache.Store.
type InstrumentedStore struct {
	next    cache.Store
	metrics Metrics
	name    string
}

// InstrumentStore wraps store so that hits, misses, failures, prefix
// evictions and flushes are recorded under name.
func InstrumentStore(store cache.Store, metrics Metrics, name string) *InstrumentedStore {
	if metrics == nil {
		metrics = NoopMetricsProvider{}
	}
	return &InstrumentedStore{next: store, metrics: metrics, name: name}
}

func (s *InstrumentedStore) fail(ctx context.Context, op string, err error) error {
	if err != nil {
		s.metrics.RecordCacheError(ctx, s.name, op)
	}
	return err
}

// Get implements cache.Store.
func (s *InstrumentedStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, ok, err := s.next.Get(ctx, key)
	switch {
	case err != nil:
		s.metrics.RecordCacheError(ctx, s.name, "get")
	case ok:
		s.metrics.RecordCacheHit(ctx, s.name)
	default:
		s.metrics.RecordCacheMiss(ctx, s.name)
	}
	return value, ok, err
}

// Set implements cache.Store.
func (s *InstrumentedStore) Set(ctx context.Context, key string, value []byte, opts cache.SetOptions) error {
	return s.fail(ctx, "set", s.next.Set(ctx, key, value, opts))
}

// Delete implements cache.Store.
func (s *InstrumentedStore) Delete(ctx context.Context, key string) error {
	return s.fail(ctx, "delete", s.next.Delete(ctx, key))
}

// DeletePrefix implements cache.Store.
func (s *InstrumentedStore) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	removed, err := s.next.DeletePrefix(ctx, prefix)
	if removed > 0 {
		s.metrics.RecordCacheEviction(ctx, s.name, removed)
	}
	return removed, s.fail(ctx, "delete_prefix", err)
}

// Exists implements cache.Store.
func (s *InstrumentedStore) Exists(ctx context.Context, key string) (bool, error) {
	ok, err := s.next.Exists(ctx, key)
	return ok, s.fail(ctx, "exists", err)
}

// Flush implements cache.Store.
func (s *InstrumentedStore) Flush(ctx context.Context) error {
	if err := s.next.Flush(ctx); err != nil {
		return s.fail(ctx, "flush", err)
	}
	s.metrics.RecordCacheFlush(ctx, s.name)
	return nil
}

// Stats forwards to the wrapped store when it tracks statistics.
func (s *InstrumentedStore) Stats() cache.Stats {
	if sp, ok := s.next.(cache.StatsProvider); ok {
		return sp.Stats()
	}
	return cache.Stats{}
}

// Close closes the wrapped store when it holds resources.
func (s *InstrumentedStore) Close() error {
	if c, ok := s.next.(cache.Closer); ok {
		return c.Close()
	}
	return nil
}

// Unwrap returns the wrapped store.
func (s *InstrumentedStore) Unwrap() cache.Store {
	return s.next
}

// InstrumentedLimiter records metrics for a ratelimit.Limiter.
type InstrumentedLimiter struct {
	next     ratelimit.Limiter
	metrics  Metrics
	strategy string
}

// InstrumentLimiter wraps limiter so that allowed and rejected
// consumptions are recorded under strategy.
func InstrumentLimiter(limiter ratelimit.Limiter, metrics Metrics, strategy string) *InstrumentedLimiter {
	if metrics == nil {
		metrics = NoopMetricsProvider{}
	}
	return &InstrumentedLimiter{next: limiter, metrics: metrics, strategy: strategy}
}

// Consume implements ratelimit.Limiter.
func (l *InstrumentedLimiter) Consume(ctx context.Context, key string) (ratelimit.Result, error) {
	res, err := l.next.Consume(ctx, key)
	switch {
	case err == nil:
		l.metrics.RecordRateLimit(ctx, l.strategy, true)
	case errors.Is(err, ratelimit.ErrRateLimitExceeded):
		l.metrics.RecordRateLimit(ctx, l.strategy, false)
	default:
		l.metrics.RecordRateLimitError(ctx, l.strategy)
	}
	return res, err
}

// Get implements ratelimit.Limiter.
func (l *InstrumentedLimiter) Get(ctx context.Context, key string) (ratelimit.Result, error) {
	res, err := l.next.Get(ctx, key)
	if err != nil {
		l.metrics.RecordRateLimitError(ctx, l.strategy)
	}
	return res, err
}

// Reset implements ratelimit.Limiter.
func (l *InstrumentedLimiter) Reset(ctx context.Context, key string) error {
	err := l.next.Reset(ctx, key)
	if err != nil {
		l.metrics.RecordRateLimitError(ctx, l.strategy)
	}
	return err
}

// Unwrap returns the wrapped limiter.
func (l *InstrumentedLimiter) Unwrap() ratelimit.Limiter {
	return l.next
}

var (
	_ cache.Store         = (*InstrumentedStore)(nil)
	_ cache.StatsProvider = (*InstrumentedStore)(nil)
	_ cache.Closer        = (*InstrumentedStore)(nil)
	_ ratelimit.Limiter   = (*InstrumentedLimiter)(nil)
)
