// Package resilience guards cache stores with fortify circuit breakers.
package resilience

import (
	"context"
	"errors"
	"sync"

	"github.com/felixgeelhaar/fortify/circuitbreaker"

	"github.com/felixgeelhaar/kvguard/domain/cache"
	"github.com/felixgeelhaar/kvguard/infrastructure/logging"
)

// BreakerStore decorates a cache.Store with a circuit breaker. Only
// infrastructure failures (connection, timeout) count towards tripping;
// misses, invalid input and corrupt values pass through untouched. While
// open, every call fails fast with cache.ErrCircuitOpen. Nothing is retried.
type BreakerStore struct {
	next    cache.Store
	breaker circuitbreaker.CircuitBreaker[struct{}]
	config  BreakerConfig

	mu        sync.Mutex
	lastState string
}

// NewBreakerStore wraps next with a breaker built from opts.
func NewBreakerStore(next cache.Store, opts ...Option) *BreakerStore {
	config := DefaultBreakerConfig()
	for _, opt := range opts {
		opt(&config)
	}

	// Ensure non-negative values for uint32 conversion
	threshold := config.Threshold
	if threshold <= 0 {
		threshold = 5
	}
	probes := config.HalfOpenRequests
	if probes <= 0 {
		probes = 1
	}

	s := &BreakerStore{next: next, config: config}
	s.breaker = circuitbreaker.New[struct{}](circuitbreaker.Config{
		MaxRequests: uint32(probes), // #nosec G115 -- bounds checked above
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts circuitbreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(threshold) // #nosec G115 -- bounds checked above
		},
	})
	s.lastState = s.breaker.State().String()
	return s
}

// guard runs fn through the breaker. fn's error is returned as-is; only
// infrastructure errors are reported to the breaker as failures.
func (s *BreakerStore) guard(ctx context.Context, op string, fn func(context.Context) error) error {
	var (
		ran   bool
		opErr error
	)
	_, err := s.breaker.Execute(ctx, func(ctx context.Context) (struct{}, error) {
		ran = true
		opErr = fn(ctx)
		if cache.IsInfrastructure(opErr) {
			return struct{}{}, opErr
		}
		return struct{}{}, nil
	})
	s.observe()

	if !ran {
		logging.Warn().
			Add(logging.Component("breaker")).
			Add(logging.Str("breaker", s.config.Name)).
			Add(logging.Operation(op)).
			Msg("circuit open, failing fast")
		if err == nil {
			err = errors.New("call rejected")
		}
		return errors.Join(cache.ErrCircuitOpen, err)
	}
	return opErr
}

// observe logs and reports state transitions.
func (s *BreakerStore) observe() {
	state := s.breaker.State().String()

	s.mu.Lock()
	from := s.lastState
	s.lastState = state
	s.mu.Unlock()

	if from == state {
		return
	}
	logging.Info().
		Add(logging.Component("breaker")).
		Add(logging.Str("breaker", s.config.Name)).
		Add(logging.Str("from", from)).
		Add(logging.Str("to", state)).
		Msg("circuit state changed")
	if s.config.OnStateChange != nil {
		s.config.OnStateChange(s.config.Name, from, state)
	}
}

// State returns the breaker state: closed, open or half-open.
func (s *BreakerStore) State() string {
	return s.breaker.State().String()
}

// Get retrieves a value through the breaker.
func (s *BreakerStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var (
		value []byte
		ok    bool
	)
	err := s.guard(ctx, "get", func(ctx context.Context) error {
		var err error
		value, ok, err = s.next.Get(ctx, key)
		return err
	})
	return value, ok, err
}

// Set stores a value through the breaker.
func (s *BreakerStore) Set(ctx context.Context, key string, value []byte, opts cache.SetOptions) error {
	return s.guard(ctx, "set", func(ctx context.Context) error {
		return s.next.Set(ctx, key, value, opts)
	})
}

// Delete removes a value through the breaker.
func (s *BreakerStore) Delete(ctx context.Context, key string) error {
	return s.guard(ctx, "delete", func(ctx context.Context) error {
		return s.next.Delete(ctx, key)
	})
}

// DeletePrefix evicts by prefix through the breaker.
func (s *BreakerStore) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	var removed int
	err := s.guard(ctx, "delete_prefix", func(ctx context.Context) error {
		var err error
		removed, err = s.next.DeletePrefix(ctx, prefix)
		return err
	})
	return removed, err
}

// Exists checks for a key through the breaker.
func (s *BreakerStore) Exists(ctx context.Context, key string) (bool, error) {
	var ok bool
	err := s.guard(ctx, "exists", func(ctx context.Context) error {
		var err error
		ok, err = s.next.Exists(ctx, key)
		return err
	})
	return ok, err
}

// Flush empties the store through the breaker.
func (s *BreakerStore) Flush(ctx context.Context) error {
	return s.guard(ctx, "flush", func(ctx context.Context) error {
		return s.next.Flush(ctx)
	})
}

// Stats forwards to the wrapped store when it tracks statistics.
func (s *BreakerStore) Stats() cache.Stats {
	if sp, ok := s.next.(cache.StatsProvider); ok {
		return sp.Stats()
	}
	return cache.Stats{}
}

// Close forwards to the wrapped store when it holds connections.
func (s *BreakerStore) Close() error {
	if c, ok := s.next.(cache.Closer); ok {
		return c.Close()
	}
	return nil
}

// Unwrap returns the guarded store.
func (s *BreakerStore) Unwrap() cache.Store {
	return s.next
}

var (
	_ cache.Store         = (*BreakerStore)(nil)
	_ cache.StatsProvider = (*BreakerStore)(nil)
	_ cache.Closer        = (*BreakerStore)(nil)
)
