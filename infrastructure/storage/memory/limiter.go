package memory

import (
	"context"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/felixgeelhaar/kvguard/domain/ratelimit"
)

// bucket is a key's fixed window.
type bucket struct {
	consumed int
	resetAt  time.Time
}

// Limiter is a fixed-window implementation of ratelimit.Limiter that keeps
// its buckets in process memory. Limits hold per process only; instances
// behind a load balancer each enforce their own budget.
type Limiter struct {
	policy  ratelimit.Policy
	buckets *xsync.MapOf[string, bucket]
	now     func() time.Time
}

// LimiterOption configures the limiter.
type LimiterOption func(*Limiter)

// WithLimiterClock overrides the time source used for windows.
func WithLimiterClock(now func() time.Time) LimiterOption {
	return func(l *Limiter) {
		l.now = now
	}
}

// NewLimiter creates an in-memory fixed-window limiter.
func NewLimiter(policy ratelimit.Policy, opts ...LimiterOption) (*Limiter, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	l := &Limiter{
		policy:  policy,
		buckets: xsync.NewMapOf[string, bucket](),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Consume charges one point to key.
// Concurrent calls for the same key are serialized by the map's per-key compute.
func (l *Limiter) Consume(ctx context.Context, key string) (ratelimit.Result, error) {
	if err := ctx.Err(); err != nil {
		return ratelimit.Result{}, err
	}
	if key == "" {
		return ratelimit.Result{}, ratelimit.ErrInvalidKey
	}

	now := l.now()
	b, _ := l.buckets.Compute(key, func(old bucket, loaded bool) (bucket, bool) {
		if !loaded || !now.Before(old.resetAt) {
			return bucket{consumed: 1, resetAt: now.Add(l.policy.Duration)}, false
		}
		old.consumed++
		return old, false
	})

	res := ratelimit.NewResult(l.policy.Points, b.consumed, b.resetAt.Sub(now))
	if b.consumed > l.policy.Points {
		return res, ratelimit.Exceeded(key, res)
	}
	return res, nil
}

// Get returns the key's state without consuming.
func (l *Limiter) Get(ctx context.Context, key string) (ratelimit.Result, error) {
	if err := ctx.Err(); err != nil {
		return ratelimit.Result{}, err
	}

	now := l.now()
	b, ok := l.buckets.Load(key)
	if !ok || !now.Before(b.resetAt) {
		return ratelimit.NewResult(l.policy.Points, 0, 0), nil
	}
	return ratelimit.NewResult(l.policy.Points, b.consumed, b.resetAt.Sub(now)), nil
}

// Reset clears the key's bucket.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.buckets.Delete(key)
	return nil
}

// Sweep drops buckets whose window has elapsed and returns how many were dropped.
func (l *Limiter) Sweep() int {
	now := l.now()
	var removed int
	l.buckets.Range(func(key string, _ bucket) bool {
		l.buckets.Compute(key, func(old bucket, loaded bool) (bucket, bool) {
			if loaded && !now.Before(old.resetAt) {
				removed++
				return old, true
			}
			return old, !loaded
		})
		return true
	})
	return removed
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	return l.buckets.Size()
}

// Policy returns the enforced policy.
func (l *Limiter) Policy() ratelimit.Policy {
	return l.policy
}

var _ ratelimit.Limiter = (*Limiter)(nil)
