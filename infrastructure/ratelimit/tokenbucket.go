package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	fortify "github.com/felixgeelhaar/fortify/ratelimit"
	"github.com/puzpuzpuz/xsync/v3"

	domainratelimit "github.com/felixgeelhaar/kvguard/domain/ratelimit"
)

// bucketEntry pairs a key's fortify limiter with a shadow of its token
// level, used to report state and retry hints.
type bucketEntry struct {
	limiter fortify.RateLimiter

	mu       sync.Mutex
	tokens   float64
	last     time.Time
	lastUsed time.Time
}

// TokenBucket refills Policy.Points tokens per Policy.Duration with a burst
// of Policy.Points. Unlike the window strategies it never resets a key all
// at once; capacity returns gradually.
type TokenBucket struct {
	policy  domainratelimit.Policy
	entries *xsync.MapOf[string, *bucketEntry]
	now     func() time.Time
}

// NewTokenBucket creates a token-bucket limiter.
func NewTokenBucket(policy domainratelimit.Policy, opts ...Option) (*TokenBucket, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	return &TokenBucket{
		policy:  policy,
		entries: xsync.NewMapOf[string, *bucketEntry](),
		now:     o.now,
	}, nil
}

func (b *TokenBucket) entry(key string, now time.Time) *bucketEntry {
	e, _ := b.entries.LoadOrCompute(key, func() *bucketEntry {
		return &bucketEntry{
			limiter: fortify.New(&fortify.Config{
				Rate:     b.policy.Points,
				Burst:    b.policy.Points,
				Interval: b.policy.Duration,
			}),
			tokens: float64(b.policy.Points),
			last:   now,
		}
	})
	return e
}

// perToken is the refill time of a single token.
func (b *TokenBucket) perToken() time.Duration {
	return b.policy.Duration / time.Duration(b.policy.Points)
}

// refill advances the shadow level to now. Callers hold e.mu.
func (b *TokenBucket) refill(e *bucketEntry, now time.Time) {
	if elapsed := now.Sub(e.last); elapsed > 0 {
		e.tokens = math.Min(float64(b.policy.Points), e.tokens+float64(elapsed)/float64(b.perToken()))
		e.last = now
	}
}

func (b *TokenBucket) result(e *bucketEntry) domainratelimit.Result {
	remaining := int(math.Floor(e.tokens))
	missing := float64(b.policy.Points) - e.tokens
	full := time.Duration(math.Ceil(missing * float64(b.perToken())))
	return domainratelimit.NewResult(b.policy.Points, b.policy.Points-remaining, full)
}

// Consume takes one token for key.
func (b *TokenBucket) Consume(ctx context.Context, key string) (domainratelimit.Result, error) {
	if err := ctx.Err(); err != nil {
		return domainratelimit.Result{}, err
	}
	if key == "" {
		return domainratelimit.Result{}, domainratelimit.ErrInvalidKey
	}

	now := b.now()
	e := b.entry(key, now)
	e.mu.Lock()
	defer e.mu.Unlock()

	e.lastUsed = now
	b.refill(e, now)

	if !e.limiter.Allow(ctx, key) {
		res := b.result(e)
		res.Remaining = 0
		wait := time.Duration(math.Ceil((1 - math.Min(e.tokens, 1)) * float64(b.perToken())))
		if wait <= 0 {
			wait = b.perToken()
		}
		res.ResetAfter = wait
		return res, domainratelimit.Exceeded(key, res)
	}

	e.tokens = math.Max(e.tokens-1, 0)
	return b.result(e), nil
}

// Get reports the shadow token level for key.
func (b *TokenBucket) Get(ctx context.Context, key string) (domainratelimit.Result, error) {
	if err := ctx.Err(); err != nil {
		return domainratelimit.Result{}, err
	}

	e, ok := b.entries.Load(key)
	if !ok {
		return domainratelimit.NewResult(b.policy.Points, 0, 0), nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	b.refill(e, b.now())
	return b.result(e), nil
}

// Reset refills key's bucket by discarding it.
func (b *TokenBucket) Reset(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.entries.Delete(key)
	return nil
}

// Sweep drops buckets idle long enough to have refilled completely.
func (b *TokenBucket) Sweep() int {
	cutoff := b.now().Add(-b.policy.Duration)
	var removed int
	b.entries.Range(func(key string, e *bucketEntry) bool {
		e.mu.Lock()
		idle := e.lastUsed.Before(cutoff)
		e.mu.Unlock()
		if idle {
			b.entries.Delete(key)
			removed++
		}
		return true
	})
	return removed
}

// Len returns the number of tracked keys.
func (b *TokenBucket) Len() int {
	return b.entries.Size()
}

// Policy returns the enforced policy.
func (b *TokenBucket) Policy() domainratelimit.Policy {
	return b.policy
}

var _ domainratelimit.Limiter = (*TokenBucket)(nil)
