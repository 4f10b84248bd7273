// Package ratelimit provides alternative in-process limiter strategies.
// Both satisfy the domain Limiter contract; their Get and Reset are
// best-effort views over the underlying library state.
package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/RussellLuo/slidingwindow"
	"github.com/puzpuzpuz/xsync/v3"

	domainratelimit "github.com/felixgeelhaar/kvguard/domain/ratelimit"
)

// slidingEntry is one key's limiter. The current window is captured when
// the limiter creates it; the previous window's count is shadowed here
// because slidingwindow does not expose it.
type slidingEntry struct {
	mu        sync.Mutex
	lim       *slidingwindow.Limiter
	stop      slidingwindow.StopFunc
	curr      slidingwindow.Window
	prevCount int64
	lastUsed  time.Time
}

// SlidingWindow approximates a rolling window by weighting the previous
// fixed window's count by its remaining overlap. Bursts at window edges are
// smoothed compared to the fixed-window limiter.
type SlidingWindow struct {
	policy  domainratelimit.Policy
	entries *xsync.MapOf[string, *slidingEntry]
	now     func() time.Time
}

// Option configures the in-process strategies.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the time source. The clock must not run behind the
// wall clock because slidingwindow seeds new windows from time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewSlidingWindow creates a sliding-window limiter.
func NewSlidingWindow(policy domainratelimit.Policy, opts ...Option) (*SlidingWindow, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	return &SlidingWindow{
		policy:  policy,
		entries: xsync.NewMapOf[string, *slidingEntry](),
		now:     o.now,
	}, nil
}

func (s *SlidingWindow) entry(key string) *slidingEntry {
	e, _ := s.entries.LoadOrCompute(key, func() *slidingEntry {
		e := &slidingEntry{}
		e.lim, e.stop = slidingwindow.NewLimiter(s.policy.Duration, int64(s.policy.Points), func() (slidingwindow.Window, slidingwindow.StopFunc) {
			w, stop := slidingwindow.NewLocalWindow()
			e.curr = w
			return w, stop
		})
		return e
	})
	return e
}

// advance lets the limiter roll its windows forward to now without
// consuming and updates the shadowed previous count. Callers hold e.mu.
func (s *SlidingWindow) advance(e *slidingEntry, now time.Time, n int64) bool {
	start, count := e.curr.Start(), e.curr.Count()
	allowed := e.lim.AllowN(now, n)
	if moved := e.curr.Start().Sub(start); moved > 0 {
		if moved == s.policy.Duration {
			e.prevCount = count
		} else {
			e.prevCount = 0
		}
	}
	e.lastUsed = now
	return allowed
}

// estimate returns the weighted count and the wait until one more point
// fits. Callers hold e.mu after advance.
func (s *SlidingWindow) estimate(e *slidingEntry, now time.Time) (int, time.Duration) {
	size := s.policy.Duration
	limit := float64(s.policy.Points)
	elapsed := now.Sub(e.curr.Start())
	curr := float64(e.curr.Count())
	prev := float64(e.prevCount)

	weight := float64(size-elapsed) / float64(size)
	count := int(math.Floor(weight*prev)) + int(curr)

	if float64(count) < limit {
		return count, 0
	}

	untilNext := size - elapsed
	if curr >= limit {
		// Only the next window can admit; curr becomes the weighted one.
		need := float64(size) * (1 - (limit-1)/curr)
		return count, untilNext + time.Duration(math.Ceil(need))
	}
	need := float64(size)*(1-(limit-1-curr)/prev) - float64(elapsed)
	return count, time.Duration(math.Ceil(math.Max(need, 0)))
}

// Consume charges one point to key.
func (s *SlidingWindow) Consume(ctx context.Context, key string) (domainratelimit.Result, error) {
	if err := ctx.Err(); err != nil {
		return domainratelimit.Result{}, err
	}
	if key == "" {
		return domainratelimit.Result{}, domainratelimit.ErrInvalidKey
	}

	now := s.now()
	e := s.entry(key)
	e.mu.Lock()
	defer e.mu.Unlock()

	allowed := s.advance(e, now, 1)
	count, wait := s.estimate(e, now)
	if !allowed {
		res := domainratelimit.NewResult(s.policy.Points, count, wait)
		return res, domainratelimit.Exceeded(key, res)
	}
	return domainratelimit.NewResult(s.policy.Points, count, s.policy.Duration-now.Sub(e.curr.Start())), nil
}

// Get returns the key's weighted count without consuming.
func (s *SlidingWindow) Get(ctx context.Context, key string) (domainratelimit.Result, error) {
	if err := ctx.Err(); err != nil {
		return domainratelimit.Result{}, err
	}

	e, ok := s.entries.Load(key)
	if !ok {
		return domainratelimit.NewResult(s.policy.Points, 0, 0), nil
	}

	now := s.now()
	e.mu.Lock()
	defer e.mu.Unlock()

	s.advance(e, now, 0)
	count, _ := s.estimate(e, now)
	return domainratelimit.NewResult(s.policy.Points, count, s.policy.Duration-now.Sub(e.curr.Start())), nil
}

// Reset forgets key's windows.
func (s *SlidingWindow) Reset(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e, ok := s.entries.LoadAndDelete(key); ok {
		e.stop()
	}
	return nil
}

// Sweep drops keys idle for two windows, after which they carry no weight.
func (s *SlidingWindow) Sweep() int {
	cutoff := s.now().Add(-2 * s.policy.Duration)
	var removed int
	s.entries.Range(func(key string, e *slidingEntry) bool {
		e.mu.Lock()
		idle := e.lastUsed.Before(cutoff)
		e.mu.Unlock()
		if idle {
			if _, ok := s.entries.LoadAndDelete(key); ok {
				e.stop()
				removed++
			}
		}
		return true
	})
	return removed
}

// Len returns the number of tracked keys.
func (s *SlidingWindow) Len() int {
	return s.entries.Size()
}

// Policy returns the enforced policy.
func (s *SlidingWindow) Policy() domainratelimit.Policy {
	return s.policy
}

var _ domainratelimit.Limiter = (*SlidingWindow)(nil)
