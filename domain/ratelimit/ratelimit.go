// Package ratelimit provides the domain contracts for point-based rate limiting.
//
// Each key owns a bucket of points that is filled by consumption and emptied
// when the window started by the bucket's first consumption elapses. A key is
// under budget while its consumed points are within Policy.Points and over
// budget afterwards; the counter and window reset together.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Policy describes a point budget over a fixed window.
type Policy struct {
	// Points is the maximum number of points consumable per window.
	Points int
	// Duration is the window length.
	Duration time.Duration
	// KeyPrefix namespaces keys in shared backends.
	KeyPrefix string
}

// DefaultPolicy returns the reference configuration: 5 points per minute.
func DefaultPolicy() Policy {
	return Policy{
		Points:    5,
		Duration:  time.Minute,
		KeyPrefix: "ratelimit:",
	}
}

// Validate checks that the policy can be enforced.
func (p Policy) Validate() error {
	if p.Points <= 0 {
		return fmt.Errorf("%w: points must be positive", ErrInvalidPolicy)
	}
	if p.Duration <= 0 {
		return fmt.Errorf("%w: duration must be positive", ErrInvalidPolicy)
	}
	return nil
}

// Result describes a key's bucket after an operation.
type Result struct {
	// Limit is the point budget per window.
	Limit int
	// Consumed is the number of points consumed in the current window.
	Consumed int
	// Remaining is the number of points still available (never negative).
	Remaining int
	// ResetAfter is the time until the current window ends.
	ResetAfter time.Duration
}

// NewResult builds a Result from the consumed count, clamping Remaining at zero.
func NewResult(limit, consumed int, resetAfter time.Duration) Result {
	return Result{
		Limit:      limit,
		Consumed:   consumed,
		Remaining:  max(limit-consumed, 0),
		ResetAfter: max(resetAfter, 0),
	}
}

// Limiter decides whether a key may perform one more unit of work now.
type Limiter interface {
	// Consume charges one point to key. It returns an *ExceededError when
	// the key is over budget for the current window.
	Consume(ctx context.Context, key string) (Result, error)

	// Get returns the key's state without consuming.
	Get(ctx context.Context, key string) (Result, error)

	// Reset clears the key's bucket.
	Reset(ctx context.Context, key string) error
}

// ExceededError is the typed rejection returned when a key is over budget.
type ExceededError struct {
	// Key is the rate-limited key.
	Key string
	// RetryAfter is the wait until the window resets.
	RetryAfter time.Duration
	// Result is the bucket state at rejection.
	Result Result
}

// Error implements the error interface.
func (e *ExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %q: retry after %s", e.Key, e.RetryAfter.Round(time.Millisecond))
}

// Is allows errors.Is(err, ErrRateLimitExceeded).
func (e *ExceededError) Is(target error) bool {
	return target == ErrRateLimitExceeded
}

// Exceeded builds the rejection for key from an over-budget result.
func Exceeded(key string, res Result) *ExceededError {
	return &ExceededError{
		Key:        key,
		RetryAfter: res.ResetAfter,
		Result:     res,
	}
}

// IsRateLimited reports whether err is a rate-limit rejection and returns it.
func IsRateLimited(err error) (*ExceededError, bool) {
	var exceeded *ExceededError
	if errors.As(err, &exceeded) {
		return exceeded, true
	}
	return nil, false
}
