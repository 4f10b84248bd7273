package ratelimit

import "errors"

// Domain errors for rate limiting.
var (
	// ErrRateLimitExceeded indicates the key's point budget is exhausted.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrInvalidPolicy indicates the policy cannot be enforced.
	ErrInvalidPolicy = errors.New("invalid rate limit policy")

	// ErrInvalidKey indicates an empty key.
	ErrInvalidKey = errors.New("invalid rate limit key")

	// ErrLimiterUnavailable indicates the limiter backend could not be reached.
	ErrLimiterUnavailable = errors.New("rate limiter unavailable")
)
