package resilience

import "time"

// BreakerConfig configures a BreakerStore.
type BreakerConfig struct {
	// Name identifies the breaker in logs.
	Name string

	// Threshold is the number of consecutive infrastructure failures
	// before the circuit opens.
	Threshold int

	// Timeout is how long the circuit stays open before probing.
	Timeout time.Duration

	// HalfOpenRequests is the number of probes allowed while half-open.
	HalfOpenRequests int

	// OnStateChange is called after each transition.
	OnStateChange func(name string, from, to string)
}

// DefaultBreakerConfig returns a configuration with sensible defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:             "cache",
		Threshold:        5,
		Timeout:          30 * time.Second,
		HalfOpenRequests: 1,
	}
}

// Option configures the breaker.
type Option func(*BreakerConfig)

// WithName sets the breaker name.
func WithName(name string) Option {
	return func(c *BreakerConfig) {
		c.Name = name
	}
}

// WithThreshold sets the consecutive failure threshold.
func WithThreshold(n int) Option {
	return func(c *BreakerConfig) {
		c.Threshold = n
	}
}

// WithTimeout sets the open duration.
func WithTimeout(d time.Duration) Option {
	return func(c *BreakerConfig) {
		c.Timeout = d
	}
}

// WithHalfOpenRequests sets the number of half-open probes.
func WithHalfOpenRequests(n int) Option {
	return func(c *BreakerConfig) {
		c.HalfOpenRequests = n
	}
}

// WithStateChange registers a transition callback.
func WithStateChange(fn func(name string, from, to string)) Option {
	return func(c *BreakerConfig) {
		c.OnStateChange = fn
	}
}
