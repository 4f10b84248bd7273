package cache

import "errors"

// Domain errors for cache operations.
var (
	// ErrInvalidKey is returned when a key is invalid (e.g., empty).
	ErrInvalidKey = errors.New("invalid cache key")

	// ErrInvalidTTL is returned when a positive TTL is below one second.
	ErrInvalidTTL = errors.New("cache ttl must be at least one second")

	// ErrConnectionFailed is returned when connection to the cache backend fails.
	ErrConnectionFailed = errors.New("cache connection failed")

	// ErrOperationTimeout is returned when a cache operation times out.
	ErrOperationTimeout = errors.New("cache operation timeout")

	// ErrCorruptValue is returned when a stored value cannot be decoded.
	ErrCorruptValue = errors.New("cache value is corrupt")

	// ErrUnsupportedValue is returned when a value cannot be represented as JSON.
	ErrUnsupportedValue = errors.New("cache value is not serializable")

	// ErrCircuitOpen is returned when the store is short-circuited after repeated failures.
	ErrCircuitOpen = errors.New("cache circuit open")
)

// IsInfrastructure reports whether err is a backend failure a caller may
// choose to absorb by recomputing, as opposed to a data or usage error.
func IsInfrastructure(err error) bool {
	return errors.Is(err, ErrConnectionFailed) ||
		errors.Is(err, ErrOperationTimeout) ||
		errors.Is(err, ErrCircuitOpen)
}
