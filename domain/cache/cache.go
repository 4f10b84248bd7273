// Package cache provides the domain contracts for the key/value cache layer.
package cache

import (
	"context"
	"time"
)

// DefaultTTL is applied when a value is stored without an explicit TTL.
const DefaultTTL = time.Hour

// Store defines a byte-level key/value store with per-entry expiry.
// Implementations may be in-memory, Redis, or any other backend.
type Store interface {
	// Get retrieves a value by key.
	// Returns the value, whether it was found, and any error.
	// Expired entries are reported as not found.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores a value under key, overwriting any existing entry and
	// restarting its TTL clock.
	Set(ctx context.Context, key string, value []byte, opts SetOptions) error

	// Delete removes a single entry. Deleting an absent key is a no-op.
	Delete(ctx context.Context, key string) error

	// DeletePrefix removes every entry whose key starts with prefix and
	// returns how many were removed. Keys written while the deletion is in
	// progress are not guaranteed to be removed.
	DeletePrefix(ctx context.Context, prefix string) (int, error)

	// Exists checks if a live entry exists for key.
	Exists(ctx context.Context, key string) (bool, error)

	// Flush unconditionally removes every entry from the store.
	Flush(ctx context.Context) error
}

// SetOptions configures how a value is stored.
type SetOptions struct {
	// TTL is the time-to-live for the entry.
	// Zero means DefaultTTL. Positive values below one second are rejected.
	TTL time.Duration
}

// EffectiveTTL resolves the TTL to apply, validating it.
func (o SetOptions) EffectiveTTL() (time.Duration, error) {
	switch {
	case o.TTL == 0:
		return DefaultTTL, nil
	case o.TTL < time.Second:
		return 0, ErrInvalidTTL
	default:
		return o.TTL, nil
	}
}

// Stats provides cache statistics.
type Stats struct {
	// Hits is the number of cache hits.
	Hits int64
	// Misses is the number of cache misses.
	Misses int64
	// Size is the current number of entries (0 when not tracked).
	Size int64
	// MaxSize is the maximum number of entries (0 = unlimited).
	MaxSize int64
}

// StatsProvider is an optional interface for stores that support statistics.
type StatsProvider interface {
	// Stats returns current cache statistics.
	Stats() Stats
}

// Closer is implemented by stores that hold connections.
type Closer interface {
	Close() error
}
