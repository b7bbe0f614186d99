package storage

import (
	"context"
	"time"
)

// QuotaStore defines the interface for durable request counters. All
// mutable rate-limit state lives behind this interface; the limiter on
// top of it is stateless and safe for arbitrary concurrent callers.
type QuotaStore interface {
	// Incr atomically increments the counter for key, starting a new
	// window of the given length on first increment. It returns the
	// count after increment and the time left until the window closes.
	Incr(ctx context.Context, key string, window time.Duration) (count int64, ttl time.Duration, err error)

	// Peek reads the counter without incrementing it. A missing key
	// reads as count 0 with zero ttl.
	Peek(ctx context.Context, key string) (count int64, ttl time.Duration, err error)

	// Reset deletes the counters for the given keys
	Reset(ctx context.Context, keys ...string) error

	// Close closes the store and releases resources
	Close() error
}

// QuotaStoreConfig defines common configuration for quota stores
type QuotaStoreConfig struct {
	// CleanupInterval is how often to clean up expired entries
	CleanupInterval time.Duration
	// MaxEntries is the maximum number of entries to keep (0 = unlimited)
	MaxEntries int
}

// DefaultConfig returns default configuration
func DefaultConfig() *QuotaStoreConfig {
	return &QuotaStoreConfig{
		CleanupInterval: 5 * time.Minute,
		MaxEntries:      100000, // Prevent unbounded memory growth
	}
}
