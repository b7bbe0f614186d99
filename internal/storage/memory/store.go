package memory

import (
	"context"
	"sync"
	"time"

	"imgguard/internal/storage"
)

// entry represents a single fixed-window counter
type entry struct {
	count     int64
	expiresAt time.Time
}

// Store implements storage.QuotaStore using in-memory counters. It is
// intended for tests and single-process deployments; replicated setups
// need the Redis store so every replica sees the same counters.
type Store struct {
	entries map[string]*entry
	mu      sync.Mutex
	config  *storage.QuotaStoreConfig
	done    chan struct{}
	once    sync.Once
}

// NewStore creates a new memory store
func NewStore(config *storage.QuotaStoreConfig) *Store {
	if config == nil {
		config = storage.DefaultConfig()
	}

	s := &Store{
		entries: make(map[string]*entry),
		config:  config,
		done:    make(chan struct{}),
	}

	// Start cleanup routine
	if config.CleanupInterval > 0 {
		go s.cleanup()
	}

	return s
}

// Incr atomically increments the counter for key
func (s *Store) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}

	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.entries[key]
	if !exists || !e.expiresAt.After(now) {
		if !exists && s.config.MaxEntries > 0 && len(s.entries) >= s.config.MaxEntries {
			s.evictOldestLocked()
		}
		e = &entry{expiresAt: now.Add(window)}
		s.entries[key] = e
	}

	e.count++
	return e.count, e.expiresAt.Sub(now), nil
}

// Peek reads the counter for key without incrementing
func (s *Store) Peek(ctx context.Context, key string) (int64, time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}

	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.entries[key]
	if !exists || !e.expiresAt.After(now) {
		return 0, 0, nil
	}

	return e.count, e.expiresAt.Sub(now), nil
}

// Reset deletes the counters for the given keys
func (s *Store) Reset(ctx context.Context, keys ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range keys {
		delete(s.entries, key)
	}
	return nil
}

// Close closes the store
func (s *Store) Close() error {
	s.once.Do(func() {
		close(s.done)
	})
	return nil
}

// cleanup periodically removes expired entries
func (s *Store) cleanup() {
	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.removeExpired()
		}
	}
}

// removeExpired removes entries whose window has closed
func (s *Store) removeExpired() {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, e := range s.entries {
		if !e.expiresAt.After(now) {
			delete(s.entries, key)
		}
	}
}

// evictOldestLocked removes the entry closest to expiry. Caller holds s.mu.
func (s *Store) evictOldestLocked() {
	var oldestKey string
	var oldestTime time.Time
	first := true

	for key, e := range s.entries {
		if first || e.expiresAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = e.expiresAt
			first = false
		}
	}

	if oldestKey != "" {
		delete(s.entries, oldestKey)
	}
}
