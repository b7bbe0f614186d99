package redis

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// incrScript atomically increments a counter and starts its expiry
// window on first increment. Returning the PTTL alongside the count
// keeps count and reset time consistent under concurrent callers.
const incrScript = `
	local count = redis.call('INCR', KEYS[1])
	if count == 1 then
		redis.call('PEXPIRE', KEYS[1], ARGV[1])
	end
	local ttl = redis.call('PTTL', KEYS[1])
	return {count, ttl}
`

// peekScript reads a counter and its remaining window without mutating it
const peekScript = `
	local value = redis.call('GET', KEYS[1])
	if not value then
		return {0, -2}
	end
	return {tonumber(value), redis.call('PTTL', KEYS[1])}
`

// Store implements storage.QuotaStore using Redis fixed-window counters
type Store struct {
	client Client
}

// NewStore creates a new Redis-backed quota store
func NewStore(client Client) *Store {
	return &Store{client: client}
}

// Incr atomically increments the counter for key with expiry
func (s *Store) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	result, err := s.client.Eval(ctx, incrScript, []string{s.redisKey(key)}, window.Milliseconds())
	if err != nil {
		return 0, 0, fmt.Errorf("failed to execute quota incr script: %w", err)
	}

	return parseCountTTL(result)
}

// Peek reads the counter for key without incrementing
func (s *Store) Peek(ctx context.Context, key string) (int64, time.Duration, error) {
	result, err := s.client.Eval(ctx, peekScript, []string{s.redisKey(key)})
	if err != nil {
		return 0, 0, fmt.Errorf("failed to execute quota peek script: %w", err)
	}

	return parseCountTTL(result)
}

// Reset deletes the counters for the given keys
func (s *Store) Reset(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	redisKeys := make([]string, len(keys))
	for i, key := range keys {
		redisKeys[i] = s.redisKey(key)
	}

	if err := s.client.Del(ctx, redisKeys...); err != nil {
		return fmt.Errorf("failed to reset quota keys: %w", err)
	}
	return nil
}

// Close closes the store
func (s *Store) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// redisKey generates the Redis key for a quota key
func (s *Store) redisKey(key string) string {
	return fmt.Sprintf("quota:%s", key)
}

// parseCountTTL parses the {count, pttl} pair returned by the Lua scripts
func parseCountTTL(result interface{}) (int64, time.Duration, error) {
	res, ok := result.([]interface{})
	if !ok || len(res) != 2 {
		return 0, 0, errors.New("invalid quota script result")
	}

	count, ok1 := res[0].(int64)
	ttlMillis, ok2 := res[1].(int64)
	if !ok1 || !ok2 {
		return 0, 0, errors.New("invalid quota script result types")
	}

	// PTTL returns -2 for missing keys and -1 for keys without expiry
	if ttlMillis < 0 {
		return count, 0, nil
	}

	return count, time.Duration(ttlMillis) * time.Millisecond, nil
}
