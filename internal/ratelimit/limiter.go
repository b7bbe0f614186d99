// Package ratelimit implements the multi-tier quota check guarding
// inbound requests. The limiter itself is stateless: every durable
// counter lives in the QuotaStore, so any number of replicas can share
// one quota space.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"imgguard/internal/storage"
	"imgguard/pkg/errors"
)

// Scope is a counter namespace. A request is always evaluated against
// exactly one identity scope (anon or auth) and against burst.
type Scope string

const (
	ScopeAnonymous     Scope = "anon"
	ScopeAuthenticated Scope = "auth"
	ScopeBurst         Scope = "burst"
)

// ScopeLimit configures one scope's quota
type ScopeLimit struct {
	// Limit is the maximum number of requests per window
	Limit int
	// Window is the counting interval
	Window time.Duration
}

// Config holds per-scope limits
type Config struct {
	Anonymous     ScopeLimit
	Authenticated ScopeLimit
	Burst         ScopeLimit
}

// DefaultConfig returns the default limits: 60/hour anonymous,
// 120/hour authenticated, 10 per 10 seconds burst.
func DefaultConfig() Config {
	return Config{
		Anonymous:     ScopeLimit{Limit: 60, Window: time.Hour},
		Authenticated: ScopeLimit{Limit: 120, Window: time.Hour},
		Burst:         ScopeLimit{Limit: 10, Window: 10 * time.Second},
	}
}

// Validate checks config-time invariants. The authenticated limit must
// be at least the anonymous limit; presenting a credential must never
// shrink a caller's quota.
func (c Config) Validate() error {
	for _, s := range []struct {
		name  string
		limit ScopeLimit
	}{
		{"anonymous", c.Anonymous},
		{"authenticated", c.Authenticated},
		{"burst", c.Burst},
	} {
		if s.limit.Limit <= 0 {
			return fmt.Errorf("%s limit must be positive, got %d", s.name, s.limit.Limit)
		}
		if s.limit.Window <= 0 {
			return fmt.Errorf("%s window must be positive, got %v", s.name, s.limit.Window)
		}
	}

	if c.Authenticated.Limit < c.Anonymous.Limit {
		return fmt.Errorf("authenticated limit (%d) must be >= anonymous limit (%d)",
			c.Authenticated.Limit, c.Anonymous.Limit)
	}

	return nil
}

// Decision is the outcome of one quota evaluation. It is produced fresh
// on every call and never persisted; the store holds the durable state.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	Reset     time.Time
}

// Limiter evaluates requests against the configured scopes
type Limiter struct {
	store  storage.QuotaStore
	config Config
	logger *slog.Logger
}

// New creates a limiter backed by the given quota store
func New(store storage.QuotaStore, config Config, logger *slog.Logger) *Limiter {
	return &Limiter{
		store:  store,
		config: config,
		logger: logger.With("component", "ratelimit"),
	}
}

// Check consumes one unit of quota for the identifier in both its
// identity scope and the burst scope. On denial it returns a
// RATE_LIMITED error populated from the denying scope; on store failure
// it returns INFRASTRUCTURE_UNAVAILABLE and the caller decides whether
// to fail open or closed.
func (l *Limiter) Check(ctx context.Context, identifier string, authenticated bool) (Decision, error) {
	identityScope, identityLimit := l.identityScope(authenticated)

	identityDecision, err := l.consume(ctx, identityScope, identifier, identityLimit)
	if err != nil {
		return Decision{}, err
	}

	burstDecision, err := l.consume(ctx, ScopeBurst, identifier, l.config.Burst)
	if err != nil {
		return Decision{}, err
	}

	// Both scopes are always consumed; the first exceeded scope, in
	// identity-then-burst order, names the denial.
	if !identityDecision.Allowed {
		return identityDecision, l.deniedError(identityScope, identityLimit, identityDecision)
	}
	if !burstDecision.Allowed {
		return burstDecision, l.deniedError(ScopeBurst, l.config.Burst, burstDecision)
	}

	return identityDecision, nil
}

// Status reads the identifier's quota state without consuming any. Two
// consecutive Status calls with no intervening Check return identical
// remaining counts.
func (l *Limiter) Status(ctx context.Context, identifier string, authenticated bool) (Decision, error) {
	scope, limit := l.identityScope(authenticated)

	count, ttl, err := l.store.Peek(ctx, key(scope, identifier))
	if err != nil {
		return Decision{}, l.storeError(err)
	}

	return decisionFor(limit, count, ttl), nil
}

// Reset clears the identifier's counters across all scopes. This is an
// administrative operation, not part of the request path.
func (l *Limiter) Reset(ctx context.Context, identifier string) error {
	keys := []string{
		key(ScopeAnonymous, identifier),
		key(ScopeAuthenticated, identifier),
		key(ScopeBurst, identifier),
	}

	if err := l.store.Reset(ctx, keys...); err != nil {
		return l.storeError(err)
	}

	l.logger.Info("quota reset", "identifier", identifier)
	return nil
}

// consume increments one scope and evaluates its limit
func (l *Limiter) consume(ctx context.Context, scope Scope, identifier string, limit ScopeLimit) (Decision, error) {
	count, ttl, err := l.store.Incr(ctx, key(scope, identifier), limit.Window)
	if err != nil {
		return Decision{}, l.storeError(err)
	}

	return decisionFor(limit, count, ttl), nil
}

func (l *Limiter) identityScope(authenticated bool) (Scope, ScopeLimit) {
	if authenticated {
		return ScopeAuthenticated, l.config.Authenticated
	}
	return ScopeAnonymous, l.config.Anonymous
}

func (l *Limiter) deniedError(scope Scope, limit ScopeLimit, d Decision) error {
	retryAfter := retryAfterSeconds(d.Reset, limit.Window)

	l.logger.Warn("rate limit exceeded",
		"scope", string(scope),
		"limit", limit.Limit,
		"retryAfterSeconds", retryAfter,
	)

	return errors.New(errors.CodeRateLimited, "rate limit exceeded").
		WithDetail("scope", string(scope)).
		WithDetail("limit", d.Limit).
		WithDetail("remaining", d.Remaining).
		WithDetail("reset", d.Reset.Unix()).
		WithDetail("retryAfterSeconds", retryAfter)
}

func (l *Limiter) storeError(err error) error {
	return errors.New(errors.CodeInfraUnavailable, "quota store unavailable").WithCause(err)
}

// decisionFor builds a Decision from raw counter state. A zero ttl
// means no live window, so the reset instant is a full window away.
func decisionFor(limit ScopeLimit, count int64, ttl time.Duration) Decision {
	if ttl <= 0 {
		ttl = limit.Window
	}

	remaining := limit.Limit - int(count)
	if remaining < 0 {
		remaining = 0
	}

	return Decision{
		Allowed:   count <= int64(limit.Limit),
		Limit:     limit.Limit,
		Remaining: remaining,
		Reset:     time.Now().Add(ttl),
	}
}

// retryAfterSeconds computes ceil(reset-now) clamped to [0, window]
func retryAfterSeconds(reset time.Time, window time.Duration) int {
	seconds := int(math.Ceil(time.Until(reset).Seconds()))
	if seconds < 0 {
		seconds = 0
	}
	if windowSeconds := int(window.Seconds()); seconds > windowSeconds {
		seconds = windowSeconds
	}
	return seconds
}

func key(scope Scope, identifier string) string {
	return fmt.Sprintf("%s:%s", scope, identifier)
}
