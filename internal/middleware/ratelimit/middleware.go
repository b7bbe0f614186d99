// Package ratelimit wires the quota limiter into the request chain. The
// limiter itself lives in internal/ratelimit; this package only resolves
// the caller identity, applies the store-failure policy, and decorates
// responses with quota headers.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"

	"imgguard/internal/core"
	"imgguard/internal/identity"
	"imgguard/internal/ratelimit"
	"imgguard/pkg/errors"
	"imgguard/pkg/metrics"
)

// Config holds rate limit middleware configuration
type Config struct {
	// Limiter performs the quota checks
	Limiter *ratelimit.Limiter
	// FailOpen admits requests when the quota store is unreachable.
	// Default is fail-closed: store outages deny with 503.
	FailOpen bool
	// Logger for logging
	Logger *slog.Logger
	// Metrics is optional
	Metrics *metrics.Metrics
	// ExemptPaths bypass quota checks entirely. Health probes and the
	// quota status endpoint must not consume quota.
	ExemptPaths []string
}

// Middleware creates rate limiting middleware
func Middleware(cfg *Config) core.Middleware {
	return func(next core.Handler) core.Handler {
		return func(ctx context.Context, req core.Request) (core.Response, error) {
			for _, p := range cfg.ExemptPaths {
				if req.Path() == p {
					return next(ctx, req)
				}
			}

			id := identity.Resolve(req)
			authed := identity.IsAuthenticated(req)

			decision, err := cfg.Limiter.Check(ctx, id, authed)
			if err != nil {
				return handleCheckError(cfg, ctx, req, next, err)
			}

			if cfg.Metrics != nil {
				cfg.Metrics.RateLimitAllowed.WithLabelValues(scopeLabel(authed)).Inc()
			}

			resp, err := next(ctx, req)
			if err != nil {
				return nil, err
			}

			setQuotaHeaders(resp, decision)
			return resp, nil
		}
	}
}

func handleCheckError(cfg *Config, ctx context.Context, req core.Request, next core.Handler, err error) (core.Response, error) {
	code := errors.CodeOf(err)

	if code == errors.CodeInfraUnavailable {
		if cfg.Metrics != nil {
			cfg.Metrics.QuotaStoreFailures.Inc()
		}

		if cfg.FailOpen {
			// Explicit policy choice: admit the request and say so,
			// rather than silently absorbing the outage.
			if cfg.Logger != nil {
				cfg.Logger.Warn("quota store unavailable, failing open",
					"path", req.Path(),
					"error", err,
				)
			}
			return next(ctx, req)
		}

		if cfg.Logger != nil {
			cfg.Logger.Error("quota store unavailable, failing closed",
				"path", req.Path(),
				"error", err,
			)
		}
		return nil, err
	}

	if code == errors.CodeRateLimited {
		if cfg.Metrics != nil {
			var guardErr *errors.Error
			scope := "unknown"
			if errors.As(err, &guardErr) {
				if s, ok := guardErr.Details["scope"].(string); ok {
					scope = s
				}
			}
			cfg.Metrics.RateLimitRejected.WithLabelValues(scope).Inc()
		}

		if cfg.Logger != nil {
			cfg.Logger.Warn("rate limit exceeded",
				"path", req.Path(),
				"method", req.Method(),
				"error", err,
			)
		}
		return nil, err
	}

	return nil, err
}

func setQuotaHeaders(resp core.Response, d ratelimit.Decision) {
	headers := resp.Headers()
	if headers == nil {
		return
	}
	headers["X-Ratelimit-Limit"] = []string{fmt.Sprintf("%d", d.Limit)}
	headers["X-Ratelimit-Remaining"] = []string{fmt.Sprintf("%d", d.Remaining)}
	headers["X-Ratelimit-Reset"] = []string{fmt.Sprintf("%d", d.Reset.Unix())}
}

func scopeLabel(authenticated bool) string {
	if authenticated {
		return string(ratelimit.ScopeAuthenticated)
	}
	return string(ratelimit.ScopeAnonymous)
}
