package middleware

import (
	"context"
	"log/slog"
	"time"

	"imgguard/internal/core"
)

// Chain combines multiple middleware
func Chain(middlewares ...core.Middleware) core.Middleware {
	return func(next core.Handler) core.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

// Logging adds request logging
func Logging(logger *slog.Logger) core.Middleware {
	return func(next core.Handler) core.Handler {
		return func(ctx context.Context, req core.Request) (core.Response, error) {
			start := time.Now()

			logger.Info("request",
				"id", req.ID(),
				"method", req.Method(),
				"path", req.Path(),
			)

			resp, err := next(ctx, req)

			logger.Info("response",
				"id", req.ID(),
				"duration", time.Since(start),
				"error", err,
			)

			return resp, err
		}
	}
}
