package factory

import (
	"log/slog"

	"imgguard/internal/config"
	"imgguard/internal/core"
	"imgguard/internal/middleware"
	metricsmw "imgguard/internal/middleware/metrics"
	ratelimitmw "imgguard/internal/middleware/ratelimit"
	"imgguard/internal/middleware/recovery"
	"imgguard/internal/ratelimit"
	pkgmetrics "imgguard/pkg/metrics"
)

// ApplyMiddleware wraps the handler with the standard middleware chain.
// Recovery runs outermost so panics in any layer are caught; rate
// limiting runs last so rejected requests never reach the handler but
// are still logged and counted.
func ApplyMiddleware(h core.Handler, cfg *config.RateLimit, limiter *ratelimit.Limiter, m *pkgmetrics.Metrics, logger *slog.Logger) core.Handler {
	chain := middleware.Chain(
		recovery.Middleware(recovery.Config{StackTrace: true}, logger),
		middleware.Logging(logger),
		metricsmw.Middleware(m),
		ratelimitmw.Middleware(&ratelimitmw.Config{
			Limiter:     limiter,
			FailOpen:    cfg.FailOpen,
			Logger:      logger,
			Metrics:     m,
			ExemptPaths: []string{"/healthz", "/v1/quota"},
		}),
	)
	return chain(h)
}
