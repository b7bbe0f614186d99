// Package factory assembles the service components from configuration.
package factory

import (
	"log/slog"
	"net/http"
	"time"

	"imgguard/internal/circuitbreaker"
	"imgguard/internal/config"
	"imgguard/internal/handler"
	"imgguard/internal/imageproxy"
	"imgguard/internal/metrics"
	"imgguard/internal/ratelimit"
	"imgguard/internal/storage"
	"imgguard/internal/storage/memory"
	storageredis "imgguard/internal/storage/redis"
	pkgmetrics "imgguard/pkg/metrics"
)

// CreateMetrics creates a new metrics instance
func CreateMetrics() *pkgmetrics.Metrics {
	return pkgmetrics.New()
}

// CreateMetricsHandler creates the Prometheus metrics HTTP handler
func CreateMetricsHandler() http.Handler {
	return metrics.Handler()
}

// CreateQuotaStore creates the quota store backend named by the config
func CreateQuotaStore(cfg *config.Storage, logger *slog.Logger) (storage.QuotaStore, error) {
	switch cfg.Type {
	case "redis":
		client, err := CreateRedisClient(cfg.Redis, logger)
		if err != nil {
			return nil, err
		}
		return storageredis.NewStore(storageredis.NewClientAdapter(client)), nil

	default: // validated earlier; anything else is "memory"
		storeCfg := storage.DefaultConfig()
		if cfg.Memory != nil {
			if cfg.Memory.CleanupInterval > 0 {
				storeCfg.CleanupInterval = time.Duration(cfg.Memory.CleanupInterval) * time.Second
			}
			if cfg.Memory.MaxEntries > 0 {
				storeCfg.MaxEntries = cfg.Memory.MaxEntries
			}
		}
		return memory.NewStore(storeCfg), nil
	}
}

// CreateLimiter creates the rate limiter over the given store
func CreateLimiter(cfg *config.RateLimit, store storage.QuotaStore, logger *slog.Logger) (*ratelimit.Limiter, error) {
	rlConfig := cfg.ToRateLimitConfig()
	if err := rlConfig.Validate(); err != nil {
		return nil, err
	}
	return ratelimit.New(store, rlConfig, logger), nil
}

// CreateProxy creates the image proxy pipeline: validator, fetcher,
// orchestrator.
func CreateProxy(cfg *config.ImageProxy, m *pkgmetrics.Metrics, logger *slog.Logger) *imageproxy.Proxy {
	validator := imageproxy.NewValidator(cfg.AllowedHosts, nil)
	fetcher := imageproxy.NewFetcher(
		&http.Client{},
		cfg.MaxBytes,
		time.Duration(cfg.FetchTimeout)*time.Second,
		logger,
	)
	return imageproxy.NewProxy(validator, fetcher, logger, m).
		WithCircuitBreaker(circuitbreaker.DefaultConfig()).
		WithSourceLimit(cfg.MaxDimension)
}

// CreateHandler creates the public API handler
func CreateHandler(cfg *config.ImageProxy, proxy *imageproxy.Proxy, limiter *ratelimit.Limiter, logger *slog.Logger) *handler.Handler {
	return handler.New(proxy, limiter, cfg.ToRequestLimits(), logger)
}
