package app

import (
	"context"
	"fmt"
	"log/slog"

	"imgguard/internal/app/factory"
	"imgguard/internal/config"
	"imgguard/internal/core"
	"imgguard/internal/telemetry"
)

// Builder builds the imgguard application
type Builder struct {
	config     *config.Config
	configPath string
	logger     *slog.Logger
}

// NewBuilder creates a new application builder
func NewBuilder(cfg *config.Config, logger *slog.Logger) *Builder {
	return &Builder{
		config: cfg,
		logger: logger,
	}
}

// WithConfigPath enables hot reload: the server watches the file and
// applies allowlist and limit changes without a restart.
func (b *Builder) WithConfigPath(path string) *Builder {
	b.configPath = path
	return b
}

// Build constructs the server. The quota store, metrics registry and
// telemetry provider are created once and survive config reloads; the
// request pipeline (limiter, validator, fetcher, handler, middleware)
// is rebuilt on every reload and swapped in atomically.
func (b *Builder) Build() (*Server, error) {
	tel, err := factory.CreateTelemetry(b.config.Guard.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("creating telemetry: %w", err)
	}

	m := factory.CreateMetrics()

	store, err := factory.CreateQuotaStore(&b.config.Guard.Storage, b.logger)
	if err != nil {
		return nil, fmt.Errorf("creating quota store: %w", err)
	}

	s := &Server{
		configPath: b.configPath,
		store:      store,
		metrics:    m,
		telemetry:  tel,
		logger:     b.logger,
	}

	p, err := s.buildPipeline(b.config)
	if err != nil {
		return nil, err
	}
	s.current.Store(p)

	// The adapter holds a stable handler; reloads swap the pipeline
	// underneath it.
	var dynamic core.Handler = func(ctx context.Context, req core.Request) (core.Response, error) {
		return s.current.Load().handler(ctx, req)
	}

	adapter := factory.CreateHTTPAdapter(&b.config.Guard.Frontend.HTTP, dynamic, b.logger)
	if b.config.Guard.Telemetry.Metrics.Enabled {
		adapter.WithMetricsHandler(factory.CreateMetricsHandler())
		if path := b.config.Guard.Telemetry.Metrics.Path; path != "" {
			adapter.WithMetricsPath(path)
		}
		b.logger.Info("Metrics enabled", "path", b.config.Guard.Telemetry.Metrics.Path)
	}
	if tel != nil {
		adapter.WithHTTPMiddleware(telemetry.NewMiddleware(tel).WrapHTTP)
	}
	s.httpAdapter = adapter

	mgmt, err := factory.CreateManagement(&b.config.Guard.Management, b.logger)
	if err != nil {
		return nil, fmt.Errorf("creating management API: %w", err)
	}
	if mgmt != nil {
		mgmt.SetLimiter(p.limiter)
		mgmt.SetConfigView(s.CurrentConfig)
		mgmt.SetReloadFunc(s.ReloadFromFile)
		s.management = mgmt
		b.logger.Info("Management API enabled", "port", b.config.Guard.Management.Port)
	}

	return s, nil
}
