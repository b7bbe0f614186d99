package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"imgguard/internal/app/factory"
	"imgguard/internal/config"
	"imgguard/internal/core"
	frontendhttp "imgguard/internal/frontend/http"
	"imgguard/internal/management"
	"imgguard/internal/ratelimit"
	"imgguard/internal/storage"
	"imgguard/internal/telemetry"
	pkgmetrics "imgguard/pkg/metrics"
)

// pipeline is the per-config part of the server: everything that a
// reload rebuilds. The quota store and metrics registry are shared
// across pipelines so counters and consumed quota survive reloads.
type pipeline struct {
	handler core.Handler
	limiter *ratelimit.Limiter
	config  *config.Config
}

// Server represents the imgguard server
type Server struct {
	configPath  string
	store       storage.QuotaStore
	metrics     *pkgmetrics.Metrics
	telemetry   *telemetry.Telemetry
	httpAdapter *frontendhttp.Adapter
	management  *management.API
	watcher     *config.Watcher
	logger      *slog.Logger

	current atomic.Pointer[pipeline]
}

// NewServer creates a new imgguard server
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	return NewBuilder(cfg, logger).Build()
}

// CurrentConfig returns the configuration of the active pipeline
func (s *Server) CurrentConfig() *config.Config {
	return s.current.Load().config
}

// buildPipeline assembles a request pipeline from cfg, reusing the
// server's quota store and metrics.
func (s *Server) buildPipeline(cfg *config.Config) (*pipeline, error) {
	limiter, err := factory.CreateLimiter(&cfg.Guard.RateLimit, s.store, s.logger)
	if err != nil {
		return nil, fmt.Errorf("creating limiter: %w", err)
	}

	proxy := factory.CreateProxy(&cfg.Guard.ImageProxy, s.metrics, s.logger)
	h := factory.CreateHandler(&cfg.Guard.ImageProxy, proxy, limiter, s.logger)

	return &pipeline{
		handler: factory.ApplyMiddleware(h.Handle, &cfg.Guard.RateLimit, limiter, s.metrics, s.logger),
		limiter: limiter,
		config:  cfg,
	}, nil
}

// ApplyConfig swaps in a new request pipeline built from cfg. Storage
// and frontend changes cannot be applied live and are rejected; all
// rate limit and image proxy settings take effect immediately.
func (s *Server) ApplyConfig(cfg *config.Config) error {
	old := s.current.Load()

	if cfg.Guard.Storage.Type != old.config.Guard.Storage.Type {
		return fmt.Errorf("storage type change requires restart")
	}
	if cfg.Guard.Frontend.HTTP.Port != old.config.Guard.Frontend.HTTP.Port {
		return fmt.Errorf("frontend port change requires restart")
	}

	p, err := s.buildPipeline(cfg)
	if err != nil {
		return err
	}

	s.current.Store(p)
	if s.management != nil {
		s.management.SetLimiter(p.limiter)
	}

	s.logger.Info("configuration applied",
		"allowedHosts", len(cfg.Guard.ImageProxy.AllowedHosts),
		"anonymousLimit", cfg.Guard.RateLimit.Anonymous.Limit,
	)
	return nil
}

// ReloadFromFile re-reads the config file and applies it
func (s *Server) ReloadFromFile() error {
	if s.configPath == "" {
		return fmt.Errorf("no config file to reload from")
	}
	cfg, err := config.Load(s.configPath)
	if err != nil {
		return err
	}
	return s.ApplyConfig(cfg)
}

// Start starts the server
//
// This method is non-blocking and returns after the frontend and the
// management API (when enabled) are listening. The server keeps
// running until Stop is called.
func (s *Server) Start(ctx context.Context) error {
	cfg := s.CurrentConfig()

	s.logger.Info("Starting HTTP server",
		"host", cfg.Guard.Frontend.HTTP.Host,
		"port", cfg.Guard.Frontend.HTTP.Port,
	)
	if err := s.httpAdapter.Start(ctx); err != nil {
		return fmt.Errorf("HTTP server: %w", err)
	}

	if s.management != nil {
		if err := s.management.Start(ctx); err != nil {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			s.httpAdapter.Stop(stopCtx)
			return fmt.Errorf("management API: %w", err)
		}
	}

	if s.configPath != "" {
		if err := s.startWatcher(); err != nil {
			// Hot reload is a convenience; the server still runs.
			s.logger.Warn("config watcher unavailable", "error", err)
		}
	}

	s.logger.Info("Server started successfully")
	return nil
}

func (s *Server) startWatcher() error {
	watcherCfg := config.DefaultWatcherConfig()
	watcherCfg.OnChange = func(newConfig *config.Config) error {
		return s.ApplyConfig(newConfig)
	}
	watcherCfg.OnError = func(err error) {
		s.logger.Error("config reload rejected", "error", err)
	}

	w, err := config.NewWatcher(s.configPath, watcherCfg, s.logger)
	if err != nil {
		return err
	}
	w.Start()
	s.watcher = w
	s.logger.Info("Config hot reload enabled", "path", s.configPath)
	return nil
}

// Stop stops the server
func (s *Server) Stop(ctx context.Context) error {
	if s.watcher != nil {
		if err := s.watcher.Stop(); err != nil {
			s.logger.Error("stopping config watcher", "error", err)
		}
	}

	var wg sync.WaitGroup
	var errs []error
	errMu := sync.Mutex{}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := s.httpAdapter.Stop(ctx); err != nil {
			errMu.Lock()
			errs = append(errs, fmt.Errorf("stopping HTTP server: %w", err))
			errMu.Unlock()
		}
	}()

	if s.management != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.management.Stop(ctx); err != nil {
				errMu.Lock()
				errs = append(errs, fmt.Errorf("stopping management API: %w", err))
				errMu.Unlock()
			}
		}()
	}

	wg.Wait()

	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing quota store: %w", err))
		}
	}
	if s.telemetry != nil {
		if err := s.telemetry.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutting down telemetry: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	s.logger.Info("Server stopped successfully")
	return nil
}
