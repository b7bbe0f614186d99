package factory

import (
	"log/slog"
	"time"

	"imgguard/internal/config"
	"imgguard/internal/core"
	frontendhttp "imgguard/internal/frontend/http"
	guardtls "imgguard/pkg/tls"
)

// CreateHTTPAdapter creates the HTTP frontend from configuration
func CreateHTTPAdapter(cfg *config.HTTP, h core.Handler, logger *slog.Logger) *frontendhttp.Adapter {
	var tlsCfg *guardtls.Config
	if cfg.TLS != nil && cfg.TLS.Enabled {
		tlsCfg = &guardtls.Config{
			Enabled:    true,
			CertFile:   cfg.TLS.CertFile,
			KeyFile:    cfg.TLS.KeyFile,
			MinVersion: cfg.TLS.MinVersion,
		}
	}

	return frontendhttp.New(frontendhttp.Config{
		Host:         cfg.Host,
		Port:         cfg.Port,
		ReadTimeout:  time.Duration(cfg.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeout) * time.Second,
		TLS:          tlsCfg,
	}, h).WithLogger(logger)
}
