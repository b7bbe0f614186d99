package factory

import (
	"log/slog"

	"imgguard/internal/config"
	"imgguard/internal/management"
	"imgguard/pkg/factory"
)

// CreateManagement creates the management API component. Returns nil
// when management is disabled in the config.
func CreateManagement(cfg *config.Management, logger *slog.Logger) (*management.API, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}

	component, err := factory.BuildWithLogger(management.NewComponent(logger), *cfg, logger)
	if err != nil {
		return nil, err
	}
	return component.API(), nil
}
