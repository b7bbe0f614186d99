package management

import (
	"fmt"
	"log/slog"

	"imgguard/internal/config"
	"imgguard/pkg/factory"
)

// ComponentName is the name used to register this component
const ComponentName = "management-api"

// Component implements factory.Component for the management API
type Component struct {
	config *config.Management
	api    *API
	logger *slog.Logger
}

// NewComponent creates a new management API component
func NewComponent(logger *slog.Logger) *Component {
	return &Component{
		logger: logger,
	}
}

// Name returns the component name
func (c *Component) Name() string {
	return ComponentName
}

// Init initializes the component with configuration
func (c *Component) Init(parser factory.ConfigParser) error {
	var mgmtConfig config.Management
	if err := parser(&mgmtConfig); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}

	c.config = &mgmtConfig

	if c.config.Enabled {
		c.api = NewAPI(c.config, c.logger)
	}

	return nil
}

// Validate validates the component state
func (c *Component) Validate() error {
	if c.config == nil {
		return fmt.Errorf("management config not initialized")
	}

	if c.config.Enabled {
		if c.api == nil {
			return fmt.Errorf("management enabled but API not created")
		}
		if c.config.JWTSecret == "" {
			return fmt.Errorf("management enabled without a JWT secret")
		}
	}

	return nil
}

// API returns the built API, or nil when management is disabled
func (c *Component) API() *API {
	return c.api
}
