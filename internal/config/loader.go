package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"imgguard/internal/imageproxy"
	"imgguard/pkg/errors"
)

// Loader loads configuration from file
type Loader struct {
	path       string
	envEnabled bool
}

// NewLoader creates a config loader
func NewLoader(path string) *Loader {
	return &Loader{
		path:       path,
		envEnabled: true,
	}
}

// WithEnvVars enables or disables environment variable loading
func (l *Loader) WithEnvVars(enabled bool) *Loader {
	l.envEnabled = enabled
	return l
}

// Load loads the configuration
func (l *Loader) Load() (*Config, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, errors.New(errors.CodeInternal, "failed to read config file").WithCause(err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.New(errors.CodeInternal, "failed to parse config").WithCause(err)
	}

	if l.envEnabled {
		if err := LoadEnv(&cfg); err != nil {
			return nil, errors.New(errors.CodeInternal, "failed to load env vars").WithCause(err)
		}
	}

	if err := Validate(&cfg); err != nil {
		return nil, errors.New(errors.CodeInvalidRequest, "invalid configuration").WithCause(err)
	}

	return &cfg, nil
}

// Load reads, applies env overrides, and validates the config at path.
func Load(path string) (*Config, error) {
	return NewLoader(path).Load()
}

// Validate checks the configuration for structural mistakes. It is also
// run against reloaded configs before they are applied.
func Validate(cfg *Config) error {
	g := &cfg.Guard

	if g.Frontend.HTTP.Port <= 0 || g.Frontend.HTTP.Port > 65535 {
		return fmt.Errorf("invalid frontend HTTP port: %d", g.Frontend.HTTP.Port)
	}

	switch g.Storage.Type {
	case "memory":
		// Memory section is optional; defaults apply.
	case "redis":
		if g.Storage.Redis == nil || len(g.Storage.Redis.Addresses) == 0 {
			return fmt.Errorf("redis storage requires at least one address")
		}
	default:
		return fmt.Errorf("unknown storage type: %q", g.Storage.Type)
	}

	if err := g.RateLimit.ToRateLimitConfig().Validate(); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}

	if len(g.ImageProxy.AllowedHosts) == 0 {
		return fmt.Errorf("at least one allowed host is required")
	}
	if g.ImageProxy.MaxBytes <= 0 {
		return fmt.Errorf("image max bytes must be positive")
	}
	if g.ImageProxy.FetchTimeout <= 0 {
		return fmt.Errorf("image fetch timeout must be positive")
	}
	if g.ImageProxy.MaxDimension <= 0 {
		return fmt.Errorf("image max dimension must be positive")
	}
	for _, f := range g.ImageProxy.AllowedFormats {
		switch imageproxy.Format(f) {
		case imageproxy.FormatWebP, imageproxy.FormatPNG, imageproxy.FormatJPEG, imageproxy.FormatAVIF:
		default:
			return fmt.Errorf("unknown output format: %q", f)
		}
	}

	if g.Management.Enabled {
		if g.Management.Port <= 0 || g.Management.Port > 65535 {
			return fmt.Errorf("invalid management port: %d", g.Management.Port)
		}
		if g.Management.JWTSecret == "" {
			return fmt.Errorf("management API requires a JWT secret")
		}
	}

	return nil
}
