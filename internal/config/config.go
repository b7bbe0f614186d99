package config

import (
	"time"

	"imgguard/internal/imageproxy"
	"imgguard/internal/ratelimit"
	"imgguard/internal/telemetry"
)

// Config holds service configuration
type Config struct {
	Guard Guard `yaml:"guard"`
}

// Guard configuration
type Guard struct {
	Frontend   Frontend         `yaml:"frontend"`
	Storage    Storage          `yaml:"storage"`
	RateLimit  RateLimit        `yaml:"rateLimit"`
	ImageProxy ImageProxy       `yaml:"imageProxy"`
	Management Management       `yaml:"management"`
	Telemetry  telemetry.Config `yaml:"telemetry"`
}

// Frontend configuration
type Frontend struct {
	HTTP HTTP `yaml:"http"`
}

// HTTP configuration
type HTTP struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	ReadTimeout  int    `yaml:"readTimeout"`
	WriteTimeout int    `yaml:"writeTimeout"`
	TLS          *TLS   `yaml:"tls,omitempty"`
}

// TLS configuration
type TLS struct {
	Enabled    bool   `yaml:"enabled"`
	CertFile   string `yaml:"certFile"`
	KeyFile    string `yaml:"keyFile"`
	MinVersion string `yaml:"minVersion,omitempty"`
}

// Storage selects and configures the quota store backend
type Storage struct {
	Type   string  `yaml:"type"` // "memory" or "redis"
	Redis  *Redis  `yaml:"redis,omitempty"`
	Memory *Memory `yaml:"memory,omitempty"`
}

// Redis configuration for the quota store
type Redis struct {
	Addresses []string `yaml:"addresses"`
	Password  string   `yaml:"password"`
	DB        int      `yaml:"db"`
	PoolSize  int      `yaml:"poolSize"`
}

// Memory configuration for the in-process quota store
type Memory struct {
	CleanupInterval int `yaml:"cleanupInterval"` // seconds
	MaxEntries      int `yaml:"maxEntries"`
}

// RateLimit configures the quota scopes
type RateLimit struct {
	Anonymous     Scope `yaml:"anonymous"`
	Authenticated Scope `yaml:"authenticated"`
	Burst         Scope `yaml:"burst"`
	FailOpen      bool  `yaml:"failOpen"`
}

// Scope is one limit/window pair
type Scope struct {
	Limit  int `yaml:"limit"`
	Window int `yaml:"window"` // seconds
}

// ImageProxy configures the fetch and transcode policy
type ImageProxy struct {
	AllowedHosts   []string `yaml:"allowedHosts"`
	MaxBytes       int64    `yaml:"maxBytes"`
	FetchTimeout   int      `yaml:"fetchTimeout"` // seconds
	MaxDimension   int      `yaml:"maxDimension"`
	AllowedFormats []string `yaml:"allowedFormats"`
}

// Management configures the admin API
type Management struct {
	Enabled   bool   `yaml:"enabled"`
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	JWTSecret string `yaml:"jwtSecret"`
}

// ToRateLimitConfig converts to ratelimit.Config
func (r *RateLimit) ToRateLimitConfig() ratelimit.Config {
	return ratelimit.Config{
		Anonymous:     r.Anonymous.toScopeLimit(),
		Authenticated: r.Authenticated.toScopeLimit(),
		Burst:         r.Burst.toScopeLimit(),
	}
}

func (s Scope) toScopeLimit() ratelimit.ScopeLimit {
	return ratelimit.ScopeLimit{
		Limit:  s.Limit,
		Window: time.Duration(s.Window) * time.Second,
	}
}

// ToRequestLimits converts to imageproxy.RequestLimits. An empty format
// list means every supported format is allowed.
func (p *ImageProxy) ToRequestLimits() imageproxy.RequestLimits {
	limits := imageproxy.RequestLimits{
		MaxDimension: p.MaxDimension,
	}
	if len(p.AllowedFormats) == 0 {
		limits.AllowedFormats = imageproxy.DefaultRequestLimits().AllowedFormats
		return limits
	}
	for _, f := range p.AllowedFormats {
		limits.AllowedFormats = append(limits.AllowedFormats, imageproxy.Format(f))
	}
	return limits
}
