// Package tls maps declarative TLS settings onto crypto/tls.
package tls

import (
	"crypto/tls"
)

// Config represents TLS configuration for the listening server
type Config struct {
	Enabled    bool   `yaml:"enabled"`
	CertFile   string `yaml:"certFile"`
	KeyFile    string `yaml:"keyFile"`
	MinVersion string `yaml:"minVersion"`
}

// Build converts the declarative config into a crypto/tls config.
// Certificates are loaded by the http server, not here.
func (c Config) Build() *tls.Config {
	return &tls.Config{
		MinVersion: ParseTLSVersion(c.MinVersion),
	}
}
