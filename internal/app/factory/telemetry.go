package factory

import (
	"imgguard/internal/telemetry"
)

// CreateTelemetry initializes tracing from configuration
func CreateTelemetry(cfg telemetry.Config) (*telemetry.Telemetry, error) {
	return telemetry.New(cfg)
}
