// Package config provides process configuration loaded from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const logPrefix = "config:LoadConfig"

// Config holds spatial-discovery configuration.
type Config struct {
	// Bus: connect to a standalone broker at BusURL, or run one in-process.
	BusURL          string `envconfig:"BUS_URL" default:"nats://127.0.0.1:4222"`
	BusName         string `envconfig:"SERVICE_NAME" default:"spatial-discovery"`
	EmbeddedBus     bool   `envconfig:"EMBEDDED_BUS" default:"false"`
	EmbeddedBusHost string `envconfig:"EMBEDDED_BUS_HOST" default:"127.0.0.1"`
	EmbeddedBusPort int    `envconfig:"EMBEDDED_BUS_PORT" default:"4222"`

	// Identity and addressing
	Domain    int    `envconfig:"SPATIALDDS_DOMAIN" default:"1"`
	Authority string `envconfig:"SPATIALDDS_AUTHORITY" default:"demo"`
	Zone      string `envconfig:"SPATIALDDS_ZONE" default:"sf-downtown"`
	ServiceID string `envconfig:"SPATIALDDS_SERVICE_ID" default:"vps-sf-001"`

	// VPS provider
	VPSName          string        `envconfig:"VPS_NAME" default:"demo-vps"`
	VPSVersion       string        `envconfig:"VPS_VERSION" default:"1.0.0"`
	CoverageWest     float64       `envconfig:"COVERAGE_WEST" default:"-122.52"`
	CoverageSouth    float64       `envconfig:"COVERAGE_SOUTH" default:"37.70"`
	CoverageEast     float64       `envconfig:"COVERAGE_EAST" default:"-122.35"`
	CoverageNorth    float64       `envconfig:"COVERAGE_NORTH" default:"37.85"`
	AnnounceTTLSec   int64         `envconfig:"ANNOUNCE_TTL_SEC" default:"300"`
	AnnounceInterval time.Duration `envconfig:"ANNOUNCE_INTERVAL" default:"60s"`

	// Timeouts
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"5s"`

	// Seed and bootstrap files (empty = loader defaults)
	BootstrapFile string `envconfig:"SPATIALDDS_BOOTSTRAP_FILE"`
	SeedFile      string `envconfig:"SPATIALDDS_SEED_FILE"`

	// HTTP
	HTTPPort           int           `envconfig:"HTTP_PORT" default:"8080"`
	BridgePort         int           `envconfig:"BRIDGE_PORT" default:"8081"`
	HealthCheckTimeout time.Duration `envconfig:"HEALTH_CHECK_TIMEOUT" default:"5s"`

	// Logging
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// ValidateForServe checks required config when running the provider stack.
func (c *Config) ValidateForServe() error {
	if c.Domain < 0 {
		return fmt.Errorf("%s - SPATIALDDS_DOMAIN must not be negative", logPrefix)
	}
	if c.ServiceID == "" {
		return fmt.Errorf("%s - SPATIALDDS_SERVICE_ID is required for serve", logPrefix)
	}
	if c.CoverageWest > c.CoverageEast || c.CoverageSouth > c.CoverageNorth {
		return fmt.Errorf("%s - coverage bbox is inverted", logPrefix)
	}
	if c.AnnounceTTLSec <= 0 {
		return fmt.Errorf("%s - ANNOUNCE_TTL_SEC must be positive", logPrefix)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("%s - REQUEST_TIMEOUT must be positive", logPrefix)
	}
	if c.HealthCheckTimeout <= 0 {
		return fmt.Errorf("%s - HEALTH_CHECK_TIMEOUT must be positive", logPrefix)
	}
	return nil
}

// ValidateForBridge checks required config when running the HTTP bridge.
func (c *Config) ValidateForBridge() error {
	if c.Domain < 0 {
		return fmt.Errorf("%s - SPATIALDDS_DOMAIN must not be negative", logPrefix)
	}
	if c.BridgePort <= 0 {
		return fmt.Errorf("%s - BRIDGE_PORT must be positive", logPrefix)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("%s - REQUEST_TIMEOUT must be positive", logPrefix)
	}
	return nil
}
