package bootstrap

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
)

const loaderLogPrefix = "bootstrap:loader"

// LoadConfig loads the domain assignment config from file paths or
// environment. It tries paths in order: first any paths passed in, then the
// SPATIALDDS_BOOTSTRAP_FILE env var, then defaults.
func LoadConfig(paths ...string) (*Config, error) {
	all := make([]string, 0, len(paths)+3)
	for _, p := range paths {
		if p != "" {
			all = append(all, p)
		}
	}
	if envPath := os.Getenv("SPATIALDDS_BOOTSTRAP_FILE"); envPath != "" {
		all = append(all, envPath)
	}
	all = append(all, "config/bootstrap.json", "bootstrap.json")

	for _, p := range all {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}

		var cfg Config
		if err := json.Unmarshal(data, &cfg); err != nil {
			slog.Warn(fmt.Sprintf("%s - Failed to parse bootstrap file %s: %v", loaderLogPrefix, p, err))
			continue
		}

		slog.Info(fmt.Sprintf("%s - Loaded bootstrap config from %s", loaderLogPrefix, p))
		return &cfg, nil
	}

	slog.Info(fmt.Sprintf("%s - Using default bootstrap config", loaderLogPrefix))
	return DefaultConfig(), nil
}

// DefaultConfig returns the embedded fallback assignment configuration: a
// single working domain next to the well-known one, no manifests.
func DefaultConfig() *Config {
	return &Config{
		Name:          "spatialdds-bootstrap",
		Version:       "1.0.0",
		Description:   "Default single-site domain assignment",
		DefaultDomain: 1,
		TTLSec:        3600,
	}
}
