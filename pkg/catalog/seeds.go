// Package catalog implements the seeded content responder: a store of
// content announces queried by volume, kind expression, and tags, served in
// pages over the bus.
package catalog

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/openarcloud/spatial-discovery/pkg/envelope"
	"github.com/openarcloud/spatial-discovery/pkg/spatial"
)

const seedsLogPrefix = "catalog:seeds"

// SeedFile is the on-disk catalog seed format.
type SeedFile struct {
	Name    string              `json:"name"`
	Version string              `json:"version,omitempty"`
	Items   []envelope.Announce `json:"items"`
}

// LoadSeeds loads catalog seeds from file paths or environment. It tries
// paths in order: first any paths passed in, then the SPATIALDDS_SEED_FILE
// env var, then defaults.
func LoadSeeds(paths ...string) (*SeedFile, error) {
	all := make([]string, 0, len(paths)+3)
	for _, p := range paths {
		if p != "" {
			all = append(all, p)
		}
	}
	if envPath := os.Getenv("SPATIALDDS_SEED_FILE"); envPath != "" {
		all = append(all, envPath)
	}
	all = append(all, "config/seeds.json", "seeds.json")

	for _, p := range all {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}

		var seeds SeedFile
		if err := json.Unmarshal(data, &seeds); err != nil {
			slog.Warn(fmt.Sprintf("%s - Failed to parse seed file %s: %v", seedsLogPrefix, p, err))
			continue
		}

		slog.Info(fmt.Sprintf("%s - Loaded %d seed items from %s", seedsLogPrefix, len(seeds.Items), p))
		return &seeds, nil
	}

	slog.Info(fmt.Sprintf("%s - Using default catalog seeds", seedsLogPrefix))
	return DefaultSeeds(), nil
}

// DefaultSeeds returns the embedded fallback catalog: a handful of content
// items around downtown San Francisco.
func DefaultSeeds() *SeedFile {
	return &SeedFile{
		Name:    "spatialdds-demo-seeds",
		Version: "1.0.0",
		Items: []envelope.Announce{
			{
				SelfURI: "spatialdds://demo/zone:sf-downtown/content:mesh-ferry-building",
				RType:   envelope.RTypeContent,
				Name:    "Ferry Building mesh",
				Version: "1.0.0",
				Kind:    "mesh",
				Tags:    []string{"mesh", "landmark"},
				Bounds:  spatial.EarthFixedBBox(-122.3950, 37.7940, -122.3920, 37.7965),
				TTLSec:  86400,
				Stamp:   spatial.TimeStamp{Sec: 1748700000},
			},
			{
				SelfURI: "spatialdds://demo/zone:sf-downtown/content:pc-embarcadero",
				RType:   envelope.RTypeContent,
				Name:    "Embarcadero point cloud",
				Version: "1.1.0",
				Kind:    "pointcloud",
				Tags:    []string{"pointcloud"},
				Bounds:  spatial.EarthFixedBBox(-122.4000, 37.7900, -122.3900, 37.8000),
				TTLSec:  86400,
				Stamp:   spatial.TimeStamp{Sec: 1748770000},
			},
			{
				SelfURI: "spatialdds://demo/zone:sf-downtown/content:anchors-market-st",
				RType:   envelope.RTypeContent,
				Name:    "Market St anchor pack",
				Version: "2.0.0",
				Kind:    "anchor_pack",
				Tags:    []string{"anchors", "outdoor"},
				Bounds:  spatial.EarthFixedBBox(-122.4200, 37.7750, -122.3940, 37.7945),
				TTLSec:  86400,
				Stamp:   spatial.TimeStamp{Sec: 1748750000},
			},
		},
	}
}
