package bootstrap

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bootstrap.json")
	content := `{
		"name": "test-bootstrap",
		"version": "2.0.0",
		"default_domain": 5,
		"ttl_sec": 600,
		"manifest_uris": ["https://example.com/manifest.json"],
		"sites": {
			"sf": {"domain": 12, "manifest_uris": ["https://example.com/sf.json"]}
		}
	}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Name != "test-bootstrap" || cfg.DefaultDomain != 5 {
		t.Errorf("unexpected config: %+v", cfg)
	}
}

func TestLoadConfigFallsBackToDefault(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Name != "spatialdds-bootstrap" {
		t.Errorf("expected default config, got %+v", cfg)
	}
	if cfg.DefaultDomain == 0 {
		t.Error("default config must assign a working domain away from the well-known one")
	}
}

func TestAssign(t *testing.T) {
	cfg := &Config{
		DefaultDomain: 1,
		ManifestURIs:  []string{"https://example.com/default.json"},
		TTLSec:        3600,
		Sites: map[string]SiteEntry{
			"sf":      {Domain: 12, ManifestURIs: []string{"https://example.com/sf.json"}},
			"oakland": {Domain: 13},
		},
	}

	tests := []struct {
		name         string
		hint         string
		wantDomain   int
		wantManifest string
	}{
		{"known site", "sf", 12, "https://example.com/sf.json"},
		{"site without manifests inherits default", "oakland", 13, "https://example.com/default.json"},
		{"unknown site", "nowhere", 1, "https://example.com/default.json"},
		{"empty hint", "", 1, "https://example.com/default.json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := cfg.Assign(tt.hint)
			if a.Domain != tt.wantDomain {
				t.Errorf("Domain = %d, want %d", a.Domain, tt.wantDomain)
			}
			if len(a.ManifestURIs) == 0 || a.ManifestURIs[0] != tt.wantManifest {
				t.Errorf("ManifestURIs = %v, want first %q", a.ManifestURIs, tt.wantManifest)
			}
			if a.TTLSec != 3600 {
				t.Errorf("TTLSec = %d, want 3600", a.TTLSec)
			}
		})
	}
}
