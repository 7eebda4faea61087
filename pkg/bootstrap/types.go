// Package bootstrap implements domain assignment: the well-known-domain
// negotiation a client runs before it can join its working domain, and the
// stateless responder that hands out assignments.
package bootstrap

// SiteEntry assigns one site its communication domain and manifests.
type SiteEntry struct {
	Domain       int      `json:"domain"`
	ManifestURIs []string `json:"manifest_uris,omitempty"`
}

// Config is the root domain assignment configuration. Sites are keyed by
// location hint; clients with no or unknown hints get the default.
type Config struct {
	Name          string               `json:"name"`
	Version       string               `json:"version"`
	Description   string               `json:"description,omitempty"`
	DefaultDomain int                  `json:"default_domain"`
	ManifestURIs  []string             `json:"manifest_uris,omitempty"`
	TTLSec        int64                `json:"ttl_sec,omitempty"`
	Sites         map[string]SiteEntry `json:"sites,omitempty"`
}

// Assignment is the resolved domain assignment for one client.
type Assignment struct {
	Domain       int
	ManifestURIs []string
	TTLSec       int64
}

// Assign resolves the assignment for a location hint.
func (c *Config) Assign(locationHint string) Assignment {
	a := Assignment{
		Domain:       c.DefaultDomain,
		ManifestURIs: c.ManifestURIs,
		TTLSec:       c.TTLSec,
	}
	if site, ok := c.Sites[locationHint]; ok {
		a.Domain = site.Domain
		if len(site.ManifestURIs) > 0 {
			a.ManifestURIs = site.ManifestURIs
		}
	}
	return a
}
