// Package registry implements the volatile in-memory announce registry.
package registry

import (
	"time"

	"github.com/openarcloud/spatial-discovery/pkg/envelope"
	"github.com/openarcloud/spatial-discovery/pkg/spatial"
)

// Entry is one live announce held by the registry.
type Entry struct {
	Announce   envelope.Announce `json:"announce"`
	IngestedAt time.Time         `json:"ingested_at"`
	ExpiresAt  time.Time         `json:"expires_at"`
}

// Expired reports whether the entry's lease has run out at the given time.
func (e *Entry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// QueryInput holds the filters for a registry query. Zero-valued filters
// match everything.
type QueryInput struct {
	RType        string                   `json:"rtype,omitempty"`
	Tags         []string                 `json:"tags,omitempty"`
	ClassID      string                   `json:"class_id,omitempty"`
	VersionRange string                   `json:"version_range,omitempty"`
	Volume       *spatial.CoverageElement `json:"volume,omitempty"`
	Limit        int                      `json:"limit,omitempty"`
	PageToken    string                   `json:"page_token,omitempty"`
}

// QueryOutput holds one page of query results in announce insertion order.
type QueryOutput struct {
	Results       []envelope.Announce `json:"results"`
	NextPageToken string              `json:"next_page_token,omitempty"`
	Total         int                 `json:"total"`
}

// RegistryError is a structured error from the registry.
type RegistryError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *RegistryError) Error() string {
	return e.Code + ": " + e.Message
}

// NewRegistryError creates a new RegistryError.
func NewRegistryError(code, message string) *RegistryError {
	return &RegistryError{Code: code, Message: message}
}

// Registry error codes.
const (
	CodeInvalidAnnounce = "INVALID_ANNOUNCE"
	CodeInvalidQuery    = "INVALID_QUERY"
	CodeNotFound        = "NOT_FOUND"
	CodeClosed          = "REGISTRY_CLOSED"
)
