package busutil

import (
	"fmt"
	"strings"
)

// BootstrapDomain is the well-known default domain every client can reach
// before it has been assigned one.
const BootstrapDomain = 0

// Subjects builds the canonical bus subjects for one communication domain.
type Subjects struct {
	Domain int
}

// NewSubjects returns the subject catalogue for a domain.
func NewSubjects(domain int) Subjects {
	return Subjects{Domain: domain}
}

func (s Subjects) prefix() string {
	return fmt.Sprintf("spatialdds.d%d", s.Domain)
}

// DiscoveryAnnounce carries ANNOUNCE envelopes.
func (s Subjects) DiscoveryAnnounce() string {
	return s.prefix() + ".discovery.announce.v1"
}

// CoverageQuery carries COVERAGE_QUERY envelopes to providers.
func (s Subjects) CoverageQuery() string {
	return s.prefix() + ".vps.coverage.query.v1"
}

// CoverageReplies carries COVERAGE_RESPONSE envelopes back to clients.
func (s Subjects) CoverageReplies() string {
	return s.prefix() + ".vps.coverage.replies.v1"
}

// LocalizeRequest carries LOCALIZE_REQUEST envelopes.
func (s Subjects) LocalizeRequest() string {
	return s.prefix() + ".vps.localize.request.v1"
}

// LocalizeResponse carries LOCALIZE_RESPONSE envelopes.
func (s Subjects) LocalizeResponse() string {
	return s.prefix() + ".vps.localize.response.v1"
}

// ContentQuery carries CONTENT_QUERY envelopes to the catalog.
func (s Subjects) ContentQuery() string {
	return s.prefix() + ".catalog.query.v1"
}

// ContentReplies is the per-client reply subject for paged catalog results.
func (s Subjects) ContentReplies(clientID string) string {
	return fmt.Sprintf("%s.catalog.replies.%s.v1", s.prefix(), sanitizeToken(clientID))
}

// AnchorDelta is the zone-scoped subject for ANCHOR_DELTA envelopes.
func (s Subjects) AnchorDelta(zone string) string {
	return fmt.Sprintf("%s.anchors.%s.delta.v1", s.prefix(), sanitizeToken(zone))
}

// AnchorDeltaWildcard subscribes to anchor deltas for every zone.
func (s Subjects) AnchorDeltaWildcard() string {
	return s.prefix() + ".anchors.*.delta.v1"
}

// RegistryChanged carries registry change events.
func (s Subjects) RegistryChanged() string {
	return s.prefix() + ".registry.changed"
}

// BootstrapQuery is the well-known subject bootstrap queries arrive on. It
// always lives on the bootstrap domain regardless of the receiver.
func BootstrapQuery() string {
	return NewSubjects(BootstrapDomain).prefix() + ".bootstrap.query.v1"
}

// BootstrapReplies is the per-client subject bootstrap responses return on.
func BootstrapReplies(clientID string) string {
	return fmt.Sprintf("%s.bootstrap.replies.%s.v1", NewSubjects(BootstrapDomain).prefix(), sanitizeToken(clientID))
}

// sanitizeToken makes an id safe for use as a single subject token.
func sanitizeToken(id string) string {
	r := strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_", "/", "_")
	return r.Replace(id)
}

// CheckCanonical validates that subjects follow the catalogue conventions:
// spatialdds prefix, no empty tokens, a v1 suffix. Providers run this over
// the subjects they are about to serve at startup.
func CheckCanonical(subjects []string) []string {
	var errs []string
	for _, subj := range subjects {
		if !strings.HasPrefix(subj, "spatialdds.") {
			errs = append(errs, fmt.Sprintf("subject missing spatialdds prefix: %s", subj))
		}
		if strings.Contains(subj, "..") {
			errs = append(errs, fmt.Sprintf("subject contains empty token: %s", subj))
		}
		if !strings.HasSuffix(subj, ".v1") {
			errs = append(errs, fmt.Sprintf("subject missing .v1 suffix: %s", subj))
		}
	}
	return errs
}
