package registry

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/openarcloud/spatial-discovery/pkg/envelope"
	"github.com/openarcloud/spatial-discovery/pkg/spatial"
)

// Query returns the live entries matching the input filters, in announce
// insertion order, one page at a time. Page tokens are opaque to callers;
// an unparseable token restarts from the first page.
func (r *Registry) Query(in QueryInput) (*QueryOutput, error) {
	var constraint *semver.Constraints
	if in.VersionRange != "" {
		c, err := semver.NewConstraint(in.VersionRange)
		if err != nil {
			return nil, NewRegistryError(CodeInvalidQuery, fmt.Sprintf("version_range %q: %v", in.VersionRange, err))
		}
		constraint = c
	}
	if in.Volume != nil {
		if err := spatial.ValidateCoverageElement(in.Volume); err != nil {
			return nil, NewRegistryError(CodeInvalidQuery, fmt.Sprintf("volume: %v", err))
		}
	}
	if in.Limit < 0 {
		return nil, NewRegistryError(CodeInvalidQuery, "limit must not be negative")
	}
	limit := in.Limit
	if limit == 0 {
		limit = r.config.DefaultPageLimit
	}

	now := r.now()

	r.mu.Lock()
	snapshot := make([]*Entry, 0, len(r.order))
	for _, uri := range r.order {
		if entry := r.entries[uri]; entry != nil && !entry.Expired(now) {
			snapshot = append(snapshot, entry)
		}
	}
	r.mu.Unlock()

	var matched []envelope.Announce
	for _, entry := range snapshot {
		if r.matches(&entry.Announce, &in, constraint) {
			matched = append(matched, entry.Announce)
		}
	}

	offset := ParsePageToken(in.PageToken)
	if offset > len(matched) {
		offset = len(matched)
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}

	out := &QueryOutput{
		Results: matched[offset:end],
		Total:   len(matched),
	}
	if end < len(matched) {
		out.NextPageToken = FormatPageToken(end)
	}
	return out, nil
}

// matches applies every filter. Filters combine with AND; tag filters
// require all query tags to be present on the entry.
func (r *Registry) matches(ann *envelope.Announce, in *QueryInput, constraint *semver.Constraints) bool {
	if in.RType != "" && ann.RType != in.RType {
		return false
	}
	if in.ClassID != "" && ann.ClassID != in.ClassID {
		return false
	}
	for _, want := range in.Tags {
		if !hasTag(ann.Tags, want) {
			return false
		}
	}
	if constraint != nil {
		v, err := semver.NewVersion(ann.Version)
		if err != nil {
			return false
		}
		if !constraint.Check(v) {
			return false
		}
	}
	if in.Volume != nil {
		hit, err := spatial.Intersects(in.Volume, &ann.Bounds)
		if err != nil {
			slog.Debug(fmt.Sprintf("%s - skipping %s: %v", logPrefix, ann.SelfURI, err))
			return false
		}
		if !hit {
			return false
		}
	}
	return true
}

func hasTag(tags []string, want string) bool {
	for _, t := range tags {
		if t == want {
			return true
		}
	}
	return false
}

// FormatPageToken encodes the offset of the next page.
func FormatPageToken(offset int) string {
	return fmt.Sprintf("o=%d", offset)
}

// ParsePageToken reads an offset token. Empty or unparseable tokens mean
// the first page.
func ParsePageToken(token string) int {
	if token == "" {
		return 0
	}
	rest, ok := strings.CutPrefix(token, "o=")
	if !ok {
		return 0
	}
	offset, err := strconv.Atoi(rest)
	if err != nil || offset < 0 {
		return 0
	}
	return offset
}
