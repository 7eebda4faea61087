package spatial

import (
	"fmt"
	"regexp"
)

// uriPattern matches spatialdds://<authority>/zone:<zone_id>/<rtype>:<rid>.
var uriPattern = regexp.MustCompile(`^spatialdds://([^/]+)/zone:([^/]+)/([^:]+):(.+)$`)

// Resource types allowed in spatial URIs.
var validRTypes = map[string]bool{
	"service":  true,
	"anchor":   true,
	"content":  true,
	"tile":     true,
	"node":     true,
	"edge":     true,
	"feature":  true,
	"blob":     true,
	"manifest": true,
	"query":    true,
	"response": true,
	"client":   true,
	"request":  true,
}

// URI is a parsed spatial resource identifier.
type URI struct {
	Authority string
	Zone      string
	RType     string
	RID       string
}

// ParseURI validates and decomposes a spatial URI.
func ParseURI(raw string) (*URI, error) {
	if raw == "" {
		return nil, validationErrorf(CodeBadURI, "self_uri", "uri cannot be empty")
	}
	m := uriPattern.FindStringSubmatch(raw)
	if m == nil {
		return nil, validationErrorf(CodeBadURI, "self_uri",
			"invalid spatial uri %q (want spatialdds://<authority>/zone:<zone>/<rtype>:<rid>)", raw)
	}
	u := &URI{Authority: m[1], Zone: m[2], RType: m[3], RID: m[4]}
	if !validRTypes[u.RType] {
		return nil, validationErrorf(CodeBadURI, "self_uri",
			"invalid resource type %q in uri", u.RType)
	}
	return u, nil
}

// String formats the URI back to its wire form.
func (u *URI) String() string {
	return fmt.Sprintf("spatialdds://%s/zone:%s/%s:%s", u.Authority, u.Zone, u.RType, u.RID)
}

// FormatURI builds and validates a spatial URI from its components.
func FormatURI(authority, zone, rtype, rid string) (string, error) {
	u := &URI{Authority: authority, Zone: zone, RType: rtype, RID: rid}
	raw := u.String()
	if _, err := ParseURI(raw); err != nil {
		return "", err
	}
	return raw, nil
}
