package envelope

import (
	"github.com/openarcloud/spatial-discovery/pkg/spatial"
)

// Resource types an announce may describe.
const (
	RTypeService = "service"
	RTypeAnchor  = "anchor"
	RTypeContent = "content"
)

// Announce describes an available resource and its spatial coverage.
// SelfURI is the canonical identity; ServiceID is a legacy alias and is
// never used for equality.
type Announce struct {
	SelfURI   string                  `json:"self_uri"`
	RType     string                  `json:"rtype"`
	Name      string                  `json:"name,omitempty"`
	Version   string                  `json:"version,omitempty"`
	Bounds    spatial.CoverageElement `json:"bounds"`
	Endpoint  string                  `json:"endpoint,omitempty"`
	Tags      []string                `json:"tags,omitempty"`
	ClassID   string                  `json:"class_id,omitempty"`
	Kind      string                  `json:"content_kind,omitempty"`
	TTLSec    int64                   `json:"ttl_sec"`
	Stamp     spatial.TimeStamp       `json:"stamp"`
	ServiceID string                  `json:"service_id,omitempty"`
}

func (a *Announce) validate(kind Kind) error {
	if a.SelfURI == "" {
		return malformedf(kind, "self_uri", "self_uri is required")
	}
	if _, err := spatial.ParseURI(a.SelfURI); err != nil {
		return malformedf(kind, "self_uri", "%v", err)
	}
	switch a.RType {
	case RTypeService, RTypeAnchor, RTypeContent:
	case "":
		return malformedf(kind, "rtype", "rtype is required")
	default:
		return malformedf(kind, "rtype", "invalid rtype %q", a.RType)
	}
	if err := spatial.ValidateCoverageElement(&a.Bounds); err != nil {
		return malformedf(kind, "bounds", "%v", err)
	}
	if a.TTLSec <= 0 {
		return malformedf(kind, "ttl_sec", "ttl_sec must be positive")
	}
	if err := spatial.ValidateTimeStamp(a.Stamp); err != nil {
		return malformedf(kind, "stamp", "%v", err)
	}
	return nil
}

// CoverageQuery asks providers whether they cover a volume.
type CoverageQuery struct {
	QueryID    string                  `json:"query_id"`
	Volume     spatial.CoverageElement `json:"volume"`
	ReplyTopic string                  `json:"reply_topic"`
	Stamp      spatial.TimeStamp       `json:"stamp"`
}

func (q *CoverageQuery) validate(kind Kind) error {
	if q.QueryID == "" {
		return malformedf(kind, "query_id", "query_id is required")
	}
	if err := spatial.ValidateCoverageElement(&q.Volume); err != nil {
		return malformedf(kind, "volume", "%v", err)
	}
	if q.ReplyTopic == "" {
		return malformedf(kind, "reply_topic", "reply_topic is required")
	}
	return nil
}

// CoverageResponse is a provider's answer to a CoverageQuery.
type CoverageResponse struct {
	QueryID   string                    `json:"query_id"`
	ServiceID string                    `json:"service_id,omitempty"`
	Covered   bool                      `json:"covered"`
	Coverage  []spatial.CoverageElement `json:"coverage,omitempty"`
	Stamp     spatial.TimeStamp         `json:"stamp"`
}

func (r *CoverageResponse) validate(kind Kind) error {
	if r.QueryID == "" {
		return malformedf(kind, "query_id", "query_id is required")
	}
	for i := range r.Coverage {
		if err := spatial.ValidateCoverageElement(&r.Coverage[i]); err != nil {
			return malformedf(kind, "coverage", "%v", err)
		}
	}
	return nil
}

// ContentQuery searches announced content by volume and filters. QueryID is
// caller-generated and is the correlation key for the paged results.
type ContentQuery struct {
	QueryID      string                  `json:"query_id"`
	RType        string                  `json:"rtype,omitempty"`
	Volume       spatial.CoverageElement `json:"volume"`
	Tags         []string                `json:"tags,omitempty"`
	ClassID      string                  `json:"class_id,omitempty"`
	Expr         string                  `json:"expr,omitempty"`
	VersionRange string                  `json:"version_range,omitempty"`
	Limit        int                     `json:"limit,omitempty"`
	PageToken    string                  `json:"page_token,omitempty"`
	ReplyTopic   string                  `json:"reply_topic"`
	Stamp        spatial.TimeStamp       `json:"stamp"`
	TTLSec       int64                   `json:"ttl_sec,omitempty"`
}

func (q *ContentQuery) validate(kind Kind) error {
	if q.QueryID == "" {
		return malformedf(kind, "query_id", "query_id is required")
	}
	if err := spatial.ValidateCoverageElement(&q.Volume); err != nil {
		return malformedf(kind, "volume", "%v", err)
	}
	if q.ReplyTopic == "" {
		return malformedf(kind, "reply_topic", "reply_topic is required")
	}
	if q.Limit < 0 {
		return malformedf(kind, "limit", "limit must not be negative")
	}
	return nil
}

// ContentQueryResult is one page of answers to a ContentQuery. An empty
// NextPageToken marks the final page.
type ContentQueryResult struct {
	QueryID       string            `json:"query_id"`
	Results       []Announce        `json:"results"`
	NextPageToken string            `json:"next_page_token,omitempty"`
	Count         int               `json:"count"`
	Stamp         spatial.TimeStamp `json:"stamp"`
}

func (r *ContentQueryResult) validate(kind Kind) error {
	if r.QueryID == "" {
		return malformedf(kind, "query_id", "query_id is required")
	}
	return nil
}

// LocalizeRequest asks a provider for a pose estimate given a prior.
type LocalizeRequest struct {
	RequestID      string            `json:"request_id"`
	ClientFrameRef spatial.FrameRef  `json:"client_frame_ref"`
	ServiceID      string            `json:"service_id"`
	PriorGeoPose   spatial.GeoPose   `json:"prior_geopose"`
	Stamp          spatial.TimeStamp `json:"stamp"`
}

func (r *LocalizeRequest) validate(kind Kind) error {
	if r.RequestID == "" {
		return malformedf(kind, "request_id", "request_id is required")
	}
	if err := spatial.ValidateFrameRef(r.ClientFrameRef); err != nil {
		return malformedf(kind, "client_frame_ref", "%v", err)
	}
	if err := spatial.ValidateGeoPose(&r.PriorGeoPose); err != nil {
		return malformedf(kind, "prior_geopose", "%v", err)
	}
	return nil
}

// LocalizeQuality reports how a localization went. Success false with a
// message is a provider-reported failure, not a transport error.
type LocalizeQuality struct {
	Success    bool    `json:"success"`
	Confidence float64 `json:"confidence"`
	RMSEM      float64 `json:"rmse_m"`
	Message    string  `json:"message,omitempty"`
}

// LocalizeResponse answers a LocalizeRequest.
type LocalizeResponse struct {
	RequestID string            `json:"request_id"`
	ServiceID string            `json:"service_id"`
	GeoPose   *spatial.GeoPose  `json:"geopose,omitempty"`
	Quality   LocalizeQuality   `json:"quality"`
	Stamp     spatial.TimeStamp `json:"stamp"`
}

func (r *LocalizeResponse) validate(kind Kind) error {
	if r.RequestID == "" {
		return malformedf(kind, "request_id", "request_id is required")
	}
	if r.Quality.Success {
		if r.GeoPose == nil {
			return malformedf(kind, "geopose", "geopose is required on success")
		}
		if err := spatial.ValidateGeoPose(r.GeoPose); err != nil {
			return malformedf(kind, "geopose", "%v", err)
		}
	}
	return nil
}

// AnchorDelta publishes an anchor update after a successful localization.
// SetID names the zone whose anchor set the delta belongs to.
type AnchorDelta struct {
	AnchorID         string            `json:"anchor_id"`
	SetID            string            `json:"set_id"`
	GeoPose          spatial.GeoPose   `json:"geopose"`
	PersistenceScore float64           `json:"persistence_score"`
	Stamp            spatial.TimeStamp `json:"stamp"`
}

func (d *AnchorDelta) validate(kind Kind) error {
	if d.AnchorID == "" {
		return malformedf(kind, "anchor_id", "anchor_id is required")
	}
	if d.SetID == "" {
		return malformedf(kind, "set_id", "set_id is required")
	}
	if err := spatial.ValidateGeoPose(&d.GeoPose); err != nil {
		return malformedf(kind, "geopose", "%v", err)
	}
	return nil
}

// BootstrapQuery is a joining client's request for a domain assignment,
// published on the well-known default domain.
type BootstrapQuery struct {
	ClientID     string            `json:"client_id"`
	ClientKind   string            `json:"client_kind,omitempty"`
	Capabilities []string          `json:"capabilities,omitempty"`
	LocationHint string            `json:"location_hint,omitempty"`
	Stamp        spatial.TimeStamp `json:"stamp"`
}

func (q *BootstrapQuery) validate(kind Kind) error {
	if q.ClientID == "" {
		return malformedf(kind, "client_id", "client_id is required")
	}
	return nil
}

// BootstrapResponse assigns the client its communication domain.
type BootstrapResponse struct {
	ClientID     string            `json:"client_id"`
	Domain       int               `json:"dds_domain"`
	ManifestURIs []string          `json:"manifest_uris,omitempty"`
	TTLSec       int64             `json:"ttl_sec,omitempty"`
	Stamp        spatial.TimeStamp `json:"stamp"`
}

func (r *BootstrapResponse) validate(kind Kind) error {
	if r.ClientID == "" {
		return malformedf(kind, "client_id", "client_id is required")
	}
	if r.Domain < 0 {
		return malformedf(kind, "dds_domain", "dds_domain must not be negative")
	}
	return nil
}
