// Package envelope defines the single multiplexed wire message carried on
// the bus: a tagged union of message kinds with a common header and a
// kind-selected payload. All kinds decode through this package; adding a
// kind means extending the Kind set and the Body switch here, nowhere else.
package envelope

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind tags the payload type of an envelope.
type Kind string

// The closed set of message kinds.
const (
	KindAnnounce           Kind = "ANNOUNCE"
	KindCoverageQuery      Kind = "COVERAGE_QUERY"
	KindCoverageResponse   Kind = "COVERAGE_RESPONSE"
	KindContentQuery       Kind = "CONTENT_QUERY"
	KindContentQueryResult Kind = "CONTENT_QUERY_RESULT"
	KindLocalizeRequest    Kind = "LOCALIZE_REQUEST"
	KindLocalizeResponse   Kind = "LOCALIZE_RESPONSE"
	KindAnchorDelta        Kind = "ANCHOR_DELTA"
	KindBootstrapQuery     Kind = "BOOTSTRAP_QUERY"
	KindBootstrapResponse  Kind = "BOOTSTRAP_RESPONSE"
)

// Known reports whether the kind belongs to the closed set. Receivers skip
// envelopes with unknown kinds instead of failing, so newer peers can add
// kinds without breaking older ones.
func (k Kind) Known() bool {
	switch k {
	case KindAnnounce, KindCoverageQuery, KindCoverageResponse,
		KindContentQuery, KindContentQueryResult,
		KindLocalizeRequest, KindLocalizeResponse,
		KindAnchorDelta, KindBootstrapQuery, KindBootstrapResponse:
		return true
	}
	return false
}

// MalformedError reports a structurally invalid envelope or payload, naming
// the first offending field.
type MalformedError struct {
	Kind    Kind
	Field   string
	Message string
}

func (e *MalformedError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("malformed %s: %s: %s", e.Kind, e.Field, e.Message)
	}
	return fmt.Sprintf("malformed envelope: %s: %s", e.Field, e.Message)
}

func malformedf(kind Kind, field, format string, args ...interface{}) *MalformedError {
	return &MalformedError{Kind: kind, Field: field, Message: fmt.Sprintf(format, args...)}
}

// Envelope is the wire message. StampMS orders and ages messages; Stamp is a
// human-readable ISO-8601 mirror for log legibility and is never used for
// correlation. RequestID correlates request/reply kinds and is empty
// otherwise.
type Envelope struct {
	Kind      Kind            `json:"kind"`
	Topic     string          `json:"topic"`
	SenderID  string          `json:"sender_id"`
	StampMS   int64           `json:"stamp_ms"`
	Stamp     string          `json:"stamp,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

// New builds an envelope around the given payload, stamping it with the
// current time.
func New(kind Kind, topic, senderID, requestID string, payload interface{}) (*Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("envelope: encode %s payload: %w", kind, err)
	}
	now := time.Now().UTC()
	return &Envelope{
		Kind:      kind,
		Topic:     topic,
		SenderID:  senderID,
		StampMS:   now.UnixMilli(),
		Stamp:     now.Format(time.RFC3339Nano),
		RequestID: requestID,
		Payload:   data,
	}, nil
}

// Encode serializes the envelope for the bus.
func (e *Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Decode parses envelope bytes. A missing or empty kind is malformed; an
// unknown kind is not — the envelope is returned and Kind.Known() reports
// false so the receiver can skip it.
func Decode(data []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, malformedf("", "envelope", "invalid json: %v", err)
	}
	if e.Kind == "" {
		return nil, malformedf("", "kind", "kind is required")
	}
	return &e, nil
}

// Body decodes and validates the payload according to the envelope's kind.
// Unknown kinds return a MalformedError on the kind field; callers are
// expected to check Kind.Known() and skip before calling Body.
func (e *Envelope) Body() (interface{}, error) {
	switch e.Kind {
	case KindAnnounce:
		return decodePayload[Announce](e)
	case KindCoverageQuery:
		return decodePayload[CoverageQuery](e)
	case KindCoverageResponse:
		return decodePayload[CoverageResponse](e)
	case KindContentQuery:
		return decodePayload[ContentQuery](e)
	case KindContentQueryResult:
		return decodePayload[ContentQueryResult](e)
	case KindLocalizeRequest:
		return decodePayload[LocalizeRequest](e)
	case KindLocalizeResponse:
		return decodePayload[LocalizeResponse](e)
	case KindAnchorDelta:
		return decodePayload[AnchorDelta](e)
	case KindBootstrapQuery:
		return decodePayload[BootstrapQuery](e)
	case KindBootstrapResponse:
		return decodePayload[BootstrapResponse](e)
	default:
		return nil, malformedf(e.Kind, "kind", "unknown kind")
	}
}

// payload is implemented by every kind-specific body type.
type payload interface {
	validate(kind Kind) error
}

func decodePayload[T any, PT interface {
	*T
	payload
}](e *Envelope) (*T, error) {
	var body T
	if err := json.Unmarshal(e.Payload, &body); err != nil {
		return nil, malformedf(e.Kind, "payload", "invalid json: %v", err)
	}
	if err := PT(&body).validate(e.Kind); err != nil {
		return nil, err
	}
	return &body, nil
}
