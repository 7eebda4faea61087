package busutil

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/openarcloud/spatial-discovery/pkg/envelope"
)

const filterLogPrefix = "busutil:filter"

// EchoFilter suppresses envelopes a participant receives back from its own
// publishes. The sender is inferred from, in priority order: the envelope's
// sender_id header, then a source_id or client_id payload field, then the
// fqn of a client_frame_ref payload field. An envelope carrying none of
// these is treated as not-self and delivered.
type EchoFilter struct {
	LocalID string
}

// NewEchoFilter creates a filter for the given local identity.
func NewEchoFilter(localID string) *EchoFilter {
	return &EchoFilter{LocalID: localID}
}

// ShouldDrop reports whether the envelope originated from the local
// participant. Dropped envelopes are logged once here and must not reach
// any kind-specific handler.
func (f *EchoFilter) ShouldDrop(env *envelope.Envelope) bool {
	if f == nil || f.LocalID == "" || env == nil {
		return false
	}
	sender := inferSender(env)
	if sender == "" || sender != f.LocalID {
		return false
	}
	slog.Debug(fmt.Sprintf("%s - dropping self-echo kind=%s sender=%s", filterLogPrefix, env.Kind, sender))
	return true
}

func inferSender(env *envelope.Envelope) string {
	if env.SenderID != "" {
		return env.SenderID
	}
	if len(env.Payload) == 0 {
		return ""
	}
	var fields struct {
		SourceID       string `json:"source_id"`
		ClientID       string `json:"client_id"`
		ClientFrameRef struct {
			FQN string `json:"fqn"`
		} `json:"client_frame_ref"`
	}
	if err := json.Unmarshal(env.Payload, &fields); err != nil {
		return ""
	}
	if fields.SourceID != "" {
		return fields.SourceID
	}
	if fields.ClientID != "" {
		return fields.ClientID
	}
	return fields.ClientFrameRef.FQN
}
