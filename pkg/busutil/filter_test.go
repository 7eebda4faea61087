package busutil

import (
	"testing"

	"github.com/openarcloud/spatial-discovery/pkg/envelope"
)

func TestEchoFilter_SenderID(t *testing.T) {
	f := NewEchoFilter("vps-001")
	env := &envelope.Envelope{Kind: envelope.KindAnnounce, SenderID: "vps-001"}
	if !f.ShouldDrop(env) {
		t.Error("envelope with matching sender_id must be dropped")
	}
	env.SenderID = "vps-002"
	if f.ShouldDrop(env) {
		t.Error("envelope from another sender must be delivered")
	}
}

func TestEchoFilter_PayloadFields(t *testing.T) {
	f := NewEchoFilter("client-abc")
	tests := []struct {
		name    string
		payload string
		drop    bool
	}{
		{"source_id match", `{"source_id":"client-abc"}`, true},
		{"client_id match", `{"client_id":"client-abc"}`, true},
		{"frame ref fqn match", `{"client_frame_ref":{"uuid":"u","fqn":"client-abc"}}`, true},
		{"no identity fields", `{"query_id":"q-1"}`, false},
		{"other identity", `{"client_id":"client-xyz"}`, false},
		{"invalid payload json", `nope`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := &envelope.Envelope{Kind: envelope.KindContentQuery, Payload: []byte(tt.payload)}
			if got := f.ShouldDrop(env); got != tt.drop {
				t.Errorf("ShouldDrop = %v, want %v", got, tt.drop)
			}
		})
	}
}

func TestEchoFilter_SenderIDTakesPriority(t *testing.T) {
	// Header identity wins over payload fields.
	f := NewEchoFilter("client-abc")
	env := &envelope.Envelope{
		Kind:     envelope.KindContentQuery,
		SenderID: "someone-else",
		Payload:  []byte(`{"client_id":"client-abc"}`),
	}
	if f.ShouldDrop(env) {
		t.Error("explicit sender_id must take priority over payload fields")
	}
}

func TestEchoFilter_Disabled(t *testing.T) {
	f := NewEchoFilter("")
	env := &envelope.Envelope{Kind: envelope.KindAnnounce, SenderID: ""}
	if f.ShouldDrop(env) {
		t.Error("filter without a local identity must never drop")
	}
}
