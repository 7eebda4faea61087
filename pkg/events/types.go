// Package events defines event types and publisher interfaces for registry
// change events.
package events

// Change kinds carried by RegistryChangedEvent.
const (
	ChangeIngested  = "ingested"
	ChangeWithdrawn = "withdrawn"
	ChangeExpired   = "expired"
)

// RegistryChangedEvent is emitted when an announce enters, leaves, or
// expires out of the registry.
type RegistryChangedEvent struct {
	Change  string `json:"change"`
	SelfURI string `json:"self_uri"`
	RType   string `json:"rtype"`
	Name    string `json:"name,omitempty"`
	StampMS int64  `json:"stamp_ms"`
}
