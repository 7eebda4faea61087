package events

import "context"

// EventPublisher is the port the registry emits its change feed through.
type EventPublisher interface {
	PublishChanged(ctx context.Context, event *RegistryChangedEvent) error
}

// NoOpPublisher drops every event. Used when a registry runs without a bus
// connection, e.g. the bridge's local store.
type NoOpPublisher struct{}

// PublishChanged discards the event.
func (p *NoOpPublisher) PublishChanged(context.Context, *RegistryChangedEvent) error {
	return nil
}

// CallbackPublisher hands each event to a function; tests use it to capture
// the change sequence.
type CallbackPublisher struct {
	callback func(ctx context.Context, event *RegistryChangedEvent) error
}

// NewCallbackPublisher wraps cb as an EventPublisher.
func NewCallbackPublisher(cb func(ctx context.Context, event *RegistryChangedEvent) error) *CallbackPublisher {
	return &CallbackPublisher{callback: cb}
}

// PublishChanged forwards the event to the callback.
func (p *CallbackPublisher) PublishChanged(ctx context.Context, event *RegistryChangedEvent) error {
	return p.callback(ctx, event)
}
