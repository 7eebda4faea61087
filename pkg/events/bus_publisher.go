package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	nats "github.com/nats-io/nats.go"

	"github.com/openarcloud/spatial-discovery/pkg/busutil"
)

const busPublisherLogPrefix = "events:bus_publisher"

// BusPublisher publishes registry change events to the bus.
type BusPublisher struct {
	nc      *nats.Conn
	subject string
}

// NewBusPublisher creates a publisher for the registry change subject of the
// given domain.
func NewBusPublisher(nc *nats.Conn, domain int) *BusPublisher {
	return &BusPublisher{nc: nc, subject: busutil.NewSubjects(domain).RegistryChanged()}
}

// PublishChanged publishes the event to the domain's change subject.
func (p *BusPublisher) PublishChanged(_ context.Context, event *RegistryChangedEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("%s - failed to encode event: %w", busPublisherLogPrefix, err)
	}

	if err := p.nc.Publish(p.subject, data); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to publish to %s: %v", busPublisherLogPrefix, p.subject, err))
		return err
	}

	slog.Debug(fmt.Sprintf("%s - Published %s event for %s", busPublisherLogPrefix, event.Change, event.SelfURI))
	return nil
}
