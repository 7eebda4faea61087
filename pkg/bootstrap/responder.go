package bootstrap

import (
	"fmt"
	"log/slog"

	nats "github.com/nats-io/nats.go"

	"github.com/openarcloud/spatial-discovery/pkg/busutil"
	"github.com/openarcloud/spatial-discovery/pkg/envelope"
	"github.com/openarcloud/spatial-discovery/pkg/spatial"
)

const responderLogPrefix = "bootstrap:responder"

// Responder answers bootstrap queries on the well-known domain. It is
// stateless: every query gets an assignment derived from the config, and
// repeated queries from the same client get the same answer.
type Responder struct {
	nc       *nats.Conn
	cfg      *Config
	senderID string
	sub      *nats.Subscription
}

// NewResponder creates a responder for the given assignment config.
func NewResponder(nc *nats.Conn, cfg *Config, senderID string) *Responder {
	return &Responder{nc: nc, cfg: cfg, senderID: senderID}
}

// Start subscribes to the well-known bootstrap query subject.
func (r *Responder) Start() error {
	sub, err := r.nc.Subscribe(busutil.BootstrapQuery(), r.handle)
	if err != nil {
		return fmt.Errorf("%s - failed to subscribe: %w", responderLogPrefix, err)
	}
	r.sub = sub
	slog.Info(fmt.Sprintf("%s - listening on %s", responderLogPrefix, busutil.BootstrapQuery()))
	return nil
}

// Stop unsubscribes the responder.
func (r *Responder) Stop() {
	if r.sub != nil {
		r.sub.Unsubscribe()
		r.sub = nil
	}
}

func (r *Responder) handle(msg *nats.Msg) {
	env, err := envelope.Decode(msg.Data)
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - dropping malformed envelope: %v", responderLogPrefix, err))
		return
	}
	if env.Kind != envelope.KindBootstrapQuery {
		return
	}
	body, err := env.Body()
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - dropping malformed query: %v", responderLogPrefix, err))
		return
	}
	query := body.(*envelope.BootstrapQuery)

	assignment := r.cfg.Assign(query.LocationHint)
	resp := &envelope.BootstrapResponse{
		ClientID:     query.ClientID,
		Domain:       assignment.Domain,
		ManifestURIs: assignment.ManifestURIs,
		TTLSec:       assignment.TTLSec,
		Stamp:        spatial.Now(),
	}

	replySubject := busutil.BootstrapReplies(query.ClientID)
	out, err := envelope.New(envelope.KindBootstrapResponse, replySubject, r.senderID, query.ClientID, resp)
	if err != nil {
		slog.Error(fmt.Sprintf("%s - failed to build response: %v", responderLogPrefix, err))
		return
	}
	data, err := out.Encode()
	if err != nil {
		slog.Error(fmt.Sprintf("%s - failed to encode response: %v", responderLogPrefix, err))
		return
	}
	if err := r.nc.Publish(replySubject, data); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to publish response: %v", responderLogPrefix, err))
		return
	}
	slog.Debug(fmt.Sprintf("%s - assigned domain %d to %s", responderLogPrefix, assignment.Domain, query.ClientID))
}
