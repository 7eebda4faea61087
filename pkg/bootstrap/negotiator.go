package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	nats "github.com/nats-io/nats.go"

	"github.com/openarcloud/spatial-discovery/pkg/busutil"
	"github.com/openarcloud/spatial-discovery/pkg/envelope"
	"github.com/openarcloud/spatial-discovery/pkg/spatial"
)

const negotiatorLogPrefix = "bootstrap:negotiator"

// ErrBootstrapTimeout means no assignment arrived before the deadline.
var ErrBootstrapTimeout = errors.New("bootstrap timed out")

// State of the client-side negotiation.
type State string

const (
	StateIdle              State = "IDLE"
	StateAwaitingBootstrap State = "AWAITING_BOOTSTRAP"
	StateDomainAssigned    State = "DOMAIN_ASSIGNED"
	StateFailed            State = "FAILED"
)

const (
	defaultRepublishInterval = time.Second
	defaultDeadline          = 5 * time.Second
)

// NegotiatorOpts configures a negotiation. Zero values use defaults.
type NegotiatorOpts struct {
	ClientKind   string
	Capabilities []string
	LocationHint string
	// RepublishInterval is how often the query is re-published while
	// waiting for an assignment.
	RepublishInterval time.Duration
	// Deadline bounds the whole negotiation.
	Deadline time.Duration
}

// Negotiator runs the client side of domain assignment: publish a query on
// the well-known domain, re-publish once a second, and accept the first
// matching response.
type Negotiator struct {
	nc       *nats.Conn
	clientID string
	opts     NegotiatorOpts

	mu    sync.Mutex
	state State
}

// NewNegotiator creates a negotiator for the given client identity.
func NewNegotiator(nc *nats.Conn, clientID string, opts NegotiatorOpts) *Negotiator {
	if opts.RepublishInterval <= 0 {
		opts.RepublishInterval = defaultRepublishInterval
	}
	if opts.Deadline <= 0 {
		opts.Deadline = defaultDeadline
	}
	return &Negotiator{nc: nc, clientID: clientID, opts: opts, state: StateIdle}
}

// State returns the current negotiation state.
func (n *Negotiator) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

func (n *Negotiator) setState(s State) {
	n.mu.Lock()
	n.state = s
	n.mu.Unlock()
}

// Negotiate blocks until a domain is assigned, the deadline passes, or the
// context ends. A repeated response for the same client is harmless; the
// first one wins.
func (n *Negotiator) Negotiate(ctx context.Context) (*envelope.BootstrapResponse, error) {
	responses := make(chan *envelope.BootstrapResponse, 4)
	sub, err := n.nc.Subscribe(busutil.BootstrapReplies(n.clientID), func(msg *nats.Msg) {
		env, err := envelope.Decode(msg.Data)
		if err != nil || env.Kind != envelope.KindBootstrapResponse {
			return
		}
		body, err := env.Body()
		if err != nil {
			slog.Warn(fmt.Sprintf("%s - dropping malformed response: %v", negotiatorLogPrefix, err))
			return
		}
		resp := body.(*envelope.BootstrapResponse)
		if resp.ClientID != n.clientID {
			return
		}
		select {
		case responses <- resp:
		default:
		}
	})
	if err != nil {
		return nil, fmt.Errorf("%s - failed to subscribe: %w", negotiatorLogPrefix, err)
	}
	defer sub.Unsubscribe()

	n.setState(StateAwaitingBootstrap)
	if err := n.publishQuery(); err != nil {
		n.setState(StateFailed)
		return nil, err
	}

	ticker := time.NewTicker(n.opts.RepublishInterval)
	defer ticker.Stop()
	deadline := time.NewTimer(n.opts.Deadline)
	defer deadline.Stop()

	for {
		select {
		case resp := <-responses:
			n.setState(StateDomainAssigned)
			slog.Info(fmt.Sprintf("%s - assigned domain %d", negotiatorLogPrefix, resp.Domain))
			return resp, nil
		case <-ticker.C:
			if err := n.publishQuery(); err != nil {
				slog.Warn(fmt.Sprintf("%s - republish failed: %v", negotiatorLogPrefix, err))
			}
		case <-deadline.C:
			n.setState(StateFailed)
			return nil, ErrBootstrapTimeout
		case <-ctx.Done():
			n.setState(StateFailed)
			return nil, ctx.Err()
		}
	}
}

func (n *Negotiator) publishQuery() error {
	query := &envelope.BootstrapQuery{
		ClientID:     n.clientID,
		ClientKind:   n.opts.ClientKind,
		Capabilities: n.opts.Capabilities,
		LocationHint: n.opts.LocationHint,
		Stamp:        spatial.Now(),
	}
	env, err := envelope.New(envelope.KindBootstrapQuery, busutil.BootstrapQuery(), n.clientID, n.clientID, query)
	if err != nil {
		return fmt.Errorf("%s - failed to build query: %w", negotiatorLogPrefix, err)
	}
	data, err := env.Encode()
	if err != nil {
		return fmt.Errorf("%s - failed to encode query: %w", negotiatorLogPrefix, err)
	}
	if err := n.nc.Publish(busutil.BootstrapQuery(), data); err != nil {
		return fmt.Errorf("%s - failed to publish query: %w", negotiatorLogPrefix, err)
	}
	return nil
}
