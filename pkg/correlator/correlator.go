// Package correlator matches response envelopes back to the requests that
// caused them. Requests are keyed by request id; paged results stream to the
// caller until the final page or the deadline.
package correlator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/openarcloud/spatial-discovery/pkg/envelope"
)

const logPrefix = "correlator"

// pageBuffer bounds how many undelivered pages a pending request may hold.
const pageBuffer = 16

var (
	// ErrTimedOut is the completion error when the deadline passes first.
	ErrTimedOut = errors.New("request timed out")
	// ErrCancelled is the completion error after an explicit Cancel.
	ErrCancelled = errors.New("request cancelled")
	// ErrDuplicateRequest is returned by Issue for an id already pending.
	ErrDuplicateRequest = errors.New("request id already pending")
)

// Pending is one in-flight request. Pages delivers response envelopes in
// arrival order; the channel closes when the request completes. Err is valid
// after the channel closes.
type Pending struct {
	RequestID string

	expect envelope.Kind
	pages  chan *envelope.Envelope
	done   chan struct{}
	err    error
	once   sync.Once
	timer  *time.Timer
}

// Pages returns the response stream. It closes on completion.
func (p *Pending) Pages() <-chan *envelope.Envelope {
	return p.pages
}

// Wait blocks until the request completes or the context ends. It returns
// nil for a normal completion.
func (p *Pending) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the completion error. Only meaningful once done.
func (p *Pending) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

// Correlator is the table of pending requests. Safe for concurrent use.
type Correlator struct {
	mu      sync.Mutex
	pending map[string]*Pending
}

// New creates an empty correlator.
func New() *Correlator {
	return &Correlator{pending: make(map[string]*Pending)}
}

// Issue registers a pending request. Responses arriving with the given id
// and kind are delivered on the returned Pending until the final page or
// until the timeout completes it with ErrTimedOut. At most one request per
// id may be pending.
func (c *Correlator) Issue(requestID string, expect envelope.Kind, timeout time.Duration) (*Pending, error) {
	if requestID == "" {
		return nil, errors.New("request id is required")
	}

	p := &Pending{
		RequestID: requestID,
		expect:    expect,
		pages:     make(chan *envelope.Envelope, pageBuffer),
		done:      make(chan struct{}),
	}

	c.mu.Lock()
	if _, exists := c.pending[requestID]; exists {
		c.mu.Unlock()
		return nil, ErrDuplicateRequest
	}
	c.pending[requestID] = p
	c.mu.Unlock()

	p.timer = time.AfterFunc(timeout, func() {
		c.complete(requestID, ErrTimedOut)
	})

	slog.Debug(fmt.Sprintf("%s - issued %s expecting %s timeout=%s", logPrefix, requestID, expect, timeout))
	return p, nil
}

// Cancel completes a pending request with ErrCancelled. Cancelling an
// unknown or already-complete id is a no-op.
func (c *Correlator) Cancel(requestID string) {
	c.complete(requestID, ErrCancelled)
}

// Len returns the number of pending requests.
func (c *Correlator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// OnEnvelope routes one inbound envelope. Envelopes without a pending
// request, with a mismatched kind, or arriving after completion are dropped
// silently; duplicates of the final page are safe no-ops.
func (c *Correlator) OnEnvelope(env *envelope.Envelope) {
	if env == nil {
		return
	}
	id := correlationID(env)
	if id == "" {
		return
	}

	c.mu.Lock()
	p, exists := c.pending[id]
	c.mu.Unlock()
	if p == nil || !exists {
		slog.Debug(fmt.Sprintf("%s - no pending request for %s kind=%s", logPrefix, id, env.Kind))
		return
	}
	if p.expect != "" && env.Kind != p.expect {
		slog.Debug(fmt.Sprintf("%s - kind mismatch for %s: got %s, want %s", logPrefix, id, env.Kind, p.expect))
		return
	}

	body, err := env.Body()
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - malformed response for %s: %v", logPrefix, id, err))
		return
	}

	final := true
	switch b := body.(type) {
	case *envelope.ContentQueryResult:
		final = b.NextPageToken == ""
	case *envelope.CoverageResponse:
		// Coverage queries fan out to every provider; the gather window
		// runs until the deadline, so a single response never completes it.
		final = false
	}

	// Re-check membership under the lock before sending: completion removes
	// the request from the table before closing the channel, so a request
	// still in the table has an open channel. The send is non-blocking, so
	// holding the lock across it is safe.
	c.mu.Lock()
	if c.pending[id] != p {
		c.mu.Unlock()
		slog.Debug(fmt.Sprintf("%s - request %s completed during delivery, dropping", logPrefix, id))
		return
	}
	select {
	case p.pages <- env:
	default:
		c.mu.Unlock()
		slog.Warn(fmt.Sprintf("%s - dropping page for %s: buffer full", logPrefix, id))
		return
	}
	c.mu.Unlock()

	if final {
		c.complete(id, nil)
	}
}

// ExpectedKind reports whether the envelope kind answers a request of the
// given kind.
func ExpectedKind(request envelope.Kind) envelope.Kind {
	switch request {
	case envelope.KindCoverageQuery:
		return envelope.KindCoverageResponse
	case envelope.KindContentQuery:
		return envelope.KindContentQueryResult
	case envelope.KindLocalizeRequest:
		return envelope.KindLocalizeResponse
	case envelope.KindBootstrapQuery:
		return envelope.KindBootstrapResponse
	default:
		return ""
	}
}

// complete removes the request from the table and finishes it exactly once.
func (c *Correlator) complete(requestID string, err error) {
	c.mu.Lock()
	p, exists := c.pending[requestID]
	if exists {
		delete(c.pending, requestID)
	}
	c.mu.Unlock()
	if !exists {
		return
	}

	p.once.Do(func() {
		if p.timer != nil {
			p.timer.Stop()
		}
		p.err = err
		close(p.pages)
		close(p.done)
	})
}

// correlationID extracts the id a response correlates on: the envelope's
// request_id header, else a request_id, query_id, or client_id payload
// field.
func correlationID(env *envelope.Envelope) string {
	if env.RequestID != "" {
		return env.RequestID
	}
	if len(env.Payload) == 0 {
		return ""
	}
	var fields struct {
		RequestID string `json:"request_id"`
		QueryID   string `json:"query_id"`
		ClientID  string `json:"client_id"`
	}
	if err := json.Unmarshal(env.Payload, &fields); err != nil {
		return ""
	}
	if fields.RequestID != "" {
		return fields.RequestID
	}
	if fields.QueryID != "" {
		return fields.QueryID
	}
	return fields.ClientID
}
