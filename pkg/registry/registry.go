package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/openarcloud/spatial-discovery/pkg/envelope"
	"github.com/openarcloud/spatial-discovery/pkg/events"
	"github.com/openarcloud/spatial-discovery/pkg/spatial"
)

const logPrefix = "registry"

const (
	defaultTTLSeconds    = 300
	defaultSweepInterval = 5 * time.Second
	defaultPageLimit     = 50
)

// Config holds registry configuration.
type Config struct {
	// DefaultTTLSeconds applies to announces that carry no ttl_sec.
	DefaultTTLSeconds int64
	// SweepInterval is how often the background sweeper evicts expired
	// entries. Zero uses the default; negative disables the sweeper.
	SweepInterval time.Duration
	// DefaultPageLimit caps a query page when the query names no limit.
	DefaultPageLimit int
}

// DefaultConfig returns the default registry configuration.
func DefaultConfig() Config {
	return Config{
		DefaultTTLSeconds: defaultTTLSeconds,
		SweepInterval:     defaultSweepInterval,
		DefaultPageLimit:  defaultPageLimit,
	}
}

// NewRegistryParams holds parameters for NewRegistry.
type NewRegistryParams struct {
	Publisher events.EventPublisher
	Config    Config
	// Now overrides the clock (for testing).
	Now func() time.Time
}

// Registry is the volatile announce store. Entries live until their TTL
// runs out or the announcer withdraws them; nothing is persisted.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*Entry
	order   []string

	publisher events.EventPublisher
	config    Config
	now       func() time.Time

	sweepStop chan struct{}
	sweepDone chan struct{}
	closed    bool
}

// NewRegistry creates a new Registry instance and starts its sweeper.
func NewRegistry(params NewRegistryParams) *Registry {
	cfg := params.Config
	if cfg.DefaultTTLSeconds == 0 {
		cfg.DefaultTTLSeconds = defaultTTLSeconds
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = defaultSweepInterval
	}
	if cfg.DefaultPageLimit == 0 {
		cfg.DefaultPageLimit = defaultPageLimit
	}

	pub := params.Publisher
	if pub == nil {
		pub = &events.NoOpPublisher{}
	}

	now := params.Now
	if now == nil {
		now = time.Now
	}

	r := &Registry{
		entries:   make(map[string]*Entry),
		publisher: pub,
		config:    cfg,
		now:       now,
	}

	if cfg.SweepInterval > 0 {
		r.sweepStop = make(chan struct{})
		r.sweepDone = make(chan struct{})
		go r.sweepLoop(cfg.SweepInterval)
	}

	return r
}

// Ingest validates an announce and stores it under its self_uri. A repeat
// announce for the same self_uri replaces the old entry and moves it to the
// end of the insertion order.
func (r *Registry) Ingest(ctx context.Context, ann *envelope.Announce) (*Entry, error) {
	if err := validateAnnounce(ann); err != nil {
		return nil, err
	}

	ttl := ann.TTLSec
	if ttl <= 0 {
		ttl = r.config.DefaultTTLSeconds
	}

	// The lease ages from the announce's own stamp, so a replayed or
	// stale-stamped announce does not get a fresh TTL at ingest. A zero
	// stamp leases from ingest time.
	now := r.now()
	leaseStart := ann.Stamp.Time()
	if ann.Stamp.IsZero() {
		leaseStart = now
	}
	entry := &Entry{
		Announce:   *ann,
		IngestedAt: now,
		ExpiresAt:  leaseStart.Add(time.Duration(ttl) * time.Second),
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, NewRegistryError(CodeClosed, "registry is closed")
	}
	if _, exists := r.entries[ann.SelfURI]; exists {
		r.removeFromOrder(ann.SelfURI)
	}
	r.entries[ann.SelfURI] = entry
	r.order = append(r.order, ann.SelfURI)
	r.mu.Unlock()

	slog.Debug(fmt.Sprintf("%s - ingested %s rtype=%s ttl=%ds", logPrefix, ann.SelfURI, ann.RType, ttl))
	r.publishChanged(ctx, events.ChangeIngested, ann)
	return entry, nil
}

// Withdraw removes an announce before its TTL runs out.
func (r *Registry) Withdraw(ctx context.Context, selfURI string) error {
	r.mu.Lock()
	entry, exists := r.entries[selfURI]
	if exists {
		delete(r.entries, selfURI)
		r.removeFromOrder(selfURI)
	}
	r.mu.Unlock()

	if !exists {
		return NewRegistryError(CodeNotFound, fmt.Sprintf("no entry for %s", selfURI))
	}

	slog.Debug(fmt.Sprintf("%s - withdrew %s", logPrefix, selfURI))
	r.publishChanged(ctx, events.ChangeWithdrawn, &entry.Announce)
	return nil
}

// Get returns the live entry for a self_uri, or nil if absent or expired.
func (r *Registry) Get(selfURI string) *Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, exists := r.entries[selfURI]
	if !exists || entry.Expired(r.now()) {
		return nil
	}
	cp := *entry
	return &cp
}

// Entries returns a snapshot of the live entries in insertion order.
func (r *Registry) Entries() []Entry {
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, 0, len(r.order))
	for _, uri := range r.order {
		if entry := r.entries[uri]; entry != nil && !entry.Expired(now) {
			out = append(out, *entry)
		}
	}
	return out
}

// Len returns the number of entries, expired ones included until swept.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Close stops the sweeper. The registry rejects further ingests.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()

	if r.sweepStop != nil {
		close(r.sweepStop)
		<-r.sweepDone
	}
}

// removeFromOrder deletes one key from the insertion order. Caller holds mu.
func (r *Registry) removeFromOrder(selfURI string) {
	for i, uri := range r.order {
		if uri == selfURI {
			r.order = append(r.order[:i], r.order[i+1:]...)
			return
		}
	}
}

func (r *Registry) sweepLoop(interval time.Duration) {
	defer close(r.sweepDone)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.sweepExpired()
		case <-r.sweepStop:
			return
		}
	}
}

// sweepExpired evicts entries whose TTL has run out and emits an expired
// event for each.
func (r *Registry) sweepExpired() {
	now := r.now()

	r.mu.Lock()
	var expired []*Entry
	for uri, entry := range r.entries {
		if entry.Expired(now) {
			expired = append(expired, entry)
			delete(r.entries, uri)
			r.removeFromOrder(uri)
		}
	}
	r.mu.Unlock()

	for _, entry := range expired {
		slog.Debug(fmt.Sprintf("%s - expired %s", logPrefix, entry.Announce.SelfURI))
		r.publishChanged(context.Background(), events.ChangeExpired, &entry.Announce)
	}
}

func (r *Registry) publishChanged(ctx context.Context, change string, ann *envelope.Announce) {
	event := &events.RegistryChangedEvent{
		Change:  change,
		SelfURI: ann.SelfURI,
		RType:   ann.RType,
		Name:    ann.Name,
		StampMS: r.now().UnixMilli(),
	}
	if err := r.publisher.PublishChanged(ctx, event); err != nil {
		slog.Warn(fmt.Sprintf("%s - failed to publish %s event for %s: %v", logPrefix, change, ann.SelfURI, err))
	}
}

// validateAnnounce checks the fields the registry depends on. Wire-level
// validation already ran in the envelope layer for bus-received announces;
// programmatic callers get the same checks here.
func validateAnnounce(ann *envelope.Announce) error {
	if ann == nil {
		return NewRegistryError(CodeInvalidAnnounce, "announce is nil")
	}
	if ann.SelfURI == "" {
		return NewRegistryError(CodeInvalidAnnounce, "self_uri is required")
	}
	if _, err := spatial.ParseURI(ann.SelfURI); err != nil {
		return NewRegistryError(CodeInvalidAnnounce, fmt.Sprintf("self_uri: %v", err))
	}
	switch ann.RType {
	case envelope.RTypeService, envelope.RTypeAnchor, envelope.RTypeContent:
	default:
		return NewRegistryError(CodeInvalidAnnounce, fmt.Sprintf("invalid rtype %q", ann.RType))
	}
	if err := spatial.ValidateCoverageElement(&ann.Bounds); err != nil {
		return NewRegistryError(CodeInvalidAnnounce, fmt.Sprintf("bounds: %v", err))
	}
	if ann.Version != "" {
		if _, err := semver.NewVersion(ann.Version); err != nil {
			return NewRegistryError(CodeInvalidAnnounce, fmt.Sprintf("version %q is not semver: %v", ann.Version, err))
		}
	}
	return nil
}
