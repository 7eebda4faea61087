package catalog

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	nats "github.com/nats-io/nats.go"

	"github.com/openarcloud/spatial-discovery/pkg/busutil"
	"github.com/openarcloud/spatial-discovery/pkg/envelope"
	"github.com/openarcloud/spatial-discovery/pkg/registry"
	"github.com/openarcloud/spatial-discovery/pkg/spatial"
)

const logPrefix = "catalog:responder"

const defaultPageLimit = 10

// Responder answers content queries from its seed store. Results are
// newest-first (stamp descending, self_uri ascending on ties) and paged with
// the registry's token format; a client fetches the next page by re-issuing
// the query with the returned token.
type Responder struct {
	nc       *nats.Conn
	subjects busutil.Subjects
	senderID string
	filter   *busutil.EchoFilter
	now      func() time.Time

	mu    sync.Mutex
	items []envelope.Announce

	sub *nats.Subscription
}

// NewResponder creates a responder on the given domain serving the seed
// items.
func NewResponder(nc *nats.Conn, domain int, senderID string, seeds *SeedFile) *Responder {
	r := &Responder{
		nc:       nc,
		subjects: busutil.NewSubjects(domain),
		senderID: senderID,
		filter:   busutil.NewEchoFilter(senderID),
		now:      time.Now,
	}
	if seeds != nil {
		r.items = append(r.items, seeds.Items...)
	}
	return r
}

// Add ingests one more content item, replacing any item with the same
// self_uri.
func (r *Responder) Add(item envelope.Announce) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.items {
		if r.items[i].SelfURI == item.SelfURI {
			r.items[i] = item
			return
		}
	}
	r.items = append(r.items, item)
}

// Len returns the number of catalog items.
func (r *Responder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

// Start subscribes to the domain's content query subject.
func (r *Responder) Start() error {
	if errs := busutil.CheckCanonical([]string{r.subjects.ContentQuery()}); len(errs) != 0 {
		return fmt.Errorf("%s - non-canonical subject: %v", logPrefix, errs)
	}
	sub, err := r.nc.Subscribe(r.subjects.ContentQuery(), r.handle)
	if err != nil {
		return fmt.Errorf("%s - failed to subscribe: %w", logPrefix, err)
	}
	r.sub = sub
	slog.Info(fmt.Sprintf("%s - %s serving domain %d with %d items", logPrefix, r.senderID, r.subjects.Domain, r.Len()))
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
		slog.Warn(fmt.Sprintf("%s - dropping malformed envelope: %v", logPrefix, err))
		return
	}
	if env.Kind != envelope.KindContentQuery || r.filter.ShouldDrop(env) {
		return
	}
	body, err := env.Body()
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - dropping malformed query: %v", logPrefix, err))
		return
	}
	query := body.(*envelope.ContentQuery)

	// A query past its own ttl is stale; answering it would race the
	// client's timeout.
	if query.TTLSec > 0 && r.now().After(query.Stamp.Time().Add(time.Duration(query.TTLSec)*time.Second)) {
		slog.Debug(fmt.Sprintf("%s - ignoring stale query %s", logPrefix, query.QueryID))
		return
	}

	result, err := r.Answer(query)
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - rejecting query %s: %v", logPrefix, query.QueryID, err))
		return
	}

	out, err := envelope.New(envelope.KindContentQueryResult, query.ReplyTopic, r.senderID, query.QueryID, result)
	if err != nil {
		slog.Error(fmt.Sprintf("%s - failed to build result: %v", logPrefix, err))
		return
	}
	data, err := out.Encode()
	if err != nil {
		slog.Error(fmt.Sprintf("%s - failed to encode result: %v", logPrefix, err))
		return
	}
	if err := r.nc.Publish(query.ReplyTopic, data); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to publish result: %v", logPrefix, err))
	}
}

// Answer runs one query against the store and returns a single page.
func (r *Responder) Answer(query *envelope.ContentQuery) (*envelope.ContentQueryResult, error) {
	kinds, err := ParseExpr(query.Expr)
	if err != nil {
		return nil, err
	}
	var constraint *semver.Constraints
	if query.VersionRange != "" {
		c, err := semver.NewConstraint(query.VersionRange)
		if err != nil {
			return nil, fmt.Errorf("version_range %q: %v", query.VersionRange, err)
		}
		constraint = c
	}

	r.mu.Lock()
	snapshot := make([]envelope.Announce, len(r.items))
	copy(snapshot, r.items)
	r.mu.Unlock()

	var matched []envelope.Announce
	for _, item := range snapshot {
		if matches(&item, query, kinds, constraint) {
			matched = append(matched, item)
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		ti, tj := matched[i].Stamp.Time(), matched[j].Stamp.Time()
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return matched[i].SelfURI < matched[j].SelfURI
	})

	limit := query.Limit
	if limit <= 0 {
		limit = defaultPageLimit
	}
	offset := registry.ParsePageToken(query.PageToken)
	if offset > len(matched) {
		offset = len(matched)
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}

	result := &envelope.ContentQueryResult{
		QueryID: query.QueryID,
		Results: matched[offset:end],
		Count:   end - offset,
		Stamp:   spatial.Now(),
	}
	if end < len(matched) {
		result.NextPageToken = registry.FormatPageToken(end)
	}
	return result, nil
}

func matches(item *envelope.Announce, query *envelope.ContentQuery, kinds []string, constraint *semver.Constraints) bool {
	if query.RType != "" && item.RType != query.RType {
		return false
	}
	if query.ClassID != "" && item.ClassID != query.ClassID {
		return false
	}
	for _, want := range query.Tags {
		found := false
		for _, t := range item.Tags {
			if t == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(kinds) > 0 {
		found := false
		for _, k := range kinds {
			if item.Kind == k {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if constraint != nil {
		v, err := semver.NewVersion(item.Version)
		if err != nil || !constraint.Check(v) {
			return false
		}
	}
	hit, err := spatial.Intersects(&query.Volume, &item.Bounds)
	if err != nil {
		slog.Debug(fmt.Sprintf("%s - skipping %s: %v", logPrefix, item.SelfURI, err))
		return false
	}
	return hit
}
