// Package vps implements a visual positioning provider: it announces its
// coverage, answers coverage queries, and serves localize requests with a
// deterministic mock solver.
package vps

import (
	"fmt"
	"log/slog"
	"time"

	nats "github.com/nats-io/nats.go"

	"github.com/openarcloud/spatial-discovery/pkg/busutil"
	"github.com/openarcloud/spatial-discovery/pkg/envelope"
	"github.com/openarcloud/spatial-discovery/pkg/spatial"
)

const logPrefix = "vps:provider"

const (
	defaultAnnounceInterval = 60 * time.Second
	defaultTTLSec           = 300

	mockConfidence = 0.92
	mockRMSEM      = 0.035
)

// Opts configures a provider.
type Opts struct {
	ServiceID string
	SelfURI   string
	Name      string
	Version   string
	Coverage  spatial.CoverageElement
	Endpoint  string
	Tags      []string
	// AnnounceInterval is how often the announce is refreshed. Zero uses
	// the default; negative disables the announce loop.
	AnnounceInterval time.Duration
	TTLSec           int64
}

// Provider is one VPS instance bound to a domain.
type Provider struct {
	nc       *nats.Conn
	subjects busutil.Subjects
	opts     Opts
	filter   *busutil.EchoFilter
	mapFrame spatial.FrameRef

	subs []*nats.Subscription
	stop chan struct{}
	done chan struct{}
}

// NewProvider creates a provider on the given domain.
func NewProvider(nc *nats.Conn, domain int, opts Opts) *Provider {
	if opts.AnnounceInterval == 0 {
		opts.AnnounceInterval = defaultAnnounceInterval
	}
	if opts.TTLSec <= 0 {
		opts.TTLSec = defaultTTLSec
	}
	return &Provider{
		nc:       nc,
		subjects: busutil.NewSubjects(domain),
		opts:     opts,
		filter:   busutil.NewEchoFilter(opts.ServiceID),
		mapFrame: spatial.NewFrameRef(fmt.Sprintf("map:%s", opts.ServiceID)),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start announces the service and begins serving coverage and localize
// queries.
func (p *Provider) Start() error {
	if errs := busutil.CheckCanonical([]string{p.subjects.CoverageQuery(), p.subjects.LocalizeRequest()}); len(errs) != 0 {
		return fmt.Errorf("%s - non-canonical subjects: %v", logPrefix, errs)
	}

	covSub, err := p.nc.Subscribe(p.subjects.CoverageQuery(), p.handleCoverageQuery)
	if err != nil {
		return fmt.Errorf("%s - failed to subscribe coverage: %w", logPrefix, err)
	}
	p.subs = append(p.subs, covSub)

	locSub, err := p.nc.Subscribe(p.subjects.LocalizeRequest(), p.handleLocalizeRequest)
	if err != nil {
		return fmt.Errorf("%s - failed to subscribe localize: %w", logPrefix, err)
	}
	p.subs = append(p.subs, locSub)

	if err := p.publishAnnounce(); err != nil {
		return err
	}
	if p.opts.AnnounceInterval > 0 {
		go p.announceLoop()
	} else {
		close(p.done)
	}

	slog.Info(fmt.Sprintf("%s - %s serving domain %d", logPrefix, p.opts.ServiceID, p.subjects.Domain))
	return nil
}

// Stop unsubscribes and halts the announce loop.
func (p *Provider) Stop() {
	close(p.stop)
	for _, sub := range p.subs {
		sub.Unsubscribe()
	}
	p.subs = nil
	<-p.done
}

// Announce returns the provider's current announce payload.
func (p *Provider) Announce() *envelope.Announce {
	return &envelope.Announce{
		SelfURI:   p.opts.SelfURI,
		RType:     envelope.RTypeService,
		Name:      p.opts.Name,
		Version:   p.opts.Version,
		Bounds:    p.opts.Coverage,
		Endpoint:  p.opts.Endpoint,
		Tags:      p.opts.Tags,
		ClassID:   "vps.localize",
		TTLSec:    p.opts.TTLSec,
		Stamp:     spatial.Now(),
		ServiceID: p.opts.ServiceID,
	}
}

func (p *Provider) announceLoop() {
	defer close(p.done)
	ticker := time.NewTicker(p.opts.AnnounceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := p.publishAnnounce(); err != nil {
				slog.Warn(fmt.Sprintf("%s - announce refresh failed: %v", logPrefix, err))
			}
		case <-p.stop:
			return
		}
	}
}

func (p *Provider) publishAnnounce() error {
	env, err := envelope.New(envelope.KindAnnounce, p.subjects.DiscoveryAnnounce(), p.opts.ServiceID, "", p.Announce())
	if err != nil {
		return fmt.Errorf("%s - failed to build announce: %w", logPrefix, err)
	}
	data, err := env.Encode()
	if err != nil {
		return fmt.Errorf("%s - failed to encode announce: %w", logPrefix, err)
	}
	if err := p.nc.Publish(p.subjects.DiscoveryAnnounce(), data); err != nil {
		return fmt.Errorf("%s - failed to publish announce: %w", logPrefix, err)
	}
	return nil
}

func (p *Provider) handleCoverageQuery(msg *nats.Msg) {
	env, err := envelope.Decode(msg.Data)
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - dropping malformed envelope: %v", logPrefix, err))
		return
	}
	if env.Kind != envelope.KindCoverageQuery || p.filter.ShouldDrop(env) {
		return
	}
	body, err := env.Body()
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - dropping malformed coverage query: %v", logPrefix, err))
		return
	}
	query := body.(*envelope.CoverageQuery)

	covered, err := spatial.Intersects(&query.Volume, &p.opts.Coverage)
	if err != nil {
		slog.Debug(fmt.Sprintf("%s - coverage query %s not comparable: %v", logPrefix, query.QueryID, err))
		covered = false
	}

	resp := &envelope.CoverageResponse{
		QueryID:   query.QueryID,
		ServiceID: p.opts.ServiceID,
		Covered:   covered,
		Stamp:     spatial.Now(),
	}
	if covered {
		resp.Coverage = []spatial.CoverageElement{p.opts.Coverage}
	}
	p.reply(query.ReplyTopic, envelope.KindCoverageResponse, query.QueryID, resp)
}

func (p *Provider) handleLocalizeRequest(msg *nats.Msg) {
	env, err := envelope.Decode(msg.Data)
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - dropping malformed envelope: %v", logPrefix, err))
		return
	}
	if env.Kind != envelope.KindLocalizeRequest || p.filter.ShouldDrop(env) {
		return
	}
	body, err := env.Body()
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - dropping malformed localize request: %v", logPrefix, err))
		return
	}
	req := body.(*envelope.LocalizeRequest)

	// Requests addressed to another provider are not ours to answer.
	if req.ServiceID != "" && req.ServiceID != p.opts.ServiceID {
		return
	}

	resp := p.localize(req)
	p.reply(p.subjects.LocalizeResponse(), envelope.KindLocalizeResponse, req.RequestID, resp)
}

// localize runs the mock solver: a prior inside coverage succeeds with a
// refined copy of the prior, anything else is a provider-reported failure.
func (p *Provider) localize(req *envelope.LocalizeRequest) *envelope.LocalizeResponse {
	resp := &envelope.LocalizeResponse{
		RequestID: req.RequestID,
		ServiceID: p.opts.ServiceID,
		Stamp:     spatial.Now(),
	}

	prior := spatial.CoverageElement{
		Type:  spatial.CoverageBBox,
		Frame: spatial.FrameEarthFixed,
		CRS:   p.opts.Coverage.CRS,
		BBox:  []float64{req.PriorGeoPose.LonDeg, req.PriorGeoPose.LatDeg, req.PriorGeoPose.LonDeg, req.PriorGeoPose.LatDeg},
	}
	inside, err := spatial.Intersects(&prior, &p.opts.Coverage)
	if err != nil || !inside {
		resp.Quality = envelope.LocalizeQuality{Success: false, Message: "prior outside coverage"}
		return resp
	}

	q, err := spatial.NormalizeQuaternion(req.PriorGeoPose.QXYZW)
	if err != nil {
		resp.Quality = envelope.LocalizeQuality{Success: false, Message: "degenerate prior orientation"}
		return resp
	}

	frame := p.mapFrame
	resp.GeoPose = &spatial.GeoPose{
		LatDeg:   req.PriorGeoPose.LatDeg,
		LonDeg:   req.PriorGeoPose.LonDeg,
		AltM:     req.PriorGeoPose.AltM,
		QXYZW:    q,
		FrameRef: &frame,
		Stamp:    spatial.Now(),
	}
	resp.Quality = envelope.LocalizeQuality{Success: true, Confidence: mockConfidence, RMSEM: mockRMSEM}
	return resp
}

func (p *Provider) reply(subject string, kind envelope.Kind, requestID string, payload interface{}) {
	env, err := envelope.New(kind, subject, p.opts.ServiceID, requestID, payload)
	if err != nil {
		slog.Error(fmt.Sprintf("%s - failed to build %s: %v", logPrefix, kind, err))
		return
	}
	data, err := env.Encode()
	if err != nil {
		slog.Error(fmt.Sprintf("%s - failed to encode %s: %v", logPrefix, kind, err))
		return
	}
	if err := p.nc.Publish(subject, data); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to publish %s: %v", logPrefix, kind, err))
	}
}
