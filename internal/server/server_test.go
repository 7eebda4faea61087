package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	nats "github.com/nats-io/nats.go"

	"github.com/openarcloud/spatial-discovery/internal/config"
	"github.com/openarcloud/spatial-discovery/pkg/busutil"
	"github.com/openarcloud/spatial-discovery/pkg/envelope"
	"github.com/openarcloud/spatial-discovery/pkg/registry"
	"github.com/openarcloud/spatial-discovery/pkg/spatial"
)

// testServer returns a Server wired to an in-memory registry; no bus
// connection is needed for handler tests.
func testServer(t *testing.T) *Server {
	t.Helper()
	reg := registry.NewRegistry(registry.NewRegistryParams{
		Config: registry.Config{SweepInterval: -1},
	})
	t.Cleanup(reg.Close)
	return &Server{
		cfg:      &config.Config{Domain: 1, Authority: "demo", Zone: "sf-downtown"},
		reg:      reg,
		subjects: busutil.NewSubjects(1),
		filter:   busutil.NewEchoFilter("spatial-discovery"),
	}
}

func announceMsg(t *testing.T, senderID string) *nats.Msg {
	t.Helper()
	env, err := envelope.New(envelope.KindAnnounce, "discovery", senderID, "", &envelope.Announce{
		SelfURI: "spatialdds://demo/zone:sf-downtown/service:vps-1",
		RType:   envelope.RTypeService,
		Name:    "demo-vps",
		Version: "1.0.0",
		Bounds:  spatial.EarthFixedBBox(-122.52, 37.70, -122.35, 37.85),
		TTLSec:  300,
		Stamp:   spatial.Now(),
	})
	if err != nil {
		t.Fatal(err)
	}
	data, err := env.Encode()
	if err != nil {
		t.Fatal(err)
	}
	return &nats.Msg{Data: data}
}

func TestHandleAnnounceIngests(t *testing.T) {
	s := testServer(t)

	s.handleAnnounce(announceMsg(t, "vps-1"))
	if s.reg.Get("spatialdds://demo/zone:sf-downtown/service:vps-1") == nil {
		t.Fatal("announce must be ingested into the registry")
	}
}

func TestHandleAnnounceDropsSelfEcho(t *testing.T) {
	s := testServer(t)

	s.handleAnnounce(announceMsg(t, "spatial-discovery"))
	if s.reg.Len() != 0 {
		t.Error("own announce must be dropped by the echo filter")
	}
}

func TestHandleAnnounceDropsMalformed(t *testing.T) {
	s := testServer(t)

	s.handleAnnounce(&nats.Msg{Data: []byte(`not json`)})
	s.handleAnnounce(&nats.Msg{Data: []byte(`{"kind":"ANNOUNCE","payload":{"rtype":"service"}}`)})
	if s.reg.Len() != 0 {
		t.Error("malformed announces must not reach the registry")
	}
}

func TestHandleAnchorDelta(t *testing.T) {
	s := testServer(t)

	delta := &envelope.AnchorDelta{
		AnchorID: "anchor-7",
		SetID:    "sf-downtown",
		GeoPose: spatial.GeoPose{
			LatDeg: 37.7941, LonDeg: -122.3937, AltM: 12,
			QXYZW: []float64{0, 0, 0, 1},
			Stamp: spatial.Now(),
		},
		PersistenceScore: 0.9,
		Stamp:            spatial.Now(),
	}
	env, err := envelope.New(envelope.KindAnchorDelta, "anchors", "client-1", "", delta)
	if err != nil {
		t.Fatal(err)
	}
	data, err := env.Encode()
	if err != nil {
		t.Fatal(err)
	}

	s.handleAnchorDelta(&nats.Msg{Data: data})

	entry := s.reg.Get("spatialdds://demo/zone:sf-downtown/anchor:anchor-7")
	if entry == nil {
		t.Fatal("anchor delta must be ingested as an anchor announce")
	}
	if entry.Announce.RType != envelope.RTypeAnchor {
		t.Errorf("RType = %q, want anchor", entry.Announce.RType)
	}
}

func TestAnchorAnnounce(t *testing.T) {
	delta := &envelope.AnchorDelta{
		AnchorID: "a-1",
		SetID:    "sf",
		GeoPose:  spatial.GeoPose{LatDeg: 37.79, LonDeg: -122.39, QXYZW: []float64{0, 0, 0, 1}},
		Stamp:    spatial.TimeStamp{Sec: 1748779200},
	}
	ann := AnchorAnnounce("demo", delta)
	if ann.SelfURI != "spatialdds://demo/zone:sf/anchor:a-1" {
		t.Errorf("SelfURI = %q", ann.SelfURI)
	}
	if _, err := spatial.ParseURI(ann.SelfURI); err != nil {
		t.Errorf("anchor self_uri must parse: %v", err)
	}
	// Point extent at the anchor's position.
	want := []float64{-122.39, 37.79, -122.39, 37.79}
	for i, v := range want {
		if ann.Bounds.BBox[i] != v {
			t.Errorf("BBox[%d] = %f, want %f", i, ann.Bounds.BBox[i], v)
		}
	}
}

func TestHandleHome(t *testing.T) {
	s := testServer(t)
	s.handleAnnounce(announceMsg(t, "vps-1"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	s.handleHome()(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "spatialdds://demo/zone:sf-downtown/service:vps-1") {
		t.Error("status page must list registry entries")
	}
	if !strings.Contains(body, "demo-vps") {
		t.Error("status page must show announce names")
	}

	rec = httptest.NewRecorder()
	s.handleHome()(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown path status = %d, want 404", rec.Code)
	}
}
