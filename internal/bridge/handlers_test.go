package bridge

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openarcloud/spatial-discovery/internal/config"
	"github.com/openarcloud/spatial-discovery/pkg/envelope"
	"github.com/openarcloud/spatial-discovery/pkg/registry"
	"github.com/openarcloud/spatial-discovery/pkg/spatial"
)

// testBridge returns a bridge with no bus connection; the well-known
// endpoints run entirely against the local registry.
func testBridge(t *testing.T) *Bridge {
	t.Helper()
	b := New(&config.Config{Domain: 1, RequestTimeout: 0}, nil)
	t.Cleanup(b.Stop)
	return b
}

func postJSON(t *testing.T, handler http.Handler, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func testAnnounce() envelope.Announce {
	return envelope.Announce{
		SelfURI: "spatialdds://demo/zone:sf/service:vps-1",
		RType:   envelope.RTypeService,
		Name:    "demo-vps",
		Version: "1.0.0",
		Bounds:  spatial.EarthFixedBBox(-122.52, 37.70, -122.35, 37.85),
		TTLSec:  300,
		Stamp:   spatial.Now(),
	}
}

func TestRegisterAndList(t *testing.T) {
	b := testBridge(t)
	handler := b.Handler()

	rec := postJSON(t, handler, "/.well-known/spatialdds/register", testAnnounce())
	if rec.Code != http.StatusOK {
		t.Fatalf("register status = %d, body %s", rec.Code, rec.Body.String())
	}
	var regResp struct {
		Status  string `json:"status"`
		SelfURI string `json:"self_uri"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &regResp); err != nil {
		t.Fatal(err)
	}
	if regResp.Status != "registered" || regResp.SelfURI != "spatialdds://demo/zone:sf/service:vps-1" {
		t.Errorf("unexpected register response: %+v", regResp)
	}

	req := httptest.NewRequest(http.MethodGet, "/.well-known/spatialdds/list", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var listResp struct {
		Results []envelope.Announce `json:"results"`
		Count   int                 `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &listResp); err != nil {
		t.Fatal(err)
	}
	if listResp.Count != 1 || len(listResp.Results) != 1 {
		t.Fatalf("list count = %d, want 1", listResp.Count)
	}
}

func TestRegisterRejectsInvalidAnnounce(t *testing.T) {
	b := testBridge(t)
	handler := b.Handler()

	ann := testAnnounce()
	ann.RType = "gadget"
	rec := postJSON(t, handler, "/.well-known/spatialdds/register", ann)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var errResp errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &errResp); err != nil {
		t.Fatal(err)
	}
	if errResp.Code != registry.CodeInvalidAnnounce {
		t.Errorf("code = %q, want %q", errResp.Code, registry.CodeInvalidAnnounce)
	}
	if errResp.Status != http.StatusBadRequest || errResp.Timestamp == "" {
		t.Errorf("error body incomplete: %+v", errResp)
	}
}

func TestSearch(t *testing.T) {
	b := testBridge(t)
	handler := b.Handler()

	postJSON(t, handler, "/.well-known/spatialdds/register", testAnnounce())
	content := testAnnounce()
	content.SelfURI = "spatialdds://demo/zone:sf/content:mesh-1"
	content.RType = envelope.RTypeContent
	postJSON(t, handler, "/.well-known/spatialdds/register", content)

	rec := postJSON(t, handler, "/.well-known/spatialdds/search", registry.QueryInput{RType: envelope.RTypeService})
	if rec.Code != http.StatusOK {
		t.Fatalf("search status = %d", rec.Code)
	}
	var out registry.QueryOutput
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if out.Total != 1 || len(out.Results) != 1 {
		t.Fatalf("search total = %d, want 1", out.Total)
	}
	if out.Results[0].RType != envelope.RTypeService {
		t.Errorf("result rtype = %q", out.Results[0].RType)
	}

	rec = postJSON(t, handler, "/.well-known/spatialdds/search", registry.QueryInput{VersionRange: "not semver"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid search status = %d, want 400", rec.Code)
	}
}

func TestHealthWithoutBus(t *testing.T) {
	b := testBridge(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	b.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d", rec.Code)
	}
	var health struct {
		OK       bool               `json:"ok"`
		Domain   int                `json:"dds_domain"`
		Announce *envelope.Announce `json:"announce"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatal(err)
	}
	if health.OK {
		t.Error("health must report ok=false with no bus connection")
	}
	if health.Domain != 1 {
		t.Errorf("dds_domain = %d, want 1", health.Domain)
	}
	if health.Announce != nil {
		t.Error("announce must be null before any service announce arrives")
	}
}

func TestCORSPreflight(t *testing.T) {
	b := testBridge(t)

	req := httptest.NewRequest(http.MethodOptions, "/v1/localize", nil)
	rec := httptest.NewRecorder()
	b.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d, want 204", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS allow-origin header")
	}
}

func TestMethodNotAllowed(t *testing.T) {
	b := testBridge(t)
	handler := b.Handler()

	req := httptest.NewRequest(http.MethodGet, "/v1/localize", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET localize status = %d, want 405", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/.well-known/spatialdds/list", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST list status = %d, want 405", rec.Code)
	}
}

func TestLocalizeRejectsBadPrior(t *testing.T) {
	b := testBridge(t)

	rec := postJSON(t, b.Handler(), "/v1/localize", localizeRequestBody{
		PriorGeoPose: spatial.GeoPose{LatDeg: 200, LonDeg: 0, QXYZW: []float64{0, 0, 0, 1}},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var errResp errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &errResp); err != nil {
		t.Fatal(err)
	}
	if errResp.Code != "INVALID_PRIOR" {
		t.Errorf("code = %q, want INVALID_PRIOR", errResp.Code)
	}
}

func TestCatalogQueryRejectsBadVolume(t *testing.T) {
	b := testBridge(t)

	rec := postJSON(t, b.Handler(), "/v1/catalog/query", map[string]interface{}{
		"volume": map[string]interface{}{"type": "bbox", "frame": "earth-fixed", "bbox": []float64{1, 2, 3}},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
