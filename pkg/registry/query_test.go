package registry

import (
	"context"
	"fmt"
	"testing"

	"github.com/openarcloud/spatial-discovery/pkg/envelope"
	"github.com/openarcloud/spatial-discovery/pkg/spatial"
)

func seedRegistry(t *testing.T, r *Registry, anns ...*envelope.Announce) {
	t.Helper()
	for _, ann := range anns {
		if _, err := r.Ingest(context.Background(), ann); err != nil {
			t.Fatalf("seed ingest %s failed: %v", ann.SelfURI, err)
		}
	}
}

func TestQueryFilters(t *testing.T) {
	r, _ := newTestRegistry(t, nil)

	vps := testAnnounce("spatialdds://demo/zone:sf/service:vps-1")
	vps.Tags = []string{"vps", "outdoor"}
	vps.ClassID = "vps.localize"

	mesh := testAnnounce("spatialdds://demo/zone:sf/content:mesh-1")
	mesh.RType = envelope.RTypeContent
	mesh.Version = "2.0.0"
	mesh.Tags = []string{"mesh"}

	anchor := testAnnounce("spatialdds://demo/zone:oakland/anchor:a-1")
	anchor.RType = envelope.RTypeAnchor
	anchor.Bounds = spatial.EarthFixedBBox(-122.30, 37.79, -122.20, 37.83)

	seedRegistry(t, r, vps, mesh, anchor)

	tests := []struct {
		name string
		in   QueryInput
		want []string
	}{
		{"no filters", QueryInput{}, []string{vps.SelfURI, mesh.SelfURI, anchor.SelfURI}},
		{"rtype", QueryInput{RType: envelope.RTypeContent}, []string{mesh.SelfURI}},
		{"class_id", QueryInput{ClassID: "vps.localize"}, []string{vps.SelfURI}},
		{"single tag", QueryInput{Tags: []string{"vps"}}, []string{vps.SelfURI}},
		{"all tags must match", QueryInput{Tags: []string{"vps", "indoor"}}, nil},
		{"version range", QueryInput{VersionRange: ">=2.0.0"}, []string{mesh.SelfURI}},
		{"version range lower", QueryInput{VersionRange: "^1.0.0"}, []string{vps.SelfURI, anchor.SelfURI}},
		{
			"volume hits sf only",
			QueryInput{Volume: &spatial.CoverageElement{
				Type:  spatial.CoverageBBox,
				Frame: spatial.FrameEarthFixed,
				CRS:   "EPSG:4979",
				BBox:  []float64{-122.45, 37.75, -122.40, 37.80},
			}},
			[]string{vps.SelfURI, mesh.SelfURI},
		},
		{
			"volume misses everything",
			QueryInput{Volume: &spatial.CoverageElement{
				Type:  spatial.CoverageBBox,
				Frame: spatial.FrameEarthFixed,
				CRS:   "EPSG:4979",
				BBox:  []float64{10, 10, 11, 11},
			}},
			nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := r.Query(tt.in)
			if err != nil {
				t.Fatalf("Query failed: %v", err)
			}
			if len(out.Results) != len(tt.want) {
				t.Fatalf("got %d results, want %d", len(out.Results), len(tt.want))
			}
			for i, uri := range tt.want {
				if out.Results[i].SelfURI != uri {
					t.Errorf("result %d = %s, want %s", i, out.Results[i].SelfURI, uri)
				}
			}
		})
	}
}

func TestQueryInvalidInput(t *testing.T) {
	r, _ := newTestRegistry(t, nil)

	_, err := r.Query(QueryInput{VersionRange: ">>nope"})
	regErr, ok := err.(*RegistryError)
	if !ok || regErr.Code != CodeInvalidQuery {
		t.Errorf("bad version_range must return INVALID_QUERY, got %v", err)
	}

	_, err = r.Query(QueryInput{Volume: &spatial.CoverageElement{Type: spatial.CoverageBBox, Frame: "mars-fixed", BBox: []float64{0, 0, 1, 1}}})
	regErr, ok = err.(*RegistryError)
	if !ok || regErr.Code != CodeInvalidQuery {
		t.Errorf("bad volume must return INVALID_QUERY, got %v", err)
	}

	_, err = r.Query(QueryInput{Limit: -1})
	regErr, ok = err.(*RegistryError)
	if !ok || regErr.Code != CodeInvalidQuery {
		t.Errorf("negative limit must return INVALID_QUERY, got %v", err)
	}
}

func TestQueryPagination(t *testing.T) {
	r, _ := newTestRegistry(t, nil)

	var uris []string
	for i := 0; i < 5; i++ {
		uri := fmt.Sprintf("spatialdds://demo/zone:sf/content:item-%d", i)
		uris = append(uris, uri)
		ann := testAnnounce(uri)
		ann.RType = envelope.RTypeContent
		seedRegistry(t, r, ann)
	}

	first, err := r.Query(QueryInput{Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(first.Results) != 2 || first.Total != 5 {
		t.Fatalf("page 1: got %d results total %d, want 2/5", len(first.Results), first.Total)
	}
	if first.NextPageToken != "o=2" {
		t.Errorf("NextPageToken = %q, want o=2", first.NextPageToken)
	}

	second, err := r.Query(QueryInput{Limit: 2, PageToken: first.NextPageToken})
	if err != nil {
		t.Fatal(err)
	}
	if len(second.Results) != 2 || second.Results[0].SelfURI != uris[2] {
		t.Fatalf("page 2 starts at %s, want %s", second.Results[0].SelfURI, uris[2])
	}

	third, err := r.Query(QueryInput{Limit: 2, PageToken: second.NextPageToken})
	if err != nil {
		t.Fatal(err)
	}
	if len(third.Results) != 1 || third.NextPageToken != "" {
		t.Errorf("final page: got %d results token %q, want 1 results and empty token", len(third.Results), third.NextPageToken)
	}

	// Garbage tokens restart from the first page.
	restart, err := r.Query(QueryInput{Limit: 2, PageToken: "garbage"})
	if err != nil {
		t.Fatal(err)
	}
	if restart.Results[0].SelfURI != uris[0] {
		t.Errorf("garbage token must restart from first page, got %s", restart.Results[0].SelfURI)
	}

	// A token past the end yields an empty final page.
	past, err := r.Query(QueryInput{Limit: 2, PageToken: "o=99"})
	if err != nil {
		t.Fatal(err)
	}
	if len(past.Results) != 0 || past.NextPageToken != "" {
		t.Errorf("past-the-end token must yield empty final page, got %d results", len(past.Results))
	}
}
