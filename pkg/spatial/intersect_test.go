package spatial

import (
	"errors"
	"testing"
)

func TestIntersects_EarthFixed(t *testing.T) {
	announce := EarthFixedBBox(-122.52, 37.70, -122.35, 37.85)

	tests := []struct {
		name  string
		query CoverageElement
		want  bool
	}{
		{"fully contained", EarthFixedBBox(-122.45, 37.75, -122.40, 37.80), true},
		{"partial overlap", EarthFixedBBox(-122.60, 37.60, -122.50, 37.75), true},
		{"disjoint", EarthFixedBBox(10, 10, 11, 11), false},
		{"touching east edge", EarthFixedBBox(-122.35, 37.70, -122.30, 37.85), true},
		{"touching corner", EarthFixedBBox(-122.35, 37.85, -122.30, 37.90), true},
		{"point query on boundary", EarthFixedBBox(-122.52, 37.70, -122.52, 37.70), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Intersects(&announce, &tt.query)
			if err != nil {
				t.Fatalf("Intersects failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Intersects = %v, want %v", got, tt.want)
			}
			// Symmetry.
			rev, err := Intersects(&tt.query, &announce)
			if err != nil {
				t.Fatalf("reverse Intersects failed: %v", err)
			}
			if rev != got {
				t.Errorf("Intersects is not symmetric: %v vs %v", got, rev)
			}
		})
	}
}

func TestIntersects_Local3D(t *testing.T) {
	a := CoverageElement{Type: CoverageAABB, Frame: FrameLocal, AABB: []float64{0, 0, 0, 10, 10, 3}}
	b := CoverageElement{Type: CoverageAABB, Frame: FrameLocal, AABB: []float64{5, 5, 1, 15, 15, 2}}
	c := CoverageElement{Type: CoverageAABB, Frame: FrameLocal, AABB: []float64{5, 5, 4, 15, 15, 6}}

	if got, err := Intersects(&a, &b); err != nil || !got {
		t.Errorf("overlapping volumes: got %v, %v", got, err)
	}
	// Same footprint, disjoint on z.
	if got, err := Intersects(&a, &c); err != nil || got {
		t.Errorf("z-disjoint volumes: got %v, %v", got, err)
	}
}

func TestIntersects_MixedDimensions(t *testing.T) {
	flat := CoverageElement{Type: CoverageBBox, Frame: FrameLocal, BBox: []float64{0, 0, 10, 10}}
	volume := CoverageElement{Type: CoverageAABB, Frame: FrameLocal, AABB: []float64{5, 5, 0, 15, 15, 100}}
	got, err := Intersects(&flat, &volume)
	if err != nil {
		t.Fatalf("Intersects failed: %v", err)
	}
	if !got {
		t.Error("2D extent should match 3D volume on shared axes")
	}
}

func TestIntersects_CrossFrame(t *testing.T) {
	earth := EarthFixedBBox(-122.5, 37.7, -122.3, 37.8)
	local := CoverageElement{Type: CoverageBBox, Frame: FrameLocal, BBox: []float64{-122.5, 37.7, -122.3, 37.8}}
	got, err := Intersects(&earth, &local)
	if err != nil {
		t.Fatalf("cross-frame comparison must not error: %v", err)
	}
	if got {
		t.Error("cross-frame comparison must be conservatively false")
	}
}

func TestIntersects_CRSMismatch(t *testing.T) {
	a := EarthFixedBBox(-122.5, 37.7, -122.3, 37.8)
	b := EarthFixedBBox(-122.5, 37.7, -122.3, 37.8)
	b.CRS = "EPSG:3857"
	_, err := Intersects(&a, &b)
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Code != CodeCrossFrameMismatch {
		t.Errorf("expected CROSS_FRAME_MISMATCH, got %v", err)
	}
}

func TestIntersects_InvalidElement(t *testing.T) {
	a := EarthFixedBBox(-122.5, 37.7, -122.3, 37.8)
	bad := CoverageElement{Type: CoverageBBox, Frame: FrameEarthFixed, CRS: "EPSG:4979", BBox: []float64{0, 0, 0, 1, 1, 1}}
	if _, err := Intersects(&a, &bad); err == nil {
		t.Error("expected validation error for 6-value earth-fixed bbox")
	}
}
