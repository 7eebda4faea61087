// Package spatial holds the geometric vocabulary of the protocol: frames,
// timestamps, geoposes, coverage volumes, and the validation rules every
// other component calls through before accepting externally-sourced data.
package spatial

import (
	"time"

	"github.com/google/uuid"
)

// Frame names accepted in coverage elements and poses. A frame may carry an
// instance suffix after a colon (e.g. "map:downtown-1"); only the base is
// checked against this set.
const (
	FrameEarthFixed = "earth-fixed"
	FrameLocal      = "local"
	FrameMap        = "map"
	FrameAnchor     = "anchor"
)

// Coverage element types. BBox is a 2D earth-fixed or local extent, AABB a
// 3D axis-aligned volume in a local frame.
const (
	CoverageBBox = "bbox"
	CoverageAABB = "aabb"
)

// CRS values accepted on earth-fixed coverage elements.
var validCRS = map[string]bool{
	"EPSG:4979": true,
	"EPSG:4326": true,
	"EPSG:3857": true,
	"local":     true,
}

// FrameRef identifies a coordinate frame instance. Two FrameRefs denote the
// same frame iff UUID matches; FQN is the human-readable name.
type FrameRef struct {
	UUID string `json:"uuid"`
	FQN  string `json:"fqn"`
}

// NewFrameRef creates a FrameRef with a fresh UUID for the given name.
func NewFrameRef(fqn string) FrameRef {
	return FrameRef{UUID: uuid.NewString(), FQN: fqn}
}

// Same reports whether two refs identify the same frame.
func (f FrameRef) Same(other FrameRef) bool {
	return f.UUID == other.UUID
}

// TimeStamp is wall time split into whole seconds and nanoseconds.
type TimeStamp struct {
	Sec     int64 `json:"sec"`
	Nanosec int64 `json:"nanosec"`
}

// Now returns the current time as a TimeStamp.
func Now() TimeStamp {
	t := time.Now()
	return TimeStamp{Sec: t.Unix(), Nanosec: int64(t.Nanosecond())}
}

// Time converts the stamp to a time.Time.
func (ts TimeStamp) Time() time.Time {
	return time.Unix(ts.Sec, ts.Nanosec)
}

// IsZero reports whether the stamp is unset.
func (ts TimeStamp) IsZero() bool {
	return ts.Sec == 0 && ts.Nanosec == 0
}

// GeoPose is a geodetic position with orientation. QXYZW is a unit
// quaternion in [x, y, z, w] order.
type GeoPose struct {
	LatDeg   float64   `json:"lat_deg"`
	LonDeg   float64   `json:"lon_deg"`
	AltM     float64   `json:"alt_m"`
	QXYZW    []float64 `json:"q_xyzw"`
	FrameRef *FrameRef `json:"frame_ref,omitempty"`
	Stamp    TimeStamp `json:"stamp,omitempty"`
}

// CoverageElement is a spatial volume in a named frame. Exactly one of BBox
// and AABB is set. Earth-fixed bboxes are [west, south, east, north] in
// degrees; AABBs are [min_x, min_y, min_z, max_x, max_y, max_z] in the
// element's local frame.
type CoverageElement struct {
	Type  string    `json:"type"`
	Frame string    `json:"frame"`
	CRS   string    `json:"crs,omitempty"`
	BBox  []float64 `json:"bbox,omitempty"`
	AABB  []float64 `json:"aabb,omitempty"`
}

// EarthFixedBBox builds a 2D earth-fixed coverage element.
func EarthFixedBBox(west, south, east, north float64) CoverageElement {
	return CoverageElement{
		Type:  CoverageBBox,
		Frame: FrameEarthFixed,
		CRS:   "EPSG:4979",
		BBox:  []float64{west, south, east, north},
	}
}
