package spatial

import (
	"fmt"
	"math"
	"strings"
)

// Validation error codes.
const (
	CodeDegenerateOrientation = "DEGENERATE_ORIENTATION"
	CodeOutOfRange            = "OUT_OF_RANGE"
	CodeBadCoverageShape      = "BAD_COVERAGE_SHAPE"
	CodeCrossFrameMismatch    = "CROSS_FRAME_MISMATCH"
	CodeBadFrameRef           = "BAD_FRAME_REF"
	CodeBadTimestamp          = "BAD_TIMESTAMP"
	CodeBadURI                = "BAD_URI"
)

// UnitNormTolerance is the accepted deviation from 1.0 for quaternion norms.
const UnitNormTolerance = 1e-6

// zeroNormEpsilon is the norm below which a quaternion cannot be normalized.
const zeroNormEpsilon = 1e-10

// ValidationError is a structured validation failure naming the offending
// field.
type ValidationError struct {
	Code    string
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func validationErrorf(code, field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Code: code, Field: field, Message: fmt.Sprintf(format, args...)}
}

// NormalizeQuaternion returns q scaled to unit norm. It fails with
// DEGENERATE_ORIENTATION when q is not 4 components or its norm is
// effectively zero.
func NormalizeQuaternion(q []float64) ([]float64, error) {
	if len(q) != 4 {
		return nil, validationErrorf(CodeDegenerateOrientation, "q_xyzw",
			"quaternion must have exactly 4 components, got %d", len(q))
	}
	norm := math.Sqrt(q[0]*q[0] + q[1]*q[1] + q[2]*q[2] + q[3]*q[3])
	if norm < zeroNormEpsilon {
		return nil, validationErrorf(CodeDegenerateOrientation, "q_xyzw",
			"cannot normalize zero quaternion")
	}
	return []float64{q[0] / norm, q[1] / norm, q[2] / norm, q[3] / norm}, nil
}

// ValidateQuaternion checks that q has 4 components and unit norm within
// UnitNormTolerance.
func ValidateQuaternion(q []float64) error {
	if len(q) != 4 {
		return validationErrorf(CodeDegenerateOrientation, "q_xyzw",
			"quaternion must have exactly 4 components, got %d", len(q))
	}
	norm := math.Sqrt(q[0]*q[0] + q[1]*q[1] + q[2]*q[2] + q[3]*q[3])
	if math.Abs(norm-1.0) > UnitNormTolerance {
		return validationErrorf(CodeDegenerateOrientation, "q_xyzw",
			"quaternion is not unit-norm: ||q|| = %.6f", norm)
	}
	return nil
}

// ValidateGeoPose checks ranges and orientation. The quaternion must already
// be unit-norm; callers constructing poses normalize first.
func ValidateGeoPose(p *GeoPose) error {
	if p == nil {
		return validationErrorf(CodeOutOfRange, "geopose", "geopose is required")
	}
	if p.LatDeg < -90 || p.LatDeg > 90 {
		return validationErrorf(CodeOutOfRange, "lat_deg",
			"latitude %.6f out of range [-90, 90]", p.LatDeg)
	}
	if p.LonDeg < -180 || p.LonDeg > 180 {
		return validationErrorf(CodeOutOfRange, "lon_deg",
			"longitude %.6f out of range [-180, 180]", p.LonDeg)
	}
	if err := ValidateQuaternion(p.QXYZW); err != nil {
		return err
	}
	if p.FrameRef != nil {
		if err := ValidateFrameRef(*p.FrameRef); err != nil {
			return err
		}
	}
	if !p.Stamp.IsZero() {
		return ValidateTimeStamp(p.Stamp)
	}
	return nil
}

// ValidateFrameRef checks that both identity fields are present.
func ValidateFrameRef(f FrameRef) error {
	if f.UUID == "" {
		return validationErrorf(CodeBadFrameRef, "uuid", "frame ref uuid is required")
	}
	if f.FQN == "" {
		return validationErrorf(CodeBadFrameRef, "fqn", "frame ref fqn is required")
	}
	return nil
}

// ValidateTimeStamp checks nanosec range and non-negative seconds.
func ValidateTimeStamp(ts TimeStamp) error {
	if ts.Sec < 0 {
		return validationErrorf(CodeBadTimestamp, "sec", "seconds must not be negative")
	}
	if ts.Nanosec < 0 || ts.Nanosec >= 1e9 {
		return validationErrorf(CodeBadTimestamp, "nanosec",
			"nanosec %d out of range [0, 1e9)", ts.Nanosec)
	}
	return nil
}

// frameBase strips an instance suffix: "map:downtown-1" -> "map".
func frameBase(frame string) string {
	if idx := strings.IndexByte(frame, ':'); idx >= 0 {
		return frame[:idx]
	}
	return frame
}

func validFrame(frame string) bool {
	switch frameBase(frame) {
	case FrameEarthFixed, FrameLocal, FrameMap, FrameAnchor:
		return true
	}
	return false
}

// ValidateCoverageElement enforces the shape rules: a known type and frame,
// exactly one of bbox/aabb, 4 values for earth-fixed bboxes (with a valid
// CRS), and 4 or 6 values for local-frame extents.
func ValidateCoverageElement(e *CoverageElement) error {
	if e == nil {
		return validationErrorf(CodeBadCoverageShape, "coverage", "coverage element is required")
	}
	if e.Type != CoverageBBox && e.Type != CoverageAABB {
		return validationErrorf(CodeBadCoverageShape, "type",
			"invalid coverage type %q (want bbox or aabb)", e.Type)
	}
	if e.Frame == "" {
		return validationErrorf(CodeBadCoverageShape, "frame", "frame is required")
	}
	if !validFrame(e.Frame) {
		return validationErrorf(CodeBadCoverageShape, "frame",
			"invalid frame %q", e.Frame)
	}
	if (len(e.BBox) > 0) == (len(e.AABB) > 0) {
		return validationErrorf(CodeBadCoverageShape, "bbox",
			"exactly one of bbox and aabb must be present")
	}

	earthFixed := frameBase(e.Frame) == FrameEarthFixed
	if earthFixed {
		if e.CRS == "" {
			return validationErrorf(CodeBadCoverageShape, "crs",
				"earth-fixed coverage requires a crs")
		}
		if !validCRS[e.CRS] {
			return validationErrorf(CodeBadCoverageShape, "crs", "invalid crs %q", e.CRS)
		}
	}

	switch e.Type {
	case CoverageBBox:
		if len(e.BBox) == 0 {
			return validationErrorf(CodeBadCoverageShape, "bbox", "bbox type requires a bbox field")
		}
		if earthFixed {
			if len(e.BBox) != 4 {
				return validationErrorf(CodeBadCoverageShape, "bbox",
					"earth-fixed bbox must have exactly 4 values [west, south, east, north], got %d", len(e.BBox))
			}
		} else if len(e.BBox) != 4 && len(e.BBox) != 6 {
			return validationErrorf(CodeBadCoverageShape, "bbox",
				"bbox must have 4 (2D) or 6 (3D) values, got %d", len(e.BBox))
		}
	case CoverageAABB:
		if len(e.AABB) == 0 {
			return validationErrorf(CodeBadCoverageShape, "aabb", "aabb type requires an aabb field")
		}
		if earthFixed {
			return validationErrorf(CodeBadCoverageShape, "aabb",
				"earth-fixed coverage must use a 4-value bbox, not an aabb")
		}
		if len(e.AABB) != 6 {
			return validationErrorf(CodeBadCoverageShape, "aabb",
				"aabb must have exactly 6 values, got %d", len(e.AABB))
		}
	}
	return nil
}
