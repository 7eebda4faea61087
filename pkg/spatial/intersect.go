package spatial

// extent is an axis-aligned interval set: min/max per axis. 2D extents have
// two axes, 3D extents three.
type extent struct {
	min []float64
	max []float64
}

func elementExtent(e *CoverageElement) extent {
	switch {
	case len(e.AABB) == 6:
		return extent{
			min: []float64{e.AABB[0], e.AABB[1], e.AABB[2]},
			max: []float64{e.AABB[3], e.AABB[4], e.AABB[5]},
		}
	case len(e.BBox) == 6:
		return extent{
			min: []float64{e.BBox[0], e.BBox[1], e.BBox[2]},
			max: []float64{e.BBox[3], e.BBox[4], e.BBox[5]},
		}
	default:
		// [west, south, east, north]
		return extent{
			min: []float64{e.BBox[0], e.BBox[1]},
			max: []float64{e.BBox[2], e.BBox[3]},
		}
	}
}

// Intersects reports whether two coverage elements overlap. Both elements
// are validated first. Elements in different frames conservatively do not
// match; earth-fixed elements with differing CRS values fail with
// CROSS_FRAME_MISMATCH rather than silently returning false. Intervals are
// closed: touching edges count as a match, and a degenerate extent
// (min == max on an axis) still intersects a point query on that axis.
func Intersects(a, b *CoverageElement) (bool, error) {
	if err := ValidateCoverageElement(a); err != nil {
		return false, err
	}
	if err := ValidateCoverageElement(b); err != nil {
		return false, err
	}

	if a.Frame != b.Frame {
		return false, nil
	}
	if frameBase(a.Frame) == FrameEarthFixed && a.CRS != b.CRS {
		return false, validationErrorf(CodeCrossFrameMismatch, "crs",
			"cannot compare earth-fixed coverage across CRS %q and %q", a.CRS, b.CRS)
	}

	ea, eb := elementExtent(a), elementExtent(b)

	// A 3D extent against a 2D one compares on the shared horizontal axes.
	axes := len(ea.min)
	if len(eb.min) < axes {
		axes = len(eb.min)
	}
	for i := 0; i < axes; i++ {
		if ea.max[i] < eb.min[i] || eb.max[i] < ea.min[i] {
			return false, nil
		}
	}
	return true, nil
}
