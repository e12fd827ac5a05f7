package series

import "fmt"

// ROI is a box of voxel indices (inclusive bounds) in canonical, non-reversed
// coordinates: index 0 is always the right, anterior or inferior end.
type ROI struct {
	FirstX, LastX int
	FirstY, LastY int
	FirstZ, LastZ int
}

// NewROI builds a ROI from the 6-tuple (firstX, lastX, firstY, lastY, firstZ, lastZ)
func NewROI(bounds []int) (*ROI, error) {
	if len(bounds) != 6 {
		return nil, fmt.Errorf("roi needs 6 bounds, got %d", len(bounds))
	}
	return &ROI{
		FirstX: bounds[0], LastX: bounds[1],
		FirstY: bounds[2], LastY: bounds[3],
		FirstZ: bounds[4], LastZ: bounds[5],
	}, nil
}

// window is a crop in raw (stored order) indices
type window struct {
	x0, x1 int
	y0, y1 int
	z0, z1 int
}

// rawRange maps a canonical inclusive range onto raw indices of an axis of
// size n, mirroring it when the axis is reversed, and clamps it to the axis.
func rawRange(first, last, n int, reverse bool) (int, int, error) {
	if first > last {
		first, last = last, first
	}
	if reverse {
		first, last = n-1-last, n-1-first
	}
	if first < 0 {
		first = 0
	}
	if last > n-1 {
		last = n - 1
	}
	if first > last {
		return 0, 0, fmt.Errorf("roi range is outside the volume (size %d)", n)
	}
	return first, last, nil
}

// rawWindow translates the ROI into raw slice and pixel index ranges
func (r *ROI) rawWindow(g Geometry) (window, error) {
	var w window
	var err error
	if w.x0, w.x1, err = rawRange(r.FirstX, r.LastX, g.NX, g.ReverseX); err != nil {
		return w, fmt.Errorf("x: %w", err)
	}
	if w.y0, w.y1, err = rawRange(r.FirstY, r.LastY, g.NY, g.ReverseY); err != nil {
		return w, fmt.Errorf("y: %w", err)
	}
	if w.z0, w.z1, err = rawRange(r.FirstZ, r.LastZ, g.NZ, g.ReverseZ); err != nil {
		return w, fmt.Errorf("z: %w", err)
	}
	return w, nil
}
