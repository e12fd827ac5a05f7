// Package series orders the slices of a cross-sectional image series, checks
// that they form a coherent volume and infers the voxel grid they define.
//
// Slices are never cached: every access reloads the slice from its Source so
// that at most one parsed slice is resident during a pass over the series.
package series

import (
	"fmt"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r3"

	"dicomprojector/internal/models"
)

// Observer is notified of every slice visited through a Series
type Observer interface {
	Observe(s *models.Slice, index int, h Handle) error
}

// ObserverFunc adapts a function to the Observer interface
type ObserverFunc func(s *models.Slice, index int, h Handle) error

// Observe implements Observer
func (f ObserverFunc) Observe(s *models.Slice, index int, h Handle) error {
	return f(s, index, h)
}

// Options controls how a series is opened
type Options struct {
	// Reorder sorts slices by instance number instead of by name.
	// This reads every slice once while opening.
	Reorder bool

	// ROI restricts the series to a box given in canonical coordinates
	ROI *ROI

	// Observers are invoked for every slice visited after opening
	Observers []Observer

	Logger *zap.Logger
}

// Series is an ordered, validated set of slices forming a volume
type Series struct {
	source    Source
	handles   []Handle
	geometry  Geometry
	crop      *window
	observers []Observer
	reference *models.Slice
	logger    *zap.Logger
}

// Open discovers, orders and validates the slices of src and computes the
// series geometry from its first and last slices.
func Open(src Source, opts Options) (*Series, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	handles, err := src.List()
	if err != nil {
		return nil, fmt.Errorf("failed to list slices: %w", err)
	}
	if len(handles) == 0 {
		return nil, ErrEmptySeries
	}

	s := &Series{
		source:    src,
		observers: opts.Observers,
		logger:    logger,
	}

	if opts.Reorder {
		handles, err = orderByInstance(src, handles, func(sl *models.Slice, h Handle) error {
			return s.check(sl, h)
		})
		if err != nil {
			return nil, err
		}
	} else {
		handles = orderByName(handles)
	}
	s.handles = handles

	n := len(handles)
	first, err := s.load(0)
	if err != nil {
		return nil, err
	}
	last := first
	if n > 1 {
		if last, err = s.load(n - 1); err != nil {
			return nil, err
		}
	}

	s.geometry, err = deriveGeometry(first, last, 0, n-1, n)
	if err != nil {
		return nil, err
	}

	if opts.ROI != nil {
		if err := s.applyROI(opts.ROI); err != nil {
			return nil, err
		}
	}

	g := s.geometry
	logger.Debug("Series geometry",
		zap.Int("nx", g.NX), zap.Int("ny", g.NY), zap.Int("nz", g.NZ),
		zap.Float64("dx", g.DX), zap.Float64("dy", g.DY), zap.Float64("dz", g.DZ),
		zap.Bool("reverse_x", g.ReverseX), zap.Bool("reverse_y", g.ReverseY), zap.Bool("reverse_z", g.ReverseZ))
	return s, nil
}

// applyROI restricts the slice list and the pixel window to the ROI
func (s *Series) applyROI(roi *ROI) error {
	w, err := roi.rawWindow(s.geometry)
	if err != nil {
		return fmt.Errorf("invalid roi: %w", err)
	}
	s.handles = s.handles[w.z0 : w.z1+1]
	s.crop = &w
	s.geometry.NX = w.x1 - w.x0 + 1
	s.geometry.NY = w.y1 - w.y0 + 1
	s.geometry.NZ = w.z1 - w.z0 + 1
	g := s.geometry
	s.geometry.Position = r3.Add(g.Position, r3.Add(
		r3.Add(r3.Scale(float64(w.x0)*g.DX, g.XAxis), r3.Scale(float64(w.y0)*g.DY, g.YAxis)),
		r3.Scale(float64(w.z0)*g.DZ, g.ZAxis)))
	r := *roi
	s.geometry.ROI = &r
	return nil
}

// load reads the i-th slice without cropping or notifying observers
func (s *Series) load(i int) (*models.Slice, error) {
	h := s.handles[i]
	sl, err := s.source.Load(h)
	if err != nil {
		return nil, fmt.Errorf("failed to load slice %s: %w", h, err)
	}
	if err := s.check(sl, h); err != nil {
		return nil, err
	}
	return sl, nil
}

// check verifies the pixel format and the consistency of the slice with the
// first slice seen
func (s *Series) check(sl *models.Slice, h Handle) error {
	if sl.SamplesPerPixel != 1 {
		return fmt.Errorf("%w: %s has %d samples per pixel", ErrUnsupportedFormat, h, sl.SamplesPerPixel)
	}
	if sl.Cols <= 0 || sl.Rows <= 0 || len(sl.Pixels) != sl.Cols*sl.Rows {
		return fmt.Errorf("%w: %s has %d pixels for %dx%d", ErrUnsupportedFormat, h, len(sl.Pixels), sl.Cols, sl.Rows)
	}

	ref := s.reference
	if ref == nil {
		header := *sl
		header.Pixels = nil
		s.reference = &header
		return nil
	}
	switch {
	case sl.Bits != ref.Bits || sl.Signed != ref.Signed:
		return fmt.Errorf("%w: %s encodes %d bits (signed=%v), expected %d bits (signed=%v)",
			ErrInconsistentSeries, h, sl.Bits, sl.Signed, ref.Bits, ref.Signed)
	case sl.Slope() != ref.Slope() || sl.RescaleIntercept != ref.RescaleIntercept:
		return fmt.Errorf("%w: %s rescales with slope %g intercept %g, expected %g and %g",
			ErrInconsistentSeries, h, sl.Slope(), sl.RescaleIntercept, ref.Slope(), ref.RescaleIntercept)
	case sl.Cols != ref.Cols || sl.Rows != ref.Rows:
		return fmt.Errorf("%w: %s is %dx%d, expected %dx%d",
			ErrInconsistentSeries, h, sl.Cols, sl.Rows, ref.Cols, ref.Rows)
	}
	return nil
}

// Geometry returns the geometry of the (possibly cropped) series
func (s *Series) Geometry() Geometry {
	return s.geometry
}

// Len returns the number of slices
func (s *Series) Len() int {
	return len(s.handles)
}

// Handle returns the handle of the i-th slice
func (s *Series) Handle(i int) Handle {
	return s.handles[i]
}

// Slice loads the i-th slice, restricted to the ROI pixel window, and
// notifies the observers
func (s *Series) Slice(i int) (*models.Slice, error) {
	if i < 0 || i >= len(s.handles) {
		return nil, fmt.Errorf("slice index %d out of range [0, %d)", i, len(s.handles))
	}
	sl, err := s.load(i)
	if err != nil {
		return nil, err
	}
	if c := s.crop; c != nil {
		sl = sl.Crop(c.x0, c.x1, c.y0, c.y1)
	}
	for _, o := range s.observers {
		if err := o.Observe(sl, i, s.handles[i]); err != nil {
			return nil, err
		}
	}
	return sl, nil
}

// First loads the first slice
func (s *Series) First() (*models.Slice, error) {
	return s.Slice(0)
}

// Last loads the last slice
func (s *Series) Last() (*models.Slice, error) {
	return s.Slice(len(s.handles) - 1)
}

// Each loads every slice in order and passes it to fn. Slices are not
// retained between calls.
func (s *Series) Each(fn func(sl *models.Slice, index int, h Handle) error) error {
	for i := range s.handles {
		sl, err := s.Slice(i)
		if err != nil {
			return err
		}
		if err := fn(sl, i, s.handles[i]); err != nil {
			return err
		}
	}
	return nil
}

// Validate reads every slice, checking that all of them share the encoding
// of the first one
func (s *Series) Validate() error {
	for i := range s.handles {
		if _, err := s.load(i); err != nil {
			return err
		}
	}
	return nil
}
