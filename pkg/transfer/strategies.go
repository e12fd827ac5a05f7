package transfer

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"dicomprojector/internal/models"
	"dicomprojector/pkg/series"
	"dicomprojector/pkg/stats"
)

// Default parameters of the strategies
const (
	DefaultFixedMin       = -2048
	DefaultFixedMax       = 2048
	DefaultFirstExtension = 0.3
	DefaultSampleSize     = 8
	DefaultIgnoreMinimum  = true
)

// Fixed maps a caller supplied range. Values are always rescaled.
type Fixed struct {
	output
	min, max float64
}

// Name implements Strategy
func (f *Fixed) Name() string { return "fixed" }

// SelectRange implements Strategy
func (f *Fixed) SelectRange(SliceSet) (float64, float64, error) {
	return f.min, f.max, nil
}

// Rescaled implements Strategy
func (f *Fixed) Rescaled() bool { return true }

// Apply implements Strategy
func (f *Fixed) Apply(s *models.Slice, r Range) ([]float64, error) {
	return apply(s, r, true, f.output)
}

// Window maps a window center±width/2, clipping values outside it
type Window struct {
	output
	center, width float64
	hasCenter     bool
	hasWidth      bool
}

// Name implements Strategy
func (w *Window) Name() string { return "window" }

// Rescaled implements Strategy
func (w *Window) Rescaled() bool { return true }

// SelectRange implements Strategy. The window comes from the overrides or
// from the window metadata of the first slice.
func (w *Window) SelectRange(set SliceSet) (float64, float64, error) {
	center, width := w.center, w.width
	if !w.hasCenter || !w.hasWidth {
		if set.Len() == 0 {
			return 0, 0, ErrMissingWindowMetadata
		}
		s, err := set.Slice(0)
		if err != nil {
			return 0, 0, err
		}
		if !s.HasWindow {
			return 0, 0, fmt.Errorf("%w: first slice has no window center/width", ErrMissingWindowMetadata)
		}
		if !w.hasCenter {
			center = s.WindowCenter
		}
		if !w.hasWidth {
			width = s.WindowWidth
		}
	}
	return center - width/2, center + width/2, nil
}

// Apply implements Strategy
func (w *Window) Apply(s *models.Slice, r Range) ([]float64, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	values, integral := sliceValues(s, true)
	for i, v := range values {
		values[i] = clamp(v, r.Min, r.Max)
	}
	return w.mapValues(values, r, integral), nil
}

// rangeOptions are shared by the strategies that measure the data
type rangeOptions struct {
	// ignoreMin skips the absolute minimum, usually a background fill value
	// such as -2048, and uses the next value above it
	ignoreMin bool
	rescale   bool
	extension float64
}

// dataRange measures the range of a slice. varied reports whether the
// slice holds more than one value.
func (o rangeOptions) dataRange(s *models.Slice) (min, max float64, varied bool) {
	summary := stats.Summarize(stats.SliceValues(s, o.rescale))
	min, max = summary.Min, summary.Max
	varied = summary.NextMin > summary.Min
	base, hasBase := 0.0, false
	if o.ignoreMin {
		base, hasBase = summary.Min, true
		min = summary.NextMin
	}
	if o.extension != 0 {
		min, max = extendRange(o.extension, base, hasBase, min, max)
	}
	return min, max, varied
}

// extendRange widens [min, max] around its center by a factor 1+k, keeping
// the minimum above an excluded base value
func extendRange(k, base float64, hasBase bool, min, max float64) (float64, float64) {
	k += 1
	c := (max + min) / 2
	min = math.Round(c + k*(min-c))
	max = math.Round(c + k*(max-c))
	if hasBase && min <= base {
		min = base + 1
	}
	return min, max
}

// measure combines the ranges of the selected slices. With ignoreMin, a
// slice holding a single value has nothing above its minimum to fall back
// on; it still bounds the maximum, but only bounds the minimum when no
// measured slice holds more than one value.
func (o rangeOptions) measure(set SliceSet, indices []int) (float64, float64, error) {
	if len(indices) == 0 {
		return 0, 0, fmt.Errorf("%w: no slices to measure", ErrDegenerateRange)
	}
	min, max := math.Inf(1), math.Inf(-1)
	flatMin := math.Inf(1)
	for _, i := range indices {
		s, err := set.Slice(i)
		if err != nil {
			return 0, 0, err
		}
		smin, smax, varied := o.dataRange(s)
		max = math.Max(max, smax)
		if o.ignoreMin && !varied {
			flatMin = math.Min(flatMin, smin)
			continue
		}
		min = math.Min(min, smin)
	}
	if math.IsInf(min, 1) {
		min = flatMin
	}
	return min, max, nil
}

// Global maps the range observed over every slice
type Global struct {
	output
	rangeOptions
}

// Name implements Strategy
func (g *Global) Name() string { return "global" }

// Rescaled implements Strategy
func (g *Global) Rescaled() bool { return g.rescale }

// SelectRange implements Strategy
func (g *Global) SelectRange(set SliceSet) (float64, float64, error) {
	indices := make([]int, set.Len())
	for i := range indices {
		indices[i] = i
	}
	return g.measure(set, indices)
}

// Apply implements Strategy
func (g *Global) Apply(s *models.Slice, r Range) ([]float64, error) {
	return apply(s, r, g.rescale, g.output)
}

// First maps the range of the first slice, extended by a factor
type First struct {
	output
	rangeOptions
}

// Name implements Strategy
func (f *First) Name() string { return "first" }

// Rescaled implements Strategy
func (f *First) Rescaled() bool { return f.rescale }

// SelectRange implements Strategy
func (f *First) SelectRange(set SliceSet) (float64, float64, error) {
	if set.Len() == 0 {
		return f.measure(set, nil)
	}
	return f.measure(set, []int{0})
}

// Apply implements Strategy
func (f *First) Apply(s *models.Slice, r Range) ([]float64, error) {
	return apply(s, r, f.rescale, f.output)
}

// Sample maps the range observed over a random subset of slices
type Sample struct {
	output
	rangeOptions
	size int
	rng  *rand.Rand
}

// Name implements Strategy
func (s *Sample) Name() string { return "sample" }

// Rescaled implements Strategy
func (s *Sample) Rescaled() bool { return s.rescale }

// SelectRange implements Strategy
func (s *Sample) SelectRange(set SliceSet) (float64, float64, error) {
	n := set.Len()
	k := s.size
	if k > n {
		k = n
	}
	indices := s.rng.Perm(n)[:k]
	sort.Ints(indices)
	return s.measure(set, indices)
}

// Apply implements Strategy
func (s *Sample) Apply(sl *models.Slice, r Range) ([]float64, error) {
	return apply(sl, r, s.rescale, s.output)
}

// Identity keeps stored values, mapping the native range of the encoding.
// With OutputUnsigned this offsets signed data to start at zero.
type Identity struct {
	output
}

// Name implements Strategy
func (i *Identity) Name() string { return "identity" }

// Rescaled implements Strategy
func (i *Identity) Rescaled() bool { return false }

// SelectRange implements Strategy
func (i *Identity) SelectRange(set SliceSet) (float64, float64, error) {
	if set.Len() == 0 {
		return 0, 0, fmt.Errorf("%w: empty series", ErrDegenerateRange)
	}
	s, err := set.Slice(0)
	if err != nil {
		return 0, 0, err
	}
	min, max := series.PixelValueRange(s.Bits, s.Signed)
	return float64(min), float64(max), nil
}

// Apply implements Strategy
func (i *Identity) Apply(s *models.Slice, r Range) ([]float64, error) {
	return apply(s, r, false, i.output)
}

// apply maps a slice with the common linear transfer
func apply(s *models.Slice, r Range, rescale bool, o output) ([]float64, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	values, integral := sliceValues(s, rescale)
	return o.mapValues(values, r, integral), nil
}
