// Package transfer maps stored slice intensities onto a bounded output range.
//
// A Strategy first selects the input window (min, max) for a whole series and
// then maps every slice through it:
//
//	output = clamp(omin + (v - min) * (omax - omin) / (max - min), omin, omax)
//
// where v is the stored value, rescaled to real-world units for strategies
// that rescale. The output range comes from the bit depth of the series, or
// from the requested Output kind.
package transfer

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"dicomprojector/internal/models"
	"dicomprojector/pkg/series"
)

var (
	// ErrDegenerateRange is returned when a selected range has max <= min
	ErrDegenerateRange = errors.New("degenerate transfer range")

	// ErrMissingWindowMetadata is returned by the window strategy when no
	// window center and width are available
	ErrMissingWindowMetadata = errors.New("missing window metadata")
)

// SliceSet is a sequence of slices loaded on demand; *series.Series implements it
type SliceSet interface {
	Len() int
	Slice(i int) (*models.Slice, error)
}

// Range is the transfer range selected for an operation and reused for every slice
type Range struct {
	// Min and Max are the input values mapped to OutMin and OutMax
	Min, Max float64

	// OutMin and OutMax bound the output values
	OutMin, OutMax float64

	// Rescaled reports whether Min and Max are rescaled (real-world) values
	Rescaled bool
}

// Validate checks that both the input and output ranges are non-empty
func (r Range) Validate() error {
	if r.Max <= r.Min {
		return fmt.Errorf("%w: min %g, max %g", ErrDegenerateRange, r.Min, r.Max)
	}
	if r.OutMax <= r.OutMin {
		return fmt.Errorf("%w: output min %g, output max %g", ErrDegenerateRange, r.OutMin, r.OutMax)
	}
	return nil
}

// Strategy selects a transfer range and applies it to slices. The set of
// strategies is closed: Fixed, Window, Global, First, Sample and Identity.
type Strategy interface {
	// Name returns the name used to select the strategy
	Name() string

	// SelectRange chooses the input values mapped to the output limits
	SelectRange(set SliceSet) (min, max float64, err error)

	// Apply maps the pixels of a slice into the output range
	Apply(s *models.Slice, r Range) ([]float64, error)

	// OutputLimits returns the output range for slices of the given encoding
	OutputLimits(bits int, signed bool) (min, max float64)

	// Rescaled reports whether the strategy works on rescaled values
	Rescaled() bool

	sealed()
}

// Select computes the transfer range of a strategy for a set of slices
// with the given encoding
func Select(st Strategy, set SliceSet, bits int, signed bool) (Range, error) {
	min, max, err := st.SelectRange(set)
	if err != nil {
		return Range{}, err
	}
	omin, omax := st.OutputLimits(bits, signed)
	r := Range{Min: min, Max: max, OutMin: omin, OutMax: omax, Rescaled: st.Rescaled()}
	if err := r.Validate(); err != nil {
		return Range{}, err
	}
	return r, nil
}

// OutputKind selects the output range of a strategy
type OutputKind int

const (
	// OutputNative keeps the range of the stored encoding
	OutputNative OutputKind = iota
	// OutputUnsigned shifts the stored range to start at zero
	OutputUnsigned
	// OutputByte maps into 0..255
	OutputByte
)

func (k OutputKind) String() string {
	switch k {
	case OutputUnsigned:
		return "unsigned"
	case OutputByte:
		return "byte"
	}
	return "native"
}

// ParseOutputKind parses "native", "unsigned" or "byte"
func ParseOutputKind(s string) (OutputKind, error) {
	switch strings.ToLower(s) {
	case "", "native":
		return OutputNative, nil
	case "unsigned":
		return OutputUnsigned, nil
	case "byte":
		return OutputByte, nil
	}
	return OutputNative, fmt.Errorf("invalid output kind %q", s)
}

// output holds the options shared by every strategy
type output struct {
	kind OutputKind

	// explicit output range, used when hasLimits is set
	hasLimits      bool
	outMin, outMax float64

	// float forces floating point arithmetic
	float bool
}

// OutputLimits implements Strategy
func (o output) OutputLimits(bits int, signed bool) (float64, float64) {
	if o.hasLimits {
		return o.outMin, o.outMax
	}
	switch o.kind {
	case OutputByte:
		return 0, 255
	case OutputUnsigned:
		min, max := series.PixelValueRange(bits, signed)
		if min < 0 {
			max -= min
			min = 0
		}
		return float64(min), float64(max)
	}
	min, max := series.PixelValueRange(bits, signed)
	return float64(min), float64(max)
}

func (output) sealed() {}

// mapValues maps values with the arithmetic selected by the output options.
// An explicit output range is mapped continuously: levels are not rounded.
func (o output) mapValues(values []float64, r Range, integral bool) []float64 {
	return mapValues(values, r, integral, o.float, o.hasLimits)
}

// maxExactSpan bounds the spans mapped with integer arithmetic so that
// products fit in an int64
const maxExactSpan = 1 << 30

// mapValues maps values into the output range of r in place and clamps them.
// Floating point arithmetic is used whenever the output span is narrower
// than the input span, when the range or the values are not integral, or when
// forceFloat is set; otherwise the integer mapping is exact. Floating point
// results are rounded to integer levels unless continuous is set.
func mapValues(values []float64, r Range, integral, forceFloat, continuous bool) []float64 {
	inSpan := r.Max - r.Min
	outSpan := r.OutMax - r.OutMin
	useFloat := forceFloat || continuous || !integral || outSpan < inSpan ||
		!isIntegral(r.Min) || !isIntegral(r.Max) || !isIntegral(r.OutMin) || !isIntegral(r.OutMax) ||
		inSpan > maxExactSpan || outSpan > maxExactSpan

	if useFloat {
		k := outSpan / inSpan
		for i, v := range values {
			level := r.OutMin + (v-r.Min)*k
			if !continuous {
				level = math.Round(level)
			}
			values[i] = clamp(level, r.OutMin, r.OutMax)
		}
		return values
	}

	min, omin := int64(r.Min), int64(r.OutMin)
	in, out := int64(inSpan), int64(outSpan)
	for i, v := range values {
		d := int64(v) - min
		switch {
		case d <= 0:
			values[i] = r.OutMin
		case d >= in:
			values[i] = r.OutMax
		default:
			values[i] = float64(omin + d*out/in)
		}
	}
	return values
}

func isIntegral(v float64) bool {
	return v == math.Trunc(v)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// sliceValues returns the slice pixels, rescaled if requested, and whether
// every value is an integer
func sliceValues(s *models.Slice, rescale bool) ([]float64, bool) {
	values := make([]float64, len(s.Pixels))
	if !rescale {
		for i, p := range s.Pixels {
			values[i] = float64(p)
		}
		return values, true
	}
	for i := range s.Pixels {
		values[i] = s.Rescaled(i)
	}
	return values, isIntegral(s.Slope()) && isIntegral(s.RescaleIntercept)
}
