// Package stats computes intensity statistics of slices and series.
package stats

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"dicomprojector/internal/models"
)

// Summary holds the intensity limits of a set of values
type Summary struct {
	// N is the number of slices summarized
	N int `yaml:"n"`

	// Min is the absolute minimum value
	Min float64 `yaml:"min"`

	// NextMin is the smallest value strictly above Min. It equals Min when
	// every value is the same.
	NextMin float64 `yaml:"next_min"`

	Max float64 `yaml:"max"`
}

// Summarize computes the summary of a non-empty slice of values
func Summarize(values []float64) Summary {
	min := floats.Min(values)
	max := floats.Max(values)
	next := math.Inf(1)
	for _, v := range values {
		if v > min && v < next {
			next = v
		}
	}
	if math.IsInf(next, 1) {
		next = min
	}
	return Summary{N: 1, Min: min, NextMin: next, Max: max}
}

// Merge combines two summaries
func (s Summary) Merge(o Summary) Summary {
	if s.N == 0 {
		return o
	}
	if o.N == 0 {
		return s
	}
	m := Summary{
		N:   s.N + o.N,
		Min: math.Min(s.Min, o.Min),
		Max: math.Max(s.Max, o.Max),
	}
	// the smallest value above the merged minimum
	next := math.Inf(1)
	for _, v := range []float64{s.Min, s.NextMin, o.Min, o.NextMin} {
		if v > m.Min && v < next {
			next = v
		}
	}
	if math.IsInf(next, 1) {
		next = m.Min
	}
	m.NextMin = next
	return m
}

// SliceValues returns the pixels of a slice as floats, optionally rescaled
func SliceValues(s *models.Slice, rescale bool) []float64 {
	values := make([]float64, len(s.Pixels))
	for i, p := range s.Pixels {
		if rescale {
			values[i] = s.Rescaled(i)
		} else {
			values[i] = float64(p)
		}
	}
	return values
}

// SliceSet is a sequence of slices loaded on demand
type SliceSet interface {
	Len() int
	Slice(i int) (*models.Slice, error)
}

// SeriesSummary summarizes every slice of a set, one slice at a time
func SeriesSummary(set SliceSet, rescale bool) (Summary, error) {
	var total Summary
	for i := 0; i < set.Len(); i++ {
		s, err := set.Slice(i)
		if err != nil {
			return Summary{}, err
		}
		total = total.Merge(Summarize(SliceValues(s, rescale)))
	}
	return total, nil
}

// Histogram holds bin counts; bin i covers [Dividers[i], Dividers[i+1])
type Histogram struct {
	Dividers []float64
	Counts   []float64
}

// ScottBinWidth returns the bin width given by Scott's normal reference rule
func ScottBinWidth(values []float64) float64 {
	if len(values) < 2 {
		return 1
	}
	sd := stat.StdDev(values, nil)
	return 3.49 * sd / math.Cbrt(float64(len(values)))
}

// NewHistogram bins values using binWidth, or Scott's rule when binWidth is
// not positive. values is sorted in place.
func NewHistogram(values []float64, binWidth float64) (*Histogram, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("cannot compute the histogram of no values")
	}
	if binWidth <= 0 {
		binWidth = ScottBinWidth(values)
	}
	if binWidth <= 0 {
		binWidth = 1
	}
	sort.Float64s(values)
	lo, hi := values[0], values[len(values)-1]
	n := int(math.Floor((hi-lo)/binWidth)) + 1
	dividers := make([]float64, n+1)
	floats.Span(dividers, lo, lo+float64(n)*binWidth)

	counts := stat.Histogram(nil, dividers, values, nil)
	return &Histogram{Dividers: dividers, Counts: counts}, nil
}

// SeriesHistogram bins the values of every slice of a set
func SeriesHistogram(set SliceSet, rescale bool, binWidth float64) (*Histogram, error) {
	var values []float64
	for i := 0; i < set.Len(); i++ {
		s, err := set.Slice(i)
		if err != nil {
			return nil, err
		}
		values = append(values, SliceValues(s, rescale)...)
	}
	return NewHistogram(values, binWidth)
}
