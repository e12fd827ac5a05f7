// Package projection builds a dense volume from a series and renders planes
// and projections of it along the three orthogonal axes.
package projection

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"dicomprojector/internal/models"
	"dicomprojector/pkg/series"
	"dicomprojector/pkg/transfer"
)

// Series is an ordered set of slices with a known geometry; *series.Series
// implements it
type Series interface {
	transfer.SliceSet
	Geometry() series.Geometry
}

// Progress receives volume building progress
type Progress interface {
	Accept(current, total int)
}

// ProgressFunc adapts a function to the Progress interface
type ProgressFunc func(current, total int)

// Accept implements Progress
func (f ProgressFunc) Accept(current, total int) {
	f(current, total)
}

// Options configures an Engine
type Options struct {
	// Bounds limits the scaled view dimensions
	Bounds Bounds

	// PreGamma is the AAP pre-gamma power (DefaultPreGamma when zero)
	PreGamma int

	// Attenuation is the AAP coefficient k (DefaultAttenuation when zero)
	Attenuation float64

	// Progress, if set, is told about every slice added to the volume
	Progress Progress

	Logger *zap.Logger
}

// Engine renders views of a series through a transfer strategy
type Engine struct {
	series   Series
	strategy transfer.Strategy
	rng      transfer.Range
	scaling  Scaling
	opts     Options
	logger   *zap.Logger
}

// NewEngine selects the transfer range of the series and its view scaling
func NewEngine(s Series, st transfer.Strategy, opts Options) (*Engine, error) {
	if opts.PreGamma <= 0 {
		opts.PreGamma = DefaultPreGamma
	}
	if opts.Attenuation <= 0 {
		opts.Attenuation = DefaultAttenuation
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	g := s.Geometry()
	r, err := transfer.Select(st, s, g.Bits, g.Signed)
	if err != nil {
		return nil, fmt.Errorf("failed to select %s transfer range: %w", st.Name(), err)
	}
	logger.Debug("Transfer range selected",
		zap.String("strategy", st.Name()),
		zap.Float64("min", r.Min), zap.Float64("max", r.Max),
		zap.Float64("out_min", r.OutMin), zap.Float64("out_max", r.OutMax))

	return &Engine{
		series:   s,
		strategy: st,
		rng:      r,
		scaling:  ComputeScaling(g.NX, g.NY, g.NZ, g.DX, g.DY, g.DZ, opts.Bounds),
		opts:     opts,
		logger:   logger,
	}, nil
}

// Range returns the transfer range used for every slice
func (e *Engine) Range() transfer.Range {
	return e.rng
}

// Scaling returns the view scaling of the series
func (e *Engine) Scaling() Scaling {
	return e.scaling
}

// BuildVolume maps every slice of the series into a new volume. Slices are
// loaded one at a time and discarded once inserted.
func (e *Engine) BuildVolume() (*Volume, error) {
	g := e.series.Geometry()
	vol := NewVolume(g.NX, g.NY, g.NZ, e.rng.OutMin, e.rng.OutMax)
	e.logger.Info("Building volume",
		zap.Int("nx", g.NX), zap.Int("ny", g.NY), zap.Int("nz", g.NZ),
		zap.String("size", humanize.IBytes(uint64(vol.Size()))))

	n := e.series.Len()
	for z := 0; z < n; z++ {
		sl, err := e.series.Slice(z)
		if err != nil {
			return nil, err
		}
		levels, err := e.strategy.Apply(sl, e.rng)
		if err != nil {
			return nil, fmt.Errorf("failed to map slice %d: %w", z, err)
		}
		if err := vol.SetPlane(z, levels); err != nil {
			return nil, err
		}
		if e.opts.Progress != nil {
			e.opts.Progress.Accept(z+1, n)
		}
	}
	return vol, nil
}

// Request lists the selectors of each view axis
type Request struct {
	Axial    []Selector
	Sagittal []Selector
	Coronal  []Selector
}

// selectors returns the selectors of an axis
func (r Request) selectors(a models.Axis) []Selector {
	switch a {
	case models.XAxis:
		return r.Sagittal
	case models.YAxis:
		return r.Coronal
	}
	return r.Axial
}

// Empty reports whether no view is requested
func (r Request) Empty() bool {
	return len(r.Axial)+len(r.Sagittal)+len(r.Coronal) == 0
}

// Result holds the views rendered for a request
type Result struct {
	Geometry series.Geometry
	Range    transfer.Range
	Scaling  Scaling

	// Contents are the content bounds along each axis, indexed by models.Axis
	Contents [3]ContentBounds

	Views []*View
}

// Run builds the volume, renders every requested view and releases the
// volume
func (e *Engine) Run(req Request) (*Result, error) {
	vol, err := e.BuildVolume()
	if err != nil {
		return nil, err
	}
	return e.Render(vol, req)
}

// Render renders the requested views of a volume built by this engine
func (e *Engine) Render(vol *Volume, req Request) (*Result, error) {
	g := e.series.Geometry()
	res := &Result{Geometry: g, Range: e.rng, Scaling: e.scaling}
	r := &renderer{
		volume:      vol,
		geometry:    g,
		scaling:     e.scaling,
		preGamma:    e.opts.PreGamma,
		attenuation: e.opts.Attenuation,
	}

	vmax := vol.Max()
	for _, a := range []models.Axis{models.ZAxis, models.XAxis, models.YAxis} {
		res.Contents[a] = contentBounds(vol, a, vmax)
		n := vol.Dim(a)
		for _, sel := range req.selectors(a) {
			switch sel.Kind {
			case Single:
				if sel.Index < 0 || sel.Index >= n {
					return nil, fmt.Errorf("%s plane %d out of range [0, %d)", a.View(), sel.Index, n)
				}
				res.Views = append(res.Views, r.plane(a, Single, sel.Index, ""))
			case Middle:
				res.Views = append(res.Views, r.plane(a, Middle, n/2, "m"))
			case Center:
				res.Views = append(res.Views, r.plane(a, Center, res.Contents[a].Center(n), "c"))
			case Contents:
				if b := res.Contents[a]; b.Found {
					for i := b.First; i <= b.Last; i++ {
						res.Views = append(res.Views, r.plane(a, Contents, i, ""))
					}
				}
			case All:
				for i := 0; i < n; i++ {
					res.Views = append(res.Views, r.plane(a, All, i, ""))
				}
			case MIP:
				res.Views = append(res.Views, r.mip(a))
			case AAP:
				res.Views = append(res.Views, r.aap(a, vmax))
			default:
				return nil, fmt.Errorf("unknown view kind %v", sel.Kind)
			}
		}
		e.logger.Debug("Content bounds",
			zap.String("axis", a.String()),
			zap.Int("first", res.Contents[a].First), zap.Int("last", res.Contents[a].Last))
	}
	return res, nil
}

// Transmission returns the AAP transmission image along an axis, before
// inversion and exposure correction. Its levels lie in [0, 1].
func (e *Engine) Transmission(vol *Volume, a models.Axis) *View {
	r := &renderer{
		volume:      vol,
		geometry:    e.series.Geometry(),
		scaling:     e.scaling,
		preGamma:    e.opts.PreGamma,
		attenuation: e.opts.Attenuation,
	}
	v := r.transmission(a, vol.Max())
	v.OutMin, v.OutMax = 0, 1
	return v
}
