package projection

import (
	"math"
	"strconv"

	"dicomprojector/internal/models"
	"dicomprojector/pkg/series"
)

// View is a 2-D image derived from a volume, oriented for display
type View struct {
	// Axis is orthogonal to the view plane
	Axis models.Axis
	Kind Kind

	// Index is the plane shown by single plane views, -1 for projections
	Index int

	// Label names the view: the plane index, "m", "c", "mip" or "aap"
	Label string

	// Cols×Rows levels in row-major order within [OutMin, OutMax]
	Cols, Rows     int
	Data           []float64
	OutMin, OutMax float64

	// ScaledCols and ScaledRows are the display dimensions given by the
	// series scaling
	ScaledCols, ScaledRows int
}

// Name returns the conventional image name of the view, such as "axial_c"
func (v *View) Name() string {
	return v.Axis.View() + "_" + v.Label
}

// At returns the level at column c, row r
func (v *View) At(c, r int) float64 {
	return v.Data[r*v.Cols+c]
}

// layout describes how the volume axes map to the columns and rows of the
// views orthogonal to an axis
type layout struct {
	cols, rows         models.Axis
	flipCols, flipRows bool
}

// viewLayout returns the display layout for an axis. Axial views show x by y,
// sagittal views y by z and coronal views x by z, with the rows of sagittal
// and coronal views running from superior to inferior.
func viewLayout(a models.Axis, g series.Geometry) layout {
	switch a {
	case models.XAxis:
		return layout{cols: models.YAxis, rows: models.ZAxis, flipCols: !g.ReverseY, flipRows: !g.ReverseZ}
	case models.YAxis:
		return layout{cols: models.XAxis, rows: models.ZAxis, flipCols: g.ReverseX, flipRows: !g.ReverseZ}
	}
	return layout{cols: models.XAxis, rows: models.YAxis, flipCols: g.ReverseX, flipRows: g.ReverseY}
}

// renderer builds the views of one volume
type renderer struct {
	volume      *Volume
	geometry    series.Geometry
	scaling     Scaling
	preGamma    int
	attenuation float64
}

// newView allocates an empty view orthogonal to a
func (r *renderer) newView(a models.Axis, kind Kind, index int, label string) (*View, layout) {
	l := viewLayout(a, r.geometry)
	cols, rows := r.volume.Dim(l.cols), r.volume.Dim(l.rows)
	return &View{
		Axis:       a,
		Kind:       kind,
		Index:      index,
		Label:      label,
		Cols:       cols,
		Rows:       rows,
		Data:       make([]float64, cols*rows),
		OutMin:     r.volume.OutMin,
		OutMax:     r.volume.OutMax,
		ScaledCols: r.scaling.Dim(l.cols),
		ScaledRows: r.scaling.Dim(l.rows),
	}, l
}

// fill sets every view pixel from f, called with the volume position of the
// pixel; the position along the view axis is left for f to set
func (l layout) fill(v *View, f func(p [3]int) float64) {
	var p [3]int
	for r := 0; r < v.Rows; r++ {
		p[l.rows] = r
		dr := r
		if l.flipRows {
			dr = v.Rows - 1 - r
		}
		for c := 0; c < v.Cols; c++ {
			p[l.cols] = c
			dc := c
			if l.flipCols {
				dc = v.Cols - 1 - c
			}
			v.Data[dr*v.Cols+dc] = f(p)
		}
	}
}

// plane renders the index-th plane orthogonal to a
func (r *renderer) plane(a models.Axis, kind Kind, index int, label string) *View {
	if label == "" {
		label = strconv.Itoa(index)
	}
	v, l := r.newView(a, kind, index, label)
	l.fill(v, func(p [3]int) float64 {
		p[a] = index
		return r.volume.at(p)
	})
	return v
}

// mip renders the maximum intensity projection along a
func (r *renderer) mip(a models.Axis) *View {
	v, l := r.newView(a, MIP, -1, "mip")
	n := r.volume.Dim(a)
	l.fill(v, func(p [3]int) float64 {
		max := math.Inf(-1)
		for i := 0; i < n; i++ {
			p[a] = i
			max = math.Max(max, r.volume.at(p))
		}
		return max
	})
	return v
}

// transmission computes the fraction of light crossing the volume along a
// for every view pixel, after normalizing and raising levels to the
// pre-gamma power
func (r *renderer) transmission(a models.Axis, vmax float64) *View {
	v, l := r.newView(a, AAP, -1, "aap")
	n := r.volume.Dim(a)
	k := AttenuationCoefficient(r.attenuation, n)
	lo := r.volume.OutMin
	span := vmax - lo
	l.fill(v, func(p [3]int) float64 {
		if span <= 0 {
			return 1
		}
		sum := 0.0
		for i := 0; i < n; i++ {
			p[a] = i
			sum += power((r.volume.at(p)-lo)/span, r.preGamma)
		}
		return Transmission(sum, k)
	})
	return v
}

// aap renders the accumulated attenuation projection along a: the opacity
// 1-T, corrected for exposure and mapped into the output range
func (r *renderer) aap(a models.Axis, vmax float64) *View {
	v := r.transmission(a, vmax)
	for i, t := range v.Data {
		v.Data[i] = 1 - t
	}
	expose(v.Data)
	span := v.OutMax - v.OutMin
	for i, d := range v.Data {
		v.Data[i] = clampLevel(math.Round(v.OutMin+d*span), v.OutMin, v.OutMax)
	}
	return v
}

func clampLevel(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// ContentBounds are the first and last content-bearing planes along an axis
type ContentBounds struct {
	First int  `yaml:"first"`
	Last  int  `yaml:"last"`
	Found bool `yaml:"found"`
}

// contentThreshold is the fraction of the volume maximum (over the output
// minimum) a plane maximum must exceed to be content-bearing
const contentThreshold = 0.05

// contentBounds scans the planes orthogonal to a
func contentBounds(vol *Volume, a models.Axis, vmax float64) ContentBounds {
	b := ContentBounds{First: -1, Last: -1}
	limit := contentThreshold * (vmax - vol.OutMin)
	for i := 0; i < vol.Dim(a); i++ {
		if vol.PlaneMax(a, i)-vol.OutMin > limit {
			if !b.Found {
				b.First, b.Found = i, true
			}
			b.Last = i
		}
	}
	return b
}

// Center returns the plane halfway between the bounds, or the middle plane
// of an n-plane axis when no plane bears content
func (b ContentBounds) Center(n int) int {
	if !b.Found {
		return n / 2
	}
	return (b.First + b.Last) / 2
}
