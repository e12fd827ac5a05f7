package projection

import (
	"math"

	"dicomprojector/internal/models"
)

// Bounds limits the pixel dimensions of rendered views. Zero fields are
// unbounded. The X axis gives the columns of axial and coronal views, Y the
// rows of axial and the columns of sagittal views and Z the rows of coronal
// and sagittal views.
type Bounds struct {
	MinX int `yaml:"minX,omitempty" toml:"min_x,omitempty"`
	MinY int `yaml:"minY,omitempty" toml:"min_y,omitempty"`
	MinZ int `yaml:"minZ,omitempty" toml:"min_z,omitempty"`
	MaxX int `yaml:"maxX,omitempty" toml:"max_x,omitempty"`
	MaxY int `yaml:"maxY,omitempty" toml:"max_y,omitempty"`
	MaxZ int `yaml:"maxZ,omitempty" toml:"max_z,omitempty"`

	// MinCols, MinRows, MaxCols and MaxRows apply to every view
	MinCols int `yaml:"minCols,omitempty" toml:"min_cols,omitempty"`
	MinRows int `yaml:"minRows,omitempty" toml:"min_rows,omitempty"`
	MaxCols int `yaml:"maxCols,omitempty" toml:"max_cols,omitempty"`
	MaxRows int `yaml:"maxRows,omitempty" toml:"max_rows,omitempty"`
}

// Scaling holds the resampling factors shared by every view of a series.
// They keep the physical aspect ratio of the voxels.
type Scaling struct {
	SX float64 `yaml:"scale_x"`
	SY float64 `yaml:"scale_y"`
	SZ float64 `yaml:"scale_z"`

	// NX, NY and NZ are the scaled extents
	NX int `yaml:"scaled_nx"`
	NY int `yaml:"scaled_ny"`
	NZ int `yaml:"scaled_nz"`
}

// Dim returns the scaled extent along an axis
func (s Scaling) Dim(a models.Axis) int {
	switch a {
	case models.XAxis:
		return s.NX
	case models.YAxis:
		return s.NY
	}
	return s.NZ
}

// ComputeScaling derives the scaling of an nx×ny×nz grid with spacing
// dx, dy, dz. Voxels are first resampled to the coarsest spacing, then the
// scale is raised to honor the minimum sizes and lowered to honor the maximum
// sizes of b.
func ComputeScaling(nx, ny, nz int, dx, dy, dz float64, b Bounds) Scaling {
	var s Scaling
	adjust := func(ref float64) {
		s.SX, s.SY, s.SZ = dx/ref, dy/ref, dz/ref
		s.NX = int(math.Round(float64(nx) * s.SX))
		s.NY = int(math.Round(float64(ny) * s.SY))
		s.NZ = int(math.Round(float64(nz) * s.SZ))
	}
	adjust(math.Max(dx, math.Max(dy, dz)))

	if min := maxOf(s.NX, b.MinX, b.MinCols); s.NX < min {
		adjust(dx * float64(nx) / float64(min))
	}
	if min := maxOf(s.NY, b.MinY, b.MinCols, b.MinRows); s.NY < min {
		adjust(dy * float64(ny) / float64(min))
	}
	if min := maxOf(s.NZ, b.MinZ, b.MinRows); s.NZ < min {
		adjust(dz * float64(nz) / float64(min))
	}

	if max := minOf(s.NX, b.MaxX, b.MaxCols); s.NX > max {
		adjust(dx * float64(nx) / float64(max))
	}
	if max := minOf(s.NY, b.MaxY, b.MaxCols, b.MaxRows); s.NY > max {
		adjust(dy * float64(ny) / float64(max))
	}
	if max := minOf(s.NZ, b.MaxZ, b.MaxRows); s.NZ > max {
		adjust(dz * float64(nz) / float64(max))
	}
	return s
}

// maxOf returns the largest of v and the positive limits
func maxOf(v int, limits ...int) int {
	for _, l := range limits {
		if l > 0 && l > v {
			v = l
		}
	}
	return v
}

// minOf returns the smallest of v and the positive limits
func minOf(v int, limits ...int) int {
	for _, l := range limits {
		if l > 0 && l < v {
			v = l
		}
	}
	return v
}
