package projection

import (
	"fmt"
	"math"

	"dicomprojector/internal/models"
)

// Volume is a dense NX×NY×NZ grid of output levels in raw (stored) slice
// order. Voxel (x, y, z) lives at index (z*NY+y)*NX+x. Levels are kept in
// bytes when the output range fits them, otherwise in int32.
type Volume struct {
	NX, NY, NZ int

	// OutMin and OutMax bound the stored levels
	OutMin, OutMax float64

	bytes  []uint8
	levels []int32
}

// NewVolume allocates a volume for levels within [outMin, outMax]
func NewVolume(nx, ny, nz int, outMin, outMax float64) *Volume {
	v := &Volume{NX: nx, NY: ny, NZ: nz, OutMin: outMin, OutMax: outMax}
	n := nx * ny * nz
	if fitsByte(outMin, outMax) {
		v.bytes = make([]uint8, n)
	} else {
		v.levels = make([]int32, n)
	}
	return v
}

func fitsByte(min, max float64) bool {
	return min >= 0 && max <= math.MaxUint8
}

// Compact reports whether levels are stored in bytes
func (v *Volume) Compact() bool {
	return v.bytes != nil
}

// Size returns the memory used by the levels in bytes
func (v *Volume) Size() int {
	if v.bytes != nil {
		return len(v.bytes)
	}
	return 4 * len(v.levels)
}

// Dim returns the number of planes orthogonal to an axis
func (v *Volume) Dim(a models.Axis) int {
	switch a {
	case models.XAxis:
		return v.NX
	case models.YAxis:
		return v.NY
	}
	return v.NZ
}

func (v *Volume) index(x, y, z int) int {
	return (z*v.NY+y)*v.NX + x
}

// At returns the level of voxel (x, y, z)
func (v *Volume) At(x, y, z int) float64 {
	i := v.index(x, y, z)
	if v.bytes != nil {
		return float64(v.bytes[i])
	}
	return float64(v.levels[i])
}

// at returns the level at a position given per axis
func (v *Volume) at(p [3]int) float64 {
	return v.At(p[models.XAxis], p[models.YAxis], p[models.ZAxis])
}

// SetPlane stores the mapped levels of the z-th slice
func (v *Volume) SetPlane(z int, values []float64) error {
	n := v.NX * v.NY
	if len(values) != n {
		return fmt.Errorf("plane %d has %d values, expected %d", z, len(values), n)
	}
	if z < 0 || z >= v.NZ {
		return fmt.Errorf("plane %d out of range [0, %d)", z, v.NZ)
	}
	base := z * n
	for i, value := range values {
		level := math.Round(value)
		if v.bytes != nil {
			v.bytes[base+i] = uint8(level)
		} else {
			v.levels[base+i] = int32(level)
		}
	}
	return nil
}

// Max returns the largest level of the volume
func (v *Volume) Max() float64 {
	max := v.OutMin
	if v.bytes != nil {
		for _, b := range v.bytes {
			max = math.Max(max, float64(b))
		}
		return max
	}
	for _, l := range v.levels {
		max = math.Max(max, float64(l))
	}
	return max
}

// PlaneMax returns the largest level of the index-th plane orthogonal to a
func (v *Volume) PlaneMax(a models.Axis, index int) float64 {
	max := v.OutMin
	var p [3]int
	p[a] = index
	u, w := others(a)
	for j := 0; j < v.Dim(w); j++ {
		p[w] = j
		for i := 0; i < v.Dim(u); i++ {
			p[u] = i
			max = math.Max(max, v.at(p))
		}
	}
	return max
}

// others returns the two axes orthogonal to a, in increasing order
func others(a models.Axis) (models.Axis, models.Axis) {
	switch a {
	case models.XAxis:
		return models.YAxis, models.ZAxis
	case models.YAxis:
		return models.XAxis, models.ZAxis
	}
	return models.XAxis, models.YAxis
}
