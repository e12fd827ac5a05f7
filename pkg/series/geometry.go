package series

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"dicomprojector/internal/models"
)

// OrientationTolerance is the largest per-component deviation allowed between
// the absolute value of an axis and its canonical basis vector.
const OrientationTolerance = 0.05

var (
	unitX = r3.Vec{X: 1}
	unitY = r3.Vec{Y: 1}
	unitZ = r3.Vec{Z: 1}
)

// Geometry describes the voxel grid of a series. It is computed once when the
// series is opened and never modified afterwards.
//
// The patient coordinate system (RCS) has X increasing from right to left,
// Y from anterior to posterior and Z from inferior to superior. XAxis, YAxis
// and ZAxis are the RCS directions of the slice columns, slice rows and slice
// order respectively. The usual CT orientation is XAxis=(1,0,0),
// YAxis=(0,1,0), ZAxis=(0,0,-1): slices ordered by decreasing Z, which sets
// ReverseZ.
type Geometry struct {
	// NX, NY, NZ are the number of columns, rows and slices
	NX, NY, NZ int

	// DX, DY, DZ are the voxel spacing in mm
	DX, DY, DZ float64

	// ReverseX, ReverseY, ReverseZ are set when the corresponding index
	// runs against the RCS axis
	ReverseX, ReverseY, ReverseZ bool

	XAxis, YAxis, ZAxis r3.Vec

	// Position is the RCS position of the first voxel of the series, the
	// ROI origin when the series is cropped
	Position r3.Vec

	// LimMin and LimMax are the limits of the stored value encoding
	LimMin, LimMax int64

	// Bits, Signed, Slope and Intercept are uniform across the series
	Bits      int
	Signed    bool
	Slope     float64
	Intercept float64

	StudyID  string
	SeriesID int

	// ROI is the canonical crop box applied to the series, if any
	ROI *ROI
}

// PixelValueRange returns the range of values representable with the given
// number of bits
func PixelValueRange(bits int, signed bool) (min, max int64) {
	n := int64(1) << uint(bits)
	if signed {
		return -n / 2, n/2 - 1
	}
	return 0, n - 1
}

// ZAxisFor computes the through-plane axis as the cross product of the
// in-plane axes, with its sign chosen to point from the first slice to the last.
func ZAxisFor(xaxis, yaxis r3.Vec, displacement r3.Vec) r3.Vec {
	zaxis := r3.Cross(xaxis, yaxis)
	if r3.Dot(zaxis, displacement) < 0 {
		zaxis = r3.Scale(-1, zaxis)
	}
	return zaxis
}

// aligned reports whether v is within tolerance of ±unit on every component
func aligned(v, unit r3.Vec) bool {
	return math.Abs(math.Abs(v.X)-unit.X) <= OrientationTolerance &&
		math.Abs(math.Abs(v.Y)-unit.Y) <= OrientationTolerance &&
		math.Abs(math.Abs(v.Z)-unit.Z) <= OrientationTolerance
}

// CheckOrientation validates that the three axes are aligned with the RCS axes
func CheckOrientation(xaxis, yaxis, zaxis r3.Vec) error {
	if !aligned(xaxis, unitX) || !aligned(yaxis, unitY) || !aligned(zaxis, unitZ) {
		return fmt.Errorf("%w: xaxis=%v yaxis=%v zaxis=%v", ErrUnsupportedOrientation, xaxis, yaxis, zaxis)
	}
	return nil
}

// sliceSpacing divides the Z span between two slices by their index distance
func sliceSpacing(firstZ, lastZ float64, firstIdx, lastIdx int) float64 {
	return math.Abs(lastZ-firstZ) / math.Abs(float64(lastIdx-firstIdx))
}

// deriveGeometry computes the geometry of an n-slice series from two of its
// slices and their positions within the ordered series.
func deriveGeometry(first, last *models.Slice, firstIdx, lastIdx, n int) (Geometry, error) {
	zaxis := ZAxisFor(first.XAxis, first.YAxis, r3.Sub(last.Position, first.Position))
	if err := CheckOrientation(first.XAxis, first.YAxis, zaxis); err != nil {
		return Geometry{}, err
	}

	dz := first.Thickness
	if firstIdx != lastIdx {
		dz = sliceSpacing(first.Position.Z, last.Position.Z, firstIdx, lastIdx)
	}
	if dz <= 0 {
		dz = 1
	}

	limMin, limMax := PixelValueRange(first.Bits, first.Signed)
	return Geometry{
		NX:        first.Cols,
		NY:        first.Rows,
		NZ:        n,
		DX:        first.DX,
		DY:        first.DY,
		DZ:        dz,
		ReverseX:  first.XAxis.X < 0,
		ReverseY:  first.YAxis.Y < 0,
		ReverseZ:  zaxis.Z < 0,
		XAxis:     first.XAxis,
		YAxis:     first.YAxis,
		ZAxis:     zaxis,
		Position:  first.Position,
		LimMin:    limMin,
		LimMax:    limMax,
		Bits:      first.Bits,
		Signed:    first.Signed,
		Slope:     first.Slope(),
		Intercept: first.RescaleIntercept,
		StudyID:   first.StudyID,
		SeriesID:  first.SeriesID,
	}, nil
}
