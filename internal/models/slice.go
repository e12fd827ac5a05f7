package models

import (
	"gonum.org/v1/gonum/spatial/r3"
)

// Slice represents a single cross-sectional image with its acquisition metadata
type Slice struct {
	// Pixels holds the stored (raw, not rescaled) intensities in row-major order
	Pixels []int32

	// Cols and Rows are the dimensions of the pixel matrix
	Cols int
	Rows int

	// SamplesPerPixel is 1 for grayscale data; anything else is unsupported
	SamplesPerPixel int

	// Bits is the number of bits allocated per stored sample
	Bits int

	// Signed reports whether stored samples use two's complement
	Signed bool

	// RescaleSlope and RescaleIntercept convert stored values to real-world units
	RescaleSlope     float64
	RescaleIntercept float64

	// DX is the spacing between columns and DY the spacing between rows, in mm
	DX float64
	DY float64

	// Thickness is the nominal slice thickness in mm (zero when unknown)
	Thickness float64

	// Position is the patient-space position of the first transmitted pixel
	Position r3.Vec

	// XAxis and YAxis are the direction cosines of the rows and columns
	XAxis r3.Vec
	YAxis r3.Vec

	// HasWindow reports whether WindowCenter and WindowWidth were present
	HasWindow    bool
	WindowCenter float64
	WindowWidth  float64

	// Identity of the slice within its study and series
	InstanceNumber int
	StudyID        string
	SeriesID       int
}

// At returns the raw stored value at column x, row y
func (s *Slice) At(x, y int) int32 {
	return s.Pixels[y*s.Cols+x]
}

// Rescaled returns the i-th pixel converted with the rescale slope and intercept
func (s *Slice) Rescaled(i int) float64 {
	return float64(s.Pixels[i])*s.slope() + s.RescaleIntercept
}

// slope treats a missing (zero) slope as the identity
func (s *Slice) slope() float64 {
	if s.RescaleSlope == 0 {
		return 1
	}
	return s.RescaleSlope
}

// Slope returns the effective rescale slope
func (s *Slice) Slope() float64 {
	return s.slope()
}

// Crop returns a copy of the slice restricted to columns [x0, x1] and rows [y0, y1]
func (s *Slice) Crop(x0, x1, y0, y1 int) *Slice {
	cropped := *s
	cols := x1 - x0 + 1
	rows := y1 - y0 + 1
	cropped.Cols = cols
	cropped.Rows = rows
	cropped.Pixels = make([]int32, cols*rows)
	for y := 0; y < rows; y++ {
		copy(cropped.Pixels[y*cols:(y+1)*cols], s.Pixels[(y0+y)*s.Cols+x0:(y0+y)*s.Cols+x1+1])
	}
	return &cropped
}

// Axis identifies one of the three orthogonal directions of a volume
type Axis int

const (
	// XAxis runs along slice columns (sagittal planes are orthogonal to it)
	XAxis Axis = iota
	// YAxis runs along slice rows (coronal planes are orthogonal to it)
	YAxis
	// ZAxis runs across slices (axial planes are orthogonal to it)
	ZAxis
)

func (a Axis) String() string {
	switch a {
	case XAxis:
		return "x"
	case YAxis:
		return "y"
	case ZAxis:
		return "z"
	}
	return "unknown"
}

// View returns the anatomical name of the planes orthogonal to the axis
func (a Axis) View() string {
	switch a {
	case XAxis:
		return "sagittal"
	case YAxis:
		return "coronal"
	case ZAxis:
		return "axial"
	}
	return "unknown"
}
