// Package fixtures builds synthetic slices and series for tests.
package fixtures

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"dicomprojector/internal/models"
)

// Slice returns a 16-bit signed axial slice at height z filled by pattern
func Slice(cols, rows int, z float64, instance int, pattern func(x, y int) int32) *models.Slice {
	s := &models.Slice{
		Pixels:          make([]int32, cols*rows),
		Cols:            cols,
		Rows:            rows,
		SamplesPerPixel: 1,
		Bits:            16,
		Signed:          true,
		RescaleSlope:    1,
		DX:              1,
		DY:              1,
		Thickness:       1,
		Position:        r3.Vec{X: 0, Y: 0, Z: z},
		XAxis:           r3.Vec{X: 1},
		YAxis:           r3.Vec{Y: 1},
		InstanceNumber:  instance,
		StudyID:         "1",
		SeriesID:        1,
	}
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			s.Pixels[y*cols+x] = pattern(x, y)
		}
	}
	return s
}

// Constant returns a pattern with the same value everywhere
func Constant(v int32) func(x, y int) int32 {
	return func(int, int) int32 { return v }
}

// Values returns a pattern reading row-major values
func Values(cols int, values ...int32) func(x, y int) int32 {
	return func(x, y int) int32 { return values[y*cols+x] }
}

// Name returns the conventional handle name of the i-th slice
func Name(i int) string {
	return fmt.Sprintf("IM%04d.dcm", i)
}
