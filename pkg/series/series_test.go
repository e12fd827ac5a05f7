package series

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"dicomprojector/internal/fixtures"
	"dicomprojector/internal/models"
)

// stack creates an in-memory source of n 4x3 slices positioned at z(i)
func stack(n int, z func(i int) float64) map[Handle]*models.Slice {
	slices := make(map[Handle]*models.Slice, n)
	for i := 0; i < n; i++ {
		v := int32(100 * (i + 1))
		slices[Handle(fixtures.Name(i))] = fixtures.Slice(4, 3, z(i), i+1, func(x, y int) int32 {
			return v + int32(y*4+x)
		})
	}
	return slices
}

// countingSource records how many times each slice is loaded
type countingSource struct {
	*MemorySource
	loads map[Handle]int
}

func (c *countingSource) Load(h Handle) (*models.Slice, error) {
	c.loads[h]++
	return c.MemorySource.Load(h)
}

func TestOpenComputesGeometry(t *testing.T) {
	src := NewMemorySource(stack(6, func(i int) float64 { return 100 - float64(i) }))

	s, err := Open(src, Options{})
	require.NoError(t, err)

	g := s.Geometry()
	assert.Equal(t, 4, g.NX)
	assert.Equal(t, 3, g.NY)
	assert.Equal(t, 6, g.NZ)
	assert.InDelta(t, 1.0, g.DZ, 1e-12)
	assert.Equal(t, r3.Vec{Z: -1}, g.ZAxis)
	assert.True(t, g.ReverseZ)
	assert.False(t, g.ReverseX)
	assert.False(t, g.ReverseY)
	assert.Equal(t, int64(-32768), g.LimMin)
	assert.Equal(t, int64(32767), g.LimMax)
}

func TestOpenReadsOnlyFirstAndLast(t *testing.T) {
	src := &countingSource{
		MemorySource: NewMemorySource(stack(10, func(i int) float64 { return float64(i) })),
		loads:        map[Handle]int{},
	}

	_, err := Open(src, Options{})
	require.NoError(t, err)

	assert.Len(t, src.loads, 2)
	assert.Equal(t, 1, src.loads[Handle(fixtures.Name(0))])
	assert.Equal(t, 1, src.loads[Handle(fixtures.Name(9))])
}

func TestSliceSpacing(t *testing.T) {
	assert.InDelta(t, 1.0, sliceSpacing(100.0, 95.0, 0, 5), 1e-12)
	assert.InDelta(t, 2.5, sliceSpacing(0, 10, 0, 4), 1e-12)
}

func TestOrientation(t *testing.T) {
	t.Run("canonical axes accepted", func(t *testing.T) {
		x, y := r3.Vec{X: 1}, r3.Vec{Y: 1}
		up := ZAxisFor(x, y, r3.Vec{Z: 5})
		down := ZAxisFor(x, y, r3.Vec{Z: -5})
		assert.Equal(t, r3.Vec{Z: 1}, up)
		assert.Equal(t, r3.Vec{Z: -1}, down)
		assert.NoError(t, CheckOrientation(x, y, up))
		assert.NoError(t, CheckOrientation(x, y, down))
	})

	t.Run("oblique axes rejected", func(t *testing.T) {
		x, y := r3.Vec{X: 0.7, Y: 0.7}, r3.Vec{Y: 1}
		err := CheckOrientation(x, y, ZAxisFor(x, y, r3.Vec{Z: 1}))
		assert.ErrorIs(t, err, ErrUnsupportedOrientation)
	})

	t.Run("small deviations tolerated", func(t *testing.T) {
		x, y := r3.Vec{X: 0.999, Y: 0.04}, r3.Vec{X: -0.04, Y: 0.999}
		assert.NoError(t, CheckOrientation(x, y, ZAxisFor(x, y, r3.Vec{Z: 1})))
	})

	t.Run("oblique series fails to open", func(t *testing.T) {
		slices := stack(3, func(i int) float64 { return float64(i) })
		for _, s := range slices {
			s.XAxis = r3.Vec{X: 0.7, Y: 0.7}
		}
		_, err := Open(NewMemorySource(slices), Options{})
		assert.True(t, errors.Is(err, ErrUnsupportedOrientation))
	})
}

func TestReverseFlags(t *testing.T) {
	slices := stack(3, func(i int) float64 { return float64(i) })
	for _, s := range slices {
		s.XAxis = r3.Vec{X: -1}
		s.YAxis = r3.Vec{Y: -1}
	}
	s, err := Open(NewMemorySource(slices), Options{})
	require.NoError(t, err)

	g := s.Geometry()
	assert.True(t, g.ReverseX)
	assert.True(t, g.ReverseY)
	// (-1,0,0) x (0,-1,0) = (0,0,1), already pointing towards increasing z
	assert.False(t, g.ReverseZ)
}

func TestOrderByName(t *testing.T) {
	handles := []Handle{"dir/b", "dir/IM10.dcm", "dir/a", "dir/IM2.dcm", "dir/IM1.dcm"}
	assert.Equal(t,
		[]Handle{"dir/IM1.dcm", "dir/IM2.dcm", "dir/IM10.dcm", "dir/a", "dir/b"},
		orderByName(handles))
}

func TestReorderByInstance(t *testing.T) {
	slices := map[Handle]*models.Slice{
		"x1": fixtures.Slice(2, 2, 0, 3, fixtures.Constant(3)),
		"x2": fixtures.Slice(2, 2, 1, 1, fixtures.Constant(1)),
		"x3": fixtures.Slice(2, 2, 2, 2, fixtures.Constant(2)),
	}
	s, err := Open(NewMemorySource(slices), Options{Reorder: true})
	require.NoError(t, err)

	var got []int32
	require.NoError(t, s.Each(func(sl *models.Slice, i int, h Handle) error {
		got = append(got, sl.Pixels[0])
		return nil
	}))
	assert.Equal(t, []int32{1, 2, 3}, got)
}

func TestOpenErrors(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		_, err := Open(NewMemorySource(nil), Options{})
		assert.ErrorIs(t, err, ErrEmptySeries)
	})

	t.Run("multi-sample pixels", func(t *testing.T) {
		slices := stack(2, func(i int) float64 { return float64(i) })
		slices[Handle(fixtures.Name(0))].SamplesPerPixel = 3
		_, err := Open(NewMemorySource(slices), Options{})
		assert.ErrorIs(t, err, ErrUnsupportedFormat)
	})

	t.Run("inconsistent bit depth", func(t *testing.T) {
		slices := stack(2, func(i int) float64 { return float64(i) })
		slices[Handle(fixtures.Name(1))].Bits = 12
		_, err := Open(NewMemorySource(slices), Options{})
		assert.ErrorIs(t, err, ErrInconsistentSeries)
	})

	t.Run("inconsistent rescale found on a later visit", func(t *testing.T) {
		slices := stack(3, func(i int) float64 { return float64(i) })
		slices[Handle(fixtures.Name(1))].RescaleIntercept = -1024
		s, err := Open(NewMemorySource(slices), Options{})
		require.NoError(t, err)
		_, err = s.Slice(1)
		assert.ErrorIs(t, err, ErrInconsistentSeries)
		assert.ErrorIs(t, s.Validate(), ErrInconsistentSeries)
	})
}

func TestROI(t *testing.T) {
	src := NewMemorySource(stack(6, func(i int) float64 { return -float64(i) }))
	roi, err := NewROI([]int{1, 2, 0, 1, 0, 1})
	require.NoError(t, err)

	s, err := Open(src, Options{ROI: roi})
	require.NoError(t, err)

	g := s.Geometry()
	require.True(t, g.ReverseZ)
	assert.Equal(t, 2, g.NX)
	assert.Equal(t, 2, g.NY)
	assert.Equal(t, 2, g.NZ)
	assert.Equal(t, 2, s.Len())
	// the crop starts at column 1 of the stored slice at z=-4
	assert.InDelta(t, 1.0, g.Position.X, 1e-9)
	assert.InDelta(t, 0.0, g.Position.Y, 1e-9)
	assert.InDelta(t, -4.0, g.Position.Z, 1e-9)

	// canonical z 0..1 is the last two stored slices when z is reversed
	assert.Equal(t, Handle(fixtures.Name(4)), s.Handle(0))
	assert.Equal(t, Handle(fixtures.Name(5)), s.Handle(1))

	sl, err := s.First()
	require.NoError(t, err)
	assert.Equal(t, 2, sl.Cols)
	assert.Equal(t, 2, sl.Rows)
	assert.Equal(t, []int32{501, 502, 505, 506}, sl.Pixels)
}

func TestObserversSeeEveryVisit(t *testing.T) {
	src := NewMemorySource(stack(4, func(i int) float64 { return float64(i) }))
	var seen []int
	s, err := Open(src, Options{Observers: []Observer{
		ObserverFunc(func(sl *models.Slice, index int, h Handle) error {
			seen = append(seen, index)
			return nil
		}),
	}})
	require.NoError(t, err)

	require.NoError(t, s.Each(func(*models.Slice, int, Handle) error { return nil }))
	assert.Equal(t, []int{0, 1, 2, 3}, seen)
}

func TestSingleSliceSeries(t *testing.T) {
	src := NewMemorySource(stack(1, func(i int) float64 { return 7 }))
	s, err := Open(src, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, s.Geometry().NZ)
	assert.InDelta(t, 1.0, s.Geometry().DZ, 1e-12)
}
