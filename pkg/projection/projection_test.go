package projection

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dicomprojector/internal/fixtures"
	"dicomprojector/internal/models"
	"dicomprojector/pkg/series"
	"dicomprojector/pkg/transfer"
)

// constantSeries opens a series of 2x2 slices at z = 0, 1, ... with the
// given constant values
func constantSeries(t *testing.T, values ...int32) *series.Series {
	t.Helper()
	slices := make(map[series.Handle]*models.Slice, len(values))
	for i, v := range values {
		slices[series.Handle(fixtures.Name(i))] = fixtures.Slice(2, 2, float64(i), i+1, fixtures.Constant(v))
	}
	s, err := series.Open(series.NewMemorySource(slices), series.Options{})
	require.NoError(t, err)
	return s
}

// indexVolume returns a byte volume whose levels are their own voxel index
func indexVolume(nx, ny, nz int) *Volume {
	vol := NewVolume(nx, ny, nz, 0, 255)
	for z := 0; z < nz; z++ {
		plane := make([]float64, nx*ny)
		for i := range plane {
			plane[i] = float64(z*nx*ny + i)
		}
		if err := vol.SetPlane(z, plane); err != nil {
			panic(err)
		}
	}
	return vol
}

func TestMIP(t *testing.T) {
	vol := NewVolume(2, 2, 2, 0, 255)
	require.NoError(t, vol.SetPlane(0, []float64{1, 5, 3, 2}))
	require.NoError(t, vol.SetPlane(1, []float64{4, 1, 0, 9}))

	r := &renderer{volume: vol}
	v := r.mip(models.ZAxis)
	assert.Equal(t, 2, v.Cols)
	assert.Equal(t, 2, v.Rows)
	assert.Equal(t, []float64{4, 5, 3, 9}, v.Data)
	assert.Equal(t, "axial_mip", v.Name())
}

func TestTransmissionDecreasesWithAttenuation(t *testing.T) {
	prev := Transmission(10, 0)
	assert.Equal(t, 1.0, prev)
	for _, k := range []float64{0.001, 0.01, 0.02, 0.1, 1} {
		tr := Transmission(10, k)
		assert.Less(t, tr, prev, "k=%g", k)
		prev = tr
	}

	vol := indexVolume(2, 2, 3)
	var last []float64
	for _, k := range []float64{0.01, 0.02, 0.04} {
		r := &renderer{volume: vol, preGamma: 1, attenuation: k}
		v := r.transmission(models.ZAxis, vol.Max())
		if last != nil {
			for i := range v.Data {
				assert.Less(t, v.Data[i], last[i])
			}
		}
		last = v.Data
	}
}

func TestAttenuationCoefficient(t *testing.T) {
	assert.InDelta(t, 0.02, AttenuationCoefficient(DefaultAttenuation, ReferencePlanes), 1e-15)
	assert.InDelta(t, 0.04, AttenuationCoefficient(DefaultAttenuation, ReferencePlanes/2), 1e-15)
	assert.Equal(t, 0.02, AttenuationCoefficient(DefaultAttenuation, 0))
}

func TestPower(t *testing.T) {
	assert.Equal(t, 1.0, power(0.3, 0))
	assert.Equal(t, 1.0/256, power(0.5, 8))
	assert.InDelta(t, 0.3*0.3*0.3, power(0.3, 3), 1e-15)
}

func TestExposure(t *testing.T) {
	assert.Equal(t, 0.0, exposureTarget(0))
	assert.InDelta(t, exposureY0, exposureTarget(exposureX0), 1e-12)
	assert.InDelta(t, 1.0, exposureTarget(1), 1e-12)
	assert.Less(t, exposureTarget(0.3), exposureTarget(0.8))

	// nothing lit: no correction
	assert.Equal(t, 1.0, exposureGamma([]float64{0.1, 0.2, 0.25}))

	// few bright pixels darken the image
	image := []float64{0.9, 0.6, 0.6, 0.1}
	g := exposureGamma(image)
	assert.Greater(t, g, 1.0)
	expose(image)
	assert.Less(t, image[1], 0.6)
}

func TestViewLayout(t *testing.T) {
	vol := indexVolume(2, 3, 2)

	t.Run("sagittal", func(t *testing.T) {
		r := &renderer{volume: vol}
		v := r.plane(models.XAxis, Single, 0, "")
		assert.Equal(t, 3, v.Cols)
		assert.Equal(t, 2, v.Rows)
		assert.Equal(t, []float64{10, 8, 6, 4, 2, 0}, v.Data)
		assert.Equal(t, "sagittal_0", v.Name())
	})

	t.Run("axial reversed x", func(t *testing.T) {
		r := &renderer{volume: vol, geometry: series.Geometry{ReverseX: true}}
		v := r.plane(models.ZAxis, Single, 1, "")
		assert.Equal(t, 2, v.Cols)
		assert.Equal(t, 3, v.Rows)
		assert.Equal(t, []float64{7, 6, 9, 8, 11, 10}, v.Data)
	})

	t.Run("coronal reversed z", func(t *testing.T) {
		r := &renderer{volume: vol, geometry: series.Geometry{ReverseZ: true}}
		v := r.plane(models.YAxis, Single, 1, "")
		assert.Equal(t, []float64{2, 3, 8, 9}, v.Data)
	})
}

func TestContentBounds(t *testing.T) {
	vol := NewVolume(2, 2, 5, 0, 255)
	for z, level := range []float64{0, 100, 200, 50, 5} {
		require.NoError(t, vol.SetPlane(z, []float64{level, 0, 0, 0}))
	}

	b := contentBounds(vol, models.ZAxis, vol.Max())
	assert.Equal(t, ContentBounds{First: 1, Last: 3, Found: true}, b)
	assert.Equal(t, 2, b.Center(5))

	flat := NewVolume(2, 2, 5, 0, 255)
	b = contentBounds(flat, models.ZAxis, flat.Max())
	assert.False(t, b.Found)
	assert.Equal(t, 2, b.Center(5))
}

func TestParseSelectors(t *testing.T) {
	selectors, err := ParseSelectors("3, m,C,*,contents,mip,aap")
	require.NoError(t, err)
	assert.Equal(t, []Selector{
		{Kind: Single, Index: 3},
		{Kind: Middle},
		{Kind: Center},
		{Kind: All},
		{Kind: Contents},
		{Kind: MIP},
		{Kind: AAP},
	}, selectors)
	assert.Equal(t, "3,m,c,*,contents,mip,aap", FormatSelectors(selectors))

	selectors, err = ParseSelectors("")
	require.NoError(t, err)
	assert.Empty(t, selectors)

	for _, bad := range []string{"x", "-1", "mip,2.5"} {
		_, err := ParseSelectors(bad)
		assert.Error(t, err, bad)
	}
}

func TestComputeScaling(t *testing.T) {
	tests := []struct {
		name       string
		n          [3]int
		d          [3]float64
		bounds     Bounds
		nx, ny, nz int
	}{
		{"coarsest spacing", [3]int{100, 100, 50}, [3]float64{0.5, 0.5, 2}, Bounds{}, 25, 25, 50},
		{"minimum columns", [3]int{100, 100, 50}, [3]float64{0.5, 0.5, 2}, Bounds{MinCols: 100}, 100, 100, 200},
		{"maximum columns", [3]int{200, 200, 200}, [3]float64{1, 1, 1}, Bounds{MaxCols: 100}, 100, 100, 100},
		{"minimum z", [3]int{10, 10, 10}, [3]float64{1, 1, 1}, Bounds{MinZ: 20}, 20, 20, 20},
		{"maximum rows", [3]int{10, 10, 40}, [3]float64{1, 1, 1}, Bounds{MaxRows: 20}, 5, 5, 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := ComputeScaling(tt.n[0], tt.n[1], tt.n[2], tt.d[0], tt.d[1], tt.d[2], tt.bounds)
			assert.Equal(t, tt.nx, s.NX)
			assert.Equal(t, tt.ny, s.NY)
			assert.Equal(t, tt.nz, s.NZ)
		})
	}
}

func TestVolumeStorage(t *testing.T) {
	compact := NewVolume(4, 4, 2, 0, 255)
	assert.True(t, compact.Compact())
	assert.Equal(t, 32, compact.Size())

	wide := NewVolume(4, 4, 2, -32768, 32767)
	assert.False(t, wide.Compact())
	assert.Equal(t, 128, wide.Size())
	require.NoError(t, wide.SetPlane(1, make([]float64, 16)))
	assert.Error(t, wide.SetPlane(1, make([]float64, 3)))
	assert.Error(t, wide.SetPlane(2, make([]float64, 16)))
}

func TestEndToEnd(t *testing.T) {
	s := constantSeries(t, 100, 200, 300, 400)
	st, err := transfer.New("global", transfer.Params{})
	require.NoError(t, err)

	var progress []int
	e, err := NewEngine(s, st, Options{Progress: ProgressFunc(func(current, total int) {
		assert.Equal(t, 4, total)
		progress = append(progress, current)
	})})
	require.NoError(t, err)
	assert.Equal(t, 100.0, e.Range().Min)
	assert.Equal(t, 400.0, e.Range().Max)

	res, err := e.Run(Request{Axial: []Selector{{Kind: Single, Index: 3}, {Kind: Single, Index: 0}}})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4}, progress)
	require.Len(t, res.Views, 2)
	for _, level := range res.Views[0].Data {
		assert.Equal(t, e.Range().OutMax, level)
	}
	for _, level := range res.Views[1].Data {
		assert.Equal(t, e.Range().OutMin, level)
	}
}

func TestRunAllViews(t *testing.T) {
	s := constantSeries(t, 0, 50, 400, 300, 0)
	st, err := transfer.New("global", transfer.Params{Output: "byte", IgnoreMin: new(bool)})
	require.NoError(t, err)
	e, err := NewEngine(s, st, Options{})
	require.NoError(t, err)

	all := []Selector{{Kind: Middle}, {Kind: Center}, {Kind: Contents}, {Kind: MIP}, {Kind: AAP}}
	res, err := e.Run(Request{Axial: all, Sagittal: all, Coronal: all})
	require.NoError(t, err)

	assert.Equal(t, ContentBounds{First: 1, Last: 3, Found: true}, res.Contents[models.ZAxis])
	names := map[string]bool{}
	for _, v := range res.Views {
		names[v.Name()] = true
		require.Len(t, v.Data, v.Cols*v.Rows)
		for _, level := range v.Data {
			assert.GreaterOrEqual(t, level, 0.0)
			assert.LessOrEqual(t, level, 255.0)
		}
	}
	for _, view := range []string{"axial", "sagittal", "coronal"} {
		for _, label := range []string{"m", "c", "mip", "aap"} {
			assert.True(t, names[fmt.Sprintf("%s_%s", view, label)], "%s_%s", view, label)
		}
	}
	assert.True(t, names["axial_1"])
	assert.True(t, names["axial_3"])
	assert.False(t, names["axial_4"])
}

func TestRunRejectsOutOfRangePlane(t *testing.T) {
	s := constantSeries(t, 100, 200)
	e, err := NewEngine(s, transfer.NewFixed(0, 300, transfer.OutputByte), Options{})
	require.NoError(t, err)
	_, err = e.Run(Request{Sagittal: []Selector{{Kind: Single, Index: 2}}})
	assert.Error(t, err)
	_, err = e.Run(Request{Axial: []Selector{{Kind: Single, Index: -1}}})
	assert.Error(t, err)
}

func TestTransmissionViewRange(t *testing.T) {
	s := constantSeries(t, 100, 200, 300)
	e, err := NewEngine(s, transfer.NewFixed(0, 300, transfer.OutputByte), Options{})
	require.NoError(t, err)
	vol, err := e.BuildVolume()
	require.NoError(t, err)

	v := e.Transmission(vol, models.ZAxis)
	assert.Equal(t, 0.0, v.OutMin)
	assert.Equal(t, 1.0, v.OutMax)
	for _, d := range v.Data {
		assert.Greater(t, d, 0.0)
		assert.Less(t, d, 1.0)
	}
}
