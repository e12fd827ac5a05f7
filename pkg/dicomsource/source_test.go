package dicomsource

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/frame"
	"github.com/suyashkumar/dicom/pkg/tag"
	"gonum.org/v1/gonum/spatial/r3"

	"dicomprojector/pkg/series"
)

func mustNewElement(t *testing.T, tg tag.Tag, data any) *dicom.Element {
	t.Helper()
	el, err := dicom.NewElement(tg, data)
	require.NoError(t, err)
	return el
}

// dataset builds a 3x2 single-frame dataset holding raw
func dataset(t *testing.T, signed bool, raw []uint16, extra ...*dicom.Element) dicom.Dataset {
	t.Helper()
	const cols, rows = 3, 2
	native := frame.NewNativeFrame[uint16](16, rows, cols, cols*rows, 1)
	copy(native.RawData, raw)

	representation := 0
	if signed {
		representation = 1
	}
	elements := []*dicom.Element{
		mustNewElement(t, tag.Rows, []int{rows}),
		mustNewElement(t, tag.Columns, []int{cols}),
		mustNewElement(t, tag.BitsAllocated, []int{16}),
		mustNewElement(t, tag.SamplesPerPixel, []int{1}),
		mustNewElement(t, tag.PixelRepresentation, []int{representation}),
		mustNewElement(t, tag.PixelSpacing, []string{"0.5", "0.75"}),
		mustNewElement(t, tag.ImagePositionPatient, []string{"-10", "-20", "42.5"}),
		mustNewElement(t, tag.ImageOrientationPatient, []string{"1", "0", "0", "0", "1", "0"}),
		mustNewElement(t, tag.InstanceNumber, []string{"7"}),
		mustNewElement(t, tag.SeriesNumber, []string{"3"}),
		mustNewElement(t, tag.StudyID, []string{"S1"}),
		mustNewElement(t, tag.PixelData, dicom.PixelDataInfo{
			Frames: []*frame.Frame{{Encapsulated: false, NativeData: native}},
		}),
	}
	return dicom.Dataset{Elements: append(elements, extra...)}
}

func TestFromDataset(t *testing.T) {
	ds := dataset(t, false, []uint16{0, 1, 2, 3, 4, 65535},
		mustNewElement(t, tag.RescaleSlope, []string{"2"}),
		mustNewElement(t, tag.RescaleIntercept, []string{"-1024"}),
		mustNewElement(t, tag.WindowCenter, []string{"40"}),
		mustNewElement(t, tag.WindowWidth, []string{"400"}),
		mustNewElement(t, tag.SliceThickness, []string{"1.25"}),
	)

	s, err := FromDataset(ds)
	require.NoError(t, err)
	assert.Equal(t, 3, s.Cols)
	assert.Equal(t, 2, s.Rows)
	assert.Equal(t, 16, s.Bits)
	assert.False(t, s.Signed)
	assert.Equal(t, []int32{0, 1, 2, 3, 4, 65535}, s.Pixels)
	assert.Equal(t, 0.5, s.DX)
	assert.Equal(t, 0.75, s.DY)
	assert.Equal(t, r3.Vec{X: -10, Y: -20, Z: 42.5}, s.Position)
	assert.Equal(t, r3.Vec{X: 1}, s.XAxis)
	assert.Equal(t, r3.Vec{Y: 1}, s.YAxis)
	assert.Equal(t, 2.0, s.RescaleSlope)
	assert.Equal(t, -1024.0, s.RescaleIntercept)
	assert.Equal(t, 1.25, s.Thickness)
	assert.True(t, s.HasWindow)
	assert.Equal(t, 40.0, s.WindowCenter)
	assert.Equal(t, 400.0, s.WindowWidth)
	assert.Equal(t, 7, s.InstanceNumber)
	assert.Equal(t, 3, s.SeriesID)
	assert.Equal(t, "S1", s.StudyID)
}

func TestFromDatasetSigned(t *testing.T) {
	s, err := FromDataset(dataset(t, true, []uint16{0, 1, 32767, 32768, 65535, 65534}))
	require.NoError(t, err)
	assert.True(t, s.Signed)
	assert.Equal(t, []int32{0, 1, 32767, -32768, -1, -2}, s.Pixels)
	assert.Equal(t, 1.0, s.RescaleSlope)
	assert.False(t, s.HasWindow)
}

func TestFromDatasetMissingAttributes(t *testing.T) {
	ds := dataset(t, false, make([]uint16, 6))
	var kept []*dicom.Element
	for _, el := range ds.Elements {
		if el.Tag != tag.ImagePositionPatient {
			kept = append(kept, el)
		}
	}
	_, err := FromDataset(dicom.Dataset{Elements: kept})
	assert.ErrorIs(t, err, ErrMissingTag)
}

func writeFile(t *testing.T, path string, content []byte) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, content, 0644))
}

func TestList(t *testing.T) {
	dir := t.TempDir()
	header := append(make([]byte, preambleSize), magic...)
	writeFile(t, filepath.Join(dir, "IM2.dcm"), header)
	writeFile(t, filepath.Join(dir, "IM10.dcm"), header)
	writeFile(t, filepath.Join(dir, "notes.txt"), []byte("not an image"))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0755))

	src := NewDirSource(dir, nil)
	handles, err := src.List()
	require.NoError(t, err)
	assert.ElementsMatch(t, []series.Handle{
		series.Handle(filepath.Join(dir, "IM2.dcm")),
		series.Handle(filepath.Join(dir, "IM10.dcm")),
	}, handles)

	single := NewDirSource(filepath.Join(dir, "IM2.dcm"), nil)
	handles, err = single.List()
	require.NoError(t, err)
	assert.Len(t, handles, 1)

	assert.False(t, IsDICOM(filepath.Join(dir, "notes.txt")))
	assert.False(t, IsDICOM(filepath.Join(dir, "missing.dcm")))

	_, err = NewDirSource(filepath.Join(dir, "missing"), nil).List()
	assert.Error(t, err)
}

func TestLoadRejectsCorruptFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "IM1.dcm")
	writeFile(t, path, append(append(make([]byte, preambleSize), magic...), 0x02, 0x00))

	_, err := NewDirSource(dir, nil).Load(series.Handle(path))
	assert.Error(t, err)
}
