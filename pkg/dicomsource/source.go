// Package dicomsource reads slices from DICOM files.
package dicomsource

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r3"

	"dicomprojector/internal/models"
	"dicomprojector/pkg/series"
)

// ErrMissingTag is returned when a required attribute is absent
var ErrMissingTag = errors.New("missing dicom attribute")

// magic follows the 128 byte preamble of every DICOM file
var magic = []byte("DICM")

const preambleSize = 128

// IsDICOM reports whether the file at path starts with a DICOM preamble
func IsDICOM(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	header := make([]byte, preambleSize+len(magic))
	if _, err := io.ReadFull(f, header); err != nil {
		return false
	}
	return bytes.Equal(header[preambleSize:], magic)
}

// DirSource lists the DICOM files of a directory, or a single DICOM file
type DirSource struct {
	path   string
	logger *zap.Logger
}

// NewDirSource creates a source for the DICOM files at path
func NewDirSource(path string, logger *zap.Logger) *DirSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DirSource{path: path, logger: logger}
}

// List implements series.Source. Files without the DICOM preamble are skipped.
func (d *DirSource) List() ([]series.Handle, error) {
	info, err := os.Stat(d.path)
	if err != nil {
		return nil, fmt.Errorf("failed to access %s: %w", d.path, err)
	}
	if !info.IsDir() {
		if IsDICOM(d.path) {
			return []series.Handle{series.Handle(d.path)}, nil
		}
		return nil, nil
	}

	entries, err := os.ReadDir(d.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", d.path, err)
	}
	var handles []series.Handle
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		path := filepath.Join(d.path, entry.Name())
		if !IsDICOM(path) {
			d.logger.Debug("Skipping non-DICOM file", zap.String("file", path))
			continue
		}
		handles = append(handles, series.Handle(path))
	}
	return handles, nil
}

// Load implements series.Source
func (d *DirSource) Load(h series.Handle) (*models.Slice, error) {
	ds, err := dicom.ParseFile(string(h), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", h, err)
	}
	return FromDataset(ds)
}

// FromDataset extracts a slice from a parsed DICOM dataset
func FromDataset(ds dicom.Dataset) (*models.Slice, error) {
	s := &models.Slice{
		SamplesPerPixel: 1,
		RescaleSlope:    1,
	}

	var err error
	if s.Cols, err = intValue(ds, tag.Columns); err != nil {
		return nil, err
	}
	if s.Rows, err = intValue(ds, tag.Rows); err != nil {
		return nil, err
	}
	if s.Bits, err = intValue(ds, tag.BitsAllocated); err != nil {
		return nil, err
	}
	if n, err := intValue(ds, tag.SamplesPerPixel); err == nil {
		s.SamplesPerPixel = n
	}
	if n, err := intValue(ds, tag.PixelRepresentation); err == nil {
		s.Signed = n == 1
	}

	spacing, err := floatValues(ds, tag.PixelSpacing)
	if err != nil {
		return nil, err
	}
	if len(spacing) < 2 {
		return nil, fmt.Errorf("%w: pixel spacing has %d values", ErrMissingTag, len(spacing))
	}
	s.DX, s.DY = spacing[0], spacing[1]

	position, err := floatValues(ds, tag.ImagePositionPatient)
	if err != nil {
		return nil, err
	}
	orientation, err := floatValues(ds, tag.ImageOrientationPatient)
	if err != nil {
		return nil, err
	}
	if len(position) != 3 || len(orientation) != 6 {
		return nil, fmt.Errorf("%w: image position or orientation malformed", ErrMissingTag)
	}
	s.Position = r3.Vec{X: position[0], Y: position[1], Z: position[2]}
	s.XAxis = r3.Vec{X: orientation[0], Y: orientation[1], Z: orientation[2]}
	s.YAxis = r3.Vec{X: orientation[3], Y: orientation[4], Z: orientation[5]}

	if v, err := floatValue(ds, tag.RescaleSlope); err == nil && v != 0 {
		s.RescaleSlope = v
	}
	if v, err := floatValue(ds, tag.RescaleIntercept); err == nil {
		s.RescaleIntercept = v
	}
	if v, err := floatValue(ds, tag.SliceThickness); err == nil {
		s.Thickness = v
	}
	center, cerr := floatValue(ds, tag.WindowCenter)
	width, werr := floatValue(ds, tag.WindowWidth)
	if cerr == nil && werr == nil {
		s.HasWindow, s.WindowCenter, s.WindowWidth = true, center, width
	}
	if n, err := intValue(ds, tag.InstanceNumber); err == nil {
		s.InstanceNumber = n
	}
	if n, err := intValue(ds, tag.SeriesNumber); err == nil {
		s.SeriesID = n
	}
	if v, err := stringValue(ds, tag.StudyID); err == nil {
		s.StudyID = v
	}

	if s.SamplesPerPixel != 1 {
		// the pixel data is rejected by the series
		return s, nil
	}
	if s.Pixels, err = pixels(ds, s); err != nil {
		return nil, err
	}
	return s, nil
}

// pixels reads the first native frame of the pixel data, sign extending
// stored values of signed encodings
func pixels(ds dicom.Dataset, s *models.Slice) ([]int32, error) {
	el, err := ds.FindElementByTag(tag.PixelData)
	if err != nil {
		return nil, fmt.Errorf("%w: no pixel data", series.ErrUnsupportedFormat)
	}
	info := dicom.MustGetPixelDataInfo(el.Value)
	if len(info.Frames) == 0 {
		return nil, fmt.Errorf("%w: empty pixel data", series.ErrUnsupportedFormat)
	}
	fr := info.Frames[0]
	if fr.Encapsulated || fr.NativeData == nil {
		return nil, fmt.Errorf("%w: compressed pixel data", series.ErrUnsupportedFormat)
	}
	native := fr.NativeData
	if native.Rows() != s.Rows || native.Cols() != s.Cols {
		return nil, fmt.Errorf("%w: frame is %dx%d, expected %dx%d",
			series.ErrUnsupportedFormat, native.Cols(), native.Rows(), s.Cols, s.Rows)
	}

	out := make([]int32, s.Rows*s.Cols)
	bits := uint(s.Bits)
	for y := 0; y < s.Rows; y++ {
		for x := 0; x < s.Cols; x++ {
			samples, err := native.GetPixel(x, y)
			if err != nil {
				return nil, fmt.Errorf("failed to read pixel (%d, %d): %w", x, y, err)
			}
			v := int64(samples[0])
			if s.Signed && bits < 64 && v >= 1<<(bits-1) {
				v -= 1 << bits
			}
			out[y*s.Cols+x] = int32(v)
		}
	}
	return out, nil
}

func find(ds dicom.Dataset, t tag.Tag) (any, error) {
	el, err := ds.FindElementByTag(t)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingTag, t)
	}
	return el.Value.GetValue(), nil
}

func stringValue(ds dicom.Dataset, t tag.Tag) (string, error) {
	v, err := find(ds, t)
	if err != nil {
		return "", err
	}
	if s, ok := v.([]string); ok && len(s) > 0 {
		return strings.TrimSpace(s[0]), nil
	}
	return "", fmt.Errorf("%w: %v has no text value", ErrMissingTag, t)
}

func intValue(ds dicom.Dataset, t tag.Tag) (int, error) {
	v, err := find(ds, t)
	if err != nil {
		return 0, err
	}
	switch values := v.(type) {
	case []int:
		if len(values) > 0 {
			return values[0], nil
		}
	case []string:
		if len(values) > 0 {
			return strconv.Atoi(strings.TrimSpace(values[0]))
		}
	}
	return 0, fmt.Errorf("%w: %v has no integer value", ErrMissingTag, t)
}

func floatValue(ds dicom.Dataset, t tag.Tag) (float64, error) {
	values, err := floatValues(ds, t)
	if err != nil {
		return 0, err
	}
	if len(values) == 0 {
		return 0, fmt.Errorf("%w: %v is empty", ErrMissingTag, t)
	}
	return values[0], nil
}

func floatValues(ds dicom.Dataset, t tag.Tag) ([]float64, error) {
	v, err := find(ds, t)
	if err != nil {
		return nil, err
	}
	switch values := v.(type) {
	case []float64:
		return values, nil
	case []int:
		out := make([]float64, len(values))
		for i, n := range values {
			out[i] = float64(n)
		}
		return out, nil
	case []string:
		var out []float64
		for _, s := range values {
			// multi-valued strings may still carry backslash separators
			for _, field := range strings.Split(s, `\`) {
				field = strings.TrimSpace(field)
				if field == "" {
					continue
				}
				f, err := strconv.ParseFloat(field, 64)
				if err != nil {
					return nil, fmt.Errorf("invalid %v value %q: %w", t, field, err)
				}
				out = append(out, f)
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: %v has no numeric value", ErrMissingTag, t)
}
