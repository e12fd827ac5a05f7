package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/draw"

	"dicomprojector/pkg/projection"
)

// Image file formats
const (
	FormatPNG  = "png"
	FormatJPEG = "jpg"
)

// Viewer converts rendered views into grayscale raster images and writes
// them to disk
type Viewer struct {
	// bits is the sample depth of the images, 8 or 16; 0 selects it from the
	// output range of each view
	bits int

	// format is the file extension of saved images
	format string

	// quality is the JPEG encoding quality
	quality int

	// resize scales views to their display dimensions
	resize bool
}

// NewViewer creates a viewer writing images in the given format ("png" or
// "jpg") with the given bit depth
func NewViewer(format string, bits int, resize bool) (*Viewer, error) {
	switch strings.ToLower(format) {
	case "", FormatPNG:
		format = FormatPNG
	case FormatJPEG, "jpeg":
		format = FormatJPEG
	default:
		return nil, fmt.Errorf("invalid image format: %s (must be png or jpg)", format)
	}
	if bits != 0 && bits != 8 && bits != 16 {
		return nil, fmt.Errorf("invalid bit depth: %d (must be 8 or 16)", bits)
	}
	return &Viewer{bits: bits, format: format, quality: 90, resize: resize}, nil
}

// Format returns the file extension of saved images
func (v *Viewer) Format() string {
	return v.format
}

// depth returns the sample depth used for levels within [outMin, outMax]
func (v *Viewer) depth(outMin, outMax float64) int {
	if v.bits != 0 {
		return v.bits
	}
	if outMax-outMin <= math.MaxUint8 {
		return 8
	}
	return 16
}

// Levels converts cols×rows levels within [outMin, outMax] into a grayscale
// image, black at outMin and white at outMax
func (v *Viewer) Levels(cols, rows int, data []float64, outMin, outMax float64) (image.Image, error) {
	if cols <= 0 || rows <= 0 || len(data) != cols*rows {
		return nil, fmt.Errorf("invalid image: %d levels for %dx%d", len(data), cols, rows)
	}
	span := outMax - outMin
	if span <= 0 {
		return nil, fmt.Errorf("invalid level range [%g, %g]", outMin, outMax)
	}
	unit := func(level float64) float64 {
		return math.Max(0, math.Min(1, (level-outMin)/span))
	}

	rect := image.Rect(0, 0, cols, rows)
	if v.depth(outMin, outMax) == 8 {
		img := image.NewGray(rect)
		for y := 0; y < rows; y++ {
			for x := 0; x < cols; x++ {
				img.SetGray(x, y, color.Gray{Y: uint8(math.Round(unit(data[y*cols+x]) * math.MaxUint8))})
			}
		}
		return img, nil
	}
	img := image.NewGray16(rect)
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			img.SetGray16(x, y, color.Gray16{Y: uint16(math.Round(unit(data[y*cols+x]) * math.MaxUint16))})
		}
	}
	return img, nil
}

// ViewImage renders a view, resized to its display dimensions when the
// viewer resizes
func (v *Viewer) ViewImage(view *projection.View) (image.Image, error) {
	img, err := v.Levels(view.Cols, view.Rows, view.Data, view.OutMin, view.OutMax)
	if err != nil {
		return nil, fmt.Errorf("failed to render %s: %w", view.Name(), err)
	}
	if !v.resize || view.ScaledCols <= 0 || view.ScaledRows <= 0 ||
		(view.ScaledCols == view.Cols && view.ScaledRows == view.Rows) {
		return img, nil
	}
	return Resize(img, view.ScaledCols, view.ScaledRows), nil
}

// Resize scales a grayscale image to cols×rows, keeping its sample depth
func Resize(img image.Image, cols, rows int) image.Image {
	rect := image.Rect(0, 0, cols, rows)
	var dst draw.Image
	if _, ok := img.(*image.Gray16); ok {
		dst = image.NewGray16(rect)
	} else {
		dst = image.NewGray(rect)
	}
	draw.CatmullRom.Scale(dst, rect, img, img.Bounds(), draw.Src, nil)
	return dst
}

// SaveImage writes an image as PNG or JPEG, chosen by the file extension
func (v *Viewer) SaveImage(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return jpeg.Encode(file, img, &jpeg.Options{Quality: v.quality})
	case ".png":
		return png.Encode(file, img)
	}
	return fmt.Errorf("unsupported image file extension: %s", filename)
}

// SaveView renders a view into outputDir, naming the file after the view
func (v *Viewer) SaveView(view *projection.View, outputDir string) (string, error) {
	img, err := v.ViewImage(view)
	if err != nil {
		return "", err
	}
	filename := filepath.Join(outputDir, view.Name()+"."+v.format)
	if err := v.SaveImage(img, filename); err != nil {
		return "", fmt.Errorf("failed to save %s: %w", filename, err)
	}
	return filename, nil
}

// SaveViews saves every view into outputDir, creating it if needed
func (v *Viewer) SaveViews(views []*projection.View, outputDir string) ([]string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, err
	}
	files := make([]string, 0, len(views))
	for _, view := range views {
		filename, err := v.SaveView(view, outputDir)
		if err != nil {
			return files, err
		}
		files = append(files, filename)
	}
	return files, nil
}
