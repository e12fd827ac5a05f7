package series

import "errors"

var (
	// ErrEmptySeries is returned when a source yields no slices
	ErrEmptySeries = errors.New("no slices found")

	// ErrUnsupportedFormat is returned for pixel data that is not single-sample grayscale
	ErrUnsupportedFormat = errors.New("unsupported pixel format")

	// ErrUnsupportedOrientation is returned when the slice axes are not aligned with the patient axes
	ErrUnsupportedOrientation = errors.New("unsupported orientation")

	// ErrInconsistentSeries is returned when slices disagree on their encoding attributes
	ErrInconsistentSeries = errors.New("inconsistent slices")
)
