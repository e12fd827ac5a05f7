package projection

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Accumulated attenuation projection parameters
const (
	// DefaultPreGamma is the power applied to normalized levels before
	// accumulation, suppressing faint tissue
	DefaultPreGamma = 8

	// DefaultAttenuation is the attenuation coefficient for ReferencePlanes planes
	DefaultAttenuation = 0.02

	// ReferencePlanes is the plane count the coefficient is calibrated for
	ReferencePlanes = 500
)

// Auto-exposure curve: the ratio of bright to lit pixels is mapped through a
// curve passing by (exposureX0, exposureY0) to the target mean brightness.
const (
	brightLevel = 0.83
	litLevel    = 0.5
	exposureX0  = 0.67
	exposureY0  = 0.72
	exposureExp = 3
)

// AttenuationCoefficient scales k inversely with the number of planes
// accumulated, so that the total attenuation does not depend on resampling
func AttenuationCoefficient(k float64, planes int) float64 {
	if planes <= 0 {
		return k
	}
	return k * ReferencePlanes / float64(planes)
}

// Transmission is the fraction of light crossing an accumulated density sum
// with attenuation coefficient k
func Transmission(sum, k float64) float64 {
	return math.Exp(-k * sum)
}

// power raises v to a non-negative integer power by repeated squaring
func power(v float64, n int) float64 {
	result := 1.0
	for n > 0 {
		if n&1 == 1 {
			result *= v
		}
		v *= v
		n >>= 1
	}
	return result
}

// exposureTarget maps the bright to lit ratio d to a target mean brightness
func exposureTarget(d float64) float64 {
	if d <= exposureX0 {
		return exposureY0 * math.Pow(d/exposureX0, exposureExp)
	}
	return 1 - (1-exposureY0)*math.Pow((1-d)/(1-exposureX0), exposureExp)
}

// exposureGamma returns the power that brings the mean of image, whose values
// lie in [0, 1], to the exposure target. It is 1 when no correction applies.
func exposureGamma(image []float64) float64 {
	if len(image) == 0 {
		return 1
	}
	var bright, lit int
	for _, v := range image {
		if v > litLevel {
			lit++
			if v > brightLevel {
				bright++
			}
		}
	}
	d := 0.0
	if lit > 0 {
		d = float64(bright) / float64(lit)
	}
	target := exposureTarget(d)
	mean := stat.Mean(image, nil)
	if mean <= 0 || mean >= 1 || target <= 0 || target >= 1 {
		return 1
	}
	return math.Log(target) / math.Log(mean)
}

// expose applies the auto-exposure correction in place
func expose(image []float64) float64 {
	g := exposureGamma(image)
	if g != 1 {
		for i, v := range image {
			image[i] = math.Pow(v, g)
		}
	}
	return g
}
