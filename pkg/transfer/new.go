package transfer

import (
	"fmt"
	"math/rand/v2"
	"strings"
)

// Params configures a strategy. Pointer fields are optional; nil selects the
// strategy default.
type Params struct {
	// Min and Max bound the fixed strategy
	Min *float64 `yaml:"min,omitempty" toml:"min,omitempty"`
	Max *float64 `yaml:"max,omitempty" toml:"max,omitempty"`

	// Center and Width override the window metadata of the slices
	Center *float64 `yaml:"center,omitempty" toml:"center,omitempty"`
	Width  *float64 `yaml:"width,omitempty" toml:"width,omitempty"`

	// IgnoreMin, Rescale and Extend apply to global, first and sample
	IgnoreMin *bool    `yaml:"ignoreMin,omitempty" toml:"ignore_min,omitempty"`
	Rescale   *bool    `yaml:"rescale,omitempty" toml:"rescale,omitempty"`
	Extend    *float64 `yaml:"extend,omitempty" toml:"extend,omitempty"`

	// Samples is the number of slices measured by the sample strategy
	Samples int `yaml:"samples,omitempty" toml:"samples,omitempty"`

	// Seed makes the sample strategy deterministic when non-zero
	Seed uint64 `yaml:"seed,omitempty" toml:"seed,omitempty"`

	// Output selects the output range: native, unsigned or byte
	Output string `yaml:"output,omitempty" toml:"output,omitempty"`

	// OutMin and OutMax set an explicit output range
	OutMin *float64 `yaml:"outMin,omitempty" toml:"out_min,omitempty"`
	OutMax *float64 `yaml:"outMax,omitempty" toml:"out_max,omitempty"`

	// Float forces floating point mapping
	Float bool `yaml:"float,omitempty" toml:"float,omitempty"`
}

// Names lists the available strategies
var Names = []string{"fixed", "window", "global", "first", "sample", "identity"}

// New creates the named strategy
func New(name string, p Params) (Strategy, error) {
	out, err := p.output()
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(name) {
	case "fixed":
		return &Fixed{
			output: out,
			min:    valueOr(p.Min, DefaultFixedMin),
			max:    valueOr(p.Max, DefaultFixedMax),
		}, nil
	case "window":
		w := &Window{output: out}
		if p.Center != nil {
			w.center, w.hasCenter = *p.Center, true
		}
		if p.Width != nil {
			w.width, w.hasWidth = *p.Width, true
		}
		return w, nil
	case "global":
		return &Global{output: out, rangeOptions: p.rangeOptions(0)}, nil
	case "first":
		return &First{output: out, rangeOptions: p.rangeOptions(DefaultFirstExtension)}, nil
	case "sample":
		size := p.Samples
		if size <= 0 {
			size = DefaultSampleSize
		}
		return &Sample{
			output:       out,
			rangeOptions: p.rangeOptions(0),
			size:         size,
			rng:          newRand(p.Seed),
		}, nil
	case "identity":
		return &Identity{output: out}, nil
	}
	return nil, fmt.Errorf("invalid transfer strategy %q (expected one of %s)", name, strings.Join(Names, ", "))
}

// NewFixed creates a fixed strategy mapping [min, max]
func NewFixed(min, max float64, kind OutputKind) *Fixed {
	return &Fixed{output: output{kind: kind}, min: min, max: max}
}

// NewWindow creates a window strategy with explicit center and width
func NewWindow(center, width float64, kind OutputKind) *Window {
	return &Window{
		output:    output{kind: kind},
		center:    center,
		width:     width,
		hasCenter: true,
		hasWidth:  true,
	}
}

func (p Params) output() (output, error) {
	kind, err := ParseOutputKind(p.Output)
	if err != nil {
		return output{}, err
	}
	o := output{kind: kind, float: p.Float}
	if p.OutMin != nil || p.OutMax != nil {
		if p.OutMin == nil || p.OutMax == nil {
			return output{}, fmt.Errorf("both output min and max must be given")
		}
		o.hasLimits, o.outMin, o.outMax = true, *p.OutMin, *p.OutMax
	}
	return o, nil
}

func (p Params) rangeOptions(extension float64) rangeOptions {
	return rangeOptions{
		ignoreMin: boolOr(p.IgnoreMin, DefaultIgnoreMinimum),
		rescale:   boolOr(p.Rescale, false),
		extension: valueOr(p.Extend, extension),
	}
}

func newRand(seed uint64) *rand.Rand {
	if seed == 0 {
		seed = rand.Uint64()
	}
	return rand.New(rand.NewPCG(seed, seed))
}

func valueOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
