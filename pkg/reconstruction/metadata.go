package reconstruction

import (
	"fmt"
	"os"

	"gonum.org/v1/gonum/spatial/r3"
	"gopkg.in/yaml.v3"

	"dicomprojector/internal/models"
	"dicomprojector/pkg/projection"
	"dicomprojector/pkg/series"
	"dicomprojector/pkg/transfer"
)

// MetadataFile is the name of the metadata file written next to the outputs
const MetadataFile = "metadata.yml"

// Metadata is the persisted description of a processed series: its geometry,
// the transfer range applied and, for projections, the scaling and content
// bounds of the views.
type Metadata struct {
	StudyID  string `yaml:"study_id"`
	SeriesID int    `yaml:"series_id"`

	NX int     `yaml:"nx"`
	NY int     `yaml:"ny"`
	NZ int     `yaml:"nz"`
	DX float64 `yaml:"dx"`
	DY float64 `yaml:"dy"`
	DZ float64 `yaml:"dz"`

	ReverseX bool `yaml:"reverse_x"`
	ReverseY bool `yaml:"reverse_y"`
	ReverseZ bool `yaml:"reverse_z"`

	XAxis    [3]float64 `yaml:"xaxis,flow"`
	YAxis    [3]float64 `yaml:"yaxis,flow"`
	ZAxis    [3]float64 `yaml:"zaxis,flow"`
	Position [3]float64 `yaml:"position,flow"`

	LimMin    int64   `yaml:"lim_min"`
	LimMax    int64   `yaml:"lim_max"`
	Bits      int     `yaml:"bits"`
	Signed    bool    `yaml:"signed"`
	Slope     float64 `yaml:"rescale_slope"`
	Intercept float64 `yaml:"rescale_intercept"`

	ROI []int `yaml:"roi,omitempty,flow"`

	Transfer Transfer `yaml:"transfer"`

	Scaling  *projection.Scaling                 `yaml:"scaling,omitempty"`
	Contents map[string]projection.ContentBounds `yaml:"contents,omitempty"`

	Raw *RawFormat `yaml:"raw,omitempty"`
}

// Transfer records the transfer range applied to every slice
type Transfer struct {
	Strategy string  `yaml:"strategy"`
	Min      float64 `yaml:"min"`
	Max      float64 `yaml:"max"`
	OutMin   float64 `yaml:"out_min"`
	OutMax   float64 `yaml:"out_max"`
	Rescaled bool    `yaml:"rescaled"`
}

// RawFormat describes raw sample files
type RawFormat struct {
	// Sample is the Go name of the sample type, such as uint8 or int16
	Sample      string `yaml:"sample"`
	ByteOrder   string `yaml:"byte_order"`
	Compression string `yaml:"compression"`
	Cols        int    `yaml:"cols"`
	Rows        int    `yaml:"rows"`
}

func vec(v r3.Vec) [3]float64 {
	return [3]float64{v.X, v.Y, v.Z}
}

// NewMetadata describes a series mapped through a transfer range
func NewMetadata(g series.Geometry, strategy string, r transfer.Range) Metadata {
	m := Metadata{
		StudyID:   g.StudyID,
		SeriesID:  g.SeriesID,
		NX:        g.NX,
		NY:        g.NY,
		NZ:        g.NZ,
		DX:        g.DX,
		DY:        g.DY,
		DZ:        g.DZ,
		ReverseX:  g.ReverseX,
		ReverseY:  g.ReverseY,
		ReverseZ:  g.ReverseZ,
		XAxis:     vec(g.XAxis),
		YAxis:     vec(g.YAxis),
		ZAxis:     vec(g.ZAxis),
		Position:  vec(g.Position),
		LimMin:    g.LimMin,
		LimMax:    g.LimMax,
		Bits:      g.Bits,
		Signed:    g.Signed,
		Slope:     g.Slope,
		Intercept: g.Intercept,
		Transfer: Transfer{
			Strategy: strategy,
			Min:      r.Min,
			Max:      r.Max,
			OutMin:   r.OutMin,
			OutMax:   r.OutMax,
			Rescaled: r.Rescaled,
		},
	}
	if roi := g.ROI; roi != nil {
		m.ROI = []int{roi.FirstX, roi.LastX, roi.FirstY, roi.LastY, roi.FirstZ, roi.LastZ}
	}
	return m
}

// AddProjection records the scaling and content bounds of a projection
func (m *Metadata) AddProjection(res *projection.Result) {
	scaling := res.Scaling
	m.Scaling = &scaling
	m.Contents = make(map[string]projection.ContentBounds, len(res.Contents))
	for a, b := range res.Contents {
		m.Contents[models.Axis(a).View()] = b
	}
}

// Save writes the metadata as YAML
func (m Metadata) Save(path string) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("error marshaling metadata: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("error writing metadata file: %w", err)
	}
	return nil
}

// LoadMetadata reads a metadata file
func LoadMetadata(path string) (Metadata, error) {
	var m Metadata
	data, err := os.ReadFile(path)
	if err != nil {
		return m, fmt.Errorf("error reading metadata file: %w", err)
	}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("error parsing metadata file: %w", err)
	}
	return m, nil
}
