// Package reconstruction runs the processing pipelines of a series: opening
// it, mapping it through a transfer strategy and writing views, slices and
// metadata to an output directory.
package reconstruction

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"dicomprojector/internal/models"
	"dicomprojector/pkg/config"
	"dicomprojector/pkg/dicomsource"
	"dicomprojector/pkg/projection"
	"dicomprojector/pkg/series"
	"dicomprojector/pkg/stats"
	"dicomprojector/pkg/transfer"
	"dicomprojector/pkg/visualization"
)

// Params holds the pipeline parameters
type Params struct {
	// InputDir is the directory containing the DICOM files of the series,
	// or a single DICOM file
	InputDir string

	// OutputDir is where images, raw slices and metadata are written.
	// Empty selects an "images" directory inside InputDir.
	OutputDir string

	// Source overrides the DICOM source of InputDir
	Source series.Source

	// Config holds the series, transfer, projection and output settings
	Config *config.Config

	// Progress, if set, receives slice progress of long passes
	Progress projection.Progress

	Logger *zap.Logger
}

// Reconstructor runs the pipelines over one series
type Reconstructor struct {
	params *Params
	cfg    *config.Config
	logger *zap.Logger

	series   *series.Series
	metadata Metadata
}

// NewReconstructor creates a new reconstructor instance with the provided parameters
func NewReconstructor(params *Params) *Reconstructor {
	cfg := params.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconstructor{params: params, cfg: cfg, logger: logger}
}

// OutputDir returns the directory outputs are written to
func (r *Reconstructor) OutputDir() string {
	if r.params.OutputDir != "" {
		return r.params.OutputDir
	}
	dir := r.params.InputDir
	if info, err := os.Stat(dir); err == nil && !info.IsDir() {
		dir = filepath.Dir(dir)
	}
	return filepath.Join(dir, "images")
}

// Metadata returns the metadata of the last pipeline run
func (r *Reconstructor) Metadata() Metadata {
	return r.metadata
}

// Open discovers, orders and validates the series. Pipelines open the
// series themselves when needed.
func (r *Reconstructor) Open() (*series.Series, error) {
	if r.series != nil {
		return r.series, nil
	}
	src := r.params.Source
	if src == nil {
		src = dicomsource.NewDirSource(r.params.InputDir, r.logger)
	}
	opts := series.Options{Reorder: r.cfg.Series.Reorder, Logger: r.logger}
	if len(r.cfg.Series.ROI) > 0 {
		roi, err := series.NewROI(r.cfg.Series.ROI)
		if err != nil {
			return nil, err
		}
		opts.ROI = roi
	}
	s, err := series.Open(src, opts)
	if err != nil {
		return nil, err
	}
	g := s.Geometry()
	r.logger.Info("Opened series",
		zap.String("input", r.params.InputDir),
		zap.Int("slices", s.Len()),
		zap.String("study", g.StudyID), zap.Int("series", g.SeriesID),
		zap.Int("nx", g.NX), zap.Int("ny", g.NY), zap.Int("nz", g.NZ))
	r.series = s
	return s, nil
}

func (r *Reconstructor) prepareOutput() (string, error) {
	dir := r.OutputDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	return dir, nil
}

// Project renders the configured views of the series into the output
// directory and writes the metadata file. It returns the projection result
// and the image files written.
func (r *Reconstructor) Project() (*projection.Result, []string, error) {
	req, err := r.cfg.Request()
	if err != nil {
		return nil, nil, err
	}
	if req.Empty() {
		return nil, nil, fmt.Errorf("must specify at least one projection (axial/sagittal/coronal)")
	}
	strategy, err := r.cfg.Strategy()
	if err != nil {
		return nil, nil, err
	}
	viewer, err := visualization.NewViewer(r.cfg.Output.Format, r.cfg.Output.Bits, r.cfg.Output.Resize)
	if err != nil {
		return nil, nil, err
	}

	// Step 1: read the series metadata
	r.logger.Info("Step 1: Reading series metadata...")
	s, err := r.Open()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open series: %w", err)
	}

	// Step 2: select the transfer range and view scaling
	r.logger.Info("Step 2: Selecting transfer range...", zap.String("strategy", strategy.Name()))
	opts := r.cfg.ProjectionOptions()
	opts.Progress = r.params.Progress
	opts.Logger = r.logger
	engine, err := projection.NewEngine(s, strategy, opts)
	if err != nil {
		return nil, nil, err
	}

	// Step 3: build the volume and render the views
	r.logger.Info("Step 3: Generating volume and views...")
	res, err := engine.Run(req)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to render views: %w", err)
	}

	// Step 4: save the view images
	dir, err := r.prepareOutput()
	if err != nil {
		return nil, nil, err
	}
	r.logger.Info("Step 4: Saving views...", zap.Int("views", len(res.Views)), zap.String("output", dir))
	files, err := viewer.SaveViews(res.Views, dir)
	if err != nil {
		return nil, nil, err
	}

	// Step 5: save the metadata
	r.metadata = NewMetadata(res.Geometry, strategy.Name(), res.Range)
	r.metadata.AddProjection(res)
	if err := r.metadata.Save(filepath.Join(dir, MetadataFile)); err != nil {
		return nil, nil, err
	}
	return res, files, nil
}

// Extract maps every slice of the series through the transfer strategy and
// writes it as an image, or as raw little-endian samples when the output is
// configured as raw. The metadata file is written alongside.
func (r *Reconstructor) Extract() ([]string, error) {
	strategy, err := r.cfg.Strategy()
	if err != nil {
		return nil, err
	}

	r.logger.Info("Step 1: Reading series metadata...")
	s, err := r.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open series: %w", err)
	}
	g := s.Geometry()

	r.logger.Info("Step 2: Selecting transfer range...", zap.String("strategy", strategy.Name()))
	rng, err := transfer.Select(strategy, s, g.Bits, g.Signed)
	if err != nil {
		return nil, err
	}

	dir, err := r.prepareOutput()
	if err != nil {
		return nil, err
	}
	r.metadata = NewMetadata(g, strategy.Name(), rng)

	var viewer *visualization.Viewer
	var raw *RawFormat
	if r.cfg.Output.Raw {
		raw = &RawFormat{
			Sample:      sampleType(rng.OutMin, rng.OutMax),
			ByteOrder:   "little",
			Compression: "none",
			Cols:        g.NX,
			Rows:        g.NY,
		}
		if r.cfg.Output.Compress {
			raw.Compression = "zstd"
		}
		r.metadata.Raw = raw
	} else if viewer, err = visualization.NewViewer(r.cfg.Output.Format, r.cfg.Output.Bits, false); err != nil {
		return nil, err
	}

	r.logger.Info("Step 3: Extracting slices...", zap.String("output", dir))
	var files []string
	total := 0
	err = s.Each(func(sl *models.Slice, index int, h series.Handle) error {
		levels, err := strategy.Apply(sl, rng)
		if err != nil {
			return fmt.Errorf("failed to map slice %s: %w", h, err)
		}
		var filename string
		if raw != nil {
			filename = filepath.Join(dir, sliceName(h)+rawExtension(r.cfg.Output.Compress))
			n, err := writeRaw(filename, levels, raw.Sample, r.cfg.Output.Compress)
			if err != nil {
				return fmt.Errorf("failed to write %s: %w", filename, err)
			}
			total += n
		} else {
			img, err := viewer.Levels(sl.Cols, sl.Rows, levels, rng.OutMin, rng.OutMax)
			if err != nil {
				return err
			}
			filename = filepath.Join(dir, sliceName(h)+"."+viewer.Format())
			if err := viewer.SaveImage(img, filename); err != nil {
				return fmt.Errorf("failed to write %s: %w", filename, err)
			}
		}
		files = append(files, filename)
		if r.params.Progress != nil {
			r.params.Progress.Accept(index+1, s.Len())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if raw != nil {
		r.logger.Info("Raw samples written", zap.String("size", humanize.Bytes(uint64(total))))
	}

	if err := r.metadata.Save(filepath.Join(dir, MetadataFile)); err != nil {
		return nil, err
	}
	return files, nil
}

// Summary computes the intensity summary of every slice of the series
func (r *Reconstructor) Summary(rescale bool) (stats.Summary, error) {
	s, err := r.Open()
	if err != nil {
		return stats.Summary{}, err
	}
	return stats.SeriesSummary(s, rescale)
}

// Histogram bins the intensities of every slice of the series; a
// non-positive binWidth selects Scott's rule
func (r *Reconstructor) Histogram(rescale bool, binWidth float64) (*stats.Histogram, error) {
	s, err := r.Open()
	if err != nil {
		return nil, err
	}
	return stats.SeriesHistogram(s, rescale, binWidth)
}
