package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"dicomprojector/pkg/config"
	"dicomprojector/pkg/projection"
	"dicomprojector/pkg/reconstruction"
)

// seriesFlags are the flags shared by every command reading a series
type seriesFlags struct {
	output   string
	reorder  bool
	roi      []int
	strategy string
	min      float64
	max      float64
	center   float64
	width    float64
	kind     string
	rescale  bool
}

func (f *seriesFlags) register(fs *pflag.FlagSet) {
	fs.StringVarP(&f.output, "output", "o", "", "Output directory (default: <input>/images)")
	fs.BoolVar(&f.reorder, "reorder", false, "Order slices by instance number instead of file name")
	fs.IntSliceVar(&f.roi, "roi", nil, "Crop box: firstX,lastX,firstY,lastY,firstZ,lastZ")
	fs.StringVarP(&f.strategy, "transfer", "t", "", "Transfer strategy: fixed, window, global, first, sample or identity")
	fs.Float64Var(&f.min, "min", 0, "Lower input value of the fixed strategy")
	fs.Float64Var(&f.max, "max", 0, "Upper input value of the fixed strategy")
	fs.Float64Var(&f.center, "center", 0, "Window center, overriding the slice metadata")
	fs.Float64Var(&f.width, "width", 0, "Window width, overriding the slice metadata")
	fs.StringVar(&f.kind, "output-range", "", "Output range: native, unsigned or byte")
	fs.BoolVar(&f.rescale, "rescale", false, "Work on rescaled values")
}

// apply overrides the configuration with the flags set on the command line
func (f *seriesFlags) apply(fs *pflag.FlagSet, cfg *config.Config) {
	if fs.Changed("output") {
		cfg.Output.Dir = f.output
	}
	if fs.Changed("reorder") {
		cfg.Series.Reorder = f.reorder
	}
	if fs.Changed("roi") {
		cfg.Series.ROI = f.roi
	}
	if fs.Changed("transfer") {
		cfg.Transfer.Strategy = f.strategy
	}
	for name, dst := range map[string]**float64{
		"min":    &cfg.Transfer.Min,
		"max":    &cfg.Transfer.Max,
		"center": &cfg.Transfer.Center,
		"width":  &cfg.Transfer.Width,
	} {
		if fs.Changed(name) {
			v, _ := fs.GetFloat64(name)
			*dst = &v
		}
	}
	if fs.Changed("output-range") {
		cfg.Transfer.Output = f.kind
	}
	if fs.Changed("rescale") {
		rescale := f.rescale
		cfg.Transfer.Rescale = &rescale
	}
}

func newReconstructor(input string) (*reconstruction.Reconstructor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return reconstruction.NewReconstructor(&reconstruction.Params{
		InputDir:  input,
		OutputDir: cfg.Output.Dir,
		Config:    cfg,
		Logger:    logger,
		Progress: projection.ProgressFunc(func(current, total int) {
			logger.Debug("Progress", zap.Int("slice", current), zap.Int("total", total))
		}),
	}), nil
}

var projectFlags struct {
	seriesFlags
	axial, sagittal, coronal string
	format                   string
	bits                     int
	resize                   bool
}

var projectCmd = &cobra.Command{
	Use:   "project <input>",
	Short: "Render planes and projections of a series",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fs := cmd.Flags()
		projectFlags.apply(fs, cfg)
		if fs.Changed("axial") {
			cfg.Projection.Axial = projectFlags.axial
		}
		if fs.Changed("sagittal") {
			cfg.Projection.Sagittal = projectFlags.sagittal
		}
		if fs.Changed("coronal") {
			cfg.Projection.Coronal = projectFlags.coronal
		}
		if fs.Changed("format") {
			cfg.Output.Format = projectFlags.format
		}
		if fs.Changed("bits") {
			cfg.Output.Bits = projectFlags.bits
		}
		if fs.Changed("resize") {
			cfg.Output.Resize = projectFlags.resize
		}

		r, err := newReconstructor(args[0])
		if err != nil {
			return err
		}
		start := time.Now()
		res, files, err := r.Project()
		if err != nil {
			return fmt.Errorf("projection failed: %w", err)
		}
		logger.Info("Projection completed",
			zap.Int("views", len(res.Views)),
			zap.String("output", r.OutputDir()),
			zap.Duration("elapsed", time.Since(start)))
		for _, f := range files {
			fmt.Println(f)
		}
		return nil
	},
}

var extractFlags struct {
	seriesFlags
	format   string
	bits     int
	raw      bool
	compress bool
}

var extractCmd = &cobra.Command{
	Use:   "extract <input>",
	Short: "Map every slice through the transfer strategy and save it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fs := cmd.Flags()
		extractFlags.apply(fs, cfg)
		if fs.Changed("format") {
			cfg.Output.Format = extractFlags.format
		}
		if fs.Changed("bits") {
			cfg.Output.Bits = extractFlags.bits
		}
		if fs.Changed("raw") {
			cfg.Output.Raw = extractFlags.raw
		}
		if fs.Changed("compress") {
			cfg.Output.Compress = extractFlags.compress
		}

		r, err := newReconstructor(args[0])
		if err != nil {
			return err
		}
		start := time.Now()
		files, err := r.Extract()
		if err != nil {
			return fmt.Errorf("extraction failed: %w", err)
		}
		logger.Info("Extraction completed",
			zap.Int("slices", len(files)),
			zap.String("output", r.OutputDir()),
			zap.Duration("elapsed", time.Since(start)))
		return nil
	},
}

var statsFlags struct {
	seriesFlags
}

var statsCmd = &cobra.Command{
	Use:   "stats <input>",
	Short: "Print the intensity limits of a series",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		statsFlags.apply(cmd.Flags(), cfg)
		r, err := newReconstructor(args[0])
		if err != nil {
			return err
		}
		s, err := r.Open()
		if err != nil {
			return err
		}
		sum, err := r.Summary(statsFlags.rescale)
		if err != nil {
			return err
		}
		g := s.Geometry()
		fmt.Printf("Study:    %s\n", g.StudyID)
		fmt.Printf("Series:   %d\n", g.SeriesID)
		fmt.Printf("Size:     %d x %d x %d (%s pixels)\n", g.NX, g.NY, g.NZ, humanize.Comma(int64(g.NX*g.NY*g.NZ)))
		fmt.Printf("Spacing:  %g x %g x %g mm\n", g.DX, g.DY, g.DZ)
		fmt.Printf("Encoding: %d bits, signed %t, limits %d..%d\n", g.Bits, g.Signed, g.LimMin, g.LimMax)
		fmt.Printf("Rescale:  slope %g, intercept %g\n", g.Slope, g.Intercept)
		fmt.Printf("Min:      %g\n", sum.Min)
		fmt.Printf("Next min: %g\n", sum.NextMin)
		fmt.Printf("Max:      %g\n", sum.Max)
		return nil
	},
}

var histogramFlags struct {
	seriesFlags
	binWidth float64
}

var histogramCmd = &cobra.Command{
	Use:   "histogram <input>",
	Short: "Print the intensity histogram of a series",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		histogramFlags.apply(cmd.Flags(), cfg)
		r, err := newReconstructor(args[0])
		if err != nil {
			return err
		}
		h, err := r.Histogram(histogramFlags.rescale, histogramFlags.binWidth)
		if err != nil {
			return err
		}
		for i, c := range h.Counts {
			fmt.Printf("%12g %12g %12s\n", h.Dividers[i], h.Dividers[i+1], humanize.Comma(int64(c)))
		}
		return nil
	},
}

var initCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a configuration file with default values",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if len(args) == 1 {
			path = args[0]
		}
		if err := config.CreateDefaultConfigFile(path); err != nil {
			return err
		}
		fmt.Printf("Configuration written to %s\n", path)
		return nil
	},
}

func init() {
	pf := projectCmd.Flags()
	projectFlags.register(pf)
	pf.StringVar(&projectFlags.axial, "axial", "", "Axial views, such as \"c,mip,aap\" or \"*\"")
	pf.StringVar(&projectFlags.sagittal, "sagittal", "", "Sagittal views")
	pf.StringVar(&projectFlags.coronal, "coronal", "", "Coronal views")
	pf.StringVarP(&projectFlags.format, "format", "f", "png", "Image format: png or jpg")
	pf.IntVar(&projectFlags.bits, "bits", 0, "Image depth, 8 or 16 (0 selects it from the output range)")
	pf.BoolVar(&projectFlags.resize, "resize", true, "Scale views to the voxel aspect ratio")

	ef := extractCmd.Flags()
	extractFlags.register(ef)
	ef.StringVarP(&extractFlags.format, "format", "f", "png", "Image format: png or jpg")
	ef.IntVar(&extractFlags.bits, "bits", 0, "Image depth, 8 or 16 (0 selects it from the output range)")
	ef.BoolVar(&extractFlags.raw, "raw", false, "Write raw little-endian samples instead of images")
	ef.BoolVar(&extractFlags.compress, "compress", false, "Compress raw samples with zstd")

	statsFlags.register(statsCmd.Flags())

	hf := histogramCmd.Flags()
	histogramFlags.register(hf)
	hf.Float64Var(&histogramFlags.binWidth, "bin-width", 0, "Bin width (0 selects Scott's rule)")
}
