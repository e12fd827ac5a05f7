package main

import (
	"fmt"
	"os"

	"github.com/natefinch/lumberjack"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"dicomprojector/pkg/config"
)

var (
	configPath string
	verbose    bool
	logFile    string

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "dicomprojector",
	Short: "Render slices and projections of DICOM series",
	Long: `dicomprojector reads a DICOM series, maps its pixels through a transfer
strategy and writes axial, sagittal and coronal views (planes, maximum
intensity and average absorption projections), extracted slices and series
statistics.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if cfg, err = config.LoadConfig(configPath); err != nil {
			return err
		}
		if cmd.Flags().Changed("verbose") {
			cfg.Logging.Verbose = verbose
		}
		if logFile != "" {
			cfg.Logging.File = logFile
		}
		if logger, err = newLogger(cfg); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "dicomprojector.yml", "Configuration file (YAML, or TOML with a .toml extension)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Write logs to a rotated file instead of stderr")

	rootCmd.AddCommand(projectCmd, extractCmd, statsCmd, histogramCmd, initCmd)
}

// newLogger builds the production logger, writing to a rotated file when
// one is configured
func newLogger(cfg *config.Config) (*zap.Logger, error) {
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if cfg.Logging.Verbose {
		level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	if cfg.Logging.File == "" {
		zc := zap.NewProductionConfig()
		zc.Level = level
		return zc.Build()
	}
	w := zapcore.AddSync(&lumberjack.Logger{
		Filename:   cfg.Logging.File,
		MaxSize:    cfg.Logging.MaxSizeMB, // megabytes
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAgeDays, // days
	})
	core := zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), w, level)
	return zap.New(core), nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
