// Package config provides configuration loading and management for dicomprojector.
// It handles loading configuration from YAML or TOML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"dicomprojector/pkg/projection"
	"dicomprojector/pkg/transfer"
)

// Config represents the application configuration
type Config struct {
	// Series selection parameters
	Series struct {
		// Reorder sorts slices by instance number instead of file name
		Reorder bool `yaml:"reorder" toml:"reorder"`

		// ROI is an optional crop box: firstX,lastX,firstY,lastY,firstZ,lastZ
		ROI []int `yaml:"roi,omitempty" toml:"roi,omitempty"`
	} `yaml:"series" toml:"series"`

	// Transfer strategy parameters
	Transfer struct {
		// Strategy is one of fixed, window, global, first, sample or identity
		Strategy string `yaml:"strategy" toml:"strategy"`

		transfer.Params `yaml:",inline"`
	} `yaml:"transfer" toml:"transfer"`

	// Projection parameters
	Projection struct {
		// Axial, Sagittal and Coronal are view selectors such as "c,mip,aap"
		Axial    string `yaml:"axial" toml:"axial"`
		Sagittal string `yaml:"sagittal" toml:"sagittal"`
		Coronal  string `yaml:"coronal" toml:"coronal"`

		// PreGamma is the AAP pre-gamma power
		PreGamma int `yaml:"preGamma" toml:"pre_gamma"`

		// Attenuation is the AAP attenuation coefficient for 500 planes
		Attenuation float64 `yaml:"attenuation" toml:"attenuation"`

		projection.Bounds `yaml:",inline"`
	} `yaml:"projection" toml:"projection"`

	// Output parameters
	Output struct {
		// Dir is the output directory; empty selects an "images" directory
		// next to the series
		Dir string `yaml:"dir" toml:"dir"`

		// Format is the image file format, png or jpg
		Format string `yaml:"format" toml:"format"`

		// Bits is the image sample depth, 8 or 16 (0 selects it from the output range)
		Bits int `yaml:"bits" toml:"bits"`

		// Resize scales views to preserve the voxel aspect ratio
		Resize bool `yaml:"resize" toml:"resize"`

		// Raw extracts slices as raw samples instead of images
		Raw bool `yaml:"raw" toml:"raw"`

		// Compress compresses raw samples with zstd
		Compress bool `yaml:"compress" toml:"compress"`
	} `yaml:"output" toml:"output"`

	// Logging parameters
	Logging struct {
		// Verbose enables debug logging
		Verbose bool `yaml:"verbose" toml:"verbose"`

		// File routes logs to a rotated file instead of stderr
		File string `yaml:"file,omitempty" toml:"file,omitempty"`

		// MaxSizeMB, MaxBackups and MaxAgeDays control log file rotation
		MaxSizeMB  int `yaml:"maxSizeMB" toml:"max_size_mb"`
		MaxBackups int `yaml:"maxBackups" toml:"max_backups"`
		MaxAgeDays int `yaml:"maxAgeDays" toml:"max_age_days"`
	} `yaml:"logging" toml:"logging"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// Byte output keeps the projection volume small
	cfg.Transfer.Strategy = "window"
	cfg.Transfer.Output = transfer.OutputByte.String()

	cfg.Projection.PreGamma = projection.DefaultPreGamma
	cfg.Projection.Attenuation = projection.DefaultAttenuation

	cfg.Output.Format = "png"
	cfg.Output.Resize = true

	cfg.Logging.MaxSizeMB = 10
	cfg.Logging.MaxBackups = 3
	cfg.Logging.MaxAgeDays = 28

	return cfg
}

// isTOML reports whether a configuration path names a TOML file
func isTOML(configPath string) bool {
	return strings.EqualFold(filepath.Ext(configPath), ".toml")
}

// LoadConfig loads configuration from a YAML file, or a TOML file when the
// path ends in .toml. If the file doesn't exist, it returns the default
// configuration.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if isTOML(configPath) {
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}
	return cfg, nil
}

// Validate checks the values that can be checked without a series
func (cfg *Config) Validate() error {
	if _, err := cfg.Strategy(); err != nil {
		return err
	}
	for _, selectors := range []string{cfg.Projection.Axial, cfg.Projection.Sagittal, cfg.Projection.Coronal} {
		if _, err := projection.ParseSelectors(selectors); err != nil {
			return err
		}
	}
	if n := len(cfg.Series.ROI); n != 0 && n != 6 {
		return fmt.Errorf("roi needs 6 bounds, got %d", n)
	}
	return nil
}

// Strategy creates the configured transfer strategy
func (cfg *Config) Strategy() (transfer.Strategy, error) {
	return transfer.New(cfg.Transfer.Strategy, cfg.Transfer.Params)
}

// Request builds the projection request from the view selectors
func (cfg *Config) Request() (projection.Request, error) {
	var req projection.Request
	var err error
	if req.Axial, err = projection.ParseSelectors(cfg.Projection.Axial); err != nil {
		return req, fmt.Errorf("axial: %w", err)
	}
	if req.Sagittal, err = projection.ParseSelectors(cfg.Projection.Sagittal); err != nil {
		return req, fmt.Errorf("sagittal: %w", err)
	}
	if req.Coronal, err = projection.ParseSelectors(cfg.Projection.Coronal); err != nil {
		return req, fmt.Errorf("coronal: %w", err)
	}
	return req, nil
}

// ProjectionOptions returns the engine options of the configuration
func (cfg *Config) ProjectionOptions() projection.Options {
	return projection.Options{
		Bounds:      cfg.Projection.Bounds,
		PreGamma:    cfg.Projection.PreGamma,
		Attenuation: cfg.Projection.Attenuation,
	}
}

// SaveConfig saves the configuration to a YAML or TOML file, chosen by
// the file extension
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	if isTOML(configPath) {
		f, err := os.Create(configPath)
		if err != nil {
			return fmt.Errorf("error writing config file: %w", err)
		}
		defer f.Close()
		if err := toml.NewEncoder(f).Encode(cfg); err != nil {
			return fmt.Errorf("error marshaling config: %w", err)
		}
		return nil
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}
	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
