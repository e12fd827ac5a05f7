package main

import (
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dicomprojector/pkg/config"
)

func TestSeriesFlagsOverrideConfig(t *testing.T) {
	var f seriesFlags
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	f.register(fs)
	require.NoError(t, fs.Parse([]string{
		"--transfer", "fixed", "--min", "-100", "--max", "300",
		"--roi", "0,9,0,9,1,2", "--reorder", "-o", "out",
	}))

	cfg := config.DefaultConfig()
	f.apply(fs, cfg)
	assert.Equal(t, "fixed", cfg.Transfer.Strategy)
	require.NotNil(t, cfg.Transfer.Min)
	assert.Equal(t, -100.0, *cfg.Transfer.Min)
	assert.Equal(t, 300.0, *cfg.Transfer.Max)
	assert.Nil(t, cfg.Transfer.Center)
	assert.Equal(t, []int{0, 9, 0, 9, 1, 2}, cfg.Series.ROI)
	assert.True(t, cfg.Series.Reorder)
	assert.Equal(t, "out", cfg.Output.Dir)
	// unset flags keep the configured values
	assert.Equal(t, "byte", cfg.Transfer.Output)
	assert.NoError(t, cfg.Validate())
}

func TestNewLogger(t *testing.T) {
	cfg := config.DefaultConfig()
	l, err := newLogger(cfg)
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(-1))

	cfg.Logging.Verbose = true
	cfg.Logging.File = filepath.Join(t.TempDir(), "dicomprojector.log")
	l, err = newLogger(cfg)
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(-1))
	l.Info("written")
	assert.FileExists(t, cfg.Logging.File)
}
