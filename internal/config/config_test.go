package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/accelmark/opcheck/fixtures"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, ":8080", cfg.Harness.Listen)
	assert.Equal(t, "sim", cfg.Device.Backend)
	assert.Equal(t, "info", cfg.Logger.Verbosity)
	assert.Greater(t, cfg.Tolerance.AbsTol, 0.0)
}

func TestLoadConfig(t *testing.T) {
	t.Run("loads the template", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, fixtures.ConfigTemplate, 0644))

		cfg, err := LoadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, ":8080", cfg.Harness.Listen)
		assert.Equal(t, 4, cfg.Harness.Workers)
		assert.InDelta(t, 1e-6, cfg.Tolerance.AbsTol, 1e-12)
	})

	t.Run("partial files keep defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("logger:\n  verbosity: debug\n"), 0644))

		cfg, err := LoadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, "debug", cfg.Logger.Verbosity)
		assert.Equal(t, "sim", cfg.Device.Backend)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})
}
