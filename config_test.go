package grass

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gekko3d/grass/grassrt/rt/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "grass.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 5000, cfg.BladesPerChunk)
	assert.Equal(t, float32(0.5), cfg.Ranges.Height.Min)
}

func TestLoadConfig_OverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
chunk_size: 32
view_distance: 2
seed: 1234
async_generation: true
lod_distances: [1]
lod_fractions: [1, 0.5]
ranges:
  height: {min: 0.3, max: 1.2}
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, float32(32), cfg.ChunkSize)
	assert.Equal(t, 2, cfg.ViewDistance)
	assert.Equal(t, uint64(1234), cfg.Seed)
	assert.True(t, cfg.AsyncGeneration)
	assert.Equal(t, []float32{1, 0.5}, cfg.LODFractions)
	assert.Equal(t, float32(0.3), cfg.Ranges.Height.Min)

	// Untouched keys keep their defaults.
	assert.Equal(t, 5000, cfg.BladesPerChunk)
	assert.Equal(t, 10, cfg.UpdateCadenceTicks)
	assert.Equal(t, float32(0.02), cfg.Ranges.Width.Min)

	s := cfg.Stream()
	assert.Equal(t, cfg.ChunkSize, s.ChunkSize)
	assert.True(t, s.Async)
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = LoadConfig(writeConfig(t, "chunk_size: [nope"))
	assert.Error(t, err)

	_, err = LoadConfig(writeConfig(t, "chunk_size: -4\n"))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"chunk size", func(c *Config) { c.ChunkSize = 0 }, "chunk size"},
		{"blades", func(c *Config) { c.BladesPerChunk = 0 }, "blades per chunk"},
		{"view distance", func(c *Config) { c.ViewDistance = -1 }, "view distance"},
		{"cadence", func(c *Config) { c.UpdateCadenceTicks = 0 }, "update_cadence_ticks"},
		{"max height", func(c *Config) { c.MaxGrassHeight = 0 }, "max grass height"},
		{"height above max", func(c *Config) { c.Ranges.Height.Max = 3 }, "exceeds max_grass_height"},
		{"inverted range", func(c *Config) { c.Ranges.Width = core.Range{Min: 0.04, Max: 0.02} }, "width range"},
		{"profiles", func(c *Config) { c.Ranges.ShapeProfiles = 9 }, "shape_profiles"},
		{"lod", func(c *Config) { c.LODFractions = []float32{1, 0.5} }, "lod fractions"},
		{"workers", func(c *Config) { c.Workers = -2 }, "workers"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestConfig_ValidateReportsAll(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ChunkSize = 0
	cfg.BladesPerChunk = -1
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chunk size")
	assert.Contains(t, err.Error(), "blades per chunk")
}
