package grass

import (
	"errors"
	"fmt"
	"os"

	"github.com/gekko3d/grass/grassrt/rt/core"
	"github.com/gekko3d/grass/grassrt/rt/stream"

	"gopkg.in/yaml.v3"
)

var ErrInvalidConfig = errors.New("grass: invalid config")

type Config struct {
	ChunkSize          float32 `yaml:"chunk_size"`
	ViewDistance       int     `yaml:"view_distance"`
	BladesPerChunk     int     `yaml:"blades_per_chunk"`
	UpdateCadenceTicks int     `yaml:"update_cadence_ticks"`
	MaxGrassHeight     float32 `yaml:"max_grass_height"`

	// Seed is mixed into every chunk seed. Zero keeps chunk seeds equal to
	// the coordinate hash.
	Seed uint64 `yaml:"seed"`
	// Workers is the per-chunk generation fan-out. Zero means GOMAXPROCS.
	Workers             int  `yaml:"workers"`
	AsyncGeneration     bool `yaml:"async_generation"`
	MaxCreatesPerUpdate int  `yaml:"max_creates_per_update"`

	LODDistances []int     `yaml:"lod_distances"`
	LODFractions []float32 `yaml:"lod_fractions"`
	PoolMaxFree  int       `yaml:"pool_max_free"`

	Ranges core.ParamRanges `yaml:"ranges"`
}

func DefaultConfig() Config {
	return Config{
		ChunkSize:          16,
		ViewDistance:       4,
		BladesPerChunk:     5000,
		UpdateCadenceTicks: 10,
		MaxGrassHeight:     1.5,
		Ranges:             core.DefaultParamRanges(),
	}
}

// LoadConfig reads a YAML file over DefaultConfig and validates the result.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports every problem at once, wrapped in ErrInvalidConfig.
func (c Config) Validate() error {
	var errs []error
	if c.UpdateCadenceTicks < 1 {
		errs = append(errs, fmt.Errorf("update_cadence_ticks %d must be >= 1", c.UpdateCadenceTicks))
	}
	if c.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers %d must be >= 0", c.Workers))
	}
	if c.MaxGrassHeight > 0 && c.Ranges.Height.Max > c.MaxGrassHeight {
		errs = append(errs, fmt.Errorf("height range max %g exceeds max_grass_height %g", c.Ranges.Height.Max, c.MaxGrassHeight))
	}
	if err := c.Stream().Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Ranges.Validate(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}

// Stream is the streaming manager's view of the config.
func (c Config) Stream() stream.Config {
	return stream.Config{
		ChunkSize:           c.ChunkSize,
		ViewDistance:        c.ViewDistance,
		BladesPerChunk:      c.BladesPerChunk,
		MaxGrassHeight:      c.MaxGrassHeight,
		Seed:                c.Seed,
		Async:               c.AsyncGeneration,
		MaxCreatesPerUpdate: c.MaxCreatesPerUpdate,
		LODDistances:        c.LODDistances,
		LODFractions:        c.LODFractions,
		PoolMaxFree:         c.PoolMaxFree,
	}
}
