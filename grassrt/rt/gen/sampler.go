package gen

import (
	"image"

	"golang.org/x/image/draw"
)

// Sampler supplies terrain height and a density mask. Both are pure queries.
// SampleDensity takes chunk-local UVs in [0, 1) and returns a value in [0, 1].
type Sampler interface {
	SampleHeight(worldX, worldZ float32) float32
	SampleDensity(u, v float32) float32
}

// FlatSampler is constant ground height with uniform density.
type FlatSampler struct {
	Height  float32
	Density float32
}

func (s FlatSampler) SampleHeight(worldX, worldZ float32) float32 { return s.Height }
func (s FlatSampler) SampleDensity(u, v float32) float32          { return s.Density }

// CompositeSampler takes height from one sampler and density from another.
type CompositeSampler struct {
	Height  Sampler
	Density Sampler
}

func (s CompositeSampler) SampleHeight(worldX, worldZ float32) float32 {
	return s.Height.SampleHeight(worldX, worldZ)
}

func (s CompositeSampler) SampleDensity(u, v float32) float32 {
	return s.Density.SampleDensity(u, v)
}

// NoiseHeightSampler is a rolling simplex height field with full density.
type NoiseHeightSampler struct {
	noise     *Noise
	Base      float32
	Amplitude float32
	// Frequency is in cycles per world unit.
	Frequency float32
}

func NewNoiseHeightSampler(seed int64, base, amplitude, frequency float32) *NoiseHeightSampler {
	return &NoiseHeightSampler{
		noise:     NewNoise(seed),
		Base:      base,
		Amplitude: amplitude,
		Frequency: frequency,
	}
}

func (s *NoiseHeightSampler) SampleHeight(worldX, worldZ float32) float32 {
	n := s.noise.Noise2D(float64(worldX*s.Frequency), float64(worldZ*s.Frequency))
	return s.Base + s.Amplitude*float32(n)
}

func (s *NoiseHeightSampler) SampleDensity(u, v float32) float32 { return 1 }

// ImageDensitySampler reads a grayscale mask stretched over each chunk.
// The source image is resampled once to a square grid at construction.
type ImageDensitySampler struct {
	mask *image.Gray
	res  int
}

// NewImageDensitySampler resamples src to res x res with bilinear filtering.
func NewImageDensitySampler(src image.Image, res int) *ImageDensitySampler {
	if res < 1 {
		res = 1
	}
	dst := image.NewGray(image.Rect(0, 0, res, res))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return &ImageDensitySampler{mask: dst, res: res}
}

func (s *ImageDensitySampler) SampleHeight(worldX, worldZ float32) float32 { return 0 }

func (s *ImageDensitySampler) SampleDensity(u, v float32) float32 {
	x := clampIndex(int(u*float32(s.res)), s.res)
	y := clampIndex(int(v*float32(s.res)), s.res)
	return float32(s.mask.Pix[y*s.mask.Stride+x]) / 255.0
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
