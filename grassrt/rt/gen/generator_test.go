package gen

import (
	"context"
	"image"
	"image/color"
	"testing"

	"github.com/gekko3d/grass/grassrt/rt/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRequest(count int) Request {
	c := core.ChunkCoord{X: -3, Z: 7}
	return Request{
		Origin:    core.ChunkToWorldOrigin(c, 16),
		ChunkSize: 16,
		Seed:      ChunkSeed(c, 0),
		Count:     count,
	}
}

func TestGenerator_Deterministic(t *testing.T) {
	req := testRequest(2000)

	a, err := NewGenerator(core.DefaultParamRanges(), WithWorkers(1)).Generate(context.Background(), req)
	require.NoError(t, err)
	b, err := NewGenerator(core.DefaultParamRanges(), WithWorkers(7)).Generate(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, a, 2000)
	assert.Equal(t, a, b, "worker count must not change the output")

	g := NewGenerator(core.DefaultParamRanges())
	assert.Equal(t, a[1234], g.Blade(req, 1234))
}

func TestGenerator_DifferentSeedsDiffer(t *testing.T) {
	g := NewGenerator(core.DefaultParamRanges())
	req := testRequest(16)
	other := req
	other.Seed = ChunkSeed(core.ChunkCoord{X: -3, Z: 8}, 0)
	assert.NotEqual(t, g.Blade(req, 0), g.Blade(other, 0))
}

func TestGenerator_Ranges(t *testing.T) {
	ranges := core.DefaultParamRanges()
	req := testRequest(4000)
	blades, err := NewGenerator(ranges).Generate(context.Background(), req)
	require.NoError(t, err)

	for i, b := range blades {
		require.True(t, b.Live(), "blade %d", i)
		assert.True(t, ranges.Height.Contains(b.Height), "height %v", b.Height)
		assert.True(t, ranges.Width.Contains(b.Width), "width %v", b.Width)
		assert.True(t, ranges.Curvature.Contains(b.CurvatureStrength))
		assert.True(t, ranges.Lean.Contains(b.Lean))
		assert.True(t, ranges.Stiffness.Contains(b.Stiffness))
		assert.GreaterOrEqual(t, b.FacingAngle, float32(0))
		assert.Less(t, b.FacingAngle, ranges.FacingAngle.Max)
		assert.GreaterOrEqual(t, b.WindPhaseOffset, float32(0))
		assert.Less(t, b.WindPhaseOffset, ranges.WindPhase.Max)
		assert.GreaterOrEqual(t, b.ShapeProfileID, int32(0))
		assert.Less(t, b.ShapeProfileID, int32(core.MaxShapeProfiles))

		assert.GreaterOrEqual(t, b.Position.X(), req.Origin.X())
		assert.LessOrEqual(t, b.Position.X(), req.Origin.X()+req.ChunkSize)
		assert.GreaterOrEqual(t, b.Position.Z(), req.Origin.Z())
		assert.LessOrEqual(t, b.Position.Z(), req.Origin.Z()+req.ChunkSize)
		assert.Equal(t, float32(0), b.Position.Y())
	}
}

func TestGenerator_ZeroDensityYieldsDegenerateBlades(t *testing.T) {
	g := NewGenerator(core.DefaultParamRanges(), WithSampler(FlatSampler{Height: 2, Density: 0}))
	blades, err := g.Generate(context.Background(), testRequest(1500))
	require.NoError(t, err)
	for i, b := range blades {
		require.Equal(t, float32(0), b.Height, "blade %d", i)
		require.False(t, b.Live())
	}
}

func TestGenerator_HeightSamplerPlacesRoots(t *testing.T) {
	s := NewNoiseHeightSampler(42, 10, 2, 0.05)
	g := NewGenerator(core.DefaultParamRanges(), WithSampler(s))
	req := testRequest(64)
	blades, err := g.Generate(context.Background(), req)
	require.NoError(t, err)
	for _, b := range blades {
		assert.InDelta(t, s.SampleHeight(b.Position.X(), b.Position.Z()), b.Position.Y(), 1e-6)
		assert.InDelta(t, 10, b.Position.Y(), 2.0001)
	}
}

func TestGenerator_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewGenerator(core.DefaultParamRanges(), WithWorkers(4)).Generate(ctx, testRequest(5000))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGenerator_EmptyRequest(t *testing.T) {
	blades, err := NewGenerator(core.DefaultParamRanges()).Generate(context.Background(), Request{ChunkSize: 1})
	require.NoError(t, err)
	assert.Empty(t, blades)
}

func TestImageDensitySampler(t *testing.T) {
	// Left half black, right half white.
	src := image.NewGray(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 32; x < 64; x++ {
			src.SetGray(x, y, color.Gray{Y: 255})
		}
	}
	s := NewImageDensitySampler(src, 16)
	assert.InDelta(t, 0, s.SampleDensity(0.05, 0.5), 1e-6)
	assert.InDelta(t, 1, s.SampleDensity(0.95, 0.5), 0.01)
	assert.InDelta(t, 1, s.SampleDensity(1.5, -2), 0.01, "out of range uv clamps")

	g := NewGenerator(core.DefaultParamRanges(), WithSampler(s))
	req := testRequest(2000)
	blades, err := g.Generate(context.Background(), req)
	require.NoError(t, err)
	white, whiteLive := 0, 0
	for _, b := range blades {
		u := (b.Position.X() - req.Origin.X()) / req.ChunkSize
		if u < 0.4 {
			assert.False(t, b.Live(), "blade on black mask at u=%v", u)
		}
		if u > 0.6 {
			white++
			if b.Live() {
				whiteLive++
			}
		}
	}
	require.NotZero(t, white)
	assert.Greater(t, float64(whiteLive)/float64(white), 0.95)
}

func TestNoise_Range(t *testing.T) {
	n := NewNoise(7)
	for i := 0; i < 1000; i++ {
		v := n.Noise2D(float64(i)*0.37, float64(i)*-0.21)
		assert.GreaterOrEqual(t, v, -1.0)
		assert.LessOrEqual(t, v, 1.0)
	}
	assert.Equal(t, n.Noise2D(1.5, 2.5), NewNoise(7).Noise2D(1.5, 2.5))
}

func TestChunkSeed(t *testing.T) {
	c := core.ChunkCoord{X: 4, Z: -9}
	assert.Equal(t, c.Hash(), ChunkSeed(c, 0))
	assert.NotEqual(t, ChunkSeed(c, 1), ChunkSeed(c, 2))
}
