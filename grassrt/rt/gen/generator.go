package gen

import (
	"context"
	"runtime"

	"github.com/gekko3d/grass/grassrt/rt/core"

	"github.com/go-gl/mathgl/mgl32"
	"golang.org/x/sync/errgroup"
)

const (
	// minBladesPerWorker keeps tiny chunks from being split into tiny tasks.
	minBladesPerWorker = 256
	// cancelCheckStride is how many blades a worker produces between
	// context checks.
	cancelCheckStride = 512
)

// Request describes one chunk's generation job.
type Request struct {
	Origin    mgl32.Vec3
	ChunkSize float32
	Seed      uint64
	Count     int
}

// Generator produces blade records for a chunk. Blade i depends only on
// (Seed, i) and the configured ranges/sampler, so the index range can be
// split across any number of workers.
type Generator struct {
	ranges  core.ParamRanges
	sampler Sampler
	workers int
}

type GeneratorOption func(*Generator)

// WithSampler sets the terrain height / density sampler. Nil means flat
// ground at y = 0 with full density.
func WithSampler(s Sampler) GeneratorOption {
	return func(g *Generator) {
		g.sampler = s
	}
}

// WithWorkers sets the fan-out width. Values below 1 use GOMAXPROCS.
func WithWorkers(n int) GeneratorOption {
	return func(g *Generator) {
		g.workers = n
	}
}

func NewGenerator(ranges core.ParamRanges, opts ...GeneratorOption) *Generator {
	g := &Generator{ranges: ranges}
	for _, opt := range opts {
		opt(g)
	}
	if g.workers < 1 {
		g.workers = runtime.GOMAXPROCS(0)
	}
	if g.sampler == nil {
		g.sampler = FlatSampler{Height: 0, Density: 1}
	}
	return g
}

func (g *Generator) Ranges() core.ParamRanges {
	return g.ranges
}

// Generate allocates and fills req.Count records. The only error is the
// context's, when the job is cancelled before completion.
func (g *Generator) Generate(ctx context.Context, req Request) ([]core.BladeParams, error) {
	out := make([]core.BladeParams, req.Count)
	if err := g.GenerateInto(ctx, req, out); err != nil {
		return nil, err
	}
	return out, nil
}

// GenerateInto fills out[0:req.Count], splitting the index range across the
// worker pool and joining before it returns.
func (g *Generator) GenerateInto(ctx context.Context, req Request, out []core.BladeParams) error {
	n := req.Count
	if n > len(out) {
		n = len(out)
	}
	if n == 0 {
		return ctx.Err()
	}

	workers := g.workers
	if maxWorkers := (n + minBladesPerWorker - 1) / minBladesPerWorker; workers > maxWorkers {
		workers = maxWorkers
	}

	if workers <= 1 {
		return g.fillRange(ctx, req, out, 0, n)
	}

	eg, egCtx := errgroup.WithContext(ctx)
	span := (n + workers - 1) / workers
	for lo := 0; lo < n; lo += span {
		hi := min(lo+span, n)
		eg.Go(func() error {
			return g.fillRange(egCtx, req, out, lo, hi)
		})
	}
	return eg.Wait()
}

func (g *Generator) fillRange(ctx context.Context, req Request, out []core.BladeParams, lo, hi int) error {
	for i := lo; i < hi; i++ {
		if (i-lo)%cancelCheckStride == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		out[i] = g.Blade(req, i)
	}
	return nil
}

// Blade computes blade i of the request. Pure.
func (g *Generator) Blade(req Request, i int) core.BladeParams {
	r := bladeRand(req.Seed, i)
	rg := &g.ranges

	u := r.Float32()
	v := r.Float32()
	x := req.Origin.X() + u*req.ChunkSize
	z := req.Origin.Z() + v*req.ChunkSize

	b := core.BladeParams{
		Position:  mgl32.Vec3{x, g.sampler.SampleHeight(x, z), z},
		BladeHash: bladeHash(req.Seed, i),
	}

	// Always drawn so a blade's stream does not depend on the mask.
	keep := r.Float32()
	if density := g.sampler.SampleDensity(u, v); keep >= density {
		return b
	}

	b.FacingAngle = rg.FacingAngle.Lerp(r.Float32())
	b.Height = rg.Height.Lerp(r.Float32())
	b.Width = rg.Width.Lerp(r.Float32())
	b.CurvatureStrength = rg.Curvature.Lerp(r.Float32())
	b.Lean = rg.Lean.Lerp(r.Float32())
	b.ShapeProfileID = int32(r.IntN(int(max(rg.ShapeProfiles, 1))))
	b.ColorVariationSeed = rg.ColorVariation.Lerp(r.Float32())
	b.Stiffness = rg.Stiffness.Lerp(r.Float32())
	b.WindPhaseOffset = rg.WindPhase.Lerp(r.Float32())
	b.WindStrengthMultiplier = rg.WindStrength.Lerp(r.Float32())
	return b
}
