package grass

import (
	"context"
	"fmt"
	"time"

	"github.com/gekko3d/grass/grassrt/rt/core"
	"github.com/gekko3d/grass/grassrt/rt/gen"
	"github.com/gekko3d/grass/grassrt/rt/gpu"
	"github.com/gekko3d/grass/grassrt/rt/stream"
	"github.com/gekko3d/grass/grassrt/rt/trace"

	"github.com/go-gl/mathgl/mgl32"
)

type options struct {
	logger   core.Logger
	sampler  gen.Sampler
	trace    *trace.Writer
	profiler *core.Profiler
	mesh     stream.MeshID
	material stream.MaterialID
}

type Option func(*options)

func WithLogger(l core.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithSampler supplies terrain height and density. The default is flat
// ground at y = 0 with full density.
func WithSampler(s gen.Sampler) Option {
	return func(o *options) {
		o.sampler = s
	}
}

// WithTrace records every streaming update. The Field closes the writer.
func WithTrace(w *trace.Writer) Option {
	return func(o *options) {
		o.trace = w
	}
}

func WithProfiler(p *core.Profiler) Option {
	return func(o *options) {
		o.profiler = p
	}
}

// WithMesh sets the mesh and material named by every draw descriptor.
func WithMesh(mesh stream.MeshID, material stream.MaterialID) Option {
	return func(o *options) {
		o.mesh = mesh
		o.material = material
	}
}

// Field is a streamed grass field: it drives the chunk manager on the
// configured cadence and turns its active set into draws.
type Field struct {
	cfg    Config
	mgr    *stream.Manager
	culler stream.Culler
	log    core.Logger
	prof   *core.Profiler
	trace  *trace.Writer

	ticks uint64
	stats stream.UpdateStats
}

func New(cfg Config, backend gpu.BufferBackend, registry gpu.BatchRegistry, opts ...Option) (*Field, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	log := core.OrNop(o.logger)

	genOpts := []gen.GeneratorOption{gen.WithWorkers(cfg.Workers)}
	if o.sampler != nil {
		genOpts = append(genOpts, gen.WithSampler(o.sampler))
	}
	g := gen.NewGenerator(cfg.Ranges, genOpts...)

	mgr, err := stream.NewManager(cfg.Stream(), g, backend, registry,
		stream.WithLogger(log), stream.WithProfiler(o.profiler))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	log.Infof("grass field: chunk %gm, view distance %d (%d chunks), %d blades per chunk, update every %d ticks",
		cfg.ChunkSize, cfg.ViewDistance, (2*cfg.ViewDistance+1)*(2*cfg.ViewDistance+1),
		cfg.BladesPerChunk, cfg.UpdateCadenceTicks)

	return &Field{
		cfg:    cfg,
		mgr:    mgr,
		culler: stream.Culler{Mesh: o.mesh, Material: o.material},
		log:    log,
		prof:   o.profiler,
		trace:  o.trace,
	}, nil
}

func (f *Field) Config() Config {
	return f.cfg
}

func (f *Field) Manager() *stream.Manager {
	return f.mgr
}

// Tick advances the field by one host tick. The active set is updated on the
// first tick and then every UpdateCadenceTicks ticks; in between the last
// active set stays valid. It reports whether an update ran.
func (f *Field) Tick(ctx context.Context, cameraPos mgl32.Vec3) (bool, error) {
	f.ticks++
	if (f.ticks-1)%uint64(f.cfg.UpdateCadenceTicks) != 0 {
		return false, nil
	}
	return true, f.Update(ctx, cameraPos)
}

// Update runs a streaming update now, regardless of cadence.
func (f *Field) Update(ctx context.Context, cameraPos mgl32.Vec3) error {
	start := time.Now()
	st, err := f.mgr.UpdateVisibleChunks(ctx, cameraPos)
	if err != nil {
		return err
	}
	f.stats = st
	f.writeTrace(st, cameraPos, time.Since(start))
	return nil
}

func (f *Field) writeTrace(st stream.UpdateStats, cameraPos mgl32.Vec3, took time.Duration) {
	if f.trace == nil {
		return
	}
	err := f.trace.Write(trace.Record{
		Update:    st.Update,
		Frame:     f.mgr.Frame(),
		CameraX:   cameraPos.X(),
		CameraZ:   cameraPos.Z(),
		ChunkX:    st.Center.X,
		ChunkZ:    st.Center.Z,
		Required:  st.Required,
		Created:   st.Created,
		Destroyed: st.Destroyed,
		Failed:    st.Failed,
		Deferred:  st.Deferred,
		Pending:   st.Pending,
		Cancelled: st.Cancelled,
		Active:    st.Active,
		Pooled:    st.Pooled,
		UpdateUS:  took.Microseconds(),
	})
	if err != nil {
		f.log.Warnf("grass trace: %v", err)
	}
}

// Cull is the per-frame batch callback. It may run on another goroutine than
// Tick; it reads only the last published snapshot.
func (f *Field) Cull(frustum *core.Frustum, out []stream.DrawDescriptor) []stream.DrawDescriptor {
	return f.culler.Cull(f.mgr.Snapshot(), frustum, out)
}

// EndFrame must be called once the renderer has finished a frame.
func (f *Field) EndFrame() {
	f.mgr.EndFrame()
}

func (f *Field) Snapshot() *stream.Snapshot {
	return f.mgr.Snapshot()
}

func (f *Field) Stats() stream.UpdateStats {
	return f.stats
}

func (f *Field) Totals() stream.Totals {
	return f.mgr.Totals()
}

func (f *Field) Ticks() uint64 {
	return f.ticks
}

// Close releases every chunk and closes the trace.
func (f *Field) Close(ctx context.Context) error {
	err := f.mgr.Close(ctx)
	if f.trace != nil {
		if terr := f.trace.Close(); err == nil {
			err = terr
		}
	}
	return err
}
