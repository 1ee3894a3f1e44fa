package stream

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/gekko3d/grass/grassrt/rt/core"
	"github.com/gekko3d/grass/grassrt/rt/gen"
	"github.com/gekko3d/grass/grassrt/rt/gpu"

	"github.com/go-gl/mathgl/mgl32"
)

var ErrClosed = errors.New("stream: manager closed")

// Config is the streaming part of the field configuration.
type Config struct {
	ChunkSize      float32
	ViewDistance   int
	BladesPerChunk int
	MaxGrassHeight float32
	Seed           uint64

	// Async runs generation on background goroutines and installs finished
	// chunks on later updates.
	Async bool
	// MaxCreatesPerUpdate bounds activations (or job starts) per update.
	// Zero means unlimited.
	MaxCreatesPerUpdate int

	// LODDistances are ascending Chebyshev chunk distances; a chunk at
	// distance d gets the index of the first entry >= d, or len if none.
	LODDistances []int
	// LODFractions has len(LODDistances)+1 entries in (0, 1]. Empty means
	// every chunk draws all of its blades.
	LODFractions []float32

	PoolMaxFree int
}

// Validate reports every invalid field joined into one error.
func (c Config) Validate() error {
	var errs []error
	if !(c.ChunkSize > 0) {
		errs = append(errs, fmt.Errorf("chunk size %v must be > 0", c.ChunkSize))
	}
	if c.ViewDistance < 0 {
		errs = append(errs, fmt.Errorf("view distance %d must be >= 0", c.ViewDistance))
	}
	if c.BladesPerChunk <= 0 {
		errs = append(errs, fmt.Errorf("blades per chunk %d must be > 0", c.BladesPerChunk))
	}
	if !(c.MaxGrassHeight > 0) {
		errs = append(errs, fmt.Errorf("max grass height %v must be > 0", c.MaxGrassHeight))
	}
	if c.MaxCreatesPerUpdate < 0 {
		errs = append(errs, fmt.Errorf("max creates per update %d must be >= 0", c.MaxCreatesPerUpdate))
	}
	if c.PoolMaxFree < 0 {
		errs = append(errs, fmt.Errorf("pool max free %d must be >= 0", c.PoolMaxFree))
	}
	if len(c.LODFractions) > 0 && len(c.LODFractions) != len(c.LODDistances)+1 {
		errs = append(errs, fmt.Errorf("need %d lod fractions, got %d", len(c.LODDistances)+1, len(c.LODFractions)))
	}
	if len(c.LODFractions) == 0 && len(c.LODDistances) > 0 {
		errs = append(errs, errors.New("lod distances given without lod fractions"))
	}
	for i, f := range c.LODFractions {
		if !(f > 0 && f <= 1) {
			errs = append(errs, fmt.Errorf("lod fraction %d = %v must be in (0, 1]", i, f))
		}
	}
	for i := 1; i < len(c.LODDistances); i++ {
		if c.LODDistances[i] <= c.LODDistances[i-1] {
			errs = append(errs, errors.New("lod distances must be strictly ascending"))
			break
		}
	}
	return errors.Join(errs...)
}

// UpdateStats describes one UpdateVisibleChunks pass.
type UpdateStats struct {
	Update    uint64
	Center    core.ChunkCoord
	Required  int
	Created   int
	Destroyed int
	Failed    int
	Deferred  int // missing coordinates left for a later update by the budget
	Started   int // async jobs started
	Pending   int // async jobs in flight after the pass
	Cancelled int // async jobs torn down because they left the view
	Active    int
	Pooled    int
	Retiring  int // buffers waiting for EndFrame
}

// Totals accumulate over the manager's lifetime.
type Totals struct {
	Created   uint64
	Destroyed uint64
	Failed    uint64
	Cancelled uint64
	Disposed  uint64
}

type retiredBuffer struct {
	coord core.ChunkCoord
	buf   *gpu.InstanceBuffer
}

type job struct {
	ref     ChunkRef
	coord   core.ChunkCoord
	blades  []core.BladeParams
	cancel  context.CancelFunc
	evicted bool
	err     error
}

type ManagerOption func(*Manager)

func WithLogger(l core.Logger) ManagerOption {
	return func(m *Manager) {
		m.log = core.OrNop(l)
	}
}

func WithProfiler(p *core.Profiler) ManagerOption {
	return func(m *Manager) {
		m.prof = p
	}
}

// Manager owns the active chunk set. UpdateVisibleChunks, EndFrame and Close
// must be called from a single control goroutine; Snapshot may be read from
// any goroutine.
type Manager struct {
	cfg      Config
	gen      *gen.Generator
	backend  gpu.BufferBackend
	registry gpu.BatchRegistry
	log      core.Logger
	prof     *core.Profiler

	pool    *ChunkPool
	active  map[core.ChunkCoord]ChunkRef
	pending map[core.ChunkCoord]*job
	retired []retiredBuffer

	required    map[core.ChunkCoord]struct{}
	requiredBuf []core.ChunkCoord

	frame   uint64
	updates uint64
	stats   UpdateStats
	totals  Totals

	snapshot atomic.Pointer[Snapshot]

	jobsCtx    context.Context
	cancelJobs context.CancelFunc
	jobs       sync.WaitGroup
	doneMu     sync.Mutex
	done       []*job

	closed bool
}

func NewManager(cfg Config, g *gen.Generator, backend gpu.BufferBackend, registry gpu.BatchRegistry, opts ...ManagerOption) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if g == nil || backend == nil || registry == nil {
		return nil, errors.New("stream: generator, backend and registry are required")
	}

	m := &Manager{
		cfg:      cfg,
		gen:      g,
		backend:  backend,
		registry: registry,
		log:      core.NewNopLogger(),
		pool:     NewChunkPool(cfg.PoolMaxFree),
		active:   make(map[core.ChunkCoord]ChunkRef),
		pending:  make(map[core.ChunkCoord]*job),
		required: make(map[core.ChunkCoord]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.jobsCtx, m.cancelJobs = context.WithCancel(context.Background())
	m.snapshot.Store(&Snapshot{})
	return m, nil
}

func (m *Manager) Config() Config {
	return m.cfg
}

// RequiredSet lists the (2v+1)^2 coordinates within Chebyshev distance v of
// center, nearest ring first, then by x, then by z.
func RequiredSet(center core.ChunkCoord, v int) []core.ChunkCoord {
	return appendRequired(nil, center, v)
}

func appendRequired(out []core.ChunkCoord, center core.ChunkCoord, v int) []core.ChunkCoord {
	out = out[:0]
	for dx := -v; dx <= v; dx++ {
		for dz := -v; dz <= v; dz++ {
			out = append(out, center.Add(int32(dx), int32(dz)))
		}
	}
	slices.SortFunc(out, func(a, b core.ChunkCoord) int {
		if ra, rb := center.Chebyshev(a), center.Chebyshev(b); ra != rb {
			return int(ra - rb)
		}
		if a.X != b.X {
			return int(a.X - b.X)
		}
		return int(a.Z - b.Z)
	})
	return out
}

// UpdateVisibleChunks brings the active set in line with the camera. A chunk
// that fails to activate is logged, left out of the active set and retried
// on a later update. The returned error is only ever ErrClosed or the
// context's error.
func (m *Manager) UpdateVisibleChunks(ctx context.Context, cameraPos mgl32.Vec3) (UpdateStats, error) {
	if m.closed {
		return UpdateStats{}, ErrClosed
	}
	m.updates++
	center := core.WorldToChunk(cameraPos, m.cfg.ChunkSize)
	st := UpdateStats{Update: m.updates, Center: center}

	m.prof.BeginScope("required")
	m.requiredBuf = appendRequired(m.requiredBuf, center, m.cfg.ViewDistance)
	clear(m.required)
	for _, c := range m.requiredBuf {
		m.required[c] = struct{}{}
	}
	st.Required = len(m.requiredBuf)
	m.prof.EndScope("required")

	m.prof.BeginScope("retire")
	for coord, j := range m.pending {
		if _, ok := m.required[coord]; !ok && !j.evicted {
			j.evicted = true
			j.cancel()
		}
	}
	for coord := range m.active {
		if _, ok := m.required[coord]; !ok {
			m.retire(coord)
			st.Destroyed++
		}
	}
	m.prof.EndScope("retire")

	m.prof.BeginScope("harvest")
	m.harvest(&st)
	m.prof.EndScope("harvest")

	m.prof.BeginScope("activate")
	err := m.activateMissing(ctx, &st)
	m.prof.EndScope("activate")

	for _, ref := range m.active {
		c := m.pool.Get(ref)
		c.LOD = m.lodFor(center.Chebyshev(c.Coord))
		c.LastTouchedFrame = m.frame
	}
	m.publish(center)

	st.Pending = len(m.pending)
	st.Active = len(m.active)
	st.Pooled = m.pool.Free()
	st.Retiring = len(m.retired)
	m.totals.Created += uint64(st.Created)
	m.totals.Destroyed += uint64(st.Destroyed)
	m.totals.Failed += uint64(st.Failed)
	m.totals.Cancelled += uint64(st.Cancelled)
	m.stats = st

	m.prof.SetCount("active", st.Active)
	m.prof.SetCount("pending", st.Pending)
	m.log.Debugf("update %d at %v: +%d -%d fail %d pending %d active %d",
		st.Update, center, st.Created, st.Destroyed, st.Failed, st.Pending, st.Active)
	return st, err
}

func (m *Manager) activateMissing(ctx context.Context, st *UpdateStats) error {
	budget, attempts := m.cfg.MaxCreatesPerUpdate, 0
	for _, coord := range m.requiredBuf {
		if _, ok := m.active[coord]; ok {
			continue
		}
		if _, ok := m.pending[coord]; ok {
			continue
		}
		if budget > 0 && attempts >= budget {
			st.Deferred++
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		attempts++

		if m.cfg.Async {
			m.start(coord)
			st.Started++
			continue
		}
		if err := m.activate(ctx, coord); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			st.Failed++
			m.log.Warnf("chunk %v: activation failed: %v", coord, err)
			continue
		}
		st.Created++
	}
	return nil
}

func (m *Manager) prepare(coord core.ChunkCoord) (ChunkRef, *Chunk) {
	ref, c := m.pool.Acquire()
	c.Coord = coord
	c.Origin = core.ChunkToWorldOrigin(coord, m.cfg.ChunkSize)
	c.Bounds = core.ComputeBounds(coord, m.cfg.ChunkSize, m.cfg.MaxGrassHeight)
	c.Seed = gen.ChunkSeed(coord, m.cfg.Seed)
	c.setState(StateGenerating)
	return ref, c
}

func (m *Manager) request(c *Chunk) gen.Request {
	return gen.Request{
		Origin:    c.Origin,
		ChunkSize: m.cfg.ChunkSize,
		Seed:      c.Seed,
		Count:     m.cfg.BladesPerChunk,
	}
}

// activate runs generation, upload and registration for coord on the control
// goroutine.
func (m *Manager) activate(ctx context.Context, coord core.ChunkCoord) error {
	ref, c := m.prepare(coord)
	blades := c.scratch(m.cfg.BladesPerChunk)
	if err := m.gen.GenerateInto(ctx, m.request(c), blades); err != nil {
		m.abandon(ref, c)
		return fmt.Errorf("generate: %w", err)
	}
	return m.install(ref, c, blades)
}

// install uploads generated blades and registers the batch. On failure
// nothing of the chunk remains: the buffer, if any, is disposed at once
// since no draw can reference an unregistered buffer.
func (m *Manager) install(ref ChunkRef, c *Chunk, blades []core.BladeParams) error {
	c.setState(StateUploading)
	c.Bounds = widenBounds(c.Bounds, blades)

	data, meta := gpu.Build(blades)
	buf, err := gpu.Upload(m.backend, data, meta, len(blades))
	if err != nil {
		m.abandon(ref, c)
		return err
	}
	batch, err := m.registry.RegisterBatch(meta, buf.Handle())
	if err != nil {
		if derr := buf.Dispose(); derr != nil {
			m.log.Errorf("chunk %v: dispose after failed registration: %v", c.Coord, derr)
		}
		m.abandon(ref, c)
		return fmt.Errorf("register batch: %w", err)
	}

	c.buffer = buf
	c.batch = batch
	c.setState(StateActive)
	m.active[c.Coord] = ref
	return nil
}

func (m *Manager) abandon(ref ChunkRef, c *Chunk) {
	c.setState(StatePooled)
	m.pool.Release(ref)
}

// retire unregisters coord's batch now and queues its buffer for EndFrame.
func (m *Manager) retire(coord core.ChunkCoord) {
	ref := m.active[coord]
	c := m.pool.Get(ref)
	c.setState(StateUnregistering)
	if err := m.registry.UnregisterBatch(c.batch); err != nil {
		m.log.Errorf("chunk %v: unregister batch %s: %v", coord, c.batch, err)
	}
	m.retired = append(m.retired, retiredBuffer{coord: coord, buf: c.buffer})
	c.batch = gpu.NilBatch
	c.buffer = nil
	c.setState(StatePooled)
	m.pool.Release(ref)
	delete(m.active, coord)
	m.log.Debugf("chunk %v retired", coord)
}

// EndFrame marks the end of a rendered frame. Buffers retired before this
// point can no longer be referenced by a draw and are disposed.
func (m *Manager) EndFrame() {
	m.flushRetired()
	m.frame++
}

func (m *Manager) flushRetired() {
	for _, r := range m.retired {
		if err := r.buf.Dispose(); err != nil {
			m.log.Errorf("chunk %v: dispose buffer: %v", r.coord, err)
		}
		m.totals.Disposed++
	}
	clear(m.retired)
	m.retired = m.retired[:0]
}

func (m *Manager) start(coord core.ChunkCoord) {
	ref, c := m.prepare(coord)
	ctx, cancel := context.WithCancel(m.jobsCtx)
	j := &job{
		ref:    ref,
		coord:  coord,
		blades: c.scratch(m.cfg.BladesPerChunk),
		cancel: cancel,
	}
	req := m.request(c)
	m.pending[coord] = j

	m.jobs.Add(1)
	go func() {
		defer m.jobs.Done()
		j.err = m.gen.GenerateInto(ctx, req, j.blades)
		m.doneMu.Lock()
		m.done = append(m.done, j)
		m.doneMu.Unlock()
	}()
}

// harvest installs finished jobs and tears down evicted or failed ones.
func (m *Manager) harvest(st *UpdateStats) {
	m.doneMu.Lock()
	done := m.done
	m.done = nil
	m.doneMu.Unlock()

	for _, j := range done {
		delete(m.pending, j.coord)
		j.cancel()
		c := m.pool.Get(j.ref)
		switch {
		case j.evicted:
			m.abandon(j.ref, c)
			st.Cancelled++
		case j.err != nil:
			m.abandon(j.ref, c)
			st.Failed++
			m.log.Warnf("chunk %v: generation failed: %v", j.coord, j.err)
		default:
			if err := m.install(j.ref, c, j.blades); err != nil {
				st.Failed++
				m.log.Warnf("chunk %v: activation failed: %v", j.coord, err)
				continue
			}
			st.Created++
		}
	}
}

// Wait blocks until every in-flight generation job has finished. Finished
// jobs are installed by the next update.
func (m *Manager) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.jobs.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close cancels in-flight jobs, waits for them, and releases every batch and
// buffer the manager owns.
func (m *Manager) Close(ctx context.Context) error {
	if m.closed {
		return nil
	}
	m.cancelJobs()
	for _, j := range m.pending {
		j.evicted = true
	}
	if err := m.Wait(ctx); err != nil {
		return fmt.Errorf("wait for generation jobs: %w", err)
	}
	var st UpdateStats
	m.harvest(&st)
	m.totals.Cancelled += uint64(st.Cancelled)

	for coord := range m.active {
		m.retire(coord)
		m.totals.Destroyed++
	}
	m.flushRetired()
	m.closed = true
	m.publish(core.ChunkCoord{})
	m.log.Debugf("stream manager closed: %d created, %d destroyed, %d disposed",
		m.totals.Created, m.totals.Destroyed, m.totals.Disposed)
	return nil
}

func (m *Manager) lodFor(dist int32) int {
	for i, d := range m.cfg.LODDistances {
		if int(dist) <= d {
			return i
		}
	}
	return len(m.cfg.LODDistances)
}

// DrawCount is the number of leading instances drawn at a LOD. Blades are
// placed uniformly, so a prefix is a uniform subsample.
func (m *Manager) DrawCount(lod, blades int) int {
	if lod >= len(m.cfg.LODFractions) {
		return blades
	}
	n := int(math.Ceil(float64(blades) * float64(m.cfg.LODFractions[lod])))
	return min(max(n, 1), blades)
}

func (m *Manager) publish(center core.ChunkCoord) {
	s := &Snapshot{
		Update: m.updates,
		Frame:  m.frame,
		Center: center,
		Chunks: make([]ChunkView, 0, len(m.active)),
	}
	for _, ref := range m.active {
		c := m.pool.Get(ref)
		s.Chunks = append(s.Chunks, ChunkView{
			Coord:     c.Coord,
			Bounds:    c.Bounds,
			Batch:     c.batch,
			LOD:       c.LOD,
			Instances: m.DrawCount(c.LOD, c.BladeCount()),
			Blades:    c.BladeCount(),
		})
	}
	m.snapshot.Store(s)
}

// Snapshot returns the active set as of the last update. Safe from any
// goroutine; the result must not be modified.
func (m *Manager) Snapshot() *Snapshot {
	return m.snapshot.Load()
}

// Chunk returns the active chunk at coord. The pointer is only valid until
// the next update.
func (m *Manager) Chunk(coord core.ChunkCoord) (*Chunk, bool) {
	ref, ok := m.active[coord]
	if !ok {
		return nil, false
	}
	return m.pool.Get(ref), true
}

func (m *Manager) ActiveCount() int {
	return len(m.active)
}

func (m *Manager) PendingCount() int {
	return len(m.pending)
}

func (m *Manager) Pool() *ChunkPool {
	return m.pool
}

func (m *Manager) LastStats() UpdateStats {
	return m.stats
}

func (m *Manager) Totals() Totals {
	return m.totals
}

func (m *Manager) Frame() uint64 {
	return m.frame
}

// widenBounds grows the Y span to cover blade roots off the y = 0 plane.
func widenBounds(b core.AABB, blades []core.BladeParams) core.AABB {
	height := b.Max.Y() - b.Min.Y()
	for i := range blades {
		y := blades[i].Position.Y()
		if y < b.Min[1] {
			b.Min[1] = y
		}
		if y+height > b.Max[1] {
			b.Max[1] = y + height
		}
	}
	return b
}
