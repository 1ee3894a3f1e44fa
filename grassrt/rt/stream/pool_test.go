package stream

import (
	"testing"

	"github.com/gekko3d/grass/grassrt/rt/core"
	"github.com/gekko3d/grass/grassrt/rt/gpu"

	"github.com/stretchr/testify/assert"
)

func TestChunkPool_Reuse(t *testing.T) {
	p := NewChunkPool(0)

	ref, c := p.Acquire()
	assert.Equal(t, StatePooled, c.State())
	c.Coord = core.ChunkCoord{X: 3, Z: 4}
	c.scratch(10)
	assert.Equal(t, 1, p.Live())
	p.Release(ref)
	assert.Equal(t, 0, p.Live())
	assert.Equal(t, 1, p.Free())

	ref2, c2 := p.Acquire()
	assert.Same(t, c, c2, "released chunk object is reused")
	assert.Equal(t, ref.Index, ref2.Index)
	assert.Equal(t, ref.Gen+1, ref2.Gen)
	assert.Equal(t, core.ChunkCoord{}, c2.Coord, "reset clears bookkeeping")
	assert.GreaterOrEqual(t, cap(c2.blades), 10, "scratch survives reuse")
	assert.Equal(t, 1, p.Constructed())
}

func TestChunkPool_StaleRefPanics(t *testing.T) {
	p := NewChunkPool(0)
	ref, _ := p.Acquire()
	p.Release(ref)

	assert.Panics(t, func() { p.Get(ref) })
	assert.Panics(t, func() { p.Release(ref) })
	assert.Panics(t, func() { p.Get(ChunkRef{Index: 42}) })

	ref2, _ := p.Acquire()
	assert.NotPanics(t, func() { p.Get(ref2) })
	assert.Panics(t, func() { p.Get(ref) }, "old generation stays stale after reuse")
}

func TestChunkPool_ReleaseWithResourcesPanics(t *testing.T) {
	p := NewChunkPool(0)

	ref, c := p.Acquire()
	c.batch = gpu.BatchHandle("still-registered")
	assert.Panics(t, func() { p.Release(ref) })

	c.batch = gpu.NilBatch
	c.setState(StateGenerating)
	assert.Panics(t, func() { p.Release(ref) }, "chunk must be back in the pooled state")
}

func TestChunkPool_MaxFree(t *testing.T) {
	p := NewChunkPool(1)
	a, _ := p.Acquire()
	b, _ := p.Acquire()
	p.Release(a)
	p.Release(b)

	assert.Equal(t, 1, p.Free())
	assert.Equal(t, 1, p.Dropped())

	// Both slots are reusable; the dropped one constructs a fresh chunk.
	p.Acquire()
	p.Acquire()
	assert.Equal(t, 3, p.Constructed())
	assert.Equal(t, 2, p.Live())
}

func TestChunk_Transitions(t *testing.T) {
	c := &Chunk{}
	assert.Panics(t, func() { c.setState(StateActive) })

	c.setState(StateGenerating)
	c.setState(StateUploading)
	c.setState(StateActive)
	assert.True(t, c.IsActive())
	assert.Panics(t, func() { c.setState(StatePooled) }, "active chunks unregister first")
	c.setState(StateUnregistering)
	c.setState(StatePooled)

	assert.Equal(t, "unregistering", StateUnregistering.String())
}
