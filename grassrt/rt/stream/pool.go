package stream

import (
	"fmt"

	"github.com/gekko3d/grass/grassrt/rt/gpu"
)

// ChunkRef addresses a pool slot. Gen changes every time the slot is released,
// so a ref kept past Release is detected on the next Get.
type ChunkRef struct {
	Index uint32
	Gen   uint32
}

func (r ChunkRef) String() string {
	return fmt.Sprintf("#%d/%d", r.Index, r.Gen)
}

type poolSlot struct {
	chunk *Chunk
	gen   uint32
	inUse bool
}

// ChunkPool is an arena of chunk slots with a free list. It recycles the CPU
// side of chunks only; GPU resources are never pooled.
type ChunkPool struct {
	slots []poolSlot
	free  []uint32

	// maxFree caps how many released chunk objects keep their allocations.
	// Zero means unbounded.
	maxFree  int
	retained int

	constructed int
	dropped     int
}

func NewChunkPool(maxFree int) *ChunkPool {
	return &ChunkPool{maxFree: maxFree}
}

// Acquire returns a chunk in the Pooled state, reusing a free slot when one
// exists. It never blocks.
func (p *ChunkPool) Acquire() (ChunkRef, *Chunk) {
	if n := len(p.free); n > 0 {
		idx := p.free[n-1]
		p.free = p.free[:n-1]
		s := &p.slots[idx]
		if s.chunk == nil {
			s.chunk = &Chunk{}
			p.constructed++
		} else {
			p.retained--
		}
		s.inUse = true
		return ChunkRef{Index: idx, Gen: s.gen}, s.chunk
	}

	c := &Chunk{}
	p.constructed++
	p.slots = append(p.slots, poolSlot{chunk: c, inUse: true})
	return ChunkRef{Index: uint32(len(p.slots) - 1)}, c
}

// Get resolves a live ref. A stale or released ref panics.
func (p *ChunkPool) Get(ref ChunkRef) *Chunk {
	if int(ref.Index) >= len(p.slots) {
		panic(fmt.Sprintf("stream: chunk ref %v out of range", ref))
	}
	s := &p.slots[ref.Index]
	if !s.inUse || s.gen != ref.Gen {
		panic(fmt.Sprintf("stream: stale chunk ref %v (slot gen %d)", ref, s.gen))
	}
	return s.chunk
}

// Release returns a chunk to the pool. The chunk must already be back in the
// Pooled state with its batch unregistered and its buffer handed off.
func (p *ChunkPool) Release(ref ChunkRef) {
	c := p.Get(ref)
	if c.state != StatePooled {
		panic(fmt.Sprintf("stream: releasing chunk %v in state %v", c.Coord, c.state))
	}
	if c.buffer != nil || c.batch != gpu.NilBatch {
		panic(fmt.Sprintf("stream: releasing chunk %v that still holds GPU resources", c.Coord))
	}

	s := &p.slots[ref.Index]
	s.gen++
	s.inUse = false
	if p.maxFree > 0 && p.retained >= p.maxFree {
		s.chunk = nil
		p.dropped++
	} else {
		c.reset()
		p.retained++
	}
	p.free = append(p.free, ref.Index)
}

// Live is the number of chunks handed out and not yet released.
func (p *ChunkPool) Live() int {
	return len(p.slots) - len(p.free)
}

// Free is the number of released chunk objects kept for reuse.
func (p *ChunkPool) Free() int {
	return p.retained
}

// Constructed counts chunk objects allocated over the pool's lifetime.
func (p *ChunkPool) Constructed() int {
	return p.constructed
}

// Dropped counts released chunks discarded because the pool was at its cap.
func (p *ChunkPool) Dropped() int {
	return p.dropped
}
