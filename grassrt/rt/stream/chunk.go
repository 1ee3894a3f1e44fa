package stream

import (
	"fmt"

	"github.com/gekko3d/grass/grassrt/rt/core"
	"github.com/gekko3d/grass/grassrt/rt/gpu"

	"github.com/go-gl/mathgl/mgl32"
)

type State uint8

const (
	StatePooled State = iota
	StateGenerating
	StateUploading
	StateActive
	StateUnregistering
)

func (s State) String() string {
	switch s {
	case StatePooled:
		return "pooled"
	case StateGenerating:
		return "generating"
	case StateUploading:
		return "uploading"
	case StateActive:
		return "active"
	case StateUnregistering:
		return "unregistering"
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// Generation and upload may fall back to Pooled when activation fails.
var transitions = [...][]State{
	StatePooled:        {StateGenerating},
	StateGenerating:    {StateUploading, StatePooled},
	StateUploading:     {StateActive, StatePooled},
	StateActive:        {StateUnregistering},
	StateUnregistering: {StatePooled},
}

// Chunk is one grid cell of grass. While active it owns exactly one
// InstanceBuffer and one batch handle; in the pool it owns neither.
type Chunk struct {
	Coord  core.ChunkCoord
	Origin mgl32.Vec3
	Bounds core.AABB
	Seed   uint64

	LOD              int
	LastTouchedFrame uint64

	state  State
	buffer *gpu.InstanceBuffer
	batch  gpu.BatchHandle

	// blades is generation scratch kept across pool reuse.
	blades []core.BladeParams
}

func (c *Chunk) State() State {
	return c.state
}

func (c *Chunk) Batch() gpu.BatchHandle {
	return c.batch
}

func (c *Chunk) Buffer() *gpu.InstanceBuffer {
	return c.buffer
}

func (c *Chunk) IsActive() bool {
	return c.state == StateActive
}

// BladeCount is the number of records in the chunk's instance buffer.
func (c *Chunk) BladeCount() int {
	if c.buffer == nil {
		return 0
	}
	return c.buffer.Instances()
}

func (c *Chunk) setState(to State) {
	for _, s := range transitions[c.state] {
		if s == to {
			c.state = to
			return
		}
	}
	panic(fmt.Sprintf("stream: chunk %v: illegal transition %v -> %v", c.Coord, c.state, to))
}

func (c *Chunk) scratch(n int) []core.BladeParams {
	if cap(c.blades) < n {
		c.blades = make([]core.BladeParams, n)
	}
	return c.blades[:n]
}

// reset clears everything but the scratch allocation.
func (c *Chunk) reset() {
	blades := c.blades
	*c = Chunk{blades: blades}
}
