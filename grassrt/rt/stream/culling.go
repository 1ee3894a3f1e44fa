package stream

import (
	"github.com/gekko3d/grass/grassrt/rt/core"
	"github.com/gekko3d/grass/grassrt/rt/gpu"
)

// ChunkView is the read-only copy of an active chunk that the culler sees.
type ChunkView struct {
	Coord     core.ChunkCoord
	Bounds    core.AABB
	Batch     gpu.BatchHandle
	LOD       int
	Instances int // leading instances to draw at this LOD
	Blades    int // records in the buffer
}

// Snapshot is the active set published at the end of an update. It is never
// modified after publication.
type Snapshot struct {
	Update uint64
	Frame  uint64
	Center core.ChunkCoord
	Chunks []ChunkView
}

type MeshID uint32
type MaterialID uint32

// DrawDescriptor is one instanced draw of the shared blade mesh.
type DrawDescriptor struct {
	Coord         core.ChunkCoord
	Batch         gpu.BatchHandle
	Mesh          MeshID
	Material      MaterialID
	InstanceCount int
}

// Culler turns a snapshot into draws. It only reads the snapshot.
type Culler struct {
	Mesh     MeshID
	Material MaterialID
}

// Cull appends one descriptor per chunk whose bounds intersect the frustum
// to out[:0] and returns it. A nil frustum keeps every chunk. Nothing is
// allocated once out has enough capacity.
func (cu *Culler) Cull(s *Snapshot, frustum *core.Frustum, out []DrawDescriptor) []DrawDescriptor {
	out = out[:0]
	if s == nil {
		return out
	}
	for i := range s.Chunks {
		v := &s.Chunks[i]
		if v.Instances == 0 {
			continue
		}
		if frustum != nil && !core.AABBInFrustum(v.Bounds, frustum) {
			continue
		}
		out = append(out, DrawDescriptor{
			Coord:         v.Coord,
			Batch:         v.Batch,
			Mesh:          cu.Mesh,
			Material:      cu.Material,
			InstanceCount: v.Instances,
		})
	}
	return out
}
