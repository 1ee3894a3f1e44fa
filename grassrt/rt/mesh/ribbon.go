package mesh

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Vertex matches the grass shader's VertexInput. Only UV is meaningful: the
// shader rebuilds the position from the blade record, so Pos is a flat
// placeholder useful for debugging.
type Vertex struct {
	Pos [3]float32
	UV  [2]float32 // (side in {0,1}, t in [0,1])
}

// VertexStride is the packed byte size of a Vertex.
const VertexStride = 20

// Ribbon is the shared blade template: two columns of vertices (side 0 and
// side 1) climbing from t=0 at the root to t=1 at the tip, triangulated as a
// strip. The tip collapses to a single vertex.
type Ribbon struct {
	Segments int
	Vertices []Vertex
	Indices  []uint16
}

// NewRibbon builds a template with the given number of vertical segments.
func NewRibbon(segments int) (*Ribbon, error) {
	if segments < 1 || segments > 1000 {
		return nil, fmt.Errorf("mesh: segment count %d out of range", segments)
	}
	r := &Ribbon{Segments: segments}

	for s := 0; s < segments; s++ {
		t := float32(s) / float32(segments)
		for side := 0; side < 2; side++ {
			r.Vertices = append(r.Vertices, Vertex{
				Pos: [3]float32{float32(side) - 0.5, t, 0},
				UV:  [2]float32{float32(side), t},
			})
		}
	}
	tip := uint16(len(r.Vertices))
	r.Vertices = append(r.Vertices, Vertex{
		Pos: [3]float32{0, 1, 0},
		UV:  [2]float32{0.5, 1},
	})

	for s := 0; s < segments-1; s++ {
		l0 := uint16(2 * s)
		r0 := l0 + 1
		l1 := l0 + 2
		r1 := l0 + 3
		r.Indices = append(r.Indices, l0, r0, l1, r0, r1, l1)
	}
	last := uint16(2 * (segments - 1))
	r.Indices = append(r.Indices, last, last+1, tip)
	return r, nil
}

func (r *Ribbon) IndexCount() int {
	return len(r.Indices)
}

// VertexBytes packs the vertices for upload.
func (r *Ribbon) VertexBytes() []byte {
	out := make([]byte, len(r.Vertices)*VertexStride)
	for i, v := range r.Vertices {
		o := out[i*VertexStride:]
		for k, f := range [5]float32{v.Pos[0], v.Pos[1], v.Pos[2], v.UV[0], v.UV[1]} {
			binary.LittleEndian.PutUint32(o[k*4:], math.Float32bits(f))
		}
	}
	return out
}

// IndexBytes packs the indices for upload, padded to a 4-byte multiple.
func (r *Ribbon) IndexBytes() []byte {
	n := len(r.Indices) * 2
	out := make([]byte, (n+3)&^3)
	for i, idx := range r.Indices {
		binary.LittleEndian.PutUint16(out[i*2:], idx)
	}
	return out
}
