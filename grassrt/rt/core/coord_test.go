package core

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorldToChunk_InverseOfOrigin(t *testing.T) {
	sizes := []float32{16, 1, 0.1, 0.3, 7.5, 32, 1000}
	for _, size := range sizes {
		for x := int32(-50); x <= 50; x += 7 {
			for z := int32(-50); z <= 50; z += 3 {
				c := ChunkCoord{X: x, Z: z}
				got := WorldToChunk(ChunkToWorldOrigin(c, size), size)
				require.Equal(t, c, got, "size %v coord %v", size, c)
			}
		}
		// Far from the origin too.
		for _, c := range []ChunkCoord{{1 << 20, -(1 << 20)}, {-123457, 98765}} {
			assert.Equal(t, c, WorldToChunk(ChunkToWorldOrigin(c, size), size), "size %v coord %v", size, c)
		}
	}
}

func TestWorldToChunk_FloorsNegative(t *testing.T) {
	tests := []struct {
		name string
		pos  mgl32.Vec3
		want ChunkCoord
	}{
		{"just below origin", mgl32.Vec3{-1, 0, -1}, ChunkCoord{-1, -1}},
		{"origin", mgl32.Vec3{0, 0, 0}, ChunkCoord{0, 0}},
		{"inside first", mgl32.Vec3{15.99, 3, 0.5}, ChunkCoord{0, 0}},
		{"boundary", mgl32.Vec3{16, 0, -16}, ChunkCoord{1, -1}},
		{"just past negative boundary", mgl32.Vec3{-16.01, 0, -32}, ChunkCoord{-2, -2}},
		{"y ignored", mgl32.Vec3{40, -900, 40}, ChunkCoord{2, 2}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, WorldToChunk(tc.pos, 16))
		})
	}
}

func TestChunkCoord_HashNoNeighbourCollisions(t *testing.T) {
	seen := make(map[uint64]ChunkCoord)
	for x := int32(-64); x <= 64; x++ {
		for z := int32(-64); z <= 64; z++ {
			c := ChunkCoord{X: x, Z: z}
			h := c.Hash()
			if prev, ok := seen[h]; ok {
				t.Fatalf("hash collision between %v and %v", prev, c)
			}
			seen[h] = c
		}
	}
	assert.Equal(t, ChunkCoord{-1, 2}.Hash(), ChunkCoord{-1, 2}.Hash())
	assert.NotEqual(t, ChunkCoord{1, 2}.Hash(), ChunkCoord{2, 1}.Hash())
}

func TestComputeBounds(t *testing.T) {
	b := ComputeBounds(ChunkCoord{-1, 2}, 16, 1.5)
	assert.Equal(t, mgl32.Vec3{-16, 0, 32}, b.Min)
	assert.Equal(t, mgl32.Vec3{0, 1.5, 48}, b.Max)
	assert.Equal(t, mgl32.Vec3{-8, 0.75, 40}, b.Center())
}

func TestChunkCoord_Chebyshev(t *testing.T) {
	a := ChunkCoord{0, 0}
	assert.Equal(t, int32(3), a.Chebyshev(ChunkCoord{-3, 1}))
	assert.Equal(t, int32(2), a.Chebyshev(ChunkCoord{1, 2}))
	assert.Equal(t, int32(0), a.Chebyshev(a))
}
