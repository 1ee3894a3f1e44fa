package core

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// ChunkCoord addresses one square cell of the grass grid in the X/Z plane.
type ChunkCoord struct {
	X int32
	Z int32
}

func (c ChunkCoord) String() string {
	return fmt.Sprintf("(%d,%d)", c.X, c.Z)
}

// Hash mixes the two's-complement bit patterns of X and Z.
// The packed key is a bijection and so is the finalizer, so distinct
// coordinates never share a hash.
func (c ChunkCoord) Hash() uint64 {
	key := uint64(uint32(c.X))<<32 | uint64(uint32(c.Z))
	return Mix64(key)
}

// Add offsets the coordinate by (dx, dz).
func (c ChunkCoord) Add(dx, dz int32) ChunkCoord {
	return ChunkCoord{X: c.X + dx, Z: c.Z + dz}
}

// Chebyshev returns the box distance between two coordinates.
func (c ChunkCoord) Chebyshev(o ChunkCoord) int32 {
	dx := c.X - o.X
	if dx < 0 {
		dx = -dx
	}
	dz := c.Z - o.Z
	if dz < 0 {
		dz = -dz
	}
	if dx > dz {
		return dx
	}
	return dz
}

// Mix64 is the splitmix64 finalizer.
func Mix64(x uint64) uint64 {
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return x
}

// WorldToChunk returns the chunk containing the world position.
// Division floors, so (-1, _, -1) with size 16 lands in (-1, -1).
// The result is corrected against ChunkToWorldOrigin so the two agree
// exactly on chunk boundaries despite float32 rounding.
func WorldToChunk(pos mgl32.Vec3, chunkSize float32) ChunkCoord {
	return ChunkCoord{
		X: floorToCell(pos.X(), chunkSize),
		Z: floorToCell(pos.Z(), chunkSize),
	}
}

// ChunkToWorldOrigin returns the minimum X/Z corner of the chunk at y = 0.
func ChunkToWorldOrigin(c ChunkCoord, chunkSize float32) mgl32.Vec3 {
	return mgl32.Vec3{cellOrigin(c.X, chunkSize), 0, cellOrigin(c.Z, chunkSize)}
}

// ComputeBounds spans the chunk footprint in X/Z and [0, maxHeight] in Y.
func ComputeBounds(c ChunkCoord, chunkSize, maxHeight float32) AABB {
	return AABB{
		Min: mgl32.Vec3{cellOrigin(c.X, chunkSize), 0, cellOrigin(c.Z, chunkSize)},
		Max: mgl32.Vec3{cellOrigin(c.X+1, chunkSize), maxHeight, cellOrigin(c.Z+1, chunkSize)},
	}
}

func cellOrigin(i int32, size float32) float32 {
	return float32(float64(i) * float64(size))
}

func floorToCell(v, size float32) int32 {
	f := math.Floor(float64(v) / float64(size))
	if math.IsNaN(f) || f < math.MinInt32+1 || f > math.MaxInt32-1 {
		return 0
	}
	q := int32(f)
	// Rounding in either direction is fixed up against cellOrigin.
	for cellOrigin(q, size) > v {
		q--
	}
	for cellOrigin(q+1, size) <= v {
		q++
	}
	return q
}
