package gen

import (
	"math/rand/v2"

	"github.com/gekko3d/grass/grassrt/rt/core"
)

// bladeStreamSalt separates the per-blade stream key from the raw index.
const bladeStreamSalt = 0x9e3779b97f4a7c15

// bladeRand returns the deterministic random stream of blade i in a chunk.
// It depends only on (seed, i), never on scheduling.
func bladeRand(seed uint64, i int) *rand.Rand {
	return rand.New(rand.NewPCG(seed, core.Mix64(uint64(i)^bladeStreamSalt)))
}

// bladeHash is a stable per-blade value in [0, 1).
func bladeHash(seed uint64, i int) float32 {
	h := core.Mix64(seed ^ core.Mix64(uint64(i)))
	return float32(h>>40) / float32(1<<24)
}

// ChunkSeed derives a chunk's generation seed from its coordinate and the
// global seed. With a zero global seed it is the coordinate hash itself.
func ChunkSeed(c core.ChunkCoord, global uint64) uint64 {
	if global == 0 {
		return c.Hash()
	}
	return core.Mix64(c.Hash() ^ global)
}
