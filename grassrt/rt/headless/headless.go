// Package headless drives a grass field along a scripted camera path with no
// window, against the in-memory backend.
package headless

import (
	"context"
	"fmt"
	"math"

	"github.com/gekko3d/grass"
	"github.com/gekko3d/grass/grassrt/rt/core"
	"github.com/gekko3d/grass/grassrt/rt/gpu"
	"github.com/gekko3d/grass/grassrt/rt/stream"

	"github.com/go-gl/mathgl/mgl32"
)

// Path returns the camera position and yaw for a frame.
type Path func(frame int) (pos mgl32.Vec3, yaw float32)

// Orbit circles the origin at radius, completing one lap every period frames.
func Orbit(radius, height float32, period int) Path {
	return func(frame int) (mgl32.Vec3, float32) {
		a := 2 * math.Pi * float64(frame%period) / float64(period)
		pos := mgl32.Vec3{
			radius * float32(math.Cos(a)),
			height,
			radius * float32(math.Sin(a)),
		}
		// Face along the tangent.
		return pos, float32(a + math.Pi)
	}
}

// Line walks along +X at speed world units per frame.
func Line(speed, height float32) Path {
	return func(frame int) (mgl32.Vec3, float32) {
		return mgl32.Vec3{float32(frame) * speed, height, 0}, math.Pi / 2
	}
}

type Result struct {
	Frames  int
	Updates uint64
	Draws   int // summed over frames
	Drawn   int // instances, summed over frames
	Totals  stream.Totals
	Last    stream.UpdateStats

	LiveBuffers int // after Close
	LiveBatches int
}

func (r Result) String() string {
	return fmt.Sprintf("%d frames, %d updates, %.1f draws/frame, %.0f instances/frame\n"+
		"created %d, destroyed %d, failed %d, cancelled %d, disposed %d\n"+
		"after close: %d buffers, %d batches",
		r.Frames, r.Updates,
		float64(r.Draws)/float64(max(r.Frames, 1)), float64(r.Drawn)/float64(max(r.Frames, 1)),
		r.Totals.Created, r.Totals.Destroyed, r.Totals.Failed, r.Totals.Cancelled, r.Totals.Disposed,
		r.LiveBuffers, r.LiveBatches)
}

// Run ticks a field once per frame along path, culls against the camera
// frustum, and ends the frame, then closes the field and reports what leaked.
func Run(ctx context.Context, cfg grass.Config, frames int, path Path, mem *gpu.MemoryBackend, opts ...grass.Option) (Result, error) {
	if mem == nil {
		mem = gpu.NewMemoryBackend()
	}
	f, err := grass.New(cfg, mem, mem, opts...)
	if err != nil {
		return Result{}, err
	}

	cam := core.NewCameraState()
	cam.Far = float32(cfg.ViewDistance+2) * cfg.ChunkSize * 1.5

	var (
		res   Result
		draws []stream.DrawDescriptor
	)
	for frame := 0; frame < frames; frame++ {
		if err := ctx.Err(); err != nil {
			_ = f.Close(context.Background())
			return res, err
		}
		cam.Position, cam.Yaw = path(frame)
		if _, err := f.Tick(ctx, cam.Position); err != nil {
			_ = f.Close(context.Background())
			return res, err
		}

		planes := core.ExtractFrustum(cam.GetProjectionMatrix(16.0 / 9.0).Mul4(cam.GetViewMatrix()))
		draws = f.Cull(&planes, draws)
		res.Draws += len(draws)
		for _, d := range draws {
			res.Drawn += d.InstanceCount
		}
		f.EndFrame()
		res.Frames++
	}

	res.Last = f.Stats()
	res.Updates = res.Last.Update
	if err := f.Close(ctx); err != nil {
		return res, err
	}
	res.Totals = f.Totals()
	res.LiveBuffers = mem.LiveBuffers()
	res.LiveBatches = mem.LiveBatches()
	return res, nil
}
