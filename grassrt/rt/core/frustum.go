package core

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

type AABB struct {
	Min mgl32.Vec3
	Max mgl32.Vec3
}

func (b AABB) Center() mgl32.Vec3 {
	return b.Min.Add(b.Max).Mul(0.5)
}

func (b AABB) Extents() mgl32.Vec3 {
	return b.Max.Sub(b.Min).Mul(0.5)
}

// Frustum holds the 6 planes Left, Right, Bottom, Top, Near, Far.
// Each plane is Ax + By + Cz + D = 0 with the normal pointing inside.
type Frustum [6]mgl32.Vec4

// ExtractFrustum extracts the frustum planes from a view-projection matrix.
// Near uses the OpenGL-style -1..1 depth convention, which is conservative
// for the 0..1 range WebGPU uses.
func ExtractFrustum(vp mgl32.Mat4) Frustum {
	var planes Frustum

	row := func(r int) mgl32.Vec4 {
		return mgl32.Vec4{vp.At(r, 0), vp.At(r, 1), vp.At(r, 2), vp.At(r, 3)}
	}
	r0, r1, r2, r3 := row(0), row(1), row(2), row(3)

	planes[0] = r3.Add(r0) // Left
	planes[1] = r3.Sub(r0) // Right
	planes[2] = r3.Add(r1) // Bottom
	planes[3] = r3.Sub(r1) // Top
	planes[4] = r3.Add(r2) // Near
	planes[5] = r3.Sub(r2) // Far

	for i := 0; i < 6; i++ {
		length := float32(math.Sqrt(float64(planes[i][0]*planes[i][0] + planes[i][1]*planes[i][1] + planes[i][2]*planes[i][2])))
		if length > 0 {
			planes[i] = planes[i].Mul(1.0 / length)
		}
	}

	return planes
}

// AABBInFrustum reports whether any part of the box may be inside.
// For each plane it tests the box corner furthest along the normal; if even
// that corner is behind the plane the whole box is outside.
func AABBInFrustum(aabb AABB, planes *Frustum) bool {
	for i := 0; i < 6; i++ {
		plane := planes[i]

		var p mgl32.Vec3
		if plane[0] > 0 {
			p[0] = aabb.Max[0]
		} else {
			p[0] = aabb.Min[0]
		}
		if plane[1] > 0 {
			p[1] = aabb.Max[1]
		} else {
			p[1] = aabb.Min[1]
		}
		if plane[2] > 0 {
			p[2] = aabb.Max[2]
		} else {
			p[2] = aabb.Min[2]
		}

		if plane[0]*p[0]+plane[1]*p[1]+plane[2]*p[2]+plane[3] < 0 {
			return false
		}
	}
	return true
}
