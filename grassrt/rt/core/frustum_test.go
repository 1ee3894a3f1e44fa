package core

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestFrustumCulling(t *testing.T) {
	// Camera at origin looking down -Z, 90 deg FOV, Near 1, Far 100
	proj := mgl32.Perspective(mgl32.DegToRad(90), 1.0, 1.0, 100.0)
	view := mgl32.LookAtV(
		mgl32.Vec3{0, 0, 0},
		mgl32.Vec3{0, 0, -1},
		mgl32.Vec3{0, 1, 0},
	)
	planes := ExtractFrustum(proj.Mul4(view))

	tests := []struct {
		name     string
		aabb     AABB
		expected bool
	}{
		{"Inside (center)", AABB{mgl32.Vec3{-1, -1, -10}, mgl32.Vec3{1, 1, -5}}, true},
		{"Outside (Left)", AABB{mgl32.Vec3{-20, -1, -10}, mgl32.Vec3{-15, 1, -5}}, false},
		{"Outside (Right)", AABB{mgl32.Vec3{15, -1, -10}, mgl32.Vec3{20, 1, -5}}, false},
		{"Outside (Behind)", AABB{mgl32.Vec3{-1, -1, 2}, mgl32.Vec3{1, 1, 5}}, false},
		{"Outside (Far)", AABB{mgl32.Vec3{-1, -1, -200}, mgl32.Vec3{1, 1, -150}}, false},
		{"Intersecting (Left Plane)", AABB{mgl32.Vec3{-15, -1, -10}, mgl32.Vec3{-5, 1, -5}}, true},
		{"Encompassing", AABB{mgl32.Vec3{-1000, -1000, -1000}, mgl32.Vec3{1000, 1000, 1000}}, true},
	}

	for _, tc := range tests {
		visible := AABBInFrustum(tc.aabb, &planes)
		if visible != tc.expected {
			t.Errorf("Test %s failed: expected %v, got %v", tc.name, tc.expected, visible)
			for i, p := range planes {
				t.Logf("  P%d: %v, Dist(Center)=%f", i, p, p.Dot(tc.aabb.Center().Vec4(1.0)))
			}
		}
	}
}

func TestFrustumChunkBounds(t *testing.T) {
	cam := NewCameraState()
	cam.Position = mgl32.Vec3{8, 1.7, 8}
	vp := cam.GetProjectionMatrix(16.0 / 9.0).Mul4(cam.GetViewMatrix())
	planes := ExtractFrustum(vp)

	// Default camera faces -Z: the chunk ahead is visible, the one far behind is not.
	ahead := ComputeBounds(ChunkCoord{0, -2}, 16, 1.5)
	behind := ComputeBounds(ChunkCoord{0, 3}, 16, 1.5)
	if !AABBInFrustum(ahead, &planes) {
		t.Error("chunk ahead of the camera should be visible")
	}
	if AABBInFrustum(behind, &planes) {
		t.Error("chunk behind the camera should be culled")
	}
}
