package stream

import (
	"context"
	"testing"

	"github.com/gekko3d/grass/grassrt/rt/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCuller_NoFrustumKeepsAll(t *testing.T) {
	m, _ := newTestManager(t, testConfig())
	_, err := m.UpdateVisibleChunks(context.Background(), chunkCenter(0, 0))
	require.NoError(t, err)

	cu := &Culler{Mesh: 7, Material: 3}
	draws := cu.Cull(m.Snapshot(), nil, nil)
	require.Len(t, draws, 9)
	for _, d := range draws {
		assert.Equal(t, MeshID(7), d.Mesh)
		assert.Equal(t, MaterialID(3), d.Material)
		assert.Equal(t, 32, d.InstanceCount)
		assert.NotEmpty(t, d.Batch)
	}
	assert.Empty(t, cu.Cull(nil, nil, draws))
}

func TestCuller_Frustum(t *testing.T) {
	cfg := testConfig()
	cfg.ViewDistance = 2
	m, _ := newTestManager(t, cfg)
	_, err := m.UpdateVisibleChunks(context.Background(), chunkCenter(0, 0))
	require.NoError(t, err)

	// The default camera looks down -Z.
	cam := core.NewCameraState()
	cam.Position = chunkCenter(0, 0)
	planes := core.ExtractFrustum(cam.GetProjectionMatrix(16.0 / 9.0).Mul4(cam.GetViewMatrix()))

	cu := &Culler{}
	draws := cu.Cull(m.Snapshot(), &planes, nil)
	visible := make(map[core.ChunkCoord]bool)
	for _, d := range draws {
		visible[d.Coord] = true
	}
	assert.Less(t, len(draws), 25)
	assert.True(t, visible[core.ChunkCoord{X: 0, Z: -2}], "chunk ahead")
	assert.True(t, visible[core.ChunkCoord{X: 0, Z: 0}], "camera chunk")
	assert.False(t, visible[core.ChunkCoord{X: 0, Z: 2}], "chunk behind")
}

func TestCuller_DoesNotAllocate(t *testing.T) {
	m, _ := newTestManager(t, testConfig())
	_, err := m.UpdateVisibleChunks(context.Background(), chunkCenter(0, 0))
	require.NoError(t, err)

	cam := core.NewCameraState()
	cam.Position = chunkCenter(0, 0)
	planes := core.ExtractFrustum(cam.GetProjectionMatrix(1).Mul4(cam.GetViewMatrix()))
	s := m.Snapshot()
	cu := &Culler{}
	out := make([]DrawDescriptor, 0, 16)

	allocs := testing.AllocsPerRun(100, func() {
		out = cu.Cull(s, &planes, out)
	})
	assert.Zero(t, allocs)
}

func TestCuller_DoesNotMutateSnapshot(t *testing.T) {
	m, _ := newTestManager(t, testConfig())
	_, err := m.UpdateVisibleChunks(context.Background(), chunkCenter(0, 0))
	require.NoError(t, err)

	s := m.Snapshot()
	before := append([]ChunkView(nil), s.Chunks...)
	cu := &Culler{}
	cu.Cull(s, nil, make([]DrawDescriptor, 0, 9))
	assert.Equal(t, before, s.Chunks)
}
