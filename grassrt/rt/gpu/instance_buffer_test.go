package gpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpload_WritesWholeBuffer(t *testing.T) {
	mem := NewMemoryBackend()
	blades := testBlades(10)
	data, meta := Build(blades)

	ib, err := Upload(mem, data, meta, len(blades))
	require.NoError(t, err)
	assert.Equal(t, BufferElementCount(InstanceStride, 10, ReservedPrefixBytes), ib.Elements())
	assert.Equal(t, 10, ib.Instances())

	got, ok := mem.BufferData(ib.Handle())
	require.True(t, ok)
	assert.Equal(t, data, got)
	assert.Equal(t, len(data), mem.UsedBytes())

	require.NoError(t, ib.Dispose())
	assert.True(t, ib.Disposed())
	assert.Equal(t, 0, mem.LiveBuffers())
	assert.Equal(t, 0, mem.UsedBytes())
}

func TestUpload_RejectsBadData(t *testing.T) {
	mem := NewMemoryBackend()
	data, meta := Build(testBlades(2))

	_, err := Upload(mem, data[:len(data)-4], meta, 2)
	assert.Error(t, err)

	dirty := append([]byte(nil), data...)
	dirty[3] = 1
	_, err = Upload(mem, dirty, meta, 2)
	assert.Error(t, err)

	assert.Equal(t, 0, mem.LiveBuffers())
}

func TestUpload_FailuresReleaseStorage(t *testing.T) {
	mem := NewMemoryBackend()
	data, meta := Build(testBlades(4))

	mem.FailNextAllocations(1)
	_, err := Upload(mem, data, meta, 4)
	assert.ErrorIs(t, err, ErrOutOfMemory)

	mem.FailNextUploads(1)
	_, err = Upload(mem, data, meta, 4)
	assert.ErrorIs(t, err, ErrOutOfMemory)
	assert.Equal(t, 0, mem.LiveBuffers(), "failed upload must not leak its allocation")

	ib, err := Upload(mem, data, meta, 4)
	require.NoError(t, err)
	assert.Equal(t, 1, mem.LiveBuffers())
	require.NoError(t, ib.Dispose())
}

func TestUpload_MemoryLimit(t *testing.T) {
	data, meta := Build(testBlades(4))
	mem := NewMemoryBackend(WithMemoryLimit(len(data)))

	a, err := Upload(mem, data, meta, 4)
	require.NoError(t, err)
	_, err = Upload(mem, data, meta, 4)
	assert.ErrorIs(t, err, ErrOutOfMemory)

	require.NoError(t, a.Dispose())
	_, err = Upload(mem, data, meta, 4)
	assert.NoError(t, err)
}

func TestInstanceBuffer_DoubleDisposePanics(t *testing.T) {
	mem := NewMemoryBackend()
	data, meta := Build(testBlades(1))
	ib, err := Upload(mem, data, meta, 1)
	require.NoError(t, err)
	h := ib.handle

	require.NoError(t, ib.Dispose())
	assert.Panics(t, func() { _ = ib.Dispose() })
	assert.Panics(t, func() { ib.Handle() })
	assert.Equal(t, 1, mem.DisposeCount(h))
}

func TestMemoryBackend_Batches(t *testing.T) {
	mem := NewMemoryBackend(WithBatchLimit(1))
	data, meta := Build(testBlades(3))
	ib, err := Upload(mem, data, meta, 3)
	require.NoError(t, err)

	_, err = mem.RegisterBatch(meta, 999)
	assert.ErrorIs(t, err, ErrUnknownBuffer)

	h, err := mem.RegisterBatch(meta, ib.Handle())
	require.NoError(t, err)
	assert.NotEqual(t, NilBatch, h)

	b, ok := mem.Batch(h)
	require.True(t, ok)
	assert.Equal(t, ib.Handle(), b.Buffer)
	assert.Equal(t, meta, b.Meta)

	_, err = mem.RegisterBatch(meta, ib.Handle())
	assert.ErrorIs(t, err, ErrRegistryFull)

	// A buffer referenced by a live batch cannot be released.
	assert.ErrorIs(t, mem.Dispose(ib.Handle()), ErrBufferInUse)

	require.NoError(t, mem.UnregisterBatch(h))
	assert.ErrorIs(t, mem.UnregisterBatch(h), ErrUnknownBatch)
	require.NoError(t, mem.Dispose(ib.Handle()))
	assert.ErrorIs(t, mem.Dispose(ib.Handle()), ErrUnknownBuffer)
	assert.Equal(t, 3, mem.DisposeCount(ib.handle))
}

func TestMemoryBackend_FailRegistrations(t *testing.T) {
	mem := NewMemoryBackend()
	data, meta := Build(testBlades(1))
	ib, err := Upload(mem, data, meta, 1)
	require.NoError(t, err)

	mem.FailNextRegistrations(1)
	_, err = mem.RegisterBatch(meta, ib.Handle())
	assert.ErrorIs(t, err, ErrRegistryFull)
	_, err = mem.RegisterBatch(meta, ib.Handle())
	assert.NoError(t, err)

	ops := []EventOp{}
	for _, e := range mem.Events() {
		ops = append(ops, e.Op)
	}
	assert.Equal(t, []EventOp{OpAllocate, OpUpload, OpRegister, OpRegister}, ops)
}
