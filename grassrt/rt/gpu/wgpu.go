package gpu

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/google/uuid"
)

// WgpuBackend backs instance buffers with WebGPU storage buffers. Like the
// rest of the renderer it must be driven from the thread that owns the device.
type WgpuBackend struct {
	Device  *wgpu.Device
	next    BufferHandle
	buffers map[BufferHandle]*wgpu.Buffer
	sizes   map[BufferHandle]uint64
}

func NewWgpuBackend(device *wgpu.Device) *WgpuBackend {
	return &WgpuBackend{
		Device:  device,
		buffers: make(map[BufferHandle]*wgpu.Buffer),
		sizes:   make(map[BufferHandle]uint64),
	}
}

func (b *WgpuBackend) AllocateBuffer(sizeInElements, elementStride int) (BufferHandle, error) {
	size := uint64(sizeInElements * elementStride)
	if size == 0 {
		return 0, fmt.Errorf("gpu: invalid buffer size %d x %d", sizeInElements, elementStride)
	}
	b.next++
	buf, err := b.Device.CreateBuffer(&wgpu.BufferDescriptor{
		Label:            fmt.Sprintf("GrassInstances%d", b.next),
		Size:             size,
		Usage:            wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst,
		MappedAtCreation: false,
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrOutOfMemory, err)
	}
	b.buffers[b.next] = buf
	b.sizes[b.next] = size
	return b.next, nil
}

func (b *WgpuBackend) Upload(h BufferHandle, data []byte, destOffsetElements int) error {
	buf, ok := b.buffers[h]
	if !ok {
		return ErrUnknownBuffer
	}
	offset := uint64(destOffsetElements * ElementSize)
	if destOffsetElements < 0 || offset+uint64(len(data)) > b.sizes[h] {
		return ErrOutOfRange
	}
	return b.Device.GetQueue().WriteBuffer(buf, offset, data)
}

func (b *WgpuBackend) Dispose(h BufferHandle) error {
	buf, ok := b.buffers[h]
	if !ok {
		return ErrUnknownBuffer
	}
	buf.Release()
	delete(b.buffers, h)
	delete(b.sizes, h)
	return nil
}

// Buffer resolves a handle to its WebGPU buffer.
func (b *WgpuBackend) Buffer(h BufferHandle) (*wgpu.Buffer, bool) {
	buf, ok := b.buffers[h]
	return buf, ok
}

// Release frees every buffer still owned by the backend.
func (b *WgpuBackend) Release() {
	for h, buf := range b.buffers {
		buf.Release()
		delete(b.buffers, h)
		delete(b.sizes, h)
	}
}

type wgpuBatch struct {
	metaBuf   *wgpu.Buffer
	bindGroup *wgpu.BindGroup
	instances BufferHandle
}

// WgpuBatchRegistry turns each registered batch into a bind group holding the
// packed metadata block (binding 0) and the instance buffer (binding 1).
type WgpuBatchRegistry struct {
	backend *WgpuBackend
	layout  *wgpu.BindGroupLayout
	batches map[BatchHandle]*wgpuBatch
}

func NewWgpuBatchRegistry(backend *WgpuBackend, layout *wgpu.BindGroupLayout) *WgpuBatchRegistry {
	return &WgpuBatchRegistry{
		backend: backend,
		layout:  layout,
		batches: make(map[BatchHandle]*wgpuBatch),
	}
}

// BatchBindGroupLayout describes the per-batch bind group the grass shader
// declares at group 1.
func BatchBindGroupLayout(device *wgpu.Device) (*wgpu.BindGroupLayout, error) {
	return device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label: "GrassBatchBGL",
		Entries: []wgpu.BindGroupLayoutEntry{
			{
				Binding:    0,
				Visibility: wgpu.ShaderStageVertex,
				Buffer: wgpu.BufferBindingLayout{
					Type:           wgpu.BufferBindingTypeUniform,
					MinBindingSize: MetadataSlots * 4,
				},
			},
			{
				Binding:    1,
				Visibility: wgpu.ShaderStageVertex,
				Buffer: wgpu.BufferBindingLayout{
					Type:           wgpu.BufferBindingTypeReadOnlyStorage,
					MinBindingSize: ReservedPrefixBytes,
				},
			},
		},
	})
}

func (r *WgpuBatchRegistry) RegisterBatch(meta MetadataTable, h BufferHandle) (BatchHandle, error) {
	instances, ok := r.backend.Buffer(h)
	if !ok {
		return NilBatch, ErrUnknownBuffer
	}
	device := r.backend.Device

	packed := PackMetadata(meta)
	metaBuf, err := device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "GrassBatchMetadata",
		Size:  uint64(len(packed)),
		Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return NilBatch, fmt.Errorf("%w: %v", ErrRegistryFull, err)
	}
	if err := device.GetQueue().WriteBuffer(metaBuf, 0, packed); err != nil {
		metaBuf.Release()
		return NilBatch, err
	}

	bg, err := device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Layout: r.layout,
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: metaBuf, Size: wgpu.WholeSize},
			{Binding: 1, Buffer: instances, Size: wgpu.WholeSize},
		},
	})
	if err != nil {
		metaBuf.Release()
		return NilBatch, fmt.Errorf("%w: %v", ErrRegistryFull, err)
	}

	id := BatchHandle(uuid.NewString())
	r.batches[id] = &wgpuBatch{metaBuf: metaBuf, bindGroup: bg, instances: h}
	return id, nil
}

func (r *WgpuBatchRegistry) UnregisterBatch(h BatchHandle) error {
	b, ok := r.batches[h]
	if !ok {
		return ErrUnknownBatch
	}
	b.bindGroup.Release()
	b.metaBuf.Release()
	delete(r.batches, h)
	return nil
}

// BindGroup returns the bind group for a live batch.
func (r *WgpuBatchRegistry) BindGroup(h BatchHandle) (*wgpu.BindGroup, bool) {
	b, ok := r.batches[h]
	if !ok {
		return nil, false
	}
	return b.bindGroup, true
}

// Release unregisters every remaining batch.
func (r *WgpuBatchRegistry) Release() {
	for h := range r.batches {
		_ = r.UnregisterBatch(h)
	}
}
