package gpu

import (
	"fmt"
)

// InstanceBuffer is one chunk's uploaded blade data. It owns its handle:
// Dispose releases it exactly once, and a second Dispose is a programming
// error that panics.
type InstanceBuffer struct {
	backend   BufferBackend
	handle    BufferHandle
	elements  int
	instances int
	meta      MetadataTable
	disposed  bool
}

// Upload allocates storage sized by BufferElementCount and writes the whole
// packed buffer from element 0, including the zero prefix block. On failure
// any allocated storage is released before returning.
func Upload(backend BufferBackend, data []byte, meta MetadataTable, instances int) (*InstanceBuffer, error) {
	elements := BufferElementCount(InstanceStride, instances, ReservedPrefixBytes)
	if len(data) != elements*ElementSize {
		return nil, fmt.Errorf("gpu: packed data is %d bytes, layout needs %d", len(data), elements*ElementSize)
	}
	for _, b := range data[:ReservedPrefixBytes] {
		if b != 0 {
			return nil, fmt.Errorf("gpu: reserved prefix block is not zero")
		}
	}

	h, err := backend.AllocateBuffer(elements, ElementSize)
	if err != nil {
		return nil, fmt.Errorf("allocate %d elements: %w", elements, err)
	}
	if err := backend.Upload(h, data, 0); err != nil {
		if derr := backend.Dispose(h); derr != nil {
			return nil, fmt.Errorf("upload: %w (dispose: %v)", err, derr)
		}
		return nil, fmt.Errorf("upload: %w", err)
	}

	return &InstanceBuffer{
		backend:   backend,
		handle:    h,
		elements:  elements,
		instances: instances,
		meta:      meta,
	}, nil
}

func (b *InstanceBuffer) Handle() BufferHandle {
	b.mustBeLive("Handle")
	return b.handle
}

func (b *InstanceBuffer) Metadata() MetadataTable {
	return b.meta
}

func (b *InstanceBuffer) Elements() int {
	return b.elements
}

func (b *InstanceBuffer) Instances() int {
	return b.instances
}

func (b *InstanceBuffer) Disposed() bool {
	return b.disposed
}

// Dispose releases the GPU storage. The buffer is unusable afterwards even
// when the backend reports an error.
func (b *InstanceBuffer) Dispose() error {
	b.mustBeLive("Dispose")
	b.disposed = true
	return b.backend.Dispose(b.handle)
}

func (b *InstanceBuffer) mustBeLive(op string) {
	if b.disposed {
		panic(fmt.Sprintf("gpu: %s on disposed instance buffer %d", op, b.handle))
	}
}
