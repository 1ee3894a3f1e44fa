package gpu

import "errors"

var (
	ErrOutOfMemory   = errors.New("gpu: out of buffer memory")
	ErrUnknownBuffer = errors.New("gpu: unknown buffer handle")
	ErrUnknownBatch  = errors.New("gpu: unknown batch handle")
	ErrRegistryFull  = errors.New("gpu: batch registry full")
	ErrOutOfRange    = errors.New("gpu: upload outside buffer")
	ErrBufferInUse   = errors.New("gpu: buffer still referenced by a batch")
)

// BufferHandle names a GPU-visible buffer owned by a BufferBackend. Zero is
// never a valid handle.
type BufferHandle uint64

// BatchHandle names a batch registered with the renderer. The empty string is
// never a valid handle.
type BatchHandle string

const NilBatch BatchHandle = ""

// BufferBackend allocates and fills GPU-visible storage. Called from the
// control thread only.
type BufferBackend interface {
	AllocateBuffer(sizeInElements, elementStride int) (BufferHandle, error)
	Upload(h BufferHandle, data []byte, destOffsetElements int) error
	Dispose(h BufferHandle) error
}

// BatchRegistry is the renderer's batch table. Not safe for concurrent use;
// callers serialize on the control thread.
type BatchRegistry interface {
	RegisterBatch(meta MetadataTable, buf BufferHandle) (BatchHandle, error)
	UnregisterBatch(h BatchHandle) error
}
