package gpu

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// MemoryBackend keeps buffers and batches in host memory. It serves headless
// runs and tests, and records every operation so lifecycle ordering can be
// checked afterwards.
type MemoryBackend struct {
	mu sync.Mutex

	next    BufferHandle
	buffers map[BufferHandle][]byte
	batches map[BatchHandle]MemoryBatch

	maxBytes   int
	maxBatches int
	usedBytes  int

	failAllocs    int
	failUploads   int
	failRegisters int

	disposeCounts map[BufferHandle]int
	events        []Event
}

type MemoryBatch struct {
	Buffer BufferHandle
	Meta   MetadataTable
}

type EventOp string

const (
	OpAllocate   EventOp = "allocate"
	OpUpload     EventOp = "upload"
	OpDispose    EventOp = "dispose"
	OpRegister   EventOp = "register"
	OpUnregister EventOp = "unregister"
)

type Event struct {
	Op     EventOp
	Buffer BufferHandle
	Batch  BatchHandle
	Err    error
}

type MemoryOption func(*MemoryBackend)

// WithMemoryLimit caps the total bytes of live buffers. Zero means no cap.
func WithMemoryLimit(bytes int) MemoryOption {
	return func(m *MemoryBackend) {
		m.maxBytes = bytes
	}
}

// WithBatchLimit caps the number of live batches. Zero means no cap.
func WithBatchLimit(n int) MemoryOption {
	return func(m *MemoryBackend) {
		m.maxBatches = n
	}
}

func NewMemoryBackend(opts ...MemoryOption) *MemoryBackend {
	m := &MemoryBackend{
		buffers:       make(map[BufferHandle][]byte),
		batches:       make(map[BatchHandle]MemoryBatch),
		disposeCounts: make(map[BufferHandle]int),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// FailNextAllocations makes the next n AllocateBuffer calls fail.
func (m *MemoryBackend) FailNextAllocations(n int) {
	m.mu.Lock()
	m.failAllocs = n
	m.mu.Unlock()
}

// FailNextUploads makes the next n Upload calls fail.
func (m *MemoryBackend) FailNextUploads(n int) {
	m.mu.Lock()
	m.failUploads = n
	m.mu.Unlock()
}

// FailNextRegistrations makes the next n RegisterBatch calls fail.
func (m *MemoryBackend) FailNextRegistrations(n int) {
	m.mu.Lock()
	m.failRegisters = n
	m.mu.Unlock()
}

func (m *MemoryBackend) AllocateBuffer(sizeInElements, elementStride int) (BufferHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	size := sizeInElements * elementStride
	var err error
	switch {
	case sizeInElements <= 0 || elementStride <= 0:
		err = fmt.Errorf("gpu: invalid buffer size %d x %d", sizeInElements, elementStride)
	case m.failAllocs > 0:
		m.failAllocs--
		err = ErrOutOfMemory
	case m.maxBytes > 0 && m.usedBytes+size > m.maxBytes:
		err = ErrOutOfMemory
	}
	if err != nil {
		m.events = append(m.events, Event{Op: OpAllocate, Err: err})
		return 0, err
	}

	m.next++
	h := m.next
	m.buffers[h] = make([]byte, size)
	m.usedBytes += size
	m.events = append(m.events, Event{Op: OpAllocate, Buffer: h})
	return h, nil
}

func (m *MemoryBackend) Upload(h BufferHandle, data []byte, destOffsetElements int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	buf, ok := m.buffers[h]
	var err error
	switch {
	case !ok:
		err = ErrUnknownBuffer
	case m.failUploads > 0:
		m.failUploads--
		err = ErrOutOfMemory
	case destOffsetElements < 0 || destOffsetElements*ElementSize+len(data) > len(buf):
		err = ErrOutOfRange
	}
	m.events = append(m.events, Event{Op: OpUpload, Buffer: h, Err: err})
	if err != nil {
		return err
	}
	copy(buf[destOffsetElements*ElementSize:], data)
	return nil
}

func (m *MemoryBackend) Dispose(h BufferHandle) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.disposeCounts[h]++
	buf, ok := m.buffers[h]
	var err error
	if !ok {
		err = ErrUnknownBuffer
	} else {
		for _, b := range m.batches {
			if b.Buffer == h {
				err = ErrBufferInUse
				break
			}
		}
	}
	m.events = append(m.events, Event{Op: OpDispose, Buffer: h, Err: err})
	if err != nil {
		return err
	}
	m.usedBytes -= len(buf)
	delete(m.buffers, h)
	return nil
}

func (m *MemoryBackend) RegisterBatch(meta MetadataTable, buf BufferHandle) (BatchHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var err error
	switch _, ok := m.buffers[buf]; {
	case !ok:
		err = ErrUnknownBuffer
	case m.failRegisters > 0:
		m.failRegisters--
		err = ErrRegistryFull
	case m.maxBatches > 0 && len(m.batches) >= m.maxBatches:
		err = ErrRegistryFull
	}
	if err != nil {
		m.events = append(m.events, Event{Op: OpRegister, Buffer: buf, Err: err})
		return NilBatch, err
	}

	h := BatchHandle(uuid.NewString())
	m.batches[h] = MemoryBatch{Buffer: buf, Meta: append(MetadataTable(nil), meta...)}
	m.events = append(m.events, Event{Op: OpRegister, Buffer: buf, Batch: h})
	return h, nil
}

func (m *MemoryBackend) UnregisterBatch(h BatchHandle) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.batches[h]
	if !ok {
		m.events = append(m.events, Event{Op: OpUnregister, Batch: h, Err: ErrUnknownBatch})
		return ErrUnknownBatch
	}
	delete(m.batches, h)
	m.events = append(m.events, Event{Op: OpUnregister, Buffer: b.Buffer, Batch: h})
	return nil
}

func (m *MemoryBackend) LiveBuffers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buffers)
}

func (m *MemoryBackend) LiveBatches() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.batches)
}

func (m *MemoryBackend) UsedBytes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.usedBytes
}

// Batch returns a registered batch.
func (m *MemoryBackend) Batch(h BatchHandle) (MemoryBatch, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[h]
	return b, ok
}

// BufferData returns a copy of a live buffer's contents.
func (m *MemoryBackend) BufferData(h BufferHandle) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	buf, ok := m.buffers[h]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), buf...), true
}

// DisposeCount reports how many times Dispose was called for h.
func (m *MemoryBackend) DisposeCount(h BufferHandle) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.disposeCounts[h]
}

// Events returns a copy of the operation log.
func (m *MemoryBackend) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

// ResetEvents clears the operation log.
func (m *MemoryBackend) ResetEvents() {
	m.mu.Lock()
	m.events = m.events[:0]
	m.mu.Unlock()
}
