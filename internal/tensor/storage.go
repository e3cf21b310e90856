package tensor

import (
	"fmt"
	"unsafe"

	"github.com/born-ml/syncmem/internal/syncedmem"
)

// Allocator creates the synchronized buffer behind a Storage.
type Allocator func(size int) *syncedmem.SyncedMemory

// Storage is a shaped, typed view of one SyncedMemory. Host views are
// reinterpreted in place; device access goes through Memory().
type Storage struct {
	shape    Shape
	strides  []int
	dtype    DataType
	mem      *syncedmem.SyncedMemory
	capacity int // bytes in mem
	alloc    Allocator
}

// NewStorage allocates storage for shape and dtype. A nil alloc creates
// host-only buffers.
func NewStorage(shape Shape, dtype DataType, alloc Allocator) (*Storage, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}
	if alloc == nil {
		alloc = func(size int) *syncedmem.SyncedMemory { return syncedmem.New(size) }
	}

	size := shape.NumElements() * dtype.Size()
	return &Storage{
		shape:    shape.Clone(),
		strides:  shape.ComputeStrides(),
		dtype:    dtype,
		mem:      alloc(size),
		capacity: size,
		alloc:    alloc,
	}, nil
}

// Shape returns the storage shape.
func (s *Storage) Shape() Shape {
	return s.shape
}

// Strides returns row-major element strides.
func (s *Storage) Strides() []int {
	return s.strides
}

// DType returns the element type.
func (s *Storage) DType() DataType {
	return s.dtype
}

// NumElements returns the number of elements.
func (s *Storage) NumElements() int {
	return s.shape.NumElements()
}

// ByteSize returns the bytes used by the current shape.
func (s *Storage) ByteSize() int {
	return s.NumElements() * s.dtype.Size()
}

// Memory returns the underlying buffer.
func (s *Storage) Memory() *syncedmem.SyncedMemory {
	return s.mem
}

// Reshape changes the shape. The buffer is kept when the new shape fits in
// it and replaced by a fresh one otherwise.
func (s *Storage) Reshape(shape Shape) error {
	if err := shape.Validate(); err != nil {
		return fmt.Errorf("invalid shape: %w", err)
	}
	size := shape.NumElements() * s.dtype.Size()
	if size > s.capacity {
		s.mem.Release()
		s.mem = s.alloc(size)
		s.capacity = size
	}
	s.shape = shape.Clone()
	s.strides = shape.ComputeStrides()
	return nil
}

// ShareData makes s read and write other's host block. The block stays
// owned by other and must outlive s; freshness between the two is the
// caller's to manage. When other's block is shorter than s's buffer (s was
// shrunk by Reshape), s first trades its buffer for one of ByteSize bytes.
func (s *Storage) ShareData(other *Storage) error {
	if s.ByteSize() != other.ByteSize() {
		return fmt.Errorf("share data: size mismatch %d vs %d bytes", s.ByteSize(), other.ByteSize())
	}
	if other.mem.Size() < s.mem.Size() {
		s.mem.Release()
		s.mem = s.alloc(s.ByteSize())
		s.capacity = s.ByteSize()
	}
	s.mem.SetHostData(other.mem.HostData())
	return nil
}

// CopyFrom copies other's current contents into s's host block.
func (s *Storage) CopyFrom(other *Storage) error {
	if s.dtype != other.dtype {
		return fmt.Errorf("copy from: dtype %s vs %s", s.dtype, other.dtype)
	}
	if s.ByteSize() != other.ByteSize() {
		return fmt.Errorf("copy from: size mismatch %d vs %d bytes", s.ByteSize(), other.ByteSize())
	}
	copy(s.mem.MutableHostData(), other.mem.HostData()[:other.ByteSize()])
	return nil
}

// Release frees the underlying buffer.
func (s *Storage) Release() {
	s.mem.Release()
}

// HostView returns the host data as []T for reading.
// Panics if T does not match the storage dtype.
func HostView[T DType](s *Storage) []T {
	s.checkType(dataTypeOf[T]())
	return viewAs[T](s.mem.HostData(), s.NumElements())
}

// MutableHostView returns the host data as []T for writing.
// Panics if T does not match the storage dtype.
func MutableHostView[T DType](s *Storage) []T {
	s.checkType(dataTypeOf[T]())
	return viewAs[T](s.mem.MutableHostData(), s.NumElements())
}

// Float32 returns the host data as []float32 for reading.
func (s *Storage) Float32() []float32 { return HostView[float32](s) }

// MutableFloat32 returns the host data as []float32 for writing.
func (s *Storage) MutableFloat32() []float32 { return MutableHostView[float32](s) }

// Int32 returns the host data as []int32 for reading.
func (s *Storage) Int32() []int32 { return HostView[int32](s) }

// MutableInt32 returns the host data as []int32 for writing.
func (s *Storage) MutableInt32() []int32 { return MutableHostView[int32](s) }

func (s *Storage) checkType(want DataType) {
	if s.dtype != want {
		panic(fmt.Sprintf("storage dtype is %s, not %s", s.dtype, want))
	}
}

func viewAs[T DType](data []byte, n int) []T {
	//nolint:gosec // unsafe.Slice for zero-copy views, bounds checked by NumElements()
	return unsafe.Slice((*T)(unsafe.Pointer(&data[0])), n)
}
