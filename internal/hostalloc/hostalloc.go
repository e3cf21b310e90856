// Package hostalloc provides host-memory allocators for synchronized buffers.
package hostalloc

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/born-ml/syncmem/internal/device"
)

// Allocation errors.
var (
	ErrNegativeSize     = errors.New("negative allocation size")
	ErrInvalidAlignment = errors.New("alignment must be a power of two")
)

// DefaultAlignment is the byte alignment used by Go when none is given.
const DefaultAlignment = 64

// Allocator hands out and takes back host memory blocks.
//
// Alloc(0) must succeed and return an empty, non-nil slice. Free must be
// called exactly once per block returned by Alloc.
type Allocator interface {
	Name() string
	Alloc(size int) ([]byte, error)
	Free(buf []byte) error
}

// Go allocates aligned blocks on the Go heap.
// Free only drops the reference; the garbage collector reclaims the memory.
type Go struct {
	alignment int
}

// NewGo creates a Go heap allocator with the given alignment.
// Zero selects DefaultAlignment.
func NewGo(alignment int) (*Go, error) {
	if alignment == 0 {
		alignment = DefaultAlignment
	}
	if alignment < 0 || alignment&(alignment-1) != 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidAlignment, alignment)
	}
	return &Go{alignment: alignment}, nil
}

// Name returns the allocator name.
func (a *Go) Name() string {
	return fmt.Sprintf("go(align=%d)", a.alignment)
}

// Alignment returns the configured byte alignment.
func (a *Go) Alignment() int {
	return a.alignment
}

// Alloc returns a zeroed block of exactly size bytes.
func (a *Go) Alloc(size int) ([]byte, error) {
	if size < 0 {
		return nil, fmt.Errorf("%w: %d", ErrNegativeSize, size)
	}
	if size == 0 {
		return make([]byte, 0), nil
	}

	buf := make([]byte, size+a.alignment)
	//nolint:gosec // G103: address only used to compute the alignment shift
	addr := uintptr(unsafe.Pointer(&buf[0]))
	shift := int((uintptr(a.alignment) - addr%uintptr(a.alignment)) % uintptr(a.alignment)) //nolint:gosec // G115: shift < alignment
	return buf[shift : shift+size : shift+size], nil
}

// Free releases a block returned by Alloc.
func (a *Go) Free(_ []byte) error {
	return nil
}

// PinnedSource is a device that can allocate pinned host memory.
type PinnedSource interface {
	Name() string
	device.PinnedAllocator
}

// Pinned allocates page-locked host memory through a device runtime.
type Pinned struct {
	src PinnedSource
}

// NewPinned wraps a device that can allocate pinned host memory.
func NewPinned(src PinnedSource) *Pinned {
	return &Pinned{src: src}
}

// Name returns the allocator name.
func (p *Pinned) Name() string {
	return "pinned(" + p.src.Name() + ")"
}

// Alloc returns a pinned block of size bytes.
func (p *Pinned) Alloc(size int) ([]byte, error) {
	if size < 0 {
		return nil, fmt.Errorf("%w: %d", ErrNegativeSize, size)
	}
	return p.src.AllocPinned(size)
}

// Free returns a pinned block to the device runtime.
func (p *Pinned) Free(buf []byte) error {
	return p.src.FreePinned(buf)
}
