//go:build unix

package hostalloc

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Mmap allocates page-aligned blocks from anonymous private mappings.
type Mmap struct{}

// NewMmap creates an anonymous-mapping allocator.
func NewMmap() (*Mmap, error) {
	return &Mmap{}, nil
}

// Name returns the allocator name.
func (m *Mmap) Name() string {
	return "mmap"
}

// Alloc maps size bytes of zeroed, page-aligned memory.
func (m *Mmap) Alloc(size int) ([]byte, error) {
	if size < 0 {
		return nil, fmt.Errorf("%w: %d", ErrNegativeSize, size)
	}
	if size == 0 {
		return make([]byte, 0), nil
	}

	buf, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("mmap %d bytes: %w", size, err)
	}
	return buf, nil
}

// Free unmaps a block returned by Alloc.
func (m *Mmap) Free(buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	if err := unix.Munmap(buf); err != nil {
		return fmt.Errorf("munmap: %w", err)
	}
	return nil
}
