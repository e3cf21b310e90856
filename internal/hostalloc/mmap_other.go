//go:build !unix

package hostalloc

import "errors"

// Mmap is unavailable on this platform.
type Mmap struct{}

// NewMmap reports that anonymous mappings are unsupported here.
func NewMmap() (*Mmap, error) {
	return nil, errors.New("mmap allocator requires a unix platform")
}

// Name returns the allocator name.
func (m *Mmap) Name() string { return "mmap" }

// Alloc always fails.
func (m *Mmap) Alloc(int) ([]byte, error) {
	return nil, errors.New("mmap allocator requires a unix platform")
}

// Free always fails.
func (m *Mmap) Free([]byte) error {
	return errors.New("mmap allocator requires a unix platform")
}
