package syncedmem

import (
	"github.com/born-ml/syncmem/internal/device"
	"github.com/born-ml/syncmem/internal/hostalloc"
)

// hostBlock is a host allocation that is either owned (freed by the buffer)
// or borrowed (adopted from a caller, never freed).
type hostBlock struct {
	buf   []byte
	owned bool
}

func (b *hostBlock) present() bool {
	return b.buf != nil
}

// sameBlock reports whether a and b start at the same host address.
func sameBlock(a, b []byte) bool {
	return len(a) > 0 && len(b) > 0 && &a[0] == &b[0]
}

// release frees the block if owned and forgets it either way.
func (b *hostBlock) release(a hostalloc.Allocator) error {
	var err error
	if b.owned && b.buf != nil {
		err = a.Free(b.buf)
	}
	*b = hostBlock{}
	return err
}

// deviceBlock is the device-side counterpart of hostBlock.
type deviceBlock struct {
	mem   device.Memory
	owned bool
}

func (b *deviceBlock) present() bool {
	return b.mem != nil
}

func (b *deviceBlock) release(d device.Device) error {
	var err error
	if b.owned && b.mem != nil {
		err = d.Free(b.mem)
	}
	*b = deviceBlock{}
	return err
}
