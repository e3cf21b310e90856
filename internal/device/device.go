// Package device defines the accelerator collaborators a synchronized buffer
// calls into: device memory, allocation, copies and transfer streams.
package device

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Common device errors.
var (
	ErrUnavailable   = errors.New("device backend not available")
	ErrNoSuchDevice  = errors.New("no such device")
	ErrOutOfMemory   = errors.New("device out of memory")
	ErrForeignMemory = errors.New("memory does not belong to this device")
	ErrDoubleFree    = errors.New("device memory already freed")
	ErrStreamClosed  = errors.New("stream closed")
	ErrShortBuffer   = errors.New("buffer shorter than copy size")
)

// Kind identifies a device backend implementation.
type Kind int

// Supported device backends.
const (
	None Kind = iota
	Sim
	WebGPU
)

// String returns a human-readable backend name.
func (k Kind) String() string {
	switch k {
	case None:
		return "none"
	case Sim:
		return "sim"
	case WebGPU:
		return "webgpu"
	default:
		return "unknown"
	}
}

// ParseKind converts a backend name into a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "cpu":
		return None, nil
	case "sim":
		return Sim, nil
	case "webgpu":
		return WebGPU, nil
	default:
		return None, fmt.Errorf("unknown device backend %q", s)
	}
}

// Memory is a handle to an allocation in device memory.
type Memory interface {
	// Size returns the usable size of the allocation in bytes.
	Size() int
	// DeviceID returns the device the allocation lives on.
	DeviceID() int
}

// Stream is an ordered, asynchronous command queue on one device.
type Stream interface {
	// DeviceID returns the device the stream submits to.
	DeviceID() int
	// Synchronize blocks until every command queued so far has completed.
	Synchronize(ctx context.Context) error
}

// Device allocates device memory and moves bytes between host and device.
//
// CopyToDevice and CopyToDeviceAsync copy len(src) bytes to the start of
// dst; CopyToHost fills dst from the start of src. Copy and Memset calls are
// synchronous: they return once the destination holds the result.
// CopyToDeviceAsync only enqueues the copy on a stream; the source slice
// must stay untouched until the stream is synchronized.
type Device interface {
	ID() int
	Name() string
	Kind() Kind

	Alloc(size int) (Memory, error)
	Free(m Memory) error

	Memset(m Memory, value byte) error
	CopyToDevice(dst Memory, src []byte) error
	CopyToHost(dst []byte, src Memory) error
	CopyToDeviceAsync(dst Memory, src []byte, s Stream) error

	NewStream() (Stream, error)
}

// Context reports which device the calling code currently targets.
type Context interface {
	CurrentDevice() (int, error)
}

// PinnedAllocator is implemented by devices that can hand out page-locked
// host memory suitable for DMA transfers.
type PinnedAllocator interface {
	AllocPinned(size int) ([]byte, error)
	FreePinned(buf []byte) error
}

// Fixed is a Context that always reports the same device.
type Fixed int

// CurrentDevice implements Context.
func (f Fixed) CurrentDevice() (int, error) {
	return int(f), nil
}
