// Package syncedmem implements a byte buffer that lives in host memory,
// device memory or both, allocating and copying between the two only when a
// caller needs fresh data on the other side.
//
// A SyncedMemory is owned by one caller at a time and is not safe for
// concurrent use. Misuse (nil blocks, wrong device, pushing stale data) and
// failing collaborators are not returned as errors: the buffer logs the
// violation and panics with a *FatalError.
package syncedmem

import (
	"context"
	"fmt"

	"github.com/born-ml/syncmem/internal/device"
	"github.com/born-ml/syncmem/internal/hostalloc"
	"github.com/born-ml/syncmem/internal/logging"
	"github.com/sirupsen/logrus"
)

// noDevice is the bound device id of a host-only buffer.
const noDevice = -1

// SyncedMemory is a fixed-size block of bytes with lazily allocated host and
// device copies.
type SyncedMemory struct {
	size int
	head Residency
	host hostBlock
	dev  deviceBlock

	hostAlloc     hostalloc.Allocator
	device        device.Device
	ctx           device.Context
	deviceID      int
	checkAffinity bool

	// pending is the stream of an async push that has not been awaited yet.
	pending  device.Stream
	released bool

	log *logrus.Entry
}

// New creates an empty buffer of size bytes bound to the caller's current
// device. No memory is allocated until the first access.
func New(size int, opts ...Option) *SyncedMemory {
	m := &SyncedMemory{
		size:          size,
		head:          Uninitialized,
		deviceID:      noDevice,
		checkAffinity: true,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.log == nil {
		m.log = logging.Component("syncedmem")
	}
	if m.hostAlloc == nil {
		a, err := hostalloc.NewGo(hostalloc.DefaultAlignment)
		if err != nil {
			m.fatal("New", fmt.Errorf("%w: default host allocator: %w", ErrAllocation, err))
		}
		m.hostAlloc = a
	}

	if size < 0 {
		m.fatal("New", fmt.Errorf("%w: %d", ErrInvalidSize, size))
	}

	if m.device != nil {
		if m.ctx == nil {
			m.ctx = device.Fixed(m.device.ID())
		}
		cur, err := m.ctx.CurrentDevice()
		if err != nil {
			m.fatal("New", fmt.Errorf("%w: querying current device: %w", ErrDeviceMismatch, err))
		}
		if cur != m.device.ID() {
			m.fatal("New", fmt.Errorf("%w: current device %d, buffer device %d", ErrDeviceMismatch, cur, m.device.ID()))
		}
		m.deviceID = cur
	}
	return m
}

// Size returns the buffer length in bytes.
func (m *SyncedMemory) Size() int {
	return m.size
}

// Head returns the current residency state.
func (m *SyncedMemory) Head() Residency {
	return m.head
}

// OwnsHost reports whether the buffer will free its host block.
func (m *SyncedMemory) OwnsHost() bool {
	return m.host.owned
}

// OwnsDevice reports whether the buffer will free its device block.
func (m *SyncedMemory) OwnsDevice() bool {
	return m.dev.owned
}

// HasDevice reports whether device-side operations are available.
func (m *SyncedMemory) HasDevice() bool {
	return m.device != nil
}

// DeviceID returns the device the buffer is bound to, or -1 for a host-only
// buffer.
func (m *SyncedMemory) DeviceID() int {
	return m.deviceID
}

// PendingPush reports whether an async push has been issued and not yet
// awaited by the buffer.
func (m *SyncedMemory) PendingPush() bool {
	return m.pending != nil
}

// HostData returns the host copy, pulling it from the device if the device
// holds newer data. Callers must not write to the returned slice.
func (m *SyncedMemory) HostData() []byte {
	m.checkDevice("HostData")
	m.toHost("HostData")
	return m.host.buf
}

// MutableHostData returns the host copy for writing. The device copy, if
// any, is considered stale afterwards.
func (m *SyncedMemory) MutableHostData() []byte {
	m.checkDevice("MutableHostData")
	m.awaitPush("MutableHostData")
	m.toHost("MutableHostData")
	m.setHead(HostFresh)
	return m.host.buf
}

// DeviceData returns the device copy, pushing host data first if the host
// holds newer data. Callers must not write to the returned memory.
func (m *SyncedMemory) DeviceData() device.Memory {
	m.checkDevice("DeviceData")
	m.requireDevice("DeviceData")
	m.awaitPush("DeviceData")
	m.toDevice("DeviceData")
	return m.dev.mem
}

// MutableDeviceData returns the device copy for writing. The host copy, if
// any, is considered stale afterwards.
func (m *SyncedMemory) MutableDeviceData() device.Memory {
	m.checkDevice("MutableDeviceData")
	m.requireDevice("MutableDeviceData")
	m.awaitPush("MutableDeviceData")
	m.toDevice("MutableDeviceData")
	m.setHead(DeviceFresh)
	return m.dev.mem
}

// SetHostData installs a caller-owned host block. Any owned host block is
// freed first. buf must hold at least Size bytes; only the first Size bytes
// are used. The buffer never frees buf.
//
// Passing back the buffer's own host block only marks it HostFresh; the
// block stays owned.
func (m *SyncedMemory) SetHostData(buf []byte) {
	const op = "SetHostData"
	m.checkDevice(op)
	if buf == nil {
		m.fatal(op, ErrNilBlock)
	}
	if len(buf) < m.size {
		m.fatal(op, fmt.Errorf("%w: got %d bytes, need %d", ErrSizeMismatch, len(buf), m.size))
	}
	m.awaitPush(op)

	if m.host.owned && sameBlock(m.host.buf, buf) {
		m.setHead(HostFresh)
		return
	}
	if err := m.host.release(m.hostAlloc); err != nil {
		m.fatal(op, fmt.Errorf("%w: freeing host block: %w", ErrAllocation, err))
	}
	m.host = hostBlock{buf: buf[:m.size:m.size], owned: false}
	m.setHead(HostFresh)
}

// SetDeviceData installs a caller-owned device block. Any owned device block
// is freed first. The buffer never frees mem.
//
// Passing back the buffer's own device block only marks it DeviceFresh; the
// block stays owned.
func (m *SyncedMemory) SetDeviceData(mem device.Memory) {
	const op = "SetDeviceData"
	m.checkDevice(op)
	m.requireDevice(op)
	if mem == nil {
		m.fatal(op, ErrNilBlock)
	}
	if mem.Size() < m.size {
		m.fatal(op, fmt.Errorf("%w: got %d bytes, need %d", ErrSizeMismatch, mem.Size(), m.size))
	}
	if mem.DeviceID() != m.deviceID {
		m.fatal(op, fmt.Errorf("%w: block on device %d, buffer bound to %d", ErrDeviceMismatch, mem.DeviceID(), m.deviceID))
	}
	m.awaitPush(op)

	if m.dev.owned && m.dev.mem == mem {
		m.setHead(DeviceFresh)
		return
	}
	if err := m.dev.release(m.device); err != nil {
		m.fatal(op, fmt.Errorf("%w: freeing device block: %w", ErrAllocation, err))
	}
	m.dev = deviceBlock{mem: mem, owned: false}
	m.setHead(DeviceFresh)
}

// AsyncPushToDevice enqueues a host-to-device copy on s and marks the buffer
// Synced without waiting for it. The buffer must be HostFresh.
//
// The buffer remembers s and synchronizes it before any later operation
// that reads device memory or changes either block.
func (m *SyncedMemory) AsyncPushToDevice(s device.Stream) {
	const op = "AsyncPushToDevice"
	m.checkDevice(op)
	m.requireDevice(op)
	if s == nil {
		m.fatal(op, ErrNilStream)
	}
	if m.head != HostFresh {
		m.fatal(op, fmt.Errorf("%w: state is %s", ErrNotHostFresh, m.head))
	}
	if s.DeviceID() != m.deviceID {
		m.fatal(op, fmt.Errorf("%w: stream on device %d, buffer bound to %d", ErrDeviceMismatch, s.DeviceID(), m.deviceID))
	}

	if !m.dev.present() {
		m.allocDevice(op)
	}
	if err := m.device.CopyToDeviceAsync(m.dev.mem, m.host.buf, s); err != nil {
		m.fatal(op, fmt.Errorf("%w: %w", ErrTransfer, err))
	}
	m.pending = s
	m.setHead(Synced)
}

// Release frees the blocks the buffer owns. Adopted blocks are left alone.
// Calling Release again is a no-op; any other call after Release panics.
func (m *SyncedMemory) Release() {
	const op = "Release"
	if m.released {
		return
	}
	m.checkDevice(op)
	m.awaitPush(op)

	ownedHost, ownedDevice := m.host.owned, m.dev.owned
	if err := m.host.release(m.hostAlloc); err != nil {
		m.fatal(op, fmt.Errorf("%w: freeing host block: %w", ErrAllocation, err))
	}
	if m.device != nil {
		if err := m.dev.release(m.device); err != nil {
			m.fatal(op, fmt.Errorf("%w: freeing device block: %w", ErrAllocation, err))
		}
	}
	m.released = true

	if m.log.Logger.IsLevelEnabled(logrus.DebugLevel) {
		m.log.WithFields(logrus.Fields{
			"bytes":        m.size,
			"freed_host":   ownedHost,
			"freed_device": ownedDevice,
		}).Debug("synced memory released")
	}
}

// toHost makes the host block hold current data.
func (m *SyncedMemory) toHost(op string) {
	switch m.head {
	case Uninitialized:
		m.allocHost(op)
		clear(m.host.buf)
		m.setHead(HostFresh)
	case DeviceFresh:
		m.requireDevice(op)
		if !m.host.present() {
			m.allocHost(op)
		}
		if err := m.device.CopyToHost(m.host.buf, m.dev.mem); err != nil {
			m.fatal(op, fmt.Errorf("%w: device to host: %w", ErrTransfer, err))
		}
		m.setHead(Synced)
	case HostFresh, Synced:
	}
}

// toDevice makes the device block hold current data.
func (m *SyncedMemory) toDevice(op string) {
	switch m.head {
	case Uninitialized:
		m.allocDevice(op)
		if err := m.device.Memset(m.dev.mem, 0); err != nil {
			m.fatal(op, fmt.Errorf("%w: memset: %w", ErrTransfer, err))
		}
		m.setHead(DeviceFresh)
	case HostFresh:
		if !m.dev.present() {
			m.allocDevice(op)
		}
		if err := m.device.CopyToDevice(m.dev.mem, m.host.buf); err != nil {
			m.fatal(op, fmt.Errorf("%w: host to device: %w", ErrTransfer, err))
		}
		m.setHead(Synced)
	case DeviceFresh, Synced:
	}
}

func (m *SyncedMemory) allocHost(op string) {
	buf, err := m.hostAlloc.Alloc(m.size)
	if err != nil {
		m.fatal(op, fmt.Errorf("%w: host alloc of %d bytes: %w", ErrAllocation, m.size, err))
	}
	if len(buf) != m.size {
		m.fatal(op, fmt.Errorf("%w: host allocator returned %d bytes, want %d", ErrAllocation, len(buf), m.size))
	}
	m.host = hostBlock{buf: buf, owned: true}

	if m.log.Logger.IsLevelEnabled(logrus.DebugLevel) {
		m.log.WithFields(logrus.Fields{"op": op, "bytes": m.size, "allocator": m.hostAlloc.Name()}).Debug("host block allocated")
	}
}

func (m *SyncedMemory) allocDevice(op string) {
	mem, err := m.device.Alloc(m.size)
	if err != nil {
		m.fatal(op, fmt.Errorf("%w: device alloc of %d bytes: %w", ErrAllocation, m.size, err))
	}
	m.dev = deviceBlock{mem: mem, owned: true}

	if m.log.Logger.IsLevelEnabled(logrus.DebugLevel) {
		m.log.WithFields(logrus.Fields{"op": op, "bytes": m.size, "device": m.device.Name()}).Debug("device block allocated")
	}
}

// awaitPush waits out an in-flight async push.
func (m *SyncedMemory) awaitPush(op string) {
	if m.pending == nil {
		return
	}
	s := m.pending
	m.pending = nil
	if err := s.Synchronize(context.Background()); err != nil {
		m.fatal(op, fmt.Errorf("%w: awaiting async push: %w", ErrTransfer, err))
	}
}

// checkDevice verifies the buffer is still live and is used from the device
// it was created on.
func (m *SyncedMemory) checkDevice(op string) {
	if m.released {
		m.fatal(op, ErrReleased)
	}
	if !m.checkAffinity || m.device == nil {
		return
	}

	cur, err := m.ctx.CurrentDevice()
	if err != nil {
		m.fatal(op, fmt.Errorf("%w: querying current device: %w", ErrDeviceMismatch, err))
	}
	if cur != m.deviceID {
		m.fatal(op, fmt.Errorf("%w: buffer bound to device %d, current device %d", ErrDeviceMismatch, m.deviceID, cur))
	}
	if m.dev.owned && m.dev.mem.DeviceID() != m.deviceID {
		m.fatal(op, fmt.Errorf("%w: owned device block lives on device %d", ErrDeviceMismatch, m.dev.mem.DeviceID()))
	}
}

func (m *SyncedMemory) requireDevice(op string) {
	if m.device == nil {
		m.fatal(op, ErrDeviceUnavailable)
	}
}

func (m *SyncedMemory) setHead(to Residency) {
	if to != m.head && m.log.Logger.IsLevelEnabled(logrus.DebugLevel) {
		m.log.WithFields(logrus.Fields{
			"from":  m.head.String(),
			"to":    to.String(),
			"bytes": m.size,
		}).Debug("residency transition")
	}
	m.head = to
}

func (m *SyncedMemory) fatal(op string, err error) {
	m.log.WithError(err).WithField("op", op).Error("synced memory contract violated")
	panic(&FatalError{Op: op, Err: err})
}
