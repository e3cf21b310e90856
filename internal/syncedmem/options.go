package syncedmem

import (
	"github.com/born-ml/syncmem/internal/device"
	"github.com/born-ml/syncmem/internal/hostalloc"
	"github.com/sirupsen/logrus"
)

// Option configures a SyncedMemory.
type Option func(*SyncedMemory)

// WithHostAllocator sets the allocator used for owned host blocks.
func WithHostAllocator(a hostalloc.Allocator) Option {
	return func(m *SyncedMemory) {
		m.hostAlloc = a
	}
}

// WithDevice enables the device side. ctx reports the caller's current
// device; nil means the caller always runs on d.
func WithDevice(d device.Device, ctx device.Context) Option {
	return func(m *SyncedMemory) {
		m.device = d
		m.ctx = ctx
	}
}

// WithLogger sets the log entry used for transitions and violations.
func WithLogger(e *logrus.Entry) Option {
	return func(m *SyncedMemory) {
		m.log = e
	}
}

// WithAffinityCheck toggles the per-call current-device check.
// It is on by default.
func WithAffinityCheck(enabled bool) Option {
	return func(m *SyncedMemory) {
		m.checkAffinity = enabled
	}
}
