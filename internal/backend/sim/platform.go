package sim

import (
	"fmt"
	"sync/atomic"

	"github.com/born-ml/syncmem/internal/device"
)

// Verify that Platform implements device.Context.
var _ device.Context = (*Platform)(nil)

// Platform is a set of simulated devices plus the caller's current-device
// selection, shared by every goroutine like a process-wide driver context.
type Platform struct {
	devices []*Device
	current atomic.Int64
}

// NewPlatform creates n simulated devices numbered 0..n-1. Device 0 is
// current.
func NewPlatform(n int, opts ...Option) (*Platform, error) {
	if n < 1 {
		return nil, fmt.Errorf("sim: platform needs at least one device, got %d", n)
	}
	p := &Platform{devices: make([]*Device, n)}
	for i := range p.devices {
		p.devices[i] = NewDevice(i, opts...)
	}
	return p, nil
}

// Count returns the number of devices.
func (p *Platform) Count() int {
	return len(p.devices)
}

// Device returns the device with the given id.
func (p *Platform) Device(id int) (*Device, error) {
	if id < 0 || id >= len(p.devices) {
		return nil, fmt.Errorf("%w: %d (have %d)", device.ErrNoSuchDevice, id, len(p.devices))
	}
	return p.devices[id], nil
}

// Devices returns every device in id order.
func (p *Platform) Devices() []*Device {
	return append([]*Device(nil), p.devices...)
}

// CurrentDevice implements device.Context.
func (p *Platform) CurrentDevice() (int, error) {
	return int(p.current.Load()), nil
}

// Current returns the currently selected device.
func (p *Platform) Current() *Device {
	return p.devices[p.current.Load()]
}

// SetDevice selects the current device.
func (p *Platform) SetDevice(id int) error {
	if id < 0 || id >= len(p.devices) {
		return fmt.Errorf("%w: %d (have %d)", device.ErrNoSuchDevice, id, len(p.devices))
	}
	p.current.Store(int64(id))
	return nil
}
