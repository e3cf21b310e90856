//go:build !windows

package webgpu

import (
	"fmt"

	"github.com/born-ml/syncmem/internal/device"
)

// Open reports device.ErrUnavailable; the WebGPU backend is built on
// Windows only.
func Open(opts ...Option) (device.Device, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.log != nil {
		o.log.Debug("webgpu backend not built for this platform")
	}
	return nil, fmt.Errorf("%w: webgpu backend is not built for this platform", device.ErrUnavailable)
}

// IsAvailable always returns false on this platform.
func IsAvailable() bool {
	return false
}
