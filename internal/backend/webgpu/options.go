// Package webgpu implements device.Device on a WebGPU adapter.
// Uses go-webgpu (github.com/go-webgpu/webgpu) for zero-CGO WebGPU bindings.
//
// Device memory is a set of storage buffers sized up to 4-byte multiples.
// Uploads go through mapped-at-creation staging buffers and readback through
// a MapRead staging buffer, the same way the compute kernels move tensors.
// Only the default adapter is used, so the device id is always 0.
package webgpu

import (
	"github.com/sirupsen/logrus"
)

// DeviceID is the id of the single WebGPU device.
const DeviceID = 0

// defaultMaxPooled is the number of idle buffers kept per size class.
const defaultMaxPooled = 16

// Option configures a Device.
type Option func(*options)

type options struct {
	log         *logrus.Entry
	maxPooled   int
	maxBatch    int
	poolEnabled bool
}

func defaultOptions() options {
	return options{
		maxPooled:   defaultMaxPooled,
		poolEnabled: true,
	}
}

// WithLogger sets the log entry used by the device.
func WithLogger(e *logrus.Entry) Option {
	return func(o *options) {
		o.log = e
	}
}

// WithPool enables or disables reuse of freed storage buffers. maxPerSize
// caps the number of idle buffers kept per size class.
func WithPool(enabled bool, maxPerSize int) Option {
	return func(o *options) {
		o.poolEnabled = enabled
		if maxPerSize > 0 {
			o.maxPooled = maxPerSize
		}
	}
}

// WithMaxBatchSize flushes a stream once it holds n command buffers.
// Zero means streams only submit on Synchronize.
func WithMaxBatchSize(n int) Option {
	return func(o *options) {
		o.maxBatch = n
	}
}

// alignSize rounds n up to the 4-byte copy granularity WebGPU requires.
// Zero-length blocks still get one word so a buffer object exists.
func alignSize(n int) uint64 {
	if n <= 0 {
		return 4
	}
	return (uint64(n) + 3) &^ 3
}
