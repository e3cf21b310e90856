// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package webgpu provides a WebGPU device for synchronized buffers.
//
// The backend is built on Windows. On other platforms Open returns an error
// wrapping device.ErrUnavailable and IsAvailable reports false.
//
// Example:
//
//	dev, err := webgpu.Open()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	m := syncedmem.New(1<<20, syncedmem.WithDevice(dev, nil))
package webgpu

import (
	"github.com/born-ml/syncmem/device"
	internalwebgpu "github.com/born-ml/syncmem/internal/backend/webgpu"
)

// Option configures the device.
type Option = internalwebgpu.Option

// Device options.
var (
	WithLogger       = internalwebgpu.WithLogger
	WithPool         = internalwebgpu.WithPool
	WithMaxBatchSize = internalwebgpu.WithMaxBatchSize
)

// Open opens the default WebGPU adapter.
func Open(opts ...Option) (device.Device, error) {
	return internalwebgpu.Open(opts...)
}

// IsAvailable checks if WebGPU is available on the current system.
func IsAvailable() bool {
	return internalwebgpu.IsAvailable()
}
