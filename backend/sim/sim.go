// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package sim provides simulated accelerators backed by host RAM.
//
// Simulated device memory is kept apart from host memory, frees are
// checked and async copies wait on their stream until it is synchronized,
// so residency bugs show up in tests without a GPU.
//
// Example:
//
//	platform, _ := sim.NewPlatform(2, sim.WithMemoryLimit(64<<20))
//	_ = platform.SetDevice(1)
//	m := syncedmem.New(4096, syncedmem.WithDevice(platform.Current(), platform))
package sim

import (
	"github.com/born-ml/syncmem/internal/backend/sim"
)

// Device is a simulated accelerator.
type Device = sim.Device

// Memory is a block of simulated device memory.
type Memory = sim.Memory

// Stream is a deferred command queue on a simulated device.
type Stream = sim.Stream

// Platform is a set of simulated devices with a current-device selection.
type Platform = sim.Platform

// Stats describes device activity.
type Stats = sim.Stats

// Option configures a Device.
type Option = sim.Option

// ErrUseAfterFree is returned when freed device memory is used.
var ErrUseAfterFree = sim.ErrUseAfterFree

// NewDevice creates a standalone simulated device.
func NewDevice(id int, opts ...Option) *Device {
	return sim.NewDevice(id, opts...)
}

// NewPlatform creates n simulated devices; device 0 is current.
func NewPlatform(n int, opts ...Option) (*Platform, error) {
	return sim.NewPlatform(n, opts...)
}

// Device options.
var (
	WithMemoryLimit = sim.WithMemoryLimit
	WithParallel    = sim.WithParallel
	WithLogger      = sim.WithLogger
)
