// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package device defines the accelerator interfaces a synchronized buffer
// calls into. Implement Device to plug in a new backend.
package device

import (
	"github.com/born-ml/syncmem/internal/device"
)

// Device allocates device memory and copies bytes to and from it.
type Device = device.Device

// Memory is a handle to device memory.
type Memory = device.Memory

// Stream is an ordered asynchronous command queue on one device.
type Stream = device.Stream

// Context reports the caller's current device.
type Context = device.Context

// PinnedAllocator is implemented by devices offering page-locked host memory.
type PinnedAllocator = device.PinnedAllocator

// Kind identifies a backend implementation.
type Kind = device.Kind

// Backend kinds.
const (
	None   = device.None
	Sim    = device.Sim
	WebGPU = device.WebGPU
)

// Fixed is a Context that always reports the same device.
type Fixed = device.Fixed

// Common device errors.
var (
	ErrUnavailable   = device.ErrUnavailable
	ErrNoSuchDevice  = device.ErrNoSuchDevice
	ErrOutOfMemory   = device.ErrOutOfMemory
	ErrForeignMemory = device.ErrForeignMemory
	ErrDoubleFree    = device.ErrDoubleFree
	ErrStreamClosed  = device.ErrStreamClosed
	ErrShortBuffer   = device.ErrShortBuffer
)

// ParseKind converts a backend name into a Kind.
func ParseKind(s string) (Kind, error) {
	return device.ParseKind(s)
}
