// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package syncedmem

import (
	"github.com/born-ml/syncmem/internal/syncedmem"
)

// SyncedMemory is a fixed-size buffer with lazily allocated host and device
// copies.
type SyncedMemory = syncedmem.SyncedMemory

// Residency says which copy of a buffer holds current data.
type Residency = syncedmem.Residency

// Residency states.
const (
	Uninitialized = syncedmem.Uninitialized
	HostFresh     = syncedmem.HostFresh
	DeviceFresh   = syncedmem.DeviceFresh
	Synced        = syncedmem.Synced
)

// Option configures a SyncedMemory.
type Option = syncedmem.Option

// FatalError is the panic value raised on misuse.
type FatalError = syncedmem.FatalError

// Contract violations wrapped by FatalError.
var (
	ErrInvalidSize       = syncedmem.ErrInvalidSize
	ErrDeviceUnavailable = syncedmem.ErrDeviceUnavailable
	ErrDeviceMismatch    = syncedmem.ErrDeviceMismatch
	ErrNilBlock          = syncedmem.ErrNilBlock
	ErrNilStream         = syncedmem.ErrNilStream
	ErrSizeMismatch      = syncedmem.ErrSizeMismatch
	ErrNotHostFresh      = syncedmem.ErrNotHostFresh
	ErrAllocation        = syncedmem.ErrAllocation
	ErrTransfer          = syncedmem.ErrTransfer
	ErrReleased          = syncedmem.ErrReleased
)

// New creates an empty buffer of size bytes. Without WithDevice the buffer
// is host-only.
func New(size int, opts ...Option) *SyncedMemory {
	return syncedmem.New(size, opts...)
}

// WithHostAllocator sets the allocator for owned host blocks.
var WithHostAllocator = syncedmem.WithHostAllocator

// WithDevice binds the buffer to a device. ctx reports the caller's current
// device; nil means the caller always runs on the given device.
var WithDevice = syncedmem.WithDevice

// WithLogger sets the logrus entry used for transitions and violations.
var WithLogger = syncedmem.WithLogger

// WithAffinityCheck toggles the per-call current-device check.
var WithAffinityCheck = syncedmem.WithAffinityCheck
