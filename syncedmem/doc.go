// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package syncedmem provides byte buffers that live in host memory, device
// memory or both, and move data between the two only when needed.
//
// # Overview
//
// A SyncedMemory starts empty. Reading or writing one side allocates that
// side on demand; reading a side that holds older data than the other copies
// it over first. The buffer tracks which side is fresh with four states:
//
//   - Uninitialized: nothing allocated yet
//   - HostFresh: the host copy is authoritative
//   - DeviceFresh: the device copy is authoritative
//   - Synced: both copies hold the same bytes
//
// # Basic Usage
//
//	import (
//	    "github.com/born-ml/syncmem/backend/sim"
//	    "github.com/born-ml/syncmem/syncedmem"
//	)
//
//	func main() {
//	    platform, _ := sim.NewPlatform(1)
//	    dev := platform.Current()
//
//	    m := syncedmem.New(1024, syncedmem.WithDevice(dev, platform))
//	    defer m.Release()
//
//	    copy(m.MutableHostData(), weights) // HostFresh
//	    mem := m.DeviceData()              // copied to the device, Synced
//	    runKernel(mem)
//	}
//
// # Ownership
//
// Blocks the buffer allocates are freed by Release. Blocks installed with
// SetHostData or SetDeviceData stay owned by the caller and are never freed.
//
// # Misuse
//
// Contract violations such as adopting a nil block, using the buffer from
// another device or pushing stale data asynchronously are logged and then
// raised as a panic carrying a *FatalError.
//
// # Concurrency
//
// A SyncedMemory is not safe for concurrent use. Async pushes are the only
// overlap: the buffer waits for an outstanding push before any call that
// could observe or disturb it.
package syncedmem
