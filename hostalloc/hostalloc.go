// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package hostalloc provides host-memory allocators for synchronized
// buffers.
package hostalloc

import (
	"github.com/born-ml/syncmem/internal/hostalloc"
)

// Allocator hands out and takes back host memory blocks.
type Allocator = hostalloc.Allocator

// Tracked wraps an Allocator with usage counters.
type Tracked = hostalloc.Tracked

// Stats are the counters of a Tracked allocator.
type Stats = hostalloc.Stats

// PinnedSource is a device able to allocate pinned host memory.
type PinnedSource = hostalloc.PinnedSource

// DefaultAlignment is the alignment used by NewGo(0).
const DefaultAlignment = hostalloc.DefaultAlignment

// NewGo returns a Go heap allocator with the given power-of-two alignment.
func NewGo(alignment int) (Allocator, error) {
	return hostalloc.NewGo(alignment)
}

// NewMmap returns an allocator backed by anonymous memory mappings.
func NewMmap() (Allocator, error) {
	return hostalloc.NewMmap()
}

// NewPinned returns an allocator that takes host memory from src.
func NewPinned(src PinnedSource) Allocator {
	return hostalloc.NewPinned(src)
}

// NewTracked wraps inner with usage counters.
func NewTracked(inner Allocator) *Tracked {
	return hostalloc.NewTracked(inner)
}
