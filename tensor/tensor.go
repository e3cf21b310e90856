// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides shaped, typed storage backed by synchronized
// buffers.
//
// Example:
//
//	alloc := func(size int) *syncedmem.SyncedMemory {
//	    return syncedmem.New(size, syncedmem.WithDevice(dev, nil))
//	}
//	s, _ := tensor.NewStorage(tensor.Shape{2, 3}, tensor.Float32, alloc)
//	copy(s.MutableFloat32(), values)
//	kernel(s.Memory().DeviceData())
package tensor

import (
	"github.com/born-ml/syncmem/internal/tensor"
)

// Shape represents the dimensions of a tensor.
type Shape = tensor.Shape

// DataType represents runtime element type information.
type DataType = tensor.DataType

// DType is the constraint satisfied by supported element types.
type DType = tensor.DType

// Supported data types.
const (
	Float32 = tensor.Float32
	Float64 = tensor.Float64
	Int32   = tensor.Int32
	Int64   = tensor.Int64
	Uint8   = tensor.Uint8
	Bool    = tensor.Bool
)

// Storage is a shaped, typed view of one synchronized buffer.
type Storage = tensor.Storage

// Allocator creates the buffer behind a Storage.
type Allocator = tensor.Allocator

// NewStorage allocates storage for shape and dtype.
func NewStorage(shape Shape, dtype DataType, alloc Allocator) (*Storage, error) {
	return tensor.NewStorage(shape, dtype, alloc)
}

// ParseDataType converts a type name back to a DataType.
func ParseDataType(s string) (DataType, error) {
	return tensor.ParseDataType(s)
}

// HostView returns the host data as []T for reading.
func HostView[T DType](s *Storage) []T {
	return tensor.HostView[T](s)
}

// MutableHostView returns the host data as []T for writing.
func MutableHostView[T DType](s *Storage) []T {
	return tensor.MutableHostView[T](s)
}
