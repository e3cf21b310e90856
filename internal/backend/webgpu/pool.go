//go:build windows

package webgpu

import (
	"sync"

	"github.com/go-webgpu/webgpu/wgpu"
)

// storageUsage is the usage of every device block.
const storageUsage = wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst

// PoolStats describes buffer reuse since the device was created.
type PoolStats struct {
	Created  uint64
	Returned uint64
	Hits     uint64
	Misses   uint64
	Idle     int
}

// bufferPool keeps freed storage buffers for reuse, keyed by aligned size.
type bufferPool struct {
	device  *wgpu.Device
	enabled bool
	maxIdle int

	mu    sync.Mutex
	idle  map[uint64][]*wgpu.Buffer
	stats PoolStats
}

func newBufferPool(device *wgpu.Device, enabled bool, maxIdle int) *bufferPool {
	return &bufferPool{
		device:  device,
		enabled: enabled,
		maxIdle: maxIdle,
		idle:    make(map[uint64][]*wgpu.Buffer),
	}
}

// acquire returns an idle buffer of exactly size bytes or creates one.
func (p *bufferPool) acquire(size uint64) *wgpu.Buffer {
	p.mu.Lock()
	defer p.mu.Unlock()

	if free := p.idle[size]; len(free) > 0 {
		buf := free[len(free)-1]
		p.idle[size] = free[:len(free)-1]
		p.stats.Hits++
		p.stats.Idle--
		return buf
	}

	p.stats.Misses++
	p.stats.Created++
	return p.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: storageUsage,
		Size:  size,
	})
}

// put hands a buffer back. It is released right away when pooling is off or
// its size class is full.
func (p *bufferPool) put(buf *wgpu.Buffer, size uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stats.Returned++
	if !p.enabled || len(p.idle[size]) >= p.maxIdle {
		buf.Release()
		return
	}
	p.idle[size] = append(p.idle[size], buf)
	p.stats.Idle++
}

// clear releases every idle buffer.
func (p *bufferPool) clear() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for size, free := range p.idle {
		for _, buf := range free {
			buf.Release()
		}
		delete(p.idle, size)
	}
	p.stats.Idle = 0
}

func (p *bufferPool) snapshot() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}
