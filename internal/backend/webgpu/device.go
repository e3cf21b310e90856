//go:build windows

package webgpu

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/born-ml/syncmem/internal/device"
	"github.com/born-ml/syncmem/internal/logging"
	"github.com/go-webgpu/webgpu/wgpu"
	"github.com/sirupsen/logrus"
)

// Verify that Device implements the device contracts.
var (
	_ device.Device  = (*Device)(nil)
	_ device.Context = (*Device)(nil)
)

// Device is a WebGPU adapter exposed as a device.Device.
type Device struct {
	instance    *wgpu.Instance
	adapter     *wgpu.Adapter
	device      *wgpu.Device
	queue       *wgpu.Queue
	adapterInfo *wgpu.AdapterInfo

	pool     *bufferPool
	maxBatch int
	log      *logrus.Entry

	// Memory tracking
	memoryStats struct {
		liveBytes   uint64
		peakBytes   uint64
		liveBuffers int64
		mu          sync.RWMutex
	}

	// queueMu orders synchronous submissions against stream flushes.
	queueMu sync.Mutex
}

// New opens the default WebGPU adapter.
// Returns an error if WebGPU is not available or initialization fails.
func New(opts ...Option) (d *Device, err error) {
	// Recover from panic if wgpu_native library is not found.
	defer func() {
		if r := recover(); r != nil {
			d = nil
			err = fmt.Errorf("%w: webgpu native library not available: %v", device.ErrUnavailable, r)
		}
	}()

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logging.Component("webgpu")
	}

	instance := wgpu.CreateInstance(nil)
	adapter, adapterErr := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if adapterErr != nil {
		instance.Release()
		return nil, fmt.Errorf("%w: webgpu: failed to request adapter: %w", device.ErrUnavailable, adapterErr)
	}

	adapterInfo := adapter.GetInfo()

	gpu, deviceErr := adapter.RequestDevice(nil)
	if deviceErr != nil {
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("%w: webgpu: failed to request device: %w", device.ErrUnavailable, deviceErr)
	}

	queue := gpu.GetQueue()
	if queue == nil {
		gpu.Release()
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("%w: webgpu: failed to get queue", device.ErrUnavailable)
	}

	d = &Device{
		instance:    instance,
		adapter:     adapter,
		device:      gpu,
		queue:       queue,
		adapterInfo: &adapterInfo,
		pool:        newBufferPool(gpu, o.poolEnabled, o.maxPooled),
		maxBatch:    o.maxBatch,
	}
	d.log = o.log.WithField("device", d.Name())
	d.log.Debug("webgpu device opened")
	return d, nil
}

// Open opens the default adapter as a device.Device.
func Open(opts ...Option) (device.Device, error) {
	return New(opts...)
}

// IsAvailable checks if WebGPU is available on this system.
func IsAvailable() (available bool) {
	// Recover from panic if wgpu_native library is not found.
	defer func() {
		if r := recover(); r != nil {
			available = false
		}
	}()

	instance := wgpu.CreateInstance(nil)
	defer instance.Release()

	adapter, err := instance.RequestAdapter(nil)
	if err != nil {
		return false
	}
	adapter.Release()
	return true
}

// Release releases the pool and all WebGPU objects. Blocks still held by
// callers become invalid.
func (d *Device) Release() {
	if d.pool != nil {
		d.pool.clear()
	}
	if d.queue != nil {
		d.queue.Release()
		d.queue = nil
	}
	if d.device != nil {
		d.device.Release()
		d.device = nil
	}
	if d.adapter != nil {
		d.adapter.Release()
		d.adapter = nil
	}
	if d.instance != nil {
		d.instance.Release()
		d.instance = nil
	}
}

// ID returns DeviceID.
func (d *Device) ID() int { return DeviceID }

// Name returns the adapter name.
func (d *Device) Name() string {
	if d.adapterInfo != nil && d.adapterInfo.Device != "" {
		return fmt.Sprintf("webgpu (%s %s)", d.adapterInfo.Device, d.adapterInfo.Vendor)
	}
	return "webgpu"
}

// Kind returns device.WebGPU.
func (d *Device) Kind() device.Kind { return device.WebGPU }

// CurrentDevice implements device.Context; there is only one device.
func (d *Device) CurrentDevice() (int, error) { return DeviceID, nil }

// AdapterInfo returns information about the GPU adapter.
func (d *Device) AdapterInfo() *wgpu.AdapterInfo {
	return d.adapterInfo
}

// Alloc creates a storage buffer of at least size bytes.
func (d *Device) Alloc(size int) (device.Memory, error) {
	if size < 0 {
		return nil, fmt.Errorf("webgpu: negative allocation size %d", size)
	}
	aligned := alignSize(size)
	buf := d.pool.acquire(aligned)
	if buf == nil {
		return nil, fmt.Errorf("%w: webgpu: CreateBuffer of %d bytes failed", device.ErrOutOfMemory, aligned)
	}
	d.trackAlloc(aligned)
	return &Memory{dev: d, buf: buf, size: size, aligned: aligned}, nil
}

// Free returns the block's buffer to the pool.
func (d *Device) Free(mem device.Memory) error {
	m, err := d.own(mem)
	if err != nil {
		return err
	}
	if m.freed {
		d.log.WithField("bytes", m.size).Warn("double free of device memory")
		return fmt.Errorf("%w: %s", device.ErrDoubleFree, d.Name())
	}
	m.freed = true
	d.pool.put(m.buf, m.aligned)
	m.buf = nil
	d.trackRelease(m.aligned)
	return nil
}

// Memset fills the whole block with value.
func (d *Device) Memset(mem device.Memory, value byte) error {
	m, err := d.usable(mem)
	if err != nil {
		return err
	}
	fill := make([]byte, m.aligned)
	if value != 0 {
		for i := range fill {
			fill[i] = value
		}
	}
	d.submitUpload(m, fill)
	return nil
}

// CopyToDevice copies src into the start of dst and submits the copy.
// Later copies and reads on the queue observe it.
func (d *Device) CopyToDevice(dst device.Memory, src []byte) error {
	m, err := d.usable(dst)
	if err != nil {
		return err
	}
	if m.size < len(src) {
		return fmt.Errorf("%w: device block %d bytes, copy %d", device.ErrShortBuffer, m.size, len(src))
	}
	if len(src) == 0 {
		return nil
	}
	data, err := d.padded(m, src)
	if err != nil {
		return err
	}
	d.submitUpload(m, data)
	return nil
}

// CopyToHost fills dst from the start of src.
func (d *Device) CopyToHost(dst []byte, src device.Memory) error {
	m, err := d.usable(src)
	if err != nil {
		return err
	}
	if m.size < len(dst) {
		return fmt.Errorf("%w: device block %d bytes, copy %d", device.ErrShortBuffer, m.size, len(dst))
	}
	if len(dst) == 0 {
		return nil
	}
	data, err := d.readBuffer(m.buf, alignSize(len(dst)))
	if err != nil {
		return err
	}
	copy(dst, data)
	return nil
}

// CopyToDeviceAsync records the copy on s. src is staged immediately; the
// command reaches the GPU when s is flushed or synchronized.
//
// A partial copy whose length is not a multiple of 4 blocks: s is flushed
// and the bytes after src are read back so the padded write keeps them.
func (d *Device) CopyToDeviceAsync(dst device.Memory, src []byte, s device.Stream) error {
	m, err := d.usable(dst)
	if err != nil {
		return err
	}
	if m.size < len(src) {
		return fmt.Errorf("%w: device block %d bytes, copy %d", device.ErrShortBuffer, m.size, len(src))
	}
	st, ok := s.(*Stream)
	if !ok || st.dev != d {
		return fmt.Errorf("%w: stream not created by %s", device.ErrForeignMemory, d.Name())
	}
	if len(src) == 0 {
		return nil
	}
	if needsTail(m, src) {
		st.Flush()
	}
	data, err := d.padded(m, src)
	if err != nil {
		return err
	}

	staging := d.createBuffer(data, wgpu.BufferUsageCopySrc)
	encoder := d.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(staging, 0, m.buf, 0, uint64(len(data)))
	return st.queueCommand(encoder.Finish(nil), staging, m.buf)
}

// NewStream creates a command batch that submits on Synchronize.
func (d *Device) NewStream() (device.Stream, error) {
	return &Stream{dev: d, maxBatch: d.maxBatch}, nil
}

// MemoryStats represents GPU memory usage statistics.
type MemoryStats struct {
	LiveBytes   uint64
	PeakBytes   uint64
	LiveBuffers int64
	Pool        PoolStats
}

// MemoryStats returns current GPU memory usage statistics.
func (d *Device) MemoryStats() MemoryStats {
	d.memoryStats.mu.RLock()
	defer d.memoryStats.mu.RUnlock()
	return MemoryStats{
		LiveBytes:   d.memoryStats.liveBytes,
		PeakBytes:   d.memoryStats.peakBytes,
		LiveBuffers: d.memoryStats.liveBuffers,
		Pool:        d.pool.snapshot(),
	}
}

func (d *Device) trackAlloc(size uint64) {
	d.memoryStats.mu.Lock()
	defer d.memoryStats.mu.Unlock()

	d.memoryStats.liveBytes += size
	d.memoryStats.liveBuffers++
	if d.memoryStats.liveBytes > d.memoryStats.peakBytes {
		d.memoryStats.peakBytes = d.memoryStats.liveBytes
	}
}

func (d *Device) trackRelease(size uint64) {
	d.memoryStats.mu.Lock()
	defer d.memoryStats.mu.Unlock()

	if d.memoryStats.liveBytes >= size {
		d.memoryStats.liveBytes -= size
	}
	d.memoryStats.liveBuffers--
}

// padded returns src extended to the copy granularity. When the copy ends
// inside the block on an unaligned offset, the bytes after it are read back
// so the padding does not clobber them.
func (d *Device) padded(m *Memory, src []byte) ([]byte, error) {
	n := alignSize(len(src))
	data := make([]byte, n)
	copy(data, src)
	if !needsTail(m, src) {
		return data, nil
	}

	tail, err := d.readBuffer(m.buf, n)
	if err != nil {
		return nil, err
	}
	copy(data[len(src):], tail[len(src):])
	return data, nil
}

// needsTail reports whether padding src would overwrite live bytes of m.
func needsTail(m *Memory, src []byte) bool {
	return uint64(len(src)) != alignSize(len(src)) && len(src) < m.size
}

// submitUpload stages data and copies it to the start of m.
func (d *Device) submitUpload(m *Memory, data []byte) {
	staging := d.createBuffer(data, wgpu.BufferUsageCopySrc)
	defer staging.Release()

	encoder := d.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(staging, 0, m.buf, 0, uint64(len(data)))
	cmd := encoder.Finish(nil)

	d.queueMu.Lock()
	d.queue.Submit(cmd)
	d.queueMu.Unlock()
}

// createBuffer creates a GPU buffer and uploads data into it.
func (d *Device) createBuffer(data []byte, usage wgpu.BufferUsage) *wgpu.Buffer {
	size := uint64(len(data))

	buffer := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            usage,
		Size:             size,
		MappedAtCreation: wgpu.True,
	})

	mappedPtr := buffer.GetMappedRange(0, size)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	mappedSlice := unsafe.Slice((*byte)(mappedPtr), size)
	copy(mappedSlice, data)
	buffer.Unmap()

	return buffer
}

// readBuffer reads size bytes back from a GPU buffer.
// Uses a staging buffer since storage buffers can't be mapped directly.
func (d *Device) readBuffer(src *wgpu.Buffer, size uint64) ([]byte, error) {
	staging := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
		Size:  size,
	})
	defer staging.Release()

	encoder := d.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(src, 0, staging, 0, size)
	cmd := encoder.Finish(nil)

	d.queueMu.Lock()
	d.queue.Submit(cmd)
	d.queueMu.Unlock()

	if err := staging.MapAsync(d.device, wgpu.MapModeRead, 0, size); err != nil {
		return nil, fmt.Errorf("webgpu: failed to map staging buffer: %w", err)
	}

	mappedPtr := staging.GetMappedRange(0, size)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	mappedSlice := unsafe.Slice((*byte)(mappedPtr), size)
	result := make([]byte, size)
	copy(result, mappedSlice)
	staging.Unmap()

	return result, nil
}

func (d *Device) own(mem device.Memory) (*Memory, error) {
	m, ok := mem.(*Memory)
	if !ok || m == nil || m.dev != d {
		return nil, fmt.Errorf("%w: %T", device.ErrForeignMemory, mem)
	}
	return m, nil
}

func (d *Device) usable(mem device.Memory) (*Memory, error) {
	m, err := d.own(mem)
	if err != nil {
		return nil, err
	}
	if m.freed {
		return nil, fmt.Errorf("%w: webgpu block used after free", device.ErrDoubleFree)
	}
	return m, nil
}

// Memory is a storage buffer on the WebGPU device.
type Memory struct {
	dev     *Device
	buf     *wgpu.Buffer
	size    int
	aligned uint64
	freed   bool
}

// Size returns the requested block size in bytes.
func (m *Memory) Size() int { return m.size }

// DeviceID returns DeviceID.
func (m *Memory) DeviceID() int { return DeviceID }

// Buffer returns the underlying storage buffer for binding in compute
// passes. It is nil after Free.
func (m *Memory) Buffer() *wgpu.Buffer { return m.buf }
