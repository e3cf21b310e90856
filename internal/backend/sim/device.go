// Package sim implements device.Device on plain host RAM.
//
// Device memory is kept strictly apart from host memory: a Memory handle is
// only usable on the device that allocated it, frees are checked, and async
// copies stay queued on their stream until it is synchronized. This makes
// residency bugs (missing copies, stale reads, leaked or double-freed
// blocks) visible without a GPU.
package sim

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/born-ml/syncmem/internal/device"
	"github.com/born-ml/syncmem/internal/logging"
	"github.com/born-ml/syncmem/internal/parallel"
	"github.com/sirupsen/logrus"
)

// ErrUseAfterFree is returned when a freed Memory is used in a copy.
var ErrUseAfterFree = errors.New("use of freed device memory")

// Verify that Device implements the device contracts.
var (
	_ device.Device          = (*Device)(nil)
	_ device.PinnedAllocator = (*Device)(nil)
)

// Stats describes device activity since creation.
type Stats struct {
	Allocs    int64
	Frees     int64
	LiveBytes int64
	PeakBytes int64

	Memsets       int64
	HostToDevice  int64 // synchronous host→device copies
	DeviceToHost  int64 // synchronous device→host copies
	AsyncCopies   int64 // async host→device copies executed
	BytesToDevice int64
	BytesToHost   int64

	PinnedAllocs int64
	PinnedFrees  int64
}

// Option configures a Device.
type Option func(*Device)

// WithMemoryLimit caps the live device memory; allocations beyond it fail
// with device.ErrOutOfMemory. Zero means unlimited.
func WithMemoryLimit(bytes int64) Option {
	return func(d *Device) {
		d.limit = bytes
	}
}

// WithParallel sets how large copies are split across goroutines.
func WithParallel(cfg parallel.Config) Option {
	return func(d *Device) {
		d.par = cfg
	}
}

// WithLogger sets the log entry used by the device.
func WithLogger(e *logrus.Entry) Option {
	return func(d *Device) {
		d.log = e
	}
}

// Device is a simulated accelerator.
type Device struct {
	id    int
	name  string
	limit int64
	par   parallel.Config
	log   *logrus.Entry

	mu     sync.Mutex
	live   map[*Memory]struct{}
	pinned map[*byte]int
	stats  Stats
}

// NewDevice creates a standalone simulated device with the given id.
func NewDevice(id int, opts ...Option) *Device {
	d := &Device{
		id:     id,
		name:   fmt.Sprintf("sim:%d", id),
		par:    parallel.DefaultConfig(),
		live:   make(map[*Memory]struct{}),
		pinned: make(map[*byte]int),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.log == nil {
		d.log = logging.Component("sim")
	}
	d.log = d.log.WithField("device", d.name)
	return d
}

// ID returns the device ordinal.
func (d *Device) ID() int { return d.id }

// Name returns the device name.
func (d *Device) Name() string { return d.name }

// Kind returns device.Sim.
func (d *Device) Kind() device.Kind { return device.Sim }

// Alloc allocates size bytes of device memory. The contents are undefined
// until written; the simulator fills them with 0xCD so missing memsets show.
func (d *Device) Alloc(size int) (device.Memory, error) {
	if size < 0 {
		return nil, fmt.Errorf("sim: negative allocation size %d", size)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.limit > 0 && d.stats.LiveBytes+int64(size) > d.limit {
		d.log.WithFields(logrus.Fields{"bytes": size, "live": d.stats.LiveBytes, "limit": d.limit}).
			Warn("allocation refused by memory limit")
		return nil, fmt.Errorf("%w: %s: %d bytes requested, %d of %d in use",
			device.ErrOutOfMemory, d.name, size, d.stats.LiveBytes, d.limit)
	}

	m := &Memory{dev: d, data: make([]byte, size)}
	for i := range m.data {
		m.data[i] = 0xCD
	}
	d.live[m] = struct{}{}

	d.stats.Allocs++
	d.stats.LiveBytes += int64(size)
	if d.stats.LiveBytes > d.stats.PeakBytes {
		d.stats.PeakBytes = d.stats.LiveBytes
	}
	return m, nil
}

// Free releases device memory allocated by this device.
func (d *Device) Free(mem device.Memory) error {
	m, err := d.own(mem)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.live[m]; !ok {
		d.log.WithField("bytes", len(m.data)).Warn("double free of device memory")
		return fmt.Errorf("%w: %s", device.ErrDoubleFree, d.name)
	}
	delete(d.live, m)
	m.freed = true

	d.stats.Frees++
	d.stats.LiveBytes -= int64(len(m.data))
	return nil
}

// Memset sets every byte of mem to value.
func (d *Device) Memset(mem device.Memory, value byte) error {
	m, err := d.usable(mem)
	if err != nil {
		return err
	}
	parallel.Fill(m.data, value, d.par)

	d.mu.Lock()
	d.stats.Memsets++
	d.mu.Unlock()
	return nil
}

// CopyToDevice synchronously copies src into the start of dst.
func (d *Device) CopyToDevice(dst device.Memory, src []byte) error {
	m, err := d.usable(dst)
	if err != nil {
		return err
	}
	if len(m.data) < len(src) {
		return fmt.Errorf("%w: device block %d bytes, copy %d", device.ErrShortBuffer, len(m.data), len(src))
	}
	n := parallel.Copy(m.data, src, d.par)

	d.mu.Lock()
	d.stats.HostToDevice++
	d.stats.BytesToDevice += int64(n)
	d.mu.Unlock()
	return nil
}

// CopyToHost synchronously fills dst from the start of src.
func (d *Device) CopyToHost(dst []byte, src device.Memory) error {
	m, err := d.usable(src)
	if err != nil {
		return err
	}
	if len(m.data) < len(dst) {
		return fmt.Errorf("%w: device block %d bytes, copy %d", device.ErrShortBuffer, len(m.data), len(dst))
	}
	n := parallel.Copy(dst, m.data, d.par)

	d.mu.Lock()
	d.stats.DeviceToHost++
	d.stats.BytesToHost += int64(n)
	d.mu.Unlock()
	return nil
}

// CopyToDeviceAsync queues a copy of src into dst on s. The bytes are read
// from src when the stream is synchronized.
func (d *Device) CopyToDeviceAsync(dst device.Memory, src []byte, s device.Stream) error {
	m, err := d.usable(dst)
	if err != nil {
		return err
	}
	if len(m.data) < len(src) {
		return fmt.Errorf("%w: device block %d bytes, copy %d", device.ErrShortBuffer, len(m.data), len(src))
	}
	st, ok := s.(*Stream)
	if !ok || st.dev != d {
		return fmt.Errorf("%w: stream not created by %s", device.ErrForeignMemory, d.name)
	}

	return st.enqueue(func() {
		n := parallel.Copy(m.data, src, d.par)
		d.mu.Lock()
		d.stats.AsyncCopies++
		d.stats.BytesToDevice += int64(n)
		d.mu.Unlock()
	})
}

// NewStream creates an ordered transfer queue on this device.
func (d *Device) NewStream() (device.Stream, error) {
	return &Stream{dev: d}, nil
}

// AllocPinned allocates host memory registered with the device.
func (d *Device) AllocPinned(size int) ([]byte, error) {
	if size < 0 {
		return nil, fmt.Errorf("sim: negative allocation size %d", size)
	}
	buf := make([]byte, size)

	d.mu.Lock()
	defer d.mu.Unlock()
	if size > 0 {
		d.pinned[&buf[0]] = size
	}
	d.stats.PinnedAllocs++
	return buf, nil
}

// FreePinned releases host memory returned by AllocPinned.
func (d *Device) FreePinned(buf []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(buf) > 0 {
		if _, ok := d.pinned[&buf[0]]; !ok {
			return fmt.Errorf("%w: pinned block not registered with %s", device.ErrForeignMemory, d.name)
		}
		delete(d.pinned, &buf[0])
	}
	d.stats.PinnedFrees++
	return nil
}

// Stats returns a snapshot of the device counters.
func (d *Device) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// LiveBlocks returns the number of allocations not yet freed.
func (d *Device) LiveBlocks() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.live)
}

// own checks that mem was allocated by d.
func (d *Device) own(mem device.Memory) (*Memory, error) {
	m, ok := mem.(*Memory)
	if !ok || m == nil {
		return nil, fmt.Errorf("%w: %T", device.ErrForeignMemory, mem)
	}
	if m.dev != d {
		return nil, fmt.Errorf("%w: block from %s used on %s", device.ErrForeignMemory, m.dev.name, d.name)
	}
	return m, nil
}

// usable checks that mem was allocated by d and is still live.
func (d *Device) usable(mem device.Memory) (*Memory, error) {
	m, err := d.own(mem)
	if err != nil {
		return nil, err
	}
	if m.freed {
		return nil, fmt.Errorf("%w: %s", ErrUseAfterFree, d.name)
	}
	return m, nil
}

// Memory is a block of simulated device memory.
type Memory struct {
	dev   *Device
	data  []byte
	freed bool
}

// Size returns the block size in bytes.
func (m *Memory) Size() int { return len(m.data) }

// DeviceID returns the owning device id.
func (m *Memory) DeviceID() int { return m.dev.id }

// Bytes exposes the device bytes directly, the way a kernel running on the
// device would see them.
func (m *Memory) Bytes() []byte { return m.data }

// Stream is an ordered queue of deferred device commands.
type Stream struct {
	dev *Device

	mu     sync.Mutex
	ops    []func()
	closed bool
}

// DeviceID returns the device the stream belongs to.
func (s *Stream) DeviceID() int { return s.dev.id }

// Pending returns the number of queued commands.
func (s *Stream) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ops)
}

// Close drains the queue and rejects further commands.
func (s *Stream) Close() error {
	s.mu.Lock()
	ops := s.ops
	s.ops = nil
	s.closed = true
	s.mu.Unlock()

	for _, op := range ops {
		op()
	}
	return nil
}

func (s *Stream) enqueue(op func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return device.ErrStreamClosed
	}
	s.ops = append(s.ops, op)
	return nil
}

// Synchronize runs every queued command in order.
func (s *Stream) Synchronize(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	ops := s.ops
	s.ops = nil
	s.mu.Unlock()

	for _, op := range ops {
		op()
	}
	return nil
}
