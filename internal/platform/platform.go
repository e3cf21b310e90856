// Package platform builds host allocators and devices from configuration and
// hands out buffers wired to them.
package platform

import (
	"errors"
	"fmt"

	"github.com/born-ml/syncmem/internal/backend/sim"
	"github.com/born-ml/syncmem/internal/backend/webgpu"
	"github.com/born-ml/syncmem/internal/config"
	"github.com/born-ml/syncmem/internal/device"
	"github.com/born-ml/syncmem/internal/hostalloc"
	"github.com/born-ml/syncmem/internal/logging"
	"github.com/born-ml/syncmem/internal/syncedmem"
	"github.com/sirupsen/logrus"
)

// openWebGPU is replaced in tests.
var openWebGPU = webgpu.Open

// Platform owns the host allocator and the device backend.
type Platform struct {
	cfg  config.Config
	kind device.Kind

	host *hostalloc.Tracked
	sim  *sim.Platform
	dev  device.Device // non-sim backends
	ctx  device.Context

	log *logrus.Entry
}

// Open builds the platform described by cfg.
func Open(cfg *config.Config) (*Platform, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("platform: %w", err)
	}
	kind, _ := device.ParseKind(cfg.Device.Backend)

	p := &Platform{
		cfg:  *cfg,
		kind: kind,
		log:  logging.Component("platform"),
	}

	switch kind {
	case device.Sim:
		sp, err := sim.NewPlatform(cfg.Device.Count,
			sim.WithMemoryLimit(cfg.Device.MemoryLimit),
			sim.WithLogger(logging.Component("sim")),
		)
		if err != nil {
			return nil, fmt.Errorf("platform: %w", err)
		}
		if err := sp.SetDevice(cfg.Device.Current); err != nil {
			return nil, fmt.Errorf("platform: %w", err)
		}
		p.sim = sp
		p.ctx = sp
	case device.WebGPU:
		d, err := openWebGPU(webgpu.WithLogger(logging.Component("webgpu")))
		if err != nil {
			return nil, fmt.Errorf("platform: %w", err)
		}
		p.dev = d
		if c, ok := d.(device.Context); ok {
			p.ctx = c
		} else {
			p.ctx = device.Fixed(d.ID())
		}
	case device.None:
	}

	alloc, err := p.hostAllocator()
	if err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("platform: %w", err)
	}
	p.host = hostalloc.NewTracked(alloc)

	p.log.WithFields(logrus.Fields{
		"backend":   kind.String(),
		"allocator": p.host.Name(),
	}).Info("platform opened")
	return p, nil
}

func (p *Platform) hostAllocator() (hostalloc.Allocator, error) {
	switch p.cfg.Host.Allocator {
	case "mmap":
		return hostalloc.NewMmap()
	case "pinned":
		src, ok := p.Device().(hostalloc.PinnedSource)
		if !ok {
			return nil, fmt.Errorf("%s backend cannot allocate pinned host memory", p.kind)
		}
		return hostalloc.NewPinned(src), nil
	default:
		return hostalloc.NewGo(p.cfg.Host.Alignment)
	}
}

// Kind returns the device backend kind.
func (p *Platform) Kind() device.Kind {
	return p.kind
}

// Config returns the configuration the platform was built from.
func (p *Platform) Config() config.Config {
	return p.cfg
}

// HasDevice reports whether a device backend is available.
func (p *Platform) HasDevice() bool {
	return p.kind != device.None
}

// Device returns the current device, or nil without a device backend.
func (p *Platform) Device() device.Device {
	if p.sim != nil {
		return p.sim.Current()
	}
	return p.dev
}

// Context returns the current-device context, or nil without a device
// backend.
func (p *Platform) Context() device.Context {
	return p.ctx
}

// Sim returns the simulated platform, or nil for other backends.
func (p *Platform) Sim() *sim.Platform {
	return p.sim
}

// HostStats returns host allocation counters.
func (p *Platform) HostStats() hostalloc.Stats {
	return p.host.Stats()
}

// NewBuffer creates a buffer of size bytes bound to the current device.
func (p *Platform) NewBuffer(size int) *syncedmem.SyncedMemory {
	opts := []syncedmem.Option{
		syncedmem.WithHostAllocator(p.host),
		syncedmem.WithLogger(logging.Component("syncedmem")),
		syncedmem.WithAffinityCheck(p.cfg.Buffer.AffinityCheck),
	}
	if d := p.Device(); d != nil {
		opts = append(opts, syncedmem.WithDevice(d, p.ctx))
	}
	return syncedmem.New(size, opts...)
}

// NewStream creates a transfer stream on the current device.
func (p *Platform) NewStream() (device.Stream, error) {
	d := p.Device()
	if d == nil {
		return nil, fmt.Errorf("platform: %w: no device backend configured", device.ErrUnavailable)
	}
	return d.NewStream()
}

// Close releases backend resources.
func (p *Platform) Close() error {
	var errs []error
	if r, ok := p.dev.(interface{ Release() }); ok {
		r.Release()
	}
	if p.host != nil {
		if s := p.host.Stats(); s.LiveBytes > 0 {
			errs = append(errs, fmt.Errorf("platform: %d host bytes still allocated", s.LiveBytes))
		}
	}
	p.log.Debug("platform closed")
	return errors.Join(errs...)
}
