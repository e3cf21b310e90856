package platform

import (
	"testing"

	"github.com/born-ml/syncmem/internal/backend/sim"
	"github.com/born-ml/syncmem/internal/backend/webgpu"
	"github.com/born-ml/syncmem/internal/config"
	"github.com/born-ml/syncmem/internal/device"
	"github.com/born-ml/syncmem/internal/syncedmem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func simConfig(count int) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Device.Backend = "sim"
	cfg.Device.Count = count
	cfg.Logging.Level = "error"
	return cfg
}

func TestOpenSim(t *testing.T) {
	p, err := Open(simConfig(2))
	require.NoError(t, err)

	assert.Equal(t, device.Sim, p.Kind())
	assert.True(t, p.HasDevice())
	require.NotNil(t, p.Sim())
	assert.Equal(t, 2, p.Sim().Count())
	assert.Equal(t, 0, p.Device().ID())

	m := p.NewBuffer(64)
	assert.True(t, m.HasDevice())
	copy(m.MutableHostData(), []byte("platform"))
	m.DeviceData()
	assert.Equal(t, syncedmem.Synced, m.Head())
	m.Release()

	assert.Equal(t, int64(1), p.HostStats().Allocs)
	assert.NoError(t, p.Close())
}

func TestOpenSimCurrentDevice(t *testing.T) {
	cfg := simConfig(3)
	cfg.Device.Current = 2
	p, err := Open(cfg)
	require.NoError(t, err)

	m := p.NewBuffer(8)
	assert.Equal(t, 2, m.DeviceID())
	m.Release()
}

func TestOpenSimMemoryLimit(t *testing.T) {
	cfg := simConfig(1)
	cfg.Device.MemoryLimit = 16
	p, err := Open(cfg)
	require.NoError(t, err)

	_, err = p.Device().Alloc(32)
	assert.ErrorIs(t, err, device.ErrOutOfMemory)
}

func TestOpenHostOnly(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Device.Backend = "none"
	p, err := Open(cfg)
	require.NoError(t, err)

	assert.False(t, p.HasDevice())
	assert.Nil(t, p.Device())

	m := p.NewBuffer(16)
	assert.False(t, m.HasDevice())
	assert.Len(t, m.HostData(), 16)
	m.Release()

	_, err = p.NewStream()
	assert.ErrorIs(t, err, device.ErrUnavailable)
}

func TestOpenPinned(t *testing.T) {
	cfg := simConfig(1)
	cfg.Host.Allocator = "pinned"
	p, err := Open(cfg)
	require.NoError(t, err)

	m := p.NewBuffer(32)
	m.HostData()
	m.Release()

	dev := p.Device().(*sim.Device)
	assert.Equal(t, int64(1), dev.Stats().PinnedAllocs)
	assert.Equal(t, int64(1), dev.Stats().PinnedFrees)
}

func TestOpenWebGPUUnavailable(t *testing.T) {
	prev := openWebGPU
	openWebGPU = func(...webgpu.Option) (device.Device, error) {
		return nil, device.ErrUnavailable
	}
	t.Cleanup(func() { openWebGPU = prev })

	cfg := config.DefaultConfig()
	cfg.Device.Backend = "webgpu"
	_, err := Open(cfg)
	assert.ErrorIs(t, err, device.ErrUnavailable)
}

func TestOpenWebGPUFixedContext(t *testing.T) {
	d := sim.NewDevice(0)
	prev := openWebGPU
	openWebGPU = func(...webgpu.Option) (device.Device, error) { return d, nil }
	t.Cleanup(func() { openWebGPU = prev })

	cfg := config.DefaultConfig()
	cfg.Device.Backend = "webgpu"
	p, err := Open(cfg)
	require.NoError(t, err)

	assert.Same(t, d, p.Device())
	cur, err := p.Context().CurrentDevice()
	require.NoError(t, err)
	assert.Equal(t, 0, cur)

	s, err := p.NewStream()
	require.NoError(t, err)
	assert.Equal(t, 0, s.DeviceID())
}

func TestOpenInvalidConfig(t *testing.T) {
	cfg := simConfig(1)
	cfg.Host.Allocator = "slab"
	_, err := Open(cfg)
	assert.Error(t, err)
}

func TestCloseReportsLeaks(t *testing.T) {
	p, err := Open(simConfig(1))
	require.NoError(t, err)

	m := p.NewBuffer(10)
	m.HostData()

	err = p.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "10 host bytes")

	m.Release()
	assert.NoError(t, p.Close())
}
