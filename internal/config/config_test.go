package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "sim", cfg.Device.Backend)
	assert.Equal(t, 1, cfg.Device.Count)
	assert.Equal(t, "go", cfg.Host.Allocator)
	assert.True(t, cfg.Buffer.AffinityCheck)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "syncmem.yaml")
	content := `
device:
  backend: sim
  count: 4
  memory_limit: 1048576
  current: 2
host:
  allocator: pinned
  alignment: 128
buffer:
  affinity_check: false
snapshot:
  dir: ` + filepath.Join(dir, "snaps") + `
  compress: false
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Device.Count)
	assert.Equal(t, int64(1048576), cfg.Device.MemoryLimit)
	assert.Equal(t, 2, cfg.Device.Current)
	assert.Equal(t, "pinned", cfg.Host.Allocator)
	assert.Equal(t, 128, cfg.Host.Alignment)
	assert.False(t, cfg.Buffer.AffinityCheck)
	assert.False(t, cfg.Snapshot.Compress)
	assert.Equal(t, filepath.Join(dir, "snaps"), cfg.Snapshot.Dir)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "syncmem.yaml")
	require.NoError(t, os.WriteFile(path, []byte("device:\n  backend: sim\n"), 0o600))

	t.Setenv("SYNCMEM_DEVICE_COUNT", "3")
	t.Setenv("SYNCMEM_LOGGING_LEVEL", "error")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Device.Count)
	assert.Equal(t, "error", cfg.Logging.Level)
}

func TestLoadInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "syncmem.yaml")
	require.NoError(t, os.WriteFile(path, []byte("device:\n  backend: cuda\n"), 0o600))

	_, err := Load(path)
	assert.ErrorContains(t, err, "device.backend")
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		errMsg string
	}{
		{"zero sim devices", func(c *Config) { c.Device.Count = 0 }, "device.count"},
		{"negative limit", func(c *Config) { c.Device.MemoryLimit = -1 }, "device.memory_limit"},
		{"current out of range", func(c *Config) { c.Device.Current = 1 }, "device.current"},
		{"unknown allocator", func(c *Config) { c.Host.Allocator = "slab" }, "host.allocator"},
		{"pinned without device", func(c *Config) {
			c.Device.Backend = "none"
			c.Host.Allocator = "pinned"
		}, "requires a device"},
		{"odd alignment", func(c *Config) { c.Host.Alignment = 48 }, "host.alignment"},
		{"bad level", func(c *Config) { c.Logging.Level = "trace" }, "logging.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestHostOnlyBackendIgnoresCount(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Device.Backend = "none"
	cfg.Device.Count = 0
	assert.NoError(t, cfg.Validate())
}

func TestExpandPaths(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	t.Setenv("SYNCMEM_TEST_DIR", "/var/tmp/x")

	cfg := DefaultConfig()
	cfg.Snapshot.Dir = "~/snaps"
	cfg.Logging.File = "$SYNCMEM_TEST_DIR/syncmem.log"
	cfg.ExpandPaths()

	assert.Equal(t, filepath.Join(home, "snaps"), cfg.Snapshot.Dir)
	assert.Equal(t, "/var/tmp/x/syncmem.log", cfg.Logging.File)
}

func TestYAML(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Device.Count = 2

	out, err := cfg.YAML()
	require.NoError(t, err)
	assert.Contains(t, string(out), "memory_limit:")

	var back Config
	require.NoError(t, yaml.Unmarshal(out, &back))
	assert.Equal(t, *cfg, back)
}
