// Package config loads syncmem configuration from file, environment and
// defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/born-ml/syncmem/internal/device"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment overrides, e.g. SYNCMEM_DEVICE_BACKEND.
const EnvPrefix = "SYNCMEM"

// Config represents the application configuration.
type Config struct {
	Device   DeviceConfig   `mapstructure:"device" yaml:"device"`
	Host     HostConfig     `mapstructure:"host" yaml:"host"`
	Buffer   BufferConfig   `mapstructure:"buffer" yaml:"buffer"`
	Snapshot SnapshotConfig `mapstructure:"snapshot" yaml:"snapshot"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
}

// DeviceConfig selects the device backend.
type DeviceConfig struct {
	Backend     string `mapstructure:"backend" yaml:"backend"`
	Count       int    `mapstructure:"count" yaml:"count"`
	MemoryLimit int64  `mapstructure:"memory_limit" yaml:"memory_limit"`
	Current     int    `mapstructure:"current" yaml:"current"`
}

// HostConfig selects the host allocator.
type HostConfig struct {
	Allocator string `mapstructure:"allocator" yaml:"allocator"`
	Alignment int    `mapstructure:"alignment" yaml:"alignment"`
}

// BufferConfig holds per-buffer defaults.
type BufferConfig struct {
	AffinityCheck bool `mapstructure:"affinity_check" yaml:"affinity_check"`
}

// SnapshotConfig configures the snapshot store. An empty Dir keeps
// snapshots in memory.
type SnapshotConfig struct {
	Dir      string `mapstructure:"dir" yaml:"dir"`
	Compress bool   `mapstructure:"compress" yaml:"compress"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level   string `mapstructure:"level" yaml:"level"`
	File    string `mapstructure:"file" yaml:"file"`
	Console bool   `mapstructure:"console" yaml:"console"`
}

// DefaultConfig returns configuration with default values.
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	baseDir := filepath.Join(home, ".syncmem")

	return &Config{
		Device: DeviceConfig{
			Backend: "sim",
			Count:   1,
		},
		Host: HostConfig{
			Allocator: "go",
			Alignment: 64,
		},
		Buffer: BufferConfig{
			AffinityCheck: true,
		},
		Snapshot: SnapshotConfig{
			Dir:      filepath.Join(baseDir, "snapshots"),
			Compress: true,
		},
		Logging: LoggingConfig{
			Level:   "warn",
			Console: true,
		},
	}
}

// Load loads configuration from file, environment, and defaults.
// Without cfgFile, config.yaml is looked up in ~/.syncmem and the working
// directory; a missing file is not an error.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	cfg := DefaultConfig()
	setDefaults(v, cfg)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("finding home directory: %w", err)
		}
		v.AddConfigPath(filepath.Join(home, ".syncmem"))
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName("config")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.ExpandPaths()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	kind, err := device.ParseKind(c.Device.Backend)
	if err != nil {
		return fmt.Errorf("device.backend: %w", err)
	}
	if kind == device.Sim && c.Device.Count < 1 {
		return errors.New("device.count must be at least 1 for the sim backend")
	}
	if c.Device.MemoryLimit < 0 {
		return errors.New("device.memory_limit must not be negative")
	}
	if c.Device.Current < 0 || (kind == device.Sim && c.Device.Current >= c.Device.Count) {
		return fmt.Errorf("device.current %d out of range", c.Device.Current)
	}

	validAllocators := []string{"go", "mmap", "pinned"}
	if !slices.Contains(validAllocators, c.Host.Allocator) {
		return fmt.Errorf("host.allocator must be one of: %v", validAllocators)
	}
	if c.Host.Allocator == "pinned" && kind == device.None {
		return errors.New("host.allocator pinned requires a device backend")
	}
	if a := c.Host.Alignment; a < 0 || (a != 0 && a&(a-1) != 0) {
		return fmt.Errorf("host.alignment %d must be zero or a power of two", a)
	}

	validLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLevels, c.Logging.Level) {
		return fmt.Errorf("logging.level must be one of: %v", validLevels)
	}
	return nil
}

// ExpandPaths expands ~ and environment variables in paths.
func (c *Config) ExpandPaths() {
	c.Snapshot.Dir = expandPath(c.Snapshot.Dir)
	c.Logging.File = expandPath(c.Logging.File)
}

// YAML renders the configuration as a YAML document.
func (c *Config) YAML() ([]byte, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshaling config: %w", err)
	}
	return out, nil
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return os.ExpandEnv(path)
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("device.backend", cfg.Device.Backend)
	v.SetDefault("device.count", cfg.Device.Count)
	v.SetDefault("device.memory_limit", cfg.Device.MemoryLimit)
	v.SetDefault("device.current", cfg.Device.Current)

	v.SetDefault("host.allocator", cfg.Host.Allocator)
	v.SetDefault("host.alignment", cfg.Host.Alignment)

	v.SetDefault("buffer.affinity_check", cfg.Buffer.AffinityCheck)

	v.SetDefault("snapshot.dir", cfg.Snapshot.Dir)
	v.SetDefault("snapshot.compress", cfg.Snapshot.Compress)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.file", cfg.Logging.File)
	v.SetDefault("logging.console", cfg.Logging.Console)
}
