// Package commands implements the syncmem command tree.
package commands

import (
	"fmt"

	"github.com/born-ml/syncmem/internal/config"
	"github.com/born-ml/syncmem/internal/logging"
	"github.com/born-ml/syncmem/internal/platform"
	"github.com/spf13/cobra"
)

const version = "v0.1.0-dev"

// app holds global flag values and the loaded configuration.
type app struct {
	cfgFile  string
	verbose  bool
	logLevel string

	cfg *config.Config
}

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "syncmem",
		Short: "Host/device synchronized buffers",
		Long: `syncmem drives synchronized host/device buffers on a simulated or
WebGPU device.

It can trace residency transitions, benchmark round trips, list devices and
save or restore buffer snapshots.`,
		Version:           version,
		SilenceUsage:      true,
		PersistentPreRunE: func(*cobra.Command, []string) error { return a.setup() },
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default is $HOME/.syncmem/config.yaml)")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")
	pf.StringVar(&a.logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	root.AddCommand(
		newVersionCmd(),
		newConfigCmd(a),
		newDevicesCmd(a),
		newTraceCmd(a),
		newBenchCmd(a),
		newSnapshotCmd(a),
	)
	return root
}

// setup loads configuration and sets up logging.
func (a *app) setup() error {
	cfg, err := config.Load(a.cfgFile)
	if err != nil {
		return err
	}

	switch {
	case a.logLevel != "":
		cfg.Logging.Level = a.logLevel
	case a.verbose:
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := logging.Init(cfg.Logging.Level, cfg.Logging.File, cfg.Logging.Console); err != nil {
		return fmt.Errorf("initializing logging: %w", err)
	}
	a.cfg = cfg
	return nil
}

// openPlatform opens the configured platform.
func (a *app) openPlatform() (*platform.Platform, error) {
	p, err := platform.Open(a.cfg)
	if err != nil {
		return nil, fmt.Errorf("opening %s platform: %w", a.cfg.Device.Backend, err)
	}
	return p, nil
}
