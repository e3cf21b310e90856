package commands

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/born-ml/syncmem/internal/platform"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newBenchCmd(a *app) *cobra.Command {
	var (
		sizes      []string
		iterations int
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Time host/device round trips",
		Long: `For each size, write the host copy, read it on the device, write the
device copy and read it back on the host, and report the mean round-trip
time and throughput.`,
		Example: "  syncmem bench --sizes 4KiB,1MiB --iterations 50",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if iterations < 1 {
				return fmt.Errorf("iterations must be at least 1, got %d", iterations)
			}
			parsed, err := parseSizes(sizes)
			if err != nil {
				return err
			}

			p, err := a.openPlatform()
			if err != nil {
				return err
			}
			defer p.Close()
			if !p.HasDevice() {
				return fmt.Errorf("bench needs a device backend, configured %q", a.cfg.Device.Backend)
			}
			return runBench(cmd.OutOrStdout(), p, parsed, iterations)
		},
	}
	cmd.Flags().StringSliceVar(&sizes, "sizes", []string{"4KiB", "64KiB", "1MiB", "16MiB"}, "buffer sizes")
	cmd.Flags().IntVarP(&iterations, "iterations", "n", 20, "round trips per size")
	return cmd
}

func parseSizes(sizes []string) ([]int, error) {
	out := make([]int, 0, len(sizes))
	for _, s := range sizes {
		n, err := humanize.ParseBytes(s)
		if err != nil {
			return nil, fmt.Errorf("parsing size %q: %w", s, err)
		}
		if n == 0 {
			return nil, fmt.Errorf("size %q must be positive", s)
		}
		out = append(out, int(n))
	}
	return out, nil
}

func runBench(out io.Writer, p *platform.Platform, sizes []int, iterations int) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "SIZE\tROUND TRIP\tTHROUGHPUT\t")
	for _, size := range sizes {
		m := p.NewBuffer(size)

		start := time.Now()
		for i := 0; i < iterations; i++ {
			host := m.MutableHostData()
			host[0] = byte(i)
			m.DeviceData()
			m.MutableDeviceData()
			m.HostData()
		}
		elapsed := time.Since(start)
		m.Release()

		perTrip := elapsed / time.Duration(iterations)
		// Each round trip moves the buffer once in each direction.
		moved := uint64(2 * size * iterations)
		rate := "-"
		if elapsed > 0 {
			rate = humanize.IBytes(uint64(float64(moved)/elapsed.Seconds())) + "/s"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t\n", humanize.IBytes(uint64(size)), perTrip, rate)
	}
	return w.Flush()
}
