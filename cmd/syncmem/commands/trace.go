package commands

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/born-ml/syncmem/internal/platform"
	"github.com/born-ml/syncmem/internal/syncedmem"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newTraceCmd(a *app) *cobra.Command {
	var size int

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Walk a buffer through every residency transition",
		Long: `Create a buffer and read and write both sides in turn, printing the
residency, block ownership and device counters after each step.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if size < 0 {
				return fmt.Errorf("size must not be negative, got %d", size)
			}
			p, err := a.openPlatform()
			if err != nil {
				return err
			}
			defer p.Close()
			return runTrace(cmd.OutOrStdout(), p, size)
		},
	}
	cmd.Flags().IntVar(&size, "size", 1024, "buffer size in bytes")
	return cmd
}

type traceStep struct {
	name   string
	device bool
	run    func(m *syncedmem.SyncedMemory) error
}

func runTrace(out io.Writer, p *platform.Platform, size int) error {
	m := p.NewBuffer(size)
	fmt.Fprintf(out, "Buffer: %s on %s\n\n", humanize.IBytes(uint64(size)), p.Kind())

	steps := []traceStep{
		{name: "new", run: func(*syncedmem.SyncedMemory) error { return nil }},
		{name: "read host", run: func(m *syncedmem.SyncedMemory) error { m.HostData(); return nil }},
		{name: "read device", device: true, run: func(m *syncedmem.SyncedMemory) error { m.DeviceData(); return nil }},
		{name: "write host", run: func(m *syncedmem.SyncedMemory) error { fill(m.MutableHostData()); return nil }},
		{name: "async push", device: true, run: func(m *syncedmem.SyncedMemory) error {
			s, err := p.NewStream()
			if err != nil {
				return err
			}
			if c, ok := s.(io.Closer); ok {
				defer c.Close()
			}
			m.AsyncPushToDevice(s)
			m.DeviceData()
			return nil
		}},
		{name: "write device", device: true, run: func(m *syncedmem.SyncedMemory) error { m.MutableDeviceData(); return nil }},
		{name: "read host", run: func(m *syncedmem.SyncedMemory) error { m.HostData(); return nil }},
		{name: "release", run: func(m *syncedmem.SyncedMemory) error { m.Release(); return nil }},
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STEP\tRESIDENCY\tOWNS HOST\tOWNS DEVICE\tDEV ALLOCS\tH2D\tD2H\tASYNC")
	for _, step := range steps {
		if step.device && !m.HasDevice() {
			fmt.Fprintf(w, "%s\t(skipped, no device)\t\t\t\t\t\t\n", step.name)
			continue
		}
		if err := step.run(m); err != nil {
			_ = w.Flush()
			return fmt.Errorf("%s: %w", step.name, err)
		}
		fmt.Fprintf(w, "%s\t%s\t%t\t%t\t%s\n", step.name, m.Head(), m.OwnsHost(), m.OwnsDevice(), deviceCounters(p))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	h := p.HostStats()
	fmt.Fprintf(out, "\nHost: %d allocs, %d frees, peak %s\n", h.Allocs, h.Frees, humanize.IBytes(uint64(h.PeakBytes)))
	return nil
}

// deviceCounters formats the tab-separated device counters; only the sim
// backend keeps them.
func deviceCounters(p *platform.Platform) string {
	sp := p.Sim()
	if sp == nil {
		return "-\t-\t-\t-"
	}
	s := sp.Current().Stats()
	return strconv.FormatInt(s.Allocs, 10) + "\t" +
		strconv.FormatInt(s.HostToDevice, 10) + "\t" +
		strconv.FormatInt(s.DeviceToHost, 10) + "\t" +
		strconv.FormatInt(s.AsyncCopies, 10)
}

// fill writes a repeating byte pattern.
func fill(buf []byte) {
	for i := range buf {
		buf[i] = byte(i*7 + 3)
	}
}
