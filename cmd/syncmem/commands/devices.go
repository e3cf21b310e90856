package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newDevicesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List devices of the configured backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := a.openPlatform()
			if err != nil {
				return err
			}
			defer p.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Backend: %s\n", p.Kind())
			if !p.HasDevice() {
				fmt.Fprintln(out, "No device configured; buffers are host-only.")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tLIVE\tPEAK\tALLOCS\tLIMIT")
			if sp := p.Sim(); sp != nil {
				current, _ := sp.CurrentDevice()
				for _, d := range sp.Devices() {
					marker := ""
					if d.ID() == current {
						marker = " *"
					}
					s := d.Stats()
					fmt.Fprintf(w, "%d%s\t%s\t%s\t%s\t%d\t%s\n", d.ID(), marker, d.Name(),
						humanize.IBytes(uint64(s.LiveBytes)), humanize.IBytes(uint64(s.PeakBytes)),
						s.Allocs, limitString(a.cfg.Device.MemoryLimit))
				}
			} else {
				d := p.Device()
				fmt.Fprintf(w, "%d *\t%s\t-\t-\t-\t%s\n", d.ID(), d.Name(), limitString(0))
			}
			return w.Flush()
		},
	}
}

func limitString(limit int64) string {
	if limit <= 0 {
		return "unlimited"
	}
	return humanize.IBytes(uint64(limit))
}
