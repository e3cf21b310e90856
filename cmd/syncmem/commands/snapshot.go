package commands

import (
	"bytes"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/born-ml/syncmem/internal/logging"
	"github.com/born-ml/syncmem/internal/snapshot"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newSnapshotCmd(a *app) *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Save and restore buffer contents",
		Long: `Persist buffer contents in the snapshot store and restore them.

The store lives in snapshot.dir from the configuration unless --dir is given.`,
	}
	cmd.PersistentFlags().StringVar(&dir, "dir", "", "snapshot directory (overrides snapshot.dir)")

	open := func() (*snapshot.Store, error) {
		d := a.cfg.Snapshot.Dir
		if dir != "" {
			d = dir
		}
		return snapshot.Open(d, snapshot.Options{
			Compress: a.cfg.Snapshot.Compress,
			Logger:   logging.Component("snapshot"),
		})
	}

	cmd.AddCommand(
		newSnapshotSaveCmd(a, open),
		newSnapshotLoadCmd(a, open),
		newSnapshotListCmd(open),
		newSnapshotDeleteCmd(open),
	)
	return cmd
}

type storeOpener func() (*snapshot.Store, error)

func newSnapshotSaveCmd(a *app, open storeOpener) *cobra.Command {
	var sizeStr string

	cmd := &cobra.Command{
		Use:   "save KEY",
		Short: "Save a pattern-filled buffer",
		Long: `Fill a buffer with a test pattern on the host, move it to the device and
mark the device copy fresh, then save it. The store pulls the bytes back
to the host before writing.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			size, err := humanize.ParseBytes(sizeStr)
			if err != nil {
				return fmt.Errorf("parsing size %q: %w", sizeStr, err)
			}

			p, err := a.openPlatform()
			if err != nil {
				return err
			}
			defer p.Close()

			store, err := open()
			if err != nil {
				return err
			}
			defer store.Close()

			m := p.NewBuffer(int(size))
			defer m.Release()
			fill(m.MutableHostData())
			if m.HasDevice() {
				m.DeviceData()
				m.MutableDeviceData()
			}

			h, err := store.Save(args[0], m)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved %q: %s as %s, %s stored (%.2fx), checksum %016x\n",
				args[0], humanize.IBytes(uint64(h.Size)), h.Codec,
				humanize.IBytes(uint64(h.Stored)), h.Ratio(), h.Checksum)
			return nil
		},
	}
	cmd.Flags().StringVar(&sizeStr, "size", "1KiB", "buffer size")
	return cmd
}

func newSnapshotLoadCmd(a *app, open storeOpener) *cobra.Command {
	return &cobra.Command{
		Use:   "load KEY",
		Short: "Restore a snapshot and check its pattern",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := open()
			if err != nil {
				return err
			}
			defer store.Close()

			h, err := store.Stat(args[0])
			if err != nil {
				return err
			}

			p, err := a.openPlatform()
			if err != nil {
				return err
			}
			defer p.Close()

			m := p.NewBuffer(h.Size)
			defer m.Release()
			if _, err := store.Load(args[0], m); err != nil {
				return err
			}
			if m.HasDevice() {
				m.DeviceData()
			}

			want := make([]byte, h.Size)
			fill(want)
			match := "matches"
			if !bytes.Equal(m.HostData(), want) {
				match = "differs from"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "loaded %q: %s, residency %s, saved %s; content %s the test pattern\n",
				args[0], humanize.IBytes(uint64(h.Size)), m.Head(),
				humanize.Time(time.Unix(0, h.SavedAt)), match)
			return nil
		},
	}
}

func newSnapshotListCmd(open storeOpener) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored snapshots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := open()
			if err != nil {
				return err
			}
			defer store.Close()

			keys, err := store.Keys()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "KEY\tSIZE\tSTORED\tCODEC\tSAVED FROM")
			for _, k := range keys {
				h, err := store.Stat(k)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", k,
					humanize.IBytes(uint64(h.Size)), humanize.IBytes(uint64(h.Stored)), h.Codec, h.Residency)
			}
			return w.Flush()
		},
	}
}

func newSnapshotDeleteCmd(open storeOpener) *cobra.Command {
	return &cobra.Command{
		Use:   "delete KEY",
		Short: "Delete a snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := open()
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Delete(args[0]); err != nil {
				if errors.Is(err, snapshot.ErrNotFound) {
					return fmt.Errorf("no snapshot named %q", args[0])
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %q\n", args[0])
			return nil
		},
	}
}
