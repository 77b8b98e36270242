package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/xela07ax/usagerisk/internal/device"
)

// probeRunner подменяется в тестах.
var probeRunner device.Runner = device.ExecRunner{}

func newDevicesCmd(logLevel *string) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "Show accelerator memory usage and the device a worker would pick",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(cmd, *logLevel)
			out := cmd.OutOrStdout()

			table, err := device.NewSelector(probeRunner, logger).Probe(cmd.Context())
			if err != nil {
				fmt.Fprintf(out, "probe failed: %v\nselected device: %d (default)\n", err, device.DefaultDevice)
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "INDEX\tMEMORY USED (MiB)")
			for _, u := range table {
				fmt.Fprintf(tw, "%d\t%d\n", u.Index, u.MemoryMB)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(out, "selected device: %d\n", device.Least(table))
			return nil
		},
	}
}
