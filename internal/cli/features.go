package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/xela07ax/usagerisk/internal/features"
)

func newFeaturesCmd() *cobra.Command {
	var input string

	cmd := &cobra.Command{
		Use:   "features",
		Short: "Print the feature window built from a request",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := readRequest(cmd, input)
			if err != nil {
				return err
			}

			w, meta, err := features.Build(req.SeqData, req.Emotion, req.Status)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "analysis_date=%s input_type=%s observed_hours=%d first=%s last=%s\n",
				meta.AnalysisDate, meta.InputType, meta.ObservedHours,
				meta.MinTS.Format("2006-01-02 15:04"), meta.MaxTS.Format("2006-01-02 15:04"))

			tw := tabwriter.NewWriter(out, 0, 4, 1, ' ', tabwriter.AlignRight)
			fmt.Fprintln(tw, "ROW\tSNS\tGAME\tOTHER\tTOTAL\tEMO\tSTATUS\tH_SIN\tH_COS\tD_SIN\tD_COS\t")
			for i, row := range w {
				fmt.Fprintf(tw, "%d\t", i)
				for _, v := range row {
					fmt.Fprintf(tw, "%.3f\t", v)
				}
				fmt.Fprintln(tw)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&input, "input", "-", "Request file (JSON), - for stdin")
	return cmd
}
