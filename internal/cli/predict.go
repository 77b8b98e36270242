package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"
	"github.com/xela07ax/usagerisk/internal/artifact"
	"github.com/xela07ax/usagerisk/internal/engine"
)

func newPredictCmd(logLevel *string) *cobra.Command {
	var (
		input     string
		worker    string
		model     string
		modelRoot string
		threshold float64
		timeout   time.Duration
		noChart   bool
	)

	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Run one request through a local worker",
		Long:  "Send a worker request (JSON) through the execution arbiter and print the response with an hourly forecast chart.",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(cmd, *logLevel)
			defer func() { _ = logger.Sync() }()

			req, err := readRequest(cmd, input)
			if err != nil {
				return err
			}

			if model == "" && modelRoot != "" {
				if model, err = artifact.NewStore(modelRoot, "", logger).Resolve(); err != nil {
					return err
				}
			}

			arb := engine.NewArbiter(engine.ArbiterConfig{
				WorkerPath: worker,
				WorkerArgs: []string{"--threshold-hours", strconv.FormatFloat(threshold, 'f', -1, 64)},
				Timeout:    timeout,
			}, nil, logger)
			arb.SetModelPath(model)

			resp := arb.Predict(cmd.Context(), req)

			out := cmd.OutOrStdout()
			if err := printJSON(out, resp); err != nil {
				return err
			}
			if resp.Degraded {
				fmt.Fprintln(out, "degraded: worker did not produce a valid result")
			}
			if !noChart && len(resp.HourlyForecast) > 0 {
				fmt.Fprintln(out, asciigraph.Plot(resp.HourlyForecast,
					asciigraph.Height(10),
					asciigraph.Width(72),
					asciigraph.Caption("forecast seconds per hour"),
				))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&input, "input", "-", "Request file (JSON), - for stdin")
	cmd.Flags().StringVar(&worker, "worker", "riskworker", "Worker executable")
	cmd.Flags().StringVar(&model, "model", "", "Model artifact path")
	cmd.Flags().StringVar(&modelRoot, "model-root", "", "Artifact store root, newest version is used when --model is empty")
	cmd.Flags().Float64Var(&threshold, "threshold-hours", 6, "Daily usage threshold in hours, 4..6")
	cmd.Flags().DurationVar(&timeout, "timeout", 20*time.Second, "Worker timeout")
	cmd.Flags().BoolVar(&noChart, "no-chart", false, "Do not draw the forecast chart")

	return cmd
}
