package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/xela07ax/usagerisk/internal/device"
	"github.com/xela07ax/usagerisk/internal/infra"
	"github.com/xela07ax/usagerisk/internal/risk"
	"github.com/xela07ax/usagerisk/internal/worker"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	var (
		modelPath      string
		modelRoot      string
		thresholdHours float64
		logLevel       string
	)

	cmd := &cobra.Command{
		Use:           "riskworker",
		Short:         "Run one usage-risk inference: JSON request on stdin, JSON response on stdout",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			// stdout принадлежит ответу, логи только в stderr
			logger, err := infra.NewLoggerTo(infra.LoggerConfig{Level: logLevel, Format: "json"}, zapcore.Lock(os.Stderr))
			if err != nil {
				logger = zap.NewNop()
			}
			defer func() { _ = logger.Sync() }()

			policy, err := risk.DefaultPolicy().WithThresholdHours(thresholdHours)
			if err != nil {
				logger.Warn("threshold rejected, using default", zap.Error(err))
				policy = risk.DefaultPolicy()
			}

			w := worker.New(worker.Options{
				ModelPath: modelPath,
				ModelRoot: modelRoot,
				Policy:    policy,
				Selector:  device.NewSelector(device.ExecRunner{}, logger),
				Logger:    logger,
			})
			stop := w.WatchSignals()
			defer stop()

			if err := w.Run(context.Background(), os.Stdin, os.Stdout); err != nil {
				logger.Error("response not written", zap.Error(err))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&modelPath, "model", "", "Path to the model artifact (risk_gru.json)")
	cmd.Flags().StringVar(&modelRoot, "model-root", "", "Artifact store root, used when --model is empty")
	cmd.Flags().Float64Var(&thresholdHours, "threshold-hours", 6, "Daily usage threshold in hours, 4..6")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Diagnostic log level (stderr)")

	// Код выхода всегда 0: ошибки уже в ответе.
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
}
