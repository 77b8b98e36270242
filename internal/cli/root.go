package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/xela07ax/usagerisk/internal/domain"
	"github.com/xela07ax/usagerisk/internal/infra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var Version = "dev"

func NewRootCmd() *cobra.Command {
	var logLevel string

	root := &cobra.Command{
		Use:           "riskctl",
		Short:         "Operator tool for the usage-risk engine",
		Long:          "riskctl runs single predictions through a local worker, inspects devices, feature windows and model versions, and issues development tokens.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (stderr)")

	root.AddCommand(
		newPredictCmd(&logLevel),
		newDevicesCmd(&logLevel),
		newFeaturesCmd(),
		newModelsCmd(&logLevel),
		newTokenCmd(),
		newListenCmd(&logLevel),
		newMuteCmd(&logLevel),
	)

	root.Version = Version
	root.SetVersionTemplate(fmt.Sprintf("riskctl %s\n", Version))

	return root
}

func Execute() {
	// listen и predict должны завершаться по Ctrl+C
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(cmd *cobra.Command, level string) *zap.Logger {
	logger, err := infra.NewLoggerTo(infra.LoggerConfig{Level: level, Format: "console"}, zapcore.AddSync(cmd.ErrOrStderr()))
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// readRequest читает запрос воркера из файла или stdin ("-").
func readRequest(cmd *cobra.Command, path string) (*domain.InferenceRequest, error) {
	var r io.Reader
	if path == "" || path == "-" {
		r = cmd.InOrStdin()
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	var req domain.InferenceRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return nil, fmt.Errorf("decode request: %w", err)
	}
	return &req, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
