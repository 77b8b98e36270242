package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/xela07ax/usagerisk/internal/artifact"
)

func newModelsCmd(logLevel *string) *cobra.Command {
	var (
		root    string
		version string
	)

	cmd := &cobra.Command{
		Use:   "models",
		Short: "List model versions in the artifact store and verify the active one",
		RunE: func(cmd *cobra.Command, args []string) error {
			store := artifact.NewStore(root, version, newLogger(cmd, *logLevel))
			out := cmd.OutOrStdout()

			versions, err := store.Versions()
			if err != nil {
				return err
			}
			for _, v := range versions {
				fmt.Fprintln(out, v)
			}

			active, err := store.Resolve()
			if err != nil {
				return err
			}
			if err := artifact.Verify(active); err != nil {
				return err
			}
			sum, err := artifact.Sum(active)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "active: %s (blake2b-256 %s)\n", filepath.Base(filepath.Dir(active)), sum)
			return nil
		},
	}

	cmd.Flags().StringVar(&root, "model-root", "./models", "Artifact store root")
	cmd.Flags().StringVar(&version, "version", "", "Pinned version (default: newest)")
	return cmd
}
