package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/xela07ax/usagerisk/internal/infra/auth"
)

func newTokenCmd() *cobra.Command {
	var (
		keyPath string
		userID  int64
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an RS256 development token for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(keyPath)
			if err != nil {
				return err
			}
			key, err := auth.ParseRSAPrivateKey(data)
			if err != nil {
				return err
			}
			token, err := auth.IssueToken(key, userID, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&keyPath, "key", "", "RSA private key (PEM)")
	cmd.Flags().Int64Var(&userID, "user", 0, "user_id claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	_ = cmd.MarkFlagRequired("key")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
