package cli

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/xela07ax/usagerisk/internal/notify"
)

func newMuteCmd(logLevel *string) *cobra.Command {
	var (
		addr   string
		userID int64
		off    bool
	)

	cmd := &cobra.Command{
		Use:   "mute",
		Short: "Turn risk notifications off (or back on) for a user",
		Long:  "Update the shared mute list. Running hosts pick the change up from the mute channel without a restart.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID <= 0 {
				return fmt.Errorf("--user must be positive")
			}
			rdb := redis.NewClient(&redis.Options{Addr: addr})
			defer rdb.Close()

			list := notify.NewMuteList(notify.NewRedisMuteStore(rdb), newLogger(cmd, *logLevel))
			if err := list.Mute(cmd.Context(), userID, !off); err != nil {
				return err
			}
			state := "muted"
			if off {
				state = "unmuted"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "user %d %s\n", userID, state)
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "redis", "localhost:6379", "Redis address")
	cmd.Flags().Int64Var(&userID, "user", 0, "User ID")
	cmd.Flags().BoolVar(&off, "off", false, "Unmute instead of mute")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
