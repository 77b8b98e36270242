package cli

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/xela07ax/usagerisk/internal/infra"
	"github.com/xela07ax/usagerisk/internal/notify"
	"go.uber.org/zap"
)

func newListenCmd(logLevel *string) *cobra.Command {
	var (
		addr    string
		userID  int64
		desktop bool
	)

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Follow published risk notifications",
		Long:  "Subscribe to the notification channel and print every message, optionally showing it as a desktop notification.",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(cmd, *logLevel)
			rdb := redis.NewClient(&redis.Options{Addr: addr})
			defer rdb.Close()

			var popup notify.Dispatcher
			if desktop {
				popup = notify.NewDesktopDispatcher()
			}

			out := cmd.OutOrStdout()
			notify.Listen(cmd.Context(), rdb, logger, infra.RedisChanNotifications, func(m notify.Message) {
				if userID != 0 && m.UserID != userID {
					return
				}
				fmt.Fprintf(out, "%s user=%d level=%s %s: %s\n",
					m.SentAt.Format("15:04:05"), m.UserID, m.Level, m.Title, m.Body)
				if popup != nil {
					if err := popup.Dispatch(context.Background(), m); err != nil {
						logger.Warn("desktop notification failed", zap.Error(err))
					}
				}
			})
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "redis", "localhost:6379", "Redis address")
	cmd.Flags().Int64Var(&userID, "user", 0, "Only show messages for this user (0 = all)")
	cmd.Flags().BoolVar(&desktop, "desktop", false, "Also show a desktop notification")
	return cmd
}
