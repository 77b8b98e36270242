package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gen2brain/beeep"
	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/usagerisk/internal/infra"
	"go.uber.org/zap"
)

// Поддерживаемые значения notify.backend.
const (
	BackendRedis   = "redis"
	BackendDesktop = "desktop"
	BackendLog     = "log"
)

// Dispatcher доставляет готовое сообщение.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg Message) error
}

// RedisDispatcher публикует сообщение JSON-ом в канал, подписчики доставляют его дальше.
type RedisDispatcher struct {
	rdb     *redis.Client
	channel string
}

func NewRedisDispatcher(rdb *redis.Client, channel string) *RedisDispatcher {
	return &RedisDispatcher{rdb: rdb, channel: channel}
}

func (d *RedisDispatcher) Dispatch(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := d.rdb.Publish(ctx, d.channel, data).Err(); err != nil {
		return fmt.Errorf("notify: publish: %w", err)
	}
	return nil
}

// DesktopDispatcher показывает системное уведомление на машине хоста.
type DesktopDispatcher struct {
	notify func(title, message string, icon any) error
}

func NewDesktopDispatcher() *DesktopDispatcher {
	return &DesktopDispatcher{notify: beeep.Notify}
}

func (d *DesktopDispatcher) Dispatch(_ context.Context, msg Message) error {
	return d.notify(msg.Title, msg.Body, "")
}

// LogDispatcher только пишет сообщение в лог.
type LogDispatcher struct {
	logger *zap.Logger
}

func NewLogDispatcher(logger *zap.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger.Named("notify")}
}

func (d *LogDispatcher) Dispatch(_ context.Context, msg Message) error {
	d.logger.Info("notification",
		zap.Int64("user_id", msg.UserID),
		zap.String("level", string(msg.Level)),
		zap.String("title", msg.Title),
		zap.String("body", msg.Body))
	return nil
}

// NewDispatcher выбирает реализацию по имени бэкенда.
func NewDispatcher(backend string, rdb *redis.Client, logger *zap.Logger) (Dispatcher, error) {
	switch backend {
	case BackendRedis, "":
		if rdb == nil {
			return nil, fmt.Errorf("notify: redis backend requires a client")
		}
		return NewRedisDispatcher(rdb, infra.RedisChanNotifications), nil
	case BackendDesktop:
		return NewDesktopDispatcher(), nil
	case BackendLog:
		return NewLogDispatcher(logger), nil
	default:
		return nil, fmt.Errorf("notify: unknown backend %q", backend)
	}
}
