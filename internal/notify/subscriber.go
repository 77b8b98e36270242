package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Listen — "живучая" подписка на канал уведомлений: переподключается, пока жив ctx.
func Listen(
	ctx context.Context,
	rdb *redis.Client,
	logger *zap.Logger,
	channel string,
	onMessage func(Message),
) {
	subscribe(ctx, rdb, logger, channel, func(payload string) {
		m, err := Decode(payload)
		if err != nil {
			logger.Error("invalid notification payload", zap.String("payload", payload), zap.Error(err))
			return
		}
		onMessage(m)
	})
}

// subscribe держит подписку на канал до отмены ctx.
func subscribe(ctx context.Context, rdb *redis.Client, logger *zap.Logger, channel string, onPayload func(string)) {
	for {
		pubsub := rdb.Subscribe(ctx, channel)

		if _, err := pubsub.Receive(ctx); err != nil {
			pubsub.Close()
			if ctx.Err() != nil {
				return
			}
			logger.Error("failed to subscribe", zap.String("chan", channel), zap.Error(err))
			if !sleep(ctx, 5*time.Second) {
				return
			}
			continue
		}

		ch := pubsub.Channel()

	loop:
		for {
			select {
			case <-ctx.Done():
				pubsub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break loop // Канал закрыт, идем на переподключение
				}
				onPayload(msg.Payload)
			}
		}

		pubsub.Close()
		if !sleep(ctx, time.Second) {
			return
		}
	}
}

// Decode разбирает сообщение из канала.
func Decode(payload string) (Message, error) {
	var m Message
	err := json.Unmarshal([]byte(payload), &m)
	return m, err
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
