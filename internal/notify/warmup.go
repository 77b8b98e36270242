package notify

import (
	"context"
	"time"

	"github.com/xela07ax/usagerisk/internal/infra"
	"go.uber.org/zap"
)

// SentSource — сколько уведомлений каждый пользователь получил начиная с since.
type SentSource func(ctx context.Context, since time.Time) (map[int64]int, error)

// WarmupCounters восстанавливает дневные счетчики из notification_logs после потери Redis.
// Существующие счетчики не трогаются, греет только один инстанс.
// День берется в зоне now: она должна совпадать с зоной лимитера.
func WarmupCounters(ctx context.Context, counter Counter, source SentSource, logger *zap.Logger, now time.Time) error {
	// Распределенная блокировка (SetNX), чтобы только один инстанс обновлял Redis
	ok, err := counter.SetNX(ctx, infra.RedisKeyLockNotifyWarmup, 1, 30*time.Second)
	if err != nil || !ok {
		return nil // Либо ошибка сети, либо другой уже греет счетчики
	}

	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	sent, err := source(ctx, midnight)
	if err != nil {
		return err
	}

	day := midnight.Format(time.DateOnly)
	seeded := 0
	for userID, n := range sent {
		created, err := counter.SetNX(ctx, infra.DailyNotifyKey(userID, day), int64(n), counterTTL)
		if err != nil {
			return err
		}
		if created {
			seeded++
		}
	}

	if seeded > 0 {
		logger.Info("notification counters warmed up from DB", zap.Int("users", seeded), zap.String("day", day))
	}
	return nil
}
