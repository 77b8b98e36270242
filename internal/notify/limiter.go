package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/usagerisk/internal/infra"
)

// Счетчик живет двое суток, чтобы пережить смену дня в любой зоне.
const counterTTL = 48 * time.Hour

// Counter — минимальный набор операций над счетчиками, который нужен лимитеру и прогреву.
type Counter interface {
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Decr(ctx context.Context, key string) (int64, error)
	SetNX(ctx context.Context, key string, value int64, ttl time.Duration) (bool, error)
}

// RedisCounter — Counter поверх go-redis.
type RedisCounter struct {
	rdb *redis.Client
}

func NewRedisCounter(rdb *redis.Client) *RedisCounter {
	return &RedisCounter{rdb: rdb}
}

func (c *RedisCounter) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	pipe := c.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

func (c *RedisCounter) Decr(ctx context.Context, key string) (int64, error) {
	return c.rdb.Decr(ctx, key).Result()
}

func (c *RedisCounter) SetNX(ctx context.Context, key string, value int64, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, key, value, ttl).Result()
}

// Limiter ограничивает число уведомлений пользователю за календарный день.
type Limiter struct {
	counter Counter
	limit   int64
	now     func() time.Time
	loc     *time.Location
}

func NewLimiter(counter Counter, limit int) *Limiter {
	if limit <= 0 {
		limit = 2
	}
	return &Limiter{counter: counter, limit: int64(limit), now: time.Now, loc: time.Local}
}

// WithLocation задает зону, в которой меняется календарный день лимита.
func (l *Limiter) WithLocation(loc *time.Location) *Limiter {
	if loc != nil {
		l.loc = loc
	}
	return l
}

// Allow резервирует слот. Ошибка счетчика означает отказ: лишнего уведомления не будет.
func (l *Limiter) Allow(ctx context.Context, userID int64) (bool, error) {
	key := l.key(userID)
	n, err := l.counter.Incr(ctx, key, counterTTL)
	if err != nil {
		return false, fmt.Errorf("notify: daily counter: %w", err)
	}
	return n <= l.limit, nil
}

// Release возвращает слот, занятый Allow, если уведомление так и не ушло.
func (l *Limiter) Release(ctx context.Context, userID int64) error {
	if _, err := l.counter.Decr(ctx, l.key(userID)); err != nil {
		return fmt.Errorf("notify: release daily slot: %w", err)
	}
	return nil
}

// Limit — дневной лимит на пользователя.
func (l *Limiter) Limit() int {
	return int(l.limit)
}

func (l *Limiter) key(userID int64) string {
	return infra.DailyNotifyKey(userID, l.now().In(l.loc).Format(time.DateOnly))
}
