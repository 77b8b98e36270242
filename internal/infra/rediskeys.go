package infra

import "fmt"

const (
	// RedisNamespace Базовый префикс для изоляции данных проекта в Redis
	RedisNamespace = "usagerisk"
)

// Ключи состояния
const (
	RedisKeyNotifyDailyPrefix = RedisNamespace + ":notify:daily:"
	RedisKeyLockNotifyWarmup  = RedisNamespace + ":lock:warmup:notify"
	// Пользователи, отключившие уведомления
	RedisKeyMutedSet = RedisNamespace + ":notify:muted_set"
)

// Каналы Pub/Sub (события)
const (
	// RedisChanNotifications — канал, в который хост публикует уведомления о риске.
	RedisChanNotifications = RedisNamespace + ":notifications"

	// Синхронизация локальных кэшей mute-листа: "<userID>:on" или "<userID>:off".
	RedisChanMute = RedisNamespace + ":notify:mute-signal"
)

// DailyNotifyKey — счетчик уведомлений пользователя за календарный день (YYYY-MM-DD).
func DailyNotifyKey(userID int64, day string) string {
	return fmt.Sprintf("%s%d:%s", RedisKeyNotifyDailyPrefix, userID, day)
}
