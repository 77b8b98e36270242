package notify

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/usagerisk/internal/infra"
	"go.uber.org/zap"
)

// MuteStore — источник истины для mute-листа.
type MuteStore interface {
	Members(ctx context.Context) ([]string, error)
	Set(ctx context.Context, userID int64, muted bool) error
}

// RedisMuteStore держит mute-лист в Redis SET и рассылает изменения по Pub/Sub.
type RedisMuteStore struct {
	rdb *redis.Client
}

func NewRedisMuteStore(rdb *redis.Client) *RedisMuteStore {
	return &RedisMuteStore{rdb: rdb}
}

func (s *RedisMuteStore) Members(ctx context.Context) ([]string, error) {
	return s.rdb.SMembers(ctx, infra.RedisKeyMutedSet).Result()
}

// Set меняет SET и публикует сигнал одной транзакцией.
func (s *RedisMuteStore) Set(ctx context.Context, userID int64, muted bool) error {
	id := strconv.FormatInt(userID, 10)
	pipe := s.rdb.TxPipeline()
	if muted {
		pipe.SAdd(ctx, infra.RedisKeyMutedSet, id)
	} else {
		pipe.SRem(ctx, infra.RedisKeyMutedSet, id)
	}
	pipe.Publish(ctx, infra.RedisChanMute, MuteSignal(userID, muted))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("notify: mute %d: %w", userID, err)
	}
	return nil
}

// MuteSignal — полезная нагрузка сигнала синхронизации.
func MuteSignal(userID int64, muted bool) string {
	if muted {
		return strconv.FormatInt(userID, 10) + ":on"
	}
	return strconv.FormatInt(userID, 10) + ":off"
}

// MuteList — локальный кэш пользователей, отключивших уведомления.
type MuteList struct {
	mu     sync.RWMutex
	muted  map[int64]struct{}
	store  MuteStore
	logger *zap.Logger
}

func NewMuteList(store MuteStore, logger *zap.Logger) *MuteList {
	return &MuteList{
		muted:  make(map[int64]struct{}),
		store:  store,
		logger: logger.Named("mute"),
	}
}

// Init загружает текущее состояние при старте хоста
func (m *MuteList) Init(ctx context.Context) error {
	ids, err := m.store.Members(ctx)
	if err != nil {
		return fmt.Errorf("notify: load mute list: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, raw := range ids {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			m.logger.Warn("skipping malformed muted id", zap.String("id", raw))
			continue
		}
		m.muted[id] = struct{}{}
	}
	m.logger.Info("mute list loaded", zap.Int("count", len(m.muted)))
	return nil
}

// StartListener держит кэш в синхронизации с другими экземплярами хоста. Блокируется до отмены ctx.
func (m *MuteList) StartListener(ctx context.Context, rdb *redis.Client) {
	subscribe(ctx, rdb, m.logger, infra.RedisChanMute, m.ProcessSignal)
}

// ProcessSignal применяет сигнал "<userID>:on" / "<userID>:off". Мусор игнорируется.
func (m *MuteList) ProcessSignal(payload string) {
	raw, state, ok := strings.Cut(payload, ":")
	if !ok {
		m.logger.Warn("malformed mute signal", zap.String("payload", payload))
		return
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		m.logger.Warn("malformed mute signal", zap.String("payload", payload))
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	switch state {
	case "on":
		m.muted[id] = struct{}{}
	case "off":
		delete(m.muted, id)
	default:
		m.logger.Warn("unknown mute state", zap.String("payload", payload))
	}
}

// Mute пишет в хранилище и сразу обновляет локальный кэш, не дожидаясь эха из канала.
func (m *MuteList) Mute(ctx context.Context, userID int64, muted bool) error {
	if err := m.store.Set(ctx, userID, muted); err != nil {
		return err
	}
	m.ProcessSignal(MuteSignal(userID, muted))
	return nil
}

func (m *MuteList) IsMuted(userID int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.muted[userID]
	return ok
}
