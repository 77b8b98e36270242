package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/xela07ax/usagerisk/internal/domain"
	"go.uber.org/zap"
)

// Store сохраняет факт отправки.
type Store interface {
	SaveNotification(ctx context.Context, n Record) error
}

// MuteChecker отвечает, отключил ли пользователь уведомления.
type MuteChecker interface {
	IsMuted(userID int64) bool
}

// Notifier решает, будить ли пользователя, и доставляет уведомление.
type Notifier struct {
	limiter    *Limiter
	dispatcher Dispatcher
	store      Store
	mutes      MuteChecker
	logger     *zap.Logger
	now        func() time.Time
}

func NewNotifier(limiter *Limiter, dispatcher Dispatcher, store Store, logger *zap.Logger) *Notifier {
	return &Notifier{
		limiter:    limiter,
		dispatcher: dispatcher,
		store:      store,
		logger:     logger.Named("notifier"),
		now:        time.Now,
	}
}

// WithMutes подключает mute-лист. Без него уведомления получают все.
func (n *Notifier) WithMutes(m MuteChecker) *Notifier {
	n.mutes = m
	return n
}

// Notify возвращает true, если уведомление ушло. Доставка не гарантируется: ошибки только логируются.
func (n *Notifier) Notify(ctx context.Context, userID int64, p *domain.Prediction, emotion domain.Emotion) bool {
	if p == nil || p.Degraded || !p.RiskAnalysis.Level.Notifiable() {
		return false
	}
	// Mute проверяется до лимитера, иначе заглушенный пользователь тратит дневную квоту
	if n.mutes != nil && n.mutes.IsMuted(userID) {
		n.logger.Debug("user muted notifications", zap.Int64("user_id", userID))
		return false
	}

	ok, err := n.limiter.Allow(ctx, userID)
	if err != nil {
		n.logger.Warn("limiter unavailable, notification skipped", zap.Int64("user_id", userID), zap.Error(err))
		return false
	}
	if !ok {
		n.logger.Debug("daily notification limit reached", zap.Int64("user_id", userID))
		return false
	}

	title, body := Compose(p, emotion)
	msg := Message{
		ID:     uuid.NewString(),
		UserID: userID,
		Level:  p.RiskAnalysis.Level,
		Title:  title,
		Body:   body,
		SentAt: n.now().UTC(),
	}

	if err := n.dispatcher.Dispatch(ctx, msg); err != nil {
		n.logger.Error("dispatch failed", zap.Int64("user_id", userID), zap.Error(err))
		// Неотправленное не считается в дневной лимит
		if err := n.limiter.Release(ctx, userID); err != nil {
			n.logger.Warn("daily slot not released", zap.Int64("user_id", userID), zap.Error(err))
		}
		return false
	}

	if n.store != nil {
		if err := n.store.SaveNotification(ctx, msg.Record()); err != nil {
			n.logger.Error("failed to persist notification log", zap.String("id", msg.ID), zap.Error(err))
		}
	}
	return true
}
