package notify

import (
	"time"

	"github.com/xela07ax/usagerisk/internal/domain"
)

// Тип сообщения в notification_logs.
const TypeRiskAlert = "RISK_ALERT"

// Message — то, что уходит диспетчеру и в канал Redis.
type Message struct {
	ID     string           `json:"id"`
	UserID int64            `json:"user_id"`
	Level  domain.RiskLevel `json:"risk_level"`
	Title  string           `json:"title"`
	Body   string           `json:"body"`
	SentAt time.Time        `json:"sent_at"`
}

// Record — строка notification_logs.
type Record struct {
	ID     string
	UserID int64
	Type   string
	Title  string
	Body   string
	Level  string
	SentAt time.Time
}

func (m Message) Record() Record {
	return Record{
		ID:     m.ID,
		UserID: m.UserID,
		Type:   TypeRiskAlert,
		Title:  m.Title,
		Body:   m.Body,
		Level:  string(m.Level),
		SentAt: m.SentAt,
	}
}
