package audit

import "time"

// PredictionRecord — строка журнала prediction_logs.
type PredictionRecord struct {
	ID           string    `json:"id"`       // UUID записи
	TraceID      string    `json:"trace_id"` // Сквозной ID запроса
	UserID       int64     `json:"user_id"`
	InputEmotion string    `json:"input_emotion"` // GOOD, NORMAL, BAD
	InputStatus  string    `json:"input_status"`  // BUSY, FREE
	RiskScore    float64   `json:"risk_score"`    // 0..100
	RiskLevel    string    `json:"risk_level"`
	RiskApp      string    `json:"risk_app"` // "Instagram (SNS)" или базовая категория
	StartTime    string    `json:"risk_start_time,omitempty"`
	EndTime      string    `json:"risk_end_time,omitempty"`
	Degraded     bool      `json:"degraded"`
	DurationMs   int64     `json:"duration_ms"`
	CreatedAt    time.Time `json:"created_at"`
}
