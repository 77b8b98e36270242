package postgres

import (
	"context"
	"fmt"
)

// Схема общая для Postgres и SQLite: только типы, которые понимают оба.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS app_usage_raw (
		id BIGINT PRIMARY KEY,
		user_id BIGINT NOT NULL,
		usage_date DATE NOT NULL,
		start_time TIMESTAMP,
		category TEXT NOT NULL,
		package_name TEXT NOT NULL,
		duration_ms BIGINT NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_app_usage_user_date ON app_usage_raw(user_id, usage_date)`,

	`CREATE TABLE IF NOT EXISTS emotion_status_logs (
		id BIGINT PRIMARY KEY,
		user_id BIGINT NOT NULL,
		emotion TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_emotion_status_user ON emotion_status_logs(user_id, created_at)`,

	`CREATE TABLE IF NOT EXISTS prediction_logs (
		id TEXT PRIMARY KEY,
		trace_id TEXT,
		user_id BIGINT NOT NULL,
		input_emotion TEXT NOT NULL,
		input_status TEXT NOT NULL,
		risk_score DOUBLE PRECISION NOT NULL,
		risk_level TEXT NOT NULL,
		risk_app TEXT,
		risk_start_time TEXT,
		risk_end_time TEXT,
		degraded BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_prediction_logs_user ON prediction_logs(user_id, created_at)`,

	`CREATE TABLE IF NOT EXISTS notification_logs (
		id TEXT PRIMARY KEY,
		user_id BIGINT NOT NULL,
		message_type TEXT NOT NULL,
		title TEXT NOT NULL,
		message_body TEXT NOT NULL,
		risk_level TEXT NOT NULL,
		sent_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_notification_logs_user ON notification_logs(user_id, sent_at)`,
}

// Migrate создает таблицы, если их еще нет.
func (r *Repo) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: migrate: %w", err)
		}
	}
	return nil
}
