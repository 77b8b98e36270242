package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xela07ax/usagerisk/internal/domain"
)

const wallClock = "2006-01-02 15:04:05"

// RecentUsage — сырые записи пользователя за один календарный день, по времени начала.
func (r *Repo) RecentUsage(ctx context.Context, userID int64, day time.Time) ([]domain.UsageEvent, error) {
	day = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)

	rows, err := r.db.QueryContext(ctx, `
		SELECT usage_date, start_time, category, package_name, duration_ms
		FROM app_usage_raw
		WHERE user_id = $1 AND usage_date = $2
		ORDER BY start_time ASC`, userID, day)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query usage: %w", err)
	}
	defer rows.Close()

	events := make([]domain.UsageEvent, 0)
	for rows.Next() {
		var (
			usageDate time.Time
			startTime sql.NullTime
			ev        domain.UsageEvent
		)
		if err := rows.Scan(&usageDate, &startTime, &ev.Category, &ev.PackageName, &ev.DurationMs); err != nil {
			return nil, fmt.Errorf("postgres: scan usage: %w", err)
		}
		ev.UsageDate = usageDate.Format(time.DateOnly)
		if startTime.Valid {
			ev.StartTime = startTime.Time.Format(wallClock)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// LatestMood — последняя отметка настроения. Нет записей — nil без ошибки.
func (r *Repo) LatestMood(ctx context.Context, userID int64) (*domain.MoodLog, error) {
	m := &domain.MoodLog{UserID: userID}
	err := r.db.QueryRowContext(ctx, `
		SELECT emotion, status FROM emotion_status_logs
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT 1`, userID).Scan(&m.Emotion, &m.Status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("postgres: failed to query mood: %w", err)
	}
	return m, nil
}
