package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/xela07ax/usagerisk/internal/notify"
)

// SaveNotification сохраняет факт отправки уведомления.
func (r *Repo) SaveNotification(ctx context.Context, n notify.Record) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO notification_logs (id, user_id, message_type, title, message_body, risk_level, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		n.ID, n.UserID, n.Type, n.Title, n.Body, n.Level, n.SentAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to save notification: %w", err)
	}
	return nil
}

// CountNotificationsSince — сколько уведомлений пользователь получил начиная с since.
func (r *Repo) CountNotificationsSince(ctx context.Context, userID int64, since time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM notification_logs WHERE user_id = $1 AND sent_at >= $2`,
		userID, since.UTC(),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("postgres: failed to count notifications: %w", err)
	}
	return n, nil
}

// NotifiedUsersSince — пользователи с уведомлениями начиная с since и их счетчики.
// Нужен для прогрева дневных лимитов после потери Redis.
func (r *Repo) NotifiedUsersSince(ctx context.Context, since time.Time) (map[int64]int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT user_id, COUNT(*) FROM notification_logs
		WHERE sent_at >= $1
		GROUP BY user_id`, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query notified users: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]int)
	for rows.Next() {
		var uid int64
		var n int
		if err := rows.Scan(&uid, &n); err != nil {
			return nil, err
		}
		out[uid] = n
	}
	return out, rows.Err()
}
