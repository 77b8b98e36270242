package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/xela07ax/usagerisk/internal/audit"
)

// WriteBatch — пакетная вставка журнала предсказаний одним запросом.
func (r *Repo) WriteBatch(ctx context.Context, records []audit.PredictionRecord) error {
	if len(records) == 0 {
		return nil
	}

	// Количество колонок в таблице prediction_logs
	numFields := 12
	var placeholders strings.Builder
	vals := make([]interface{}, 0, len(records)*numFields)

	for i, rec := range records {
		p := i * numFields
		if i > 0 {
			placeholders.WriteString(",")
		}
		fmt.Fprintf(&placeholders, "($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			p+1, p+2, p+3, p+4, p+5, p+6, p+7, p+8, p+9, p+10, p+11, p+12)

		vals = append(vals,
			rec.ID, rec.TraceID, rec.UserID, rec.InputEmotion, rec.InputStatus,
			rec.RiskScore, rec.RiskLevel, nullString(rec.RiskApp),
			nullString(rec.StartTime), nullString(rec.EndTime), rec.Degraded, rec.CreatedAt,
		)
	}

	query := "INSERT INTO prediction_logs (id, trace_id, user_id, input_emotion, input_status, risk_score, risk_level, risk_app, risk_start_time, risk_end_time, degraded, created_at) VALUES " +
		placeholders.String()

	if _, err := r.db.ExecContext(ctx, query, vals...); err != nil {
		return fmt.Errorf("postgres: failed to write prediction logs: %w", err)
	}
	return nil
}

// LastPrediction — последняя запись журнала пользователя, nil если журнала нет.
func (r *Repo) LastPrediction(ctx context.Context, userID int64) (*audit.PredictionRecord, error) {
	var (
		rec                audit.PredictionRecord
		app, traceID       sql.NullString
		startTime, endTime sql.NullString
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, trace_id, user_id, input_emotion, input_status, risk_score, risk_level,
		       risk_app, risk_start_time, risk_end_time, degraded, created_at
		FROM prediction_logs
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT 1`, userID).Scan(
		&rec.ID, &traceID, &rec.UserID, &rec.InputEmotion, &rec.InputStatus, &rec.RiskScore, &rec.RiskLevel,
		&app, &startTime, &endTime, &rec.Degraded, &rec.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("postgres: failed to query prediction log: %w", err)
	}
	rec.TraceID = traceID.String
	rec.RiskApp = app.String
	rec.StartTime = startTime.String
	rec.EndTime = endTime.String
	return &rec, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
