package postgres

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/usagerisk/internal/audit"
	"github.com/xela07ax/usagerisk/internal/domain"
	"github.com/xela07ax/usagerisk/internal/notify"
)

func newTestRepo(t *testing.T) *Repo {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "usagerisk.db") + "?_time_format=sqlite"
	r, err := Open(DriverSQLite, dsn, 1, 1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })

	require.NoError(t, r.Ping(context.Background()))
	require.NoError(t, r.Migrate(context.Background()))
	// Повторная миграция ничего не ломает.
	require.NoError(t, r.Migrate(context.Background()))
	return r
}

func insertUsage(t *testing.T, r *Repo, id, userID int64, day time.Time, start *time.Time, category string, ms int64) {
	t.Helper()
	var st interface{}
	if start != nil {
		st = *start
	}
	_, err := r.db.Exec(`INSERT INTO app_usage_raw (id, user_id, usage_date, start_time, category, package_name, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`, id, userID, day, st, category, "com.example."+category, ms)
	require.NoError(t, err)
}

func at(ts time.Time) *time.Time { return &ts }

func TestRecentUsage(t *testing.T) {
	r := newTestRepo(t)
	day := time.Date(2025, 12, 14, 0, 0, 0, 0, time.UTC)

	insertUsage(t, r, 1, 7, day, at(day.Add(21*time.Hour)), "GAME", 1_200_000)
	insertUsage(t, r, 2, 7, day, at(day.Add(9*time.Hour+30*time.Minute)), "SNS", 600_000)
	insertUsage(t, r, 3, 7, day, nil, "OTHER", 5_000)
	insertUsage(t, r, 4, 7, day.AddDate(0, 0, -1), at(day.Add(-time.Hour)), "SNS", 1)
	insertUsage(t, r, 5, 8, day, at(day.Add(time.Hour)), "SNS", 1)

	// Время внутри дня не влияет на выборку.
	events, err := r.RecentUsage(context.Background(), 7, day.Add(15*time.Hour))
	require.NoError(t, err)
	require.Len(t, events, 3)

	// NULL сортируется первым, дальше по времени начала.
	assert.Equal(t, "", events[0].StartTime)
	assert.Equal(t, "2025-12-14", events[0].UsageDate)
	assert.Equal(t, "OTHER", events[0].Category)

	assert.Equal(t, "2025-12-14 09:30:00", events[1].StartTime)
	assert.Equal(t, "SNS", events[1].Category)
	assert.Equal(t, "com.example.SNS", events[1].PackageName)
	assert.Equal(t, 600_000.0, events[1].DurationMs)

	assert.Equal(t, "2025-12-14 21:00:00", events[2].StartTime)

	none, err := r.RecentUsage(context.Background(), 99, day)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestLatestMood(t *testing.T) {
	r := newTestRepo(t)

	m, err := r.LatestMood(context.Background(), 7)
	require.NoError(t, err)
	assert.Nil(t, m)

	base := time.Date(2025, 12, 15, 8, 0, 0, 0, time.UTC)
	for i, row := range []struct {
		emotion, status string
		at              time.Time
	}{
		{"BAD", "BUSY", base},
		{"GOOD", "FREE", base.Add(2 * time.Hour)},
		{"NORMAL", "BUSY", base.Add(time.Hour)},
	} {
		_, err := r.db.Exec(`INSERT INTO emotion_status_logs (id, user_id, emotion, status, created_at) VALUES ($1, $2, $3, $4, $5)`,
			i+1, 7, row.emotion, row.status, row.at)
		require.NoError(t, err)
	}

	m, err = r.LatestMood(context.Background(), 7)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, domain.EmotionGood, m.Emotion)
	assert.Equal(t, domain.StatusFree, m.Status)
	assert.Equal(t, int64(7), m.UserID)
}

func TestWriteBatchAndLastPrediction(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, r.WriteBatch(ctx, nil))

	created := time.Date(2025, 12, 15, 9, 0, 0, 0, time.UTC)
	records := []audit.PredictionRecord{
		{ID: "p1", TraceID: "t1", UserID: 7, InputEmotion: "BAD", InputStatus: "FREE", RiskScore: 72, RiskLevel: "DANGER",
			RiskApp: "Instagram (SNS)", StartTime: "21:00", EndTime: "22:00", CreatedAt: created},
		{ID: "p2", UserID: 7, InputEmotion: "GOOD", InputStatus: "FREE", RiskScore: 50, RiskLevel: "UNKNOWN",
			Degraded: true, CreatedAt: created.Add(time.Minute)},
		{ID: "p3", UserID: 8, InputEmotion: "GOOD", InputStatus: "BUSY", RiskScore: 10, RiskLevel: "SAFE", CreatedAt: created},
	}
	require.NoError(t, r.WriteBatch(ctx, records))

	var n int
	require.NoError(t, r.db.QueryRow(`SELECT COUNT(*) FROM prediction_logs`).Scan(&n))
	assert.Equal(t, 3, n)

	last, err := r.LastPrediction(ctx, 7)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, "p2", last.ID)
	assert.True(t, last.Degraded)
	assert.Equal(t, "", last.RiskApp)
	assert.Equal(t, "", last.TraceID)
	assert.True(t, last.CreatedAt.Equal(created.Add(time.Minute)))

	first, err := r.LastPrediction(ctx, 8)
	require.NoError(t, err)
	assert.Equal(t, 10.0, first.RiskScore)

	missing, err := r.LastPrediction(ctx, 99)
	require.NoError(t, err)
	assert.Nil(t, missing)

	// Дубликат ключа — ошибка всей пачки.
	assert.Error(t, r.WriteBatch(ctx, records[:1]))
}

func TestNotifications(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	midnight := time.Date(2025, 12, 15, 0, 0, 0, 0, time.UTC)

	for i, rec := range []notify.Record{
		{ID: "n1", UserID: 7, Type: notify.TypeRiskAlert, Title: "t", Body: "b", Level: "DANGER", SentAt: midnight.Add(-time.Hour)},
		{ID: "n2", UserID: 7, Type: notify.TypeRiskAlert, Title: "t", Body: "b", Level: "DANGER", SentAt: midnight.Add(8 * time.Hour)},
		{ID: "n3", UserID: 7, Type: notify.TypeRiskAlert, Title: "t", Body: "b", Level: "CAUTION", SentAt: midnight.Add(9 * time.Hour)},
		{ID: "n4", UserID: 8, Type: notify.TypeRiskAlert, Title: "t", Body: "b", Level: "CAUTION", SentAt: midnight.Add(10 * time.Hour)},
	} {
		require.NoError(t, r.SaveNotification(ctx, rec), "record %d", i)
	}

	n, err := r.CountNotificationsSince(ctx, 7, midnight)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = r.CountNotificationsSince(ctx, 9, midnight)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	users, err := r.NotifiedUsersSince(ctx, midnight)
	require.NoError(t, err)
	assert.Equal(t, map[int64]int{7: 2, 8: 1}, users)
}

func TestNotificationsSinceZonedMidnight(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	kst := time.FixedZone("KST", 9*3600)

	// 23:00 UTC 14-го — уже 15-е по Сеулу; 14:00 UTC — еще 14-е.
	for i, at := range []time.Time{
		time.Date(2025, 12, 14, 23, 0, 0, 0, time.UTC),
		time.Date(2025, 12, 15, 9, 0, 0, 0, kst),
		time.Date(2025, 12, 14, 14, 0, 0, 0, time.UTC),
	} {
		rec := notify.Record{ID: fmt.Sprintf("z%d", i), UserID: 7, Type: notify.TypeRiskAlert, Title: "t", Body: "b", Level: "DANGER", SentAt: at}
		require.NoError(t, r.SaveNotification(ctx, rec))
	}

	since := time.Date(2025, 12, 15, 0, 0, 0, 0, kst)
	n, err := r.CountNotificationsSince(ctx, 7, since)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	users, err := r.NotifiedUsersSince(ctx, since)
	require.NoError(t, err)
	assert.Equal(t, map[int64]int{7: 2}, users)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open("oracle", "whatever", 0, 0)
	assert.Error(t, err)
}
