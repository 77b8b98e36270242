package engine

import (
	"context"
	"errors"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/usagerisk/internal/audit"
	"github.com/xela07ax/usagerisk/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type fakeSource struct {
	mu        sync.Mutex
	events    []domain.UsageEvent
	mood      *domain.MoodLog
	usageErrs []error
	moodErr   error
	calls     int
	day       time.Time
}

func (f *fakeSource) RecentUsage(_ context.Context, _ int64, day time.Time) ([]domain.UsageEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.day = day
	if len(f.usageErrs) > 0 {
		err := f.usageErrs[0]
		f.usageErrs = f.usageErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return f.events, nil
}

func (f *fakeSource) LatestMood(context.Context, int64) (*domain.MoodLog, error) {
	return f.mood, f.moodErr
}

type fakePredictor struct {
	resp *domain.InferenceResponse
	req  *domain.InferenceRequest
}

func (f *fakePredictor) Predict(_ context.Context, req *domain.InferenceRequest) *domain.InferenceResponse {
	f.req = req
	return f.resp
}

type fakeRecorder struct {
	records []audit.PredictionRecord
}

func (f *fakeRecorder) Record(rec audit.PredictionRecord) {
	f.records = append(f.records, rec)
}

type fakeNotifier struct {
	mu      sync.Mutex
	calls   int
	emotion domain.Emotion
	ctxErr  error
}

func (f *fakeNotifier) Notify(ctx context.Context, _ int64, _ *domain.Prediction, emotion domain.Emotion) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.emotion = emotion
	f.ctxErr = ctx.Err()
	return true
}

var serviceNow = time.Date(2025, 12, 15, 10, 0, 0, 0, time.UTC)

func dangerResponse() *domain.InferenceResponse {
	return &domain.InferenceResponse{
		UserID:       7,
		AnalysisDate: "2025-12-15",
		RiskAnalysis: &domain.RiskAnalysis{
			Level: domain.LevelDanger, Score: 72, VulnerableCategory: "SNS", Condition: "BAD", Message: "raw",
		},
		UsagePrediction: &domain.UsagePrediction{
			HasPrediction: true, StartTime: "21:00", EndTime: "22:00", TargetCategory: "SNS", ProbabilityPercent: 61.5,
		},
		PatternDetection: &domain.PatternDetection{PatternCode: domain.PatternNone},
		HourlyForecast:   []float64{0.1, 0.2},
	}
}

func yesterdayEvents() []domain.UsageEvent {
	return []domain.UsageEvent{
		{StartTime: "2025-12-14 09:00:00", Category: "SNS", PackageName: "com.kakao.talk", DurationMs: 600_000},
		{StartTime: "2025-12-14 21:00:00", Category: "sns", PackageName: "com.example.instagram", DurationMs: 900_000},
		{StartTime: "2025-12-14 22:00:00", Category: "SNS", PackageName: "com.example.instagram", DurationMs: 300_000},
		{StartTime: "2025-12-14 23:00:00", Category: "GAME", PackageName: "com.game.brawl", DurationMs: 5_000_000},
	}
}

func newTestService(src UsageSource, pred Predictor, rec audit.Recorder, n Notifier) *PredictionService {
	s := NewPredictionService(src, pred, rec, n, nil, zap.NewNop())
	s.now = func() time.Time { return serviceNow }
	s.rnd = rand.New(rand.NewPCG(1, 2))
	s.loc = time.UTC
	return s
}

func TestPredictEnrichesAndRecords(t *testing.T) {
	src := &fakeSource{
		events: yesterdayEvents(),
		mood:   &domain.MoodLog{UserID: 7, Emotion: domain.EmotionBad, Status: domain.StatusBusy},
	}
	pred := &fakePredictor{resp: dangerResponse()}
	rec := &fakeRecorder{}
	n := &fakeNotifier{}
	s := newTestService(src, pred, rec, n)

	ctx, cancel := context.WithCancel(WithTraceID(context.Background(), "trace-1"))
	p, err := s.Predict(ctx, 7)
	require.NoError(t, err)
	cancel()
	s.Wait()

	// Запрос к воркеру: вчерашний день, настроение из лога, дата анализа — сегодня.
	assert.Equal(t, time.Date(2025, 12, 14, 0, 0, 0, 0, time.UTC), src.day)
	require.NotNil(t, pred.req)
	assert.Equal(t, domain.EmotionBad, pred.req.Emotion)
	assert.Equal(t, domain.StatusBusy, pred.req.Status)
	assert.Equal(t, "2025-12-15", pred.req.AnalysisDate)
	assert.Equal(t, int64(7), *pred.req.UserID)
	assert.Len(t, pred.req.SeqData, 4)

	assert.Equal(t, "Instagram (SNS)", p.RiskAnalysis.VulnerableCategory)
	assert.Equal(t, "Instagram (SNS)", p.UsagePrediction.TargetCategory)
	assert.Equal(t, "High risk", p.RiskAnalysis.Title)
	assert.Equal(t, "Today carries a high risk of overusing Instagram (SNS) apps.", p.RiskAnalysis.Message)
	assert.Equal(t, "Today you are likely to use Instagram (SNS) apps between 21~22h.", p.UsagePrediction.Message)
	assert.Equal(t, []float64{0.1, 0.2}, p.HourlyForecast)
	assert.False(t, p.Degraded)

	require.Len(t, p.Recommendations, 2)
	assert.NotEqual(t, p.Recommendations[0], p.Recommendations[1])
	assert.Contains(t, recommendationPool, p.Recommendations[0])
	assert.Contains(t, recommendationPool, p.Recommendations[1])

	require.Len(t, rec.records, 1)
	r := rec.records[0]
	assert.Equal(t, "trace-1", r.TraceID)
	assert.Equal(t, int64(7), r.UserID)
	assert.Equal(t, "BAD", r.InputEmotion)
	assert.Equal(t, "BUSY", r.InputStatus)
	assert.Equal(t, 72.0, r.RiskScore)
	assert.Equal(t, "DANGER", r.RiskLevel)
	assert.Equal(t, "Instagram (SNS)", r.RiskApp)
	assert.Equal(t, "21:00", r.StartTime)
	assert.Equal(t, "22:00", r.EndTime)
	assert.Equal(t, serviceNow, r.CreatedAt)
	assert.NotEmpty(t, r.ID)

	n.mu.Lock()
	defer n.mu.Unlock()
	assert.Equal(t, 1, n.calls)
	assert.Equal(t, domain.EmotionBad, n.emotion)
	assert.NoError(t, n.ctxErr, "notification must outlive the request context")

	assert.Equal(t, 1.0, metricValue(t, s.metrics.PredictionsTotal.WithLabelValues("DANGER", "false")))
}

func TestPredictTodayFollowsLocation(t *testing.T) {
	kst := time.FixedZone("KST", 9*3600)
	src := &fakeSource{events: yesterdayEvents()}
	pred := &fakePredictor{resp: dangerResponse()}
	s := newTestService(src, pred, &fakeRecorder{}, &fakeNotifier{}).WithLocation(kst)
	// 08:00 по Сеулу — еще 14-е число по UTC.
	s.now = func() time.Time { return time.Date(2025, 12, 15, 8, 0, 0, 0, kst) }

	_, err := s.Predict(context.Background(), 7)
	require.NoError(t, err)
	s.Wait()

	assert.Equal(t, time.Date(2025, 12, 14, 0, 0, 0, 0, time.UTC), src.day)
	require.NotNil(t, pred.req)
	assert.Equal(t, "2025-12-15", pred.req.AnalysisDate)
}

func TestCalendarDay(t *testing.T) {
	la := time.FixedZone("PST", -8*3600)
	t0 := time.Date(2025, 12, 15, 3, 0, 0, 0, time.UTC)

	assert.Equal(t, time.Date(2025, 12, 15, 0, 0, 0, 0, time.UTC), calendarDay(t0, time.UTC))
	assert.Equal(t, time.Date(2025, 12, 14, 0, 0, 0, 0, time.UTC), calendarDay(t0, la))
}

func TestPredictDefaultsMoodWhenMissing(t *testing.T) {
	pred := &fakePredictor{resp: dangerResponse()}
	s := newTestService(&fakeSource{}, pred, nil, nil)

	_, err := s.Predict(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, domain.EmotionGood, pred.req.Emotion)
	assert.Equal(t, domain.StatusFree, pred.req.Status)
}

func TestPredictIncompleteResponseFallsBack(t *testing.T) {
	pred := &fakePredictor{resp: &domain.InferenceResponse{
		Error:        "Insufficient data",
		RiskAnalysis: &domain.RiskAnalysis{Level: domain.LevelError, Score: 0},
	}}
	rec := &fakeRecorder{}
	n := &fakeNotifier{}
	s := newTestService(&fakeSource{}, pred, rec, n)

	p, err := s.Predict(context.Background(), 7)
	require.NoError(t, err)
	s.Wait()

	assert.Equal(t, "Insufficient data", p.Error)
	assert.Equal(t, domain.LevelSafe, p.RiskAnalysis.Level)
	assert.Equal(t, 0, p.RiskAnalysis.Score)
	assert.Equal(t, "NONE", p.RiskAnalysis.VulnerableCategory)
	assert.Equal(t, "GOOD", p.RiskAnalysis.Condition)
	assert.Equal(t, fallbackMessage, p.RiskAnalysis.Message)
	assert.False(t, p.UsagePrediction.HasPrediction)
	assert.Equal(t, "00:00", p.UsagePrediction.StartTime)
	assert.Equal(t, "NONE", p.UsagePrediction.TargetCategory)
	assert.Equal(t, domain.PatternNone, p.PatternDetection.PatternCode)
	assert.Equal(t, []float64{}, p.HourlyForecast)
	assert.Equal(t, "2025-12-15", p.AnalysisDate)
	assert.Equal(t, []domain.Recommendation{safeRecommendation}, p.Recommendations)

	require.Len(t, rec.records, 1)
	assert.Empty(t, rec.records[0].StartTime)
	assert.Equal(t, 0, n.calls)
}

func TestPredictDegradedIsPassedThrough(t *testing.T) {
	rec := &fakeRecorder{}
	n := &fakeNotifier{}
	s := newTestService(&fakeSource{events: yesterdayEvents()}, &fakePredictor{resp: DegradedResponse()}, rec, n)

	p, err := s.Predict(context.Background(), 7)
	require.NoError(t, err)
	s.Wait()

	assert.True(t, p.Degraded)
	assert.Equal(t, domain.LevelUnknown, p.RiskAnalysis.Level)
	assert.Equal(t, DegradedScore, p.RiskAnalysis.Score)
	assert.Equal(t, "NONE", p.RiskAnalysis.VulnerableCategory)
	assert.Empty(t, p.RiskAnalysis.Title)
	assert.Empty(t, p.Recommendations)
	assert.NotNil(t, p.Recommendations)

	require.Len(t, rec.records, 1)
	assert.True(t, rec.records[0].Degraded)
	assert.Equal(t, 0, n.calls)
}

func TestPredictRetriesTransientUsageErrors(t *testing.T) {
	src := &fakeSource{events: yesterdayEvents(), usageErrs: []error{errors.New("conn reset"), nil}}
	s := newTestService(src, &fakePredictor{resp: dangerResponse()}, nil, nil)

	_, err := s.Predict(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)
}

func TestPredictFailsWhenStorageIsDown(t *testing.T) {
	down := errors.New("db down")
	src := &fakeSource{usageErrs: []error{down, down, down, down}}
	pred := &fakePredictor{resp: dangerResponse()}
	s := newTestService(src, pred, nil, nil)

	_, err := s.Predict(context.Background(), 7)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch usage")
	assert.Equal(t, 3, src.calls)
	assert.Nil(t, pred.req)

	src = &fakeSource{moodErr: down}
	_, err = newTestService(src, pred, nil, nil).MoodDescription(context.Background(), 7)
	assert.Error(t, err)
}

func TestEnrichRules(t *testing.T) {
	tests := []struct {
		name       string
		vuln       string
		target     string
		wantVuln   string
		wantTarget string
	}{
		{name: "renames target when it matches", vuln: "SNS", target: "SNS", wantVuln: "Instagram (SNS)", wantTarget: "Instagram (SNS)"},
		{name: "keeps other target", vuln: "SNS", target: "GAME", wantVuln: "Instagram (SNS)", wantTarget: "GAME"},
		{name: "game", vuln: "GAME", target: "GAME", wantVuln: "Brawl (GAME)", wantTarget: "Brawl (GAME)"},
		{name: "other is not enriched", vuln: "OTHER", target: "OTHER", wantVuln: "OTHER", wantTarget: "OTHER"},
		{name: "none is not enriched", vuln: "NONE", target: "NONE", wantVuln: "NONE", wantTarget: "NONE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &domain.Prediction{
				RiskAnalysis:    domain.RiskAnalysis{VulnerableCategory: tt.vuln},
				UsagePrediction: domain.UsagePrediction{TargetCategory: tt.target},
			}
			enrich(p, yesterdayEvents())
			assert.Equal(t, tt.wantVuln, p.RiskAnalysis.VulnerableCategory)
			assert.Equal(t, tt.wantTarget, p.UsagePrediction.TargetCategory)
		})
	}

	// Нет событий категории — без изменений.
	p := &domain.Prediction{RiskAnalysis: domain.RiskAnalysis{VulnerableCategory: "SNS"}}
	enrich(p, nil)
	assert.Equal(t, "SNS", p.RiskAnalysis.VulnerableCategory)
}

func TestAppName(t *testing.T) {
	assert.Equal(t, "Android", appName("com.instagram.android"))
	assert.Equal(t, "Youtube", appName("com.google.android.YOUTUBE"))
	assert.Equal(t, "Solo", appName("solo"))
	assert.Equal(t, "Unknown", appName(""))
	assert.Equal(t, "Unknown", appName("com.trailing."))
}

func TestMessages(t *testing.T) {
	assert.Equal(t, "Today calls for some care with game apps.", riskMessage(domain.LevelCaution, "GAME"))
	assert.Equal(t, "Today is a low-risk day.", riskMessage(domain.LevelSafe, "SNS"))

	assert.Equal(t, "", usageMessage(domain.UsagePrediction{HasPrediction: false, StartTime: "01:00"}))
	assert.Equal(t, "Today you are likely to use other apps between 23~24h.",
		usageMessage(domain.UsagePrediction{HasPrediction: true, StartTime: "23:00", EndTime: "24:00", TargetCategory: "OTHER"}))
	assert.Equal(t, "Today you are likely to use SNS apps between late~night h.",
		usageMessage(domain.UsagePrediction{HasPrediction: true, StartTime: "late", EndTime: "night ", TargetCategory: "SNS"}))
}

func TestRecommendationsBySeverity(t *testing.T) {
	s := newTestService(&fakeSource{}, &fakePredictor{}, nil, nil)
	assert.Equal(t, []domain.Recommendation{safeRecommendation}, s.recommendations(domain.LevelSafe))
	assert.Empty(t, s.recommendations(domain.LevelError))

	for i := 0; i < 50; i++ {
		recs := s.recommendations(domain.LevelCaution)
		require.Len(t, recs, 2)
		assert.NotEqual(t, recs[0].Title, recs[1].Title)
	}
}

func TestMoodDescription(t *testing.T) {
	d := MoodDescription(domain.EmotionBad, domain.StatusFree)
	assert.Equal(t, "😞 Bad · Free", d.Title)
	assert.Contains(t, d.Description, "short walk")

	d = MoodDescription(domain.EmotionGood, domain.StatusBusy)
	assert.Equal(t, "😀 Good · Busy", d.Title)

	d = MoodDescription("SLEEPY", "AWAY")
	assert.Equal(t, "😐 SLEEPY · AWAY", d.Title)
	assert.Contains(t, d.Description, "ordinary day")

	s := newTestService(&fakeSource{}, &fakePredictor{}, nil, nil)
	d, err := s.MoodDescription(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "😀 Good · Free", d.Title)
}

func TestTracingMiddleware(t *testing.T) {
	var seen string
	h := TracingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = extractTraceID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Trace-ID", "abc")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, "abc", seen)
	assert.Equal(t, "abc", rr.Header().Get("X-Trace-ID"))

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Len(t, seen, 36)
	assert.Equal(t, seen, rr.Header().Get("X-Trace-ID"))

	assert.Equal(t, "00000000-0000-0000-0000-000000000000", extractTraceID(context.Background()))
}

func TestRateLimitMiddleware(t *testing.T) {
	h := RateLimitMiddleware(rate.NewLimiter(rate.Every(time.Hour), 2))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
		codes = append(codes, rr.Code)
	}
	assert.Equal(t, []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests}, codes)
}
