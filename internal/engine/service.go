package engine

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/avast/retry-go/v5"
	"github.com/google/uuid"
	"github.com/xela07ax/usagerisk/internal/audit"
	"github.com/xela07ax/usagerisk/internal/domain"
	"go.uber.org/zap"
)

const notifyTimeout = 5 * time.Second

// UsageSource — история использования и настроение пользователя.
type UsageSource interface {
	RecentUsage(ctx context.Context, userID int64, day time.Time) ([]domain.UsageEvent, error)
	LatestMood(ctx context.Context, userID int64) (*domain.MoodLog, error)
}

type Predictor interface {
	Predict(ctx context.Context, req *domain.InferenceRequest) *domain.InferenceResponse
}

type Notifier interface {
	Notify(ctx context.Context, userID int64, p *domain.Prediction, emotion domain.Emotion) bool
}

// PredictionService собирает прогноз на сегодня: история за вчера, воркер, обогащение, журнал, уведомление.
type PredictionService struct {
	source    UsageSource
	predictor Predictor
	journal   audit.Recorder
	notifier  Notifier
	metrics   *Metrics
	logger    *zap.Logger

	now func() time.Time
	// Календарный день пользователя считается в этой зоне
	loc *time.Location

	rndMu sync.Mutex
	rnd   *rand.Rand

	wg sync.WaitGroup
}

func NewPredictionService(source UsageSource, predictor Predictor, journal audit.Recorder, notifier Notifier, metrics *Metrics, logger *zap.Logger) *PredictionService {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &PredictionService{
		source:    source,
		predictor: predictor,
		journal:   journal,
		notifier:  notifier,
		metrics:   metrics,
		logger:    logger.Named("prediction"),
		now:       time.Now,
		loc:       time.Local,
		rnd:       rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15)),
	}
}

// WithLocation задает зону, в которой определяется "сегодня".
func (s *PredictionService) WithLocation(loc *time.Location) *PredictionService {
	if loc != nil {
		s.loc = loc
	}
	return s
}

// Predict возвращает ошибку только если не удалось прочитать данные пользователя.
// Любой сбой воркера превращается в деградированный прогноз.
func (s *PredictionService) Predict(ctx context.Context, userID int64) (*domain.Prediction, error) {
	start := s.now()
	today := calendarDay(start, s.loc)

	emotion, status, err := s.mood(ctx, userID)
	if err != nil {
		return nil, err
	}

	var events []domain.UsageEvent
	err = s.withRetry(ctx, func() error {
		var fetchErr error
		events, fetchErr = s.source.RecentUsage(ctx, userID, today.AddDate(0, 0, -1))
		return fetchErr
	})
	if err != nil {
		return nil, fmt.Errorf("engine: fetch usage: %w", err)
	}

	req := &domain.InferenceRequest{
		Emotion:      emotion,
		Status:       status,
		SeqData:      events,
		UserID:       &userID,
		AnalysisDate: today.Format(time.DateOnly),
	}
	resp := s.predictor.Predict(ctx, req)

	p := s.assemble(userID, req, resp)

	s.metrics.PredictionsTotal.WithLabelValues(string(p.RiskAnalysis.Level), strconv.FormatBool(p.Degraded)).Inc()
	s.logger.Info("prediction served",
		zap.Int64("user_id", userID),
		zap.String("trace_id", extractTraceID(ctx)),
		zap.String("level", string(p.RiskAnalysis.Level)),
		zap.Int("score", p.RiskAnalysis.Score),
		zap.Bool("degraded", p.Degraded),
		zap.Int("events", len(events)))

	if s.journal != nil {
		s.journal.Record(s.record(ctx, p, req, s.now().Sub(start)))
	}
	s.notifyAsync(ctx, userID, p, emotion)

	return p, nil
}

// MoodDescription — описание настроения по последней отметке пользователя.
func (s *PredictionService) MoodDescription(ctx context.Context, userID int64) (domain.MoodDescription, error) {
	emotion, status, err := s.mood(ctx, userID)
	if err != nil {
		return domain.MoodDescription{}, err
	}
	return MoodDescription(emotion, status), nil
}

// Wait дожидается отправки уже запущенных уведомлений.
func (s *PredictionService) Wait() {
	s.wg.Wait()
}

func (s *PredictionService) mood(ctx context.Context, userID int64) (domain.Emotion, domain.Status, error) {
	var m *domain.MoodLog
	err := s.withRetry(ctx, func() error {
		var fetchErr error
		m, fetchErr = s.source.LatestMood(ctx, userID)
		return fetchErr
	})
	if err != nil {
		return "", "", fmt.Errorf("engine: fetch mood: %w", err)
	}
	// Отметок нет — берем нейтрально-позитивный день
	if m == nil || m.Emotion == "" || m.Status == "" {
		return domain.EmotionGood, domain.StatusFree, nil
	}
	return m.Emotion, m.Status, nil
}

func (s *PredictionService) withRetry(ctx context.Context, fn func() error) error {
	r := retry.New(
		retry.Context(ctx),
		retry.Attempts(3),
		retry.DelayType(retry.BackOffDelay),
	)
	return r.Do(fn)
}

func (s *PredictionService) assemble(userID int64, req *domain.InferenceRequest, resp *domain.InferenceResponse) *domain.Prediction {
	p := &domain.Prediction{
		UserID:         userID,
		AnalysisDate:   resp.AnalysisDate,
		HourlyForecast: resp.HourlyForecast,
		Degraded:       resp.Degraded,
		Error:          resp.Error,
	}
	if p.AnalysisDate == "" {
		p.AnalysisDate = req.AnalysisDate
	}
	if p.HourlyForecast == nil {
		p.HourlyForecast = []float64{}
	}

	switch {
	case !resp.Complete():
		// Ответ без полного набора блоков: безопасная заглушка
		p.RiskAnalysis = domain.RiskAnalysis{
			Level:              domain.LevelSafe,
			Score:              0,
			VulnerableCategory: string(domain.CategoryNone),
			Condition:          string(req.Emotion),
			Message:            fallbackMessage,
		}
		p.UsagePrediction = domain.UsagePrediction{
			StartTime:      "00:00",
			EndTime:        "00:00",
			TargetCategory: string(domain.CategoryNone),
		}
		p.PatternDetection = domain.PatternDetection{PatternCode: domain.PatternNone}
		p.HourlyForecast = []float64{}
	case resp.Degraded:
		p.RiskAnalysis = *resp.RiskAnalysis
		p.UsagePrediction = *resp.UsagePrediction
		p.PatternDetection = *resp.PatternDetection
	default:
		p.RiskAnalysis = *resp.RiskAnalysis
		p.UsagePrediction = *resp.UsagePrediction
		p.PatternDetection = *resp.PatternDetection

		enrich(p, req.SeqData)
		p.RiskAnalysis.Title = riskTitles[p.RiskAnalysis.Level]
		p.RiskAnalysis.Message = riskMessage(p.RiskAnalysis.Level, p.RiskAnalysis.VulnerableCategory)
		p.UsagePrediction.Message = usageMessage(p.UsagePrediction)
	}

	p.Recommendations = s.recommendations(p.RiskAnalysis.Level)
	return p
}

// enrich заменяет категорию на самое используемое вчера приложение этой категории: "Instagram (SNS)".
func enrich(p *domain.Prediction, events []domain.UsageEvent) {
	vuln := p.RiskAnalysis.VulnerableCategory
	if vuln == "" || vuln == string(domain.CategoryNone) || vuln == string(domain.CategoryOther) {
		return
	}

	totals := make(map[string]float64)
	for _, ev := range events {
		if string(domain.ParseCategory(ev.Category)) == vuln {
			totals[ev.PackageName] += ev.DurationMs
		}
	}
	if len(totals) == 0 {
		return
	}

	var top string
	best := -1.0
	for pkg, ms := range totals {
		if ms > best || (ms == best && pkg < top) {
			top, best = pkg, ms
		}
	}

	label := fmt.Sprintf("%s (%s)", appName(top), vuln)
	p.RiskAnalysis.VulnerableCategory = label
	if p.UsagePrediction.TargetCategory == vuln {
		p.UsagePrediction.TargetCategory = label
	}
}

// appName: com.instagram.android -> Android, com.kakao.talk -> Talk.
func appName(pkg string) string {
	if i := strings.LastIndexByte(pkg, '.'); i >= 0 {
		pkg = pkg[i+1:]
	}
	if pkg == "" {
		return "Unknown"
	}
	r := []rune(strings.ToLower(pkg))
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

// recommendations: SAFE — одна фиксированная, CAUTION/DANGER — две разные из пула.
func (s *PredictionService) recommendations(level domain.RiskLevel) []domain.Recommendation {
	switch level {
	case domain.LevelSafe:
		return []domain.Recommendation{safeRecommendation}
	case domain.LevelCaution, domain.LevelDanger:
		s.rndMu.Lock()
		idx := s.rnd.Perm(len(recommendationPool))[:2]
		s.rndMu.Unlock()
		return []domain.Recommendation{recommendationPool[idx[0]], recommendationPool[idx[1]]}
	default:
		return []domain.Recommendation{}
	}
}

func (s *PredictionService) record(ctx context.Context, p *domain.Prediction, req *domain.InferenceRequest, elapsed time.Duration) audit.PredictionRecord {
	rec := audit.PredictionRecord{
		ID:           uuid.New().String(),
		TraceID:      extractTraceID(ctx),
		UserID:       p.UserID,
		InputEmotion: string(req.Emotion),
		InputStatus:  string(req.Status),
		RiskScore:    float64(p.RiskAnalysis.Score),
		RiskLevel:    string(p.RiskAnalysis.Level),
		RiskApp:      p.RiskAnalysis.VulnerableCategory,
		Degraded:     p.Degraded,
		DurationMs:   elapsed.Milliseconds(),
		CreatedAt:    s.now().UTC(),
	}
	if p.UsagePrediction.HasPrediction {
		rec.StartTime = p.UsagePrediction.StartTime
		rec.EndTime = p.UsagePrediction.EndTime
	}
	return rec
}

func (s *PredictionService) notifyAsync(ctx context.Context, userID int64, p *domain.Prediction, emotion domain.Emotion) {
	if s.notifier == nil || p.Degraded || !p.RiskAnalysis.Level.Notifiable() {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		// Ответ клиенту уже ушел, отмена запроса не должна обрывать уведомление
		nCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
		defer cancel()
		s.notifier.Notify(nCtx, userID, p, emotion)
	}()
}

// calendarDay — локальная дата момента t в зоне loc, представленная полуночью UTC.
func calendarDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}
