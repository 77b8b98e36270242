package risk

import (
	"fmt"
	"math"

	"github.com/xela07ax/usagerisk/internal/domain"
	"go.uber.org/zap"
)

// Result — все, что постпроцессор выводит из одного прогноза.
type Result struct {
	Risk         domain.RiskAnalysis
	Usage        domain.UsagePrediction
	Pattern      domain.PatternDetection
	Hourly       [domain.HoursAhead]float64
	TotalSeconds float64
}

// Analyze превращает прогноз в скор, уровень, пиковый час и флаг паттерна. Функция чистая.
func Analyze(f domain.ForecastTensor, emotion domain.Emotion, p Policy) Result {
	var res Result

	var colSums [domain.NumClasses]float64
	var sum float64
	for h := range f {
		for c := range f[h] {
			res.Hourly[h] += f[h][c]
			colSums[c] += f[h][c]
		}
		sum += res.Hourly[h]
	}
	res.TotalSeconds = sum * 3600

	vulnerable := domain.Categories[argmax(colSums[:])]

	score := Score(res.TotalSeconds, p)
	level := Level(score, p)

	res.Risk = domain.RiskAnalysis{
		Level:              level,
		Score:              int(math.Floor(score * 100)),
		VulnerableCategory: string(vulnerable),
		Condition:          string(emotion),
		Message:            Message(emotion, level, vulnerable),
	}

	peak := argmax(res.Hourly[:])
	res.Usage = domain.UsagePrediction{
		HasPrediction:      true,
		StartTime:          fmt.Sprintf("%02d:00", peak),
		EndTime:            fmt.Sprintf("%02d:00", peak+1),
		TargetCategory:     string(vulnerable),
		ProbabilityPercent: math.Round(res.Hourly[peak]*100*10) / 10,
	}

	var night float64
	for _, h := range p.NightHours {
		if h >= 0 && h < domain.HoursAhead {
			night += res.Hourly[h]
		}
	}
	res.Pattern = domain.PatternDetection{PatternCode: domain.PatternNone}
	if night > p.NightShare*sum {
		res.Pattern = domain.PatternDetection{
			Detected:     true,
			PatternCode:  domain.PatternNightOwl,
			AlertMessage: nightOwlAlert,
		}
	}
	return res
}

// Score — кусочно-линейная функция от доли порога: 0.7 в точке порога, дальше +0.1 за каждый порог, потолок 1.
func Score(totalSeconds float64, p Policy) float64 {
	ratio := totalSeconds / p.thresholdSeconds()
	if ratio <= 1 {
		return ratio * 0.7
	}
	return math.Min(1, 0.7+(ratio-1)*0.1)
}

func Level(score float64, p Policy) domain.RiskLevel {
	switch {
	case score >= p.DangerAt:
		return domain.LevelDanger
	case score >= p.CautionAt:
		return domain.LevelCaution
	default:
		return domain.LevelSafe
	}
}

// argmax: при равенстве побеждает первый индекс.
func argmax(v []float64) int {
	best := 0
	for i := 1; i < len(v); i++ {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}

// Analyzer — обертка с политикой и логгером для воркера.
type Analyzer struct {
	policy Policy
	logger *zap.Logger
}

func NewAnalyzer(p Policy, logger *zap.Logger) *Analyzer {
	return &Analyzer{policy: p, logger: logger.Named("analyzer")}
}

func (a *Analyzer) Analyze(f domain.ForecastTensor, emotion domain.Emotion) Result {
	res := Analyze(f, emotion, a.policy)
	a.logger.Debug("forecast analyzed",
		zap.String("level", string(res.Risk.Level)),
		zap.Int("score", res.Risk.Score),
		zap.String("category", res.Risk.VulnerableCategory),
		zap.Float64("total_seconds", res.TotalSeconds),
		zap.Bool("night_owl", res.Pattern.Detected),
	)
	return res
}

// Response собирает провод-ответ воркера из результата.
func (r Result) Response(userID int64, analysisDate string) *domain.InferenceResponse {
	risk, usage, pattern := r.Risk, r.Usage, r.Pattern
	return &domain.InferenceResponse{
		UserID:                userID,
		AnalysisDate:          analysisDate,
		RiskAnalysis:          &risk,
		UsagePrediction:       &usage,
		PatternDetection:      &pattern,
		HourlyForecast:        append([]float64(nil), r.Hourly[:]...),
		TotalPredictedSeconds: r.TotalSeconds,
	}
}
