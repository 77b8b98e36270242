package domain

// RiskLevel — уровень риска. Исторические имена LOW/MODERATE/HIGH соответствуют SAFE/CAUTION/DANGER.
type RiskLevel string

const (
	LevelSafe    RiskLevel = "SAFE"    // LOW
	LevelCaution RiskLevel = "CAUTION" // MODERATE
	LevelDanger  RiskLevel = "DANGER"  // HIGH

	// LevelError — воркер поймал исключение и вернул структурированную ошибку.
	LevelError RiskLevel = "ERROR"
	// LevelUnknown — арбитр не получил валидный ответ (таймаут, падение, мусор в stdout).
	LevelUnknown RiskLevel = "UNKNOWN"
)

// Notifiable — уровни, по которым имеет смысл будить пользователя.
func (l RiskLevel) Notifiable() bool {
	return l == LevelCaution || l == LevelDanger
}

const (
	HoursAhead = 24
	NumClasses = 3
)

// ForecastTensor — выход модели: 24 часа × 3 категории, доля занятого часа в [0,1].
type ForecastTensor [HoursAhead][NumClasses]float64

type RiskAnalysis struct {
	Level              RiskLevel `json:"level"`
	Score              int       `json:"score"`
	VulnerableCategory string    `json:"vulnerable_category,omitempty"`
	Condition          string    `json:"condition,omitempty"`
	Message            string    `json:"message,omitempty"`
	Title              string    `json:"title,omitempty"`
}

type UsagePrediction struct {
	HasPrediction      bool    `json:"has_prediction"`
	StartTime          string  `json:"start_time"`
	EndTime            string  `json:"end_time"`
	TargetCategory     string  `json:"target_category"`
	ProbabilityPercent float64 `json:"probability_percent"`
	Message            string  `json:"message,omitempty"`
}

const (
	PatternNone     = "NONE"
	PatternNightOwl = "PATTERN_NIGHT_OWL"
)

type PatternDetection struct {
	Detected     bool   `json:"detected"`
	PatternCode  string `json:"pattern_code"`
	AlertMessage string `json:"alert_message"`
}

type Recommendation struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}
