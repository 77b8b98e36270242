package domain

// InferenceRequest — единственный JSON-объект, который воркер читает из stdin.
type InferenceRequest struct {
	Emotion      Emotion      `json:"emotion"`
	Status       Status       `json:"status"`
	SeqData      []UsageEvent `json:"seq_data"`
	UserID       *int64       `json:"user_id,omitempty"`
	AnalysisDate string       `json:"analysis_date,omitempty"`
}

// InferenceResponse — единственный JSON-объект, который воркер пишет в stdout.
// Либо заполнен результат анализа, либо Error (и, возможно, RiskAnalysis с level=ERROR).
type InferenceResponse struct {
	Error string `json:"error,omitempty"`

	UserID       int64  `json:"user_id"`
	AnalysisDate string `json:"analysis_date,omitempty"`

	RiskAnalysis     *RiskAnalysis     `json:"risk_analysis,omitempty"`
	UsagePrediction  *UsagePrediction  `json:"usage_prediction,omitempty"`
	PatternDetection *PatternDetection `json:"pattern_detection,omitempty"`

	HourlyForecast        []float64 `json:"hourly_forecast,omitempty"`
	TotalPredictedSeconds float64   `json:"total_predicted_seconds"`

	// Degraded выставляет только хост (арбитр), в протокол воркера не входит.
	Degraded bool `json:"-"`
}

// Complete проверяет наличие всех трех блоков результата.
func (r *InferenceResponse) Complete() bool {
	return r.RiskAnalysis != nil && r.UsagePrediction != nil && r.PatternDetection != nil
}

// Prediction — то, что хост отдает клиенту после обогащения.
type Prediction struct {
	UserID           int64            `json:"user_id"`
	AnalysisDate     string           `json:"analysis_date"`
	RiskAnalysis     RiskAnalysis     `json:"risk_analysis"`
	UsagePrediction  UsagePrediction  `json:"usage_prediction"`
	PatternDetection PatternDetection `json:"pattern_detection"`
	HourlyForecast   []float64        `json:"hourly_forecast"`
	Recommendations  []Recommendation `json:"recommendations"`
	Degraded         bool             `json:"degraded,omitempty"`
	Error            string           `json:"error,omitempty"`
}

type MoodDescription struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}
