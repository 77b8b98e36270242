package risk

import (
	"fmt"
	"time"
)

// Границы настройки порога суточного использования.
const (
	MinThreshold     = 4 * time.Hour
	MaxThreshold     = 6 * time.Hour
	DefaultThreshold = 6 * time.Hour
)

// Policy — константы скоринга. Ночная эвристика фиксированная, статистически не выведена.
type Policy struct {
	Threshold  time.Duration
	DangerAt   float64
	CautionAt  float64
	NightHours []int
	NightShare float64
}

func DefaultPolicy() Policy {
	return Policy{
		Threshold:  DefaultThreshold,
		DangerAt:   0.70,
		CautionAt:  0.40,
		NightHours: []int{22, 23, 0, 1, 2, 3},
		NightShare: 0.4,
	}
}

// WithThresholdHours возвращает политику с другим порогом. Значение вне [4h, 6h] — ошибка.
func (p Policy) WithThresholdHours(hours float64) (Policy, error) {
	d := time.Duration(hours * float64(time.Hour))
	if d < MinThreshold || d > MaxThreshold {
		return p, fmt.Errorf("risk: threshold %.2fh out of range [%v, %v]", hours, MinThreshold, MaxThreshold)
	}
	p.Threshold = d
	return p, nil
}

func (p Policy) thresholdSeconds() float64 {
	return p.Threshold.Seconds()
}
