package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/xela07ax/usagerisk/internal/domain"
	"github.com/xela07ax/usagerisk/internal/features"
)

// Поддерживаемые виды артефактов.
const (
	KindGRUSeq2Seq    = "gru_seq2seq"
	KindSeasonalNaive = "seasonal_naive"
)

var (
	ErrShape       = errors.New("model: artifact shape mismatch")
	ErrUnknownKind = errors.New("model: unknown artifact kind")
)

// Forecaster — детерминированная функция FeatureWindow → ForecastTensor.
type Forecaster interface {
	Forecast(w features.Window) (domain.ForecastTensor, error)
}

// Artifact — сериализованная модель. Обучение вне ядра, здесь только формат.
type Artifact struct {
	Kind    string `json:"kind"`
	Version string `json:"version"`

	InputDim    int `json:"input_dim"`
	Hidden      int `json:"hidden"`
	OutputSteps int `json:"output_steps"`
	OutputDim   int `json:"output_dim"`

	Encoder *GRUWeights   `json:"encoder,omitempty"`
	Decoder *GRUWeights   `json:"decoder,omitempty"`
	Dense   *DenseWeights `json:"dense,omitempty"`
}

// GRUWeights — веса в раскладке Keras (reset_after=true, порядок гейтов z, r, h).
type GRUWeights struct {
	Kernel          [][]float64 `json:"kernel"`           // [in][3*units]
	RecurrentKernel [][]float64 `json:"recurrent_kernel"` // [units][3*units]
	Bias            [][]float64 `json:"bias"`             // [2][3*units]: входной и рекуррентный
}

type DenseWeights struct {
	Kernel [][]float64 `json:"kernel"` // [units][out]
	Bias   []float64   `json:"bias"`   // [out]
}

// ReadArtifact читает артефакт с диска без построения модели.
func ReadArtifact(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("model: read artifact: %w", err)
	}
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("model: decode artifact: %w", err)
	}
	return &a, nil
}

// Build собирает исполняемую модель из артефакта, проверяя формы весов.
func (a *Artifact) Build(rt *Runtime) (Forecaster, error) {
	switch a.Kind {
	case KindSeasonalNaive:
		return seasonalNaive{}, nil
	case KindGRUSeq2Seq:
		return newSeq2Seq(a, rt)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, a.Kind)
	}
}

// seasonalNaive — базовая модель до первого обучения: завтра повторяет наблюденные сутки.
type seasonalNaive struct{}

func (seasonalNaive) Forecast(w features.Window) (domain.ForecastTensor, error) {
	var out domain.ForecastTensor
	for t := 0; t < domain.HoursAhead; t++ {
		for c := 0; c < domain.NumClasses; c++ {
			out[t][c] = clamp01(w[t][c])
		}
	}
	return out, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
