package model

import (
	"fmt"
	"math"

	"github.com/xela07ax/usagerisk/internal/domain"
	"github.com/xela07ax/usagerisk/internal/features"
)

// seq2seq — энкодер-декодер:
// GRU-энкодер сжимает 24×10 в вектор, мост повторяет его 24 раза,
// GRU-декодер разворачивает шаги, на каждом шаге Dense(3)+sigmoid.
type seq2seq struct {
	encoder *gruLayer
	decoder *gruLayer
	dense   *denseLayer
	rt      *Runtime
}

func newSeq2Seq(a *Artifact, rt *Runtime) (*seq2seq, error) {
	if a.InputDim != features.FeatureDim || a.OutputSteps != domain.HoursAhead || a.OutputDim != domain.NumClasses {
		return nil, fmt.Errorf("%w: io %dx%d -> %dx%d", ErrShape, features.SeqLen, a.InputDim, a.OutputSteps, a.OutputDim)
	}
	if a.Encoder == nil || a.Decoder == nil || a.Dense == nil {
		return nil, fmt.Errorf("%w: missing layers", ErrShape)
	}

	enc, err := newGRULayer("encoder", a.Encoder, a.InputDim, a.Hidden)
	if err != nil {
		return nil, err
	}
	dec, err := newGRULayer("decoder", a.Decoder, a.Hidden, a.Hidden)
	if err != nil {
		return nil, err
	}
	dense, err := newDenseLayer(a.Dense, a.Hidden, a.OutputDim)
	if err != nil {
		return nil, err
	}
	return &seq2seq{encoder: enc, decoder: dec, dense: dense, rt: rt}, nil
}

func (m *seq2seq) Forecast(w features.Window) (domain.ForecastTensor, error) {
	var out domain.ForecastTensor

	units := m.encoder.units
	h := m.rt.alloc(units)
	scratch := m.rt.alloc(6 * units)

	// Энкодер: интересует только последнее скрытое состояние.
	for t := 0; t < features.SeqLen; t++ {
		m.encoder.step(w[t][:], h, scratch)
	}
	latent := append([]float64(nil), h...)

	// Декодер: на вход каждого шага подается один и тот же латентный вектор.
	hd := m.rt.alloc(m.decoder.units)
	for t := 0; t < domain.HoursAhead; t++ {
		m.decoder.step(latent, hd, scratch)
		for c := 0; c < domain.NumClasses; c++ {
			v := m.dense.bias[c]
			for j, hv := range hd {
				v += hv * m.dense.kernel[j][c]
			}
			out[t][c] = sigmoid(v)
		}
	}

	for t := range out {
		for c := range out[t] {
			if math.IsNaN(out[t][c]) {
				return out, fmt.Errorf("model: non-finite output at step %d", t)
			}
		}
	}
	return out, nil
}

type gruLayer struct {
	in, units int
	kernel    [][]float64
	recurrent [][]float64
	biasIn    []float64
	biasRec   []float64
}

func newGRULayer(name string, wts *GRUWeights, in, units int) (*gruLayer, error) {
	if units <= 0 {
		return nil, fmt.Errorf("%w: %s units=%d", ErrShape, name, units)
	}
	if err := checkMatrix(wts.Kernel, in, 3*units); err != nil {
		return nil, fmt.Errorf("%s kernel: %w", name, err)
	}
	if err := checkMatrix(wts.RecurrentKernel, units, 3*units); err != nil {
		return nil, fmt.Errorf("%s recurrent_kernel: %w", name, err)
	}
	if err := checkMatrix(wts.Bias, 2, 3*units); err != nil {
		return nil, fmt.Errorf("%s bias: %w", name, err)
	}
	return &gruLayer{
		in:        in,
		units:     units,
		kernel:    wts.Kernel,
		recurrent: wts.RecurrentKernel,
		biasIn:    wts.Bias[0],
		biasRec:   wts.Bias[1],
	}, nil
}

// step обновляет h на месте. scratch — не меньше 6*units.
//
//	z  = σ(x·Wz + bz + h·Uz + b'z)
//	r  = σ(x·Wr + br + h·Ur + b'r)
//	hh = tanh(x·Wh + bh + r ⊙ (h·Uh + b'h))
//	h' = z ⊙ h + (1 − z) ⊙ hh
func (g *gruLayer) step(x, h, scratch []float64) {
	n := 3 * g.units
	xw := scratch[:n]
	hu := scratch[n : 2*n]

	copy(xw, g.biasIn)
	for i, xv := range x[:g.in] {
		if xv == 0 {
			continue
		}
		row := g.kernel[i]
		for j := 0; j < n; j++ {
			xw[j] += xv * row[j]
		}
	}

	copy(hu, g.biasRec)
	for i, hv := range h {
		if hv == 0 {
			continue
		}
		row := g.recurrent[i]
		for j := 0; j < n; j++ {
			hu[j] += hv * row[j]
		}
	}

	u := g.units
	for j := 0; j < u; j++ {
		z := sigmoid(xw[j] + hu[j])
		r := sigmoid(xw[u+j] + hu[u+j])
		hh := math.Tanh(xw[2*u+j] + r*hu[2*u+j])
		h[j] = z*h[j] + (1-z)*hh
	}
}

type denseLayer struct {
	kernel [][]float64
	bias   []float64
}

func newDenseLayer(wts *DenseWeights, in, out int) (*denseLayer, error) {
	if err := checkMatrix(wts.Kernel, in, out); err != nil {
		return nil, fmt.Errorf("dense kernel: %w", err)
	}
	if len(wts.Bias) != out {
		return nil, fmt.Errorf("%w: dense bias %d != %d", ErrShape, len(wts.Bias), out)
	}
	return &denseLayer{kernel: wts.Kernel, bias: wts.Bias}, nil
}

func checkMatrix(m [][]float64, rows, cols int) error {
	if len(m) != rows {
		return fmt.Errorf("%w: rows %d != %d", ErrShape, len(m), rows)
	}
	for i, r := range m {
		if len(r) != cols {
			return fmt.Errorf("%w: row %d has %d cols, want %d", ErrShape, i, len(r), cols)
		}
	}
	return nil
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
