package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Исходы одного вызова воркера.
const (
	OutcomeOK        = "ok"
	OutcomeTimeout   = "timeout"
	OutcomeCrash     = "crash"
	OutcomeMalformed = "malformed"
	OutcomeCancelled = "cancelled"
	OutcomeOpen      = "breaker_open"
)

type Metrics struct {
	// Latency: сколько шел воркер, по исходу
	InferenceDuration *prometheus.HistogramVec

	// Traffic: исходы вызовов
	InferenceTotal *prometheus.CounterVec

	// Saturation: ожидание токена и число ожидающих/исполняемых
	LockWait prometheus.Histogram
	InFlight prometheus.Gauge

	// Состояние предохранителя (0 - закрыт, 1 - полуоткрыт, 2 - открыт)
	CircuitBreakerState prometheus.Gauge

	// Результаты по уровням риска
	PredictionsTotal *prometheus.CounterVec

	// Журнал предсказаний: заполненность буфера (backpressure)
	LogBufferFill prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern - Если рег не передан, используем локальный, который никуда не подключен
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		InferenceDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "usagerisk_inference_duration_seconds",
			Help:    "Histogram of worker run latencies.",
			Buckets: []float64{.1, .25, .5, 1, 2, 3, 5, 8, 13, 20, 30},
		}, []string{"outcome"}),

		InferenceTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "usagerisk_inference_total",
			Help: "Total number of inference calls by outcome.",
		}, []string{"outcome"}),

		LockWait: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "usagerisk_device_lock_wait_seconds",
			Help:    "Time spent waiting for the device token.",
			Buckets: []float64{.001, .01, .1, .5, 1, 2.5, 5, 10, 20, 40},
		}),

		InFlight: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "usagerisk_inference_in_flight",
			Help: "Inference calls waiting for or holding the device token.",
		}),

		CircuitBreakerState: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "usagerisk_circuit_breaker_state",
			Help: "Current state of the worker circuit breaker (0=closed, 1=half-open, 2=open).",
		}),

		PredictionsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "usagerisk_predictions_total",
			Help: "Predictions served by risk level.",
		}, []string{"level", "degraded"}),

		LogBufferFill: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "usagerisk_prediction_log_buffer_utilization",
			Help: "Current number of entries in the prediction log buffer.",
		}),
	}
}
