package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/sony/gobreaker"
	"github.com/xela07ax/usagerisk/internal/domain"
	"go.uber.org/zap"
)

// Нейтральный скор деградированного ответа.
const DegradedScore = 50

var (
	ErrWorkerTimeout   = errors.New("arbiter: worker timed out")
	ErrWorkerFailed    = errors.New("arbiter: worker failed")
	ErrMalformedOutput = errors.New("arbiter: malformed worker output")
)

type ArbiterConfig struct {
	WorkerPath string
	WorkerArgs []string
	// Env добавляется к окружению хоста.
	Env []string

	Timeout   time.Duration
	KillGrace time.Duration

	CBFailures uint32
	CBTimeout  time.Duration
}

// Arbiter сериализует запуски воркера и превращает любой сбой в деградированный ответ.
type Arbiter struct {
	cfg     ArbiterConfig
	token   *Token
	cb      *gobreaker.CircuitBreaker
	metrics *Metrics
	logger  *zap.Logger

	mu        sync.RWMutex
	modelPath string
}

func NewArbiter(cfg ArbiterConfig, metrics *Metrics, logger *zap.Logger) *Arbiter {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.KillGrace <= 0 {
		cfg.KillGrace = 2 * time.Second
	}
	if cfg.CBFailures == 0 {
		cfg.CBFailures = 5
	}
	if cfg.CBTimeout <= 0 {
		cfg.CBTimeout = 30 * time.Second
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}

	a := &Arbiter{
		cfg:     cfg,
		token:   NewToken(),
		metrics: metrics,
		logger:  logger.Named("arbiter"),
	}

	// Предохранитель не повторяет вызовы, только отсекает их после серии падений воркера
	a.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "risk-worker",
		MaxRequests: 1,
		Timeout:     cfg.CBTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.CBFailures
		},
		// Клиент ушел сам — воркер тут не виноват
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			a.metrics.CircuitBreakerState.Set(float64(to))
			a.logger.Warn("circuit breaker state changed",
				zap.String("breaker", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})
	return a
}

// SetModelPath задает артефакт, который уйдет воркеру флагом --model.
func (a *Arbiter) SetModelPath(path string) {
	a.mu.Lock()
	a.modelPath = path
	a.mu.Unlock()
}

func (a *Arbiter) ModelPath() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.modelPath
}

// Predict никогда не возвращает ошибку: таймаут, падение, мусор в выводе и отмена ожидания
// дают DegradedResponse. Ответы воркера с полем error передаются как есть.
func (a *Arbiter) Predict(ctx context.Context, req *domain.InferenceRequest) *domain.InferenceResponse {
	payload, err := json.Marshal(req)
	if err != nil {
		a.logger.Error("request encoding failed", zap.Error(err))
		return DegradedResponse()
	}

	a.metrics.InFlight.Inc()
	defer a.metrics.InFlight.Dec()

	if a.cb.State() == gobreaker.StateOpen {
		a.observe(OutcomeOpen, 0)
		return DegradedResponse()
	}

	waitStart := time.Now()
	release, err := a.token.Acquire(ctx)
	a.metrics.LockWait.Observe(time.Since(waitStart).Seconds())
	if err != nil {
		a.logger.Warn("device token not acquired", zap.Error(err))
		a.observe(OutcomeCancelled, 0)
		return DegradedResponse()
	}
	defer release()

	start := time.Now()
	res, err := a.cb.Execute(func() (interface{}, error) {
		return a.spawn(ctx, payload)
	})
	elapsed := time.Since(start)

	if err != nil {
		outcome := classify(err)
		a.logger.Warn("inference degraded", zap.String("outcome", outcome), zap.Duration("elapsed", elapsed), zap.Error(err))
		a.observe(outcome, elapsed)
		return DegradedResponse()
	}

	a.observe(OutcomeOK, elapsed)
	return res.(*domain.InferenceResponse)
}

func (a *Arbiter) observe(outcome string, elapsed time.Duration) {
	a.metrics.InferenceTotal.WithLabelValues(outcome).Inc()
	if elapsed > 0 {
		a.metrics.InferenceDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
	}
}

func (a *Arbiter) spawn(ctx context.Context, payload []byte) (*domain.InferenceResponse, error) {
	rCtx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	args := append([]string(nil), a.cfg.WorkerArgs...)
	if p := a.ModelPath(); p != "" {
		args = append(args, "--model", p)
	}

	var stdout bytes.Buffer
	stderr := &tailBuffer{max: 4 << 10}

	cmd := exec.CommandContext(rCtx, a.cfg.WorkerPath, args...)
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Stdout = &stdout
	cmd.Stderr = stderr
	cmd.Env = append(os.Environ(), a.cfg.Env...)
	// Сначала вежливо: воркер сам освобождает ресурсы по SIGTERM. Через KillGrace — SIGKILL.
	cmd.Cancel = func() error { return cmd.Process.Signal(syscall.SIGTERM) }
	cmd.WaitDelay = a.cfg.KillGrace

	// Run всегда дожидается процесса, зомби не остаются
	runErr := cmd.Run()

	if errors.Is(rCtx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w after %v", ErrWorkerTimeout, a.cfg.Timeout)
	}
	if runErr != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", ErrWorkerFailed, ctx.Err())
		}
		a.logger.Debug("worker stderr", zap.String("tail", stderr.String()))
		return nil, fmt.Errorf("%w: %w", ErrWorkerFailed, runErr)
	}

	out := bytes.TrimSpace(stdout.Bytes())
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: empty stdout", ErrMalformedOutput)
	}
	var resp domain.InferenceResponse
	if err := json.Unmarshal(out, &resp); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedOutput, err)
	}
	if resp.Error == "" && !resp.Complete() {
		return nil, fmt.Errorf("%w: incomplete result", ErrMalformedOutput)
	}
	return &resp, nil
}

func classify(err error) string {
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return OutcomeOpen
	case errors.Is(err, ErrWorkerTimeout):
		return OutcomeTimeout
	case errors.Is(err, context.Canceled):
		return OutcomeCancelled
	case errors.Is(err, ErrMalformedOutput):
		return OutcomeMalformed
	default:
		return OutcomeCrash
	}
}

// DegradedResponse — фиксированный нейтральный ответ, когда предсказания нет.
func DegradedResponse() *domain.InferenceResponse {
	return &domain.InferenceResponse{
		Degraded: true,
		RiskAnalysis: &domain.RiskAnalysis{
			Level:              domain.LevelUnknown,
			Score:              DegradedScore,
			VulnerableCategory: string(domain.CategoryNone),
			Message:            "Analysis is unavailable right now.",
		},
		UsagePrediction: &domain.UsagePrediction{
			HasPrediction:  false,
			TargetCategory: string(domain.CategoryNone),
		},
		PatternDetection: &domain.PatternDetection{PatternCode: domain.PatternNone},
	}
}

// tailBuffer хранит последние max байт вывода.
type tailBuffer struct {
	max int
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string { return string(t.buf) }
