package worker

/*
Файл worker.go — одно предсказание в отдельном процессе.

Порядок шагов фиксирован: устройство выбирается и публикуется в окружение ДО инициализации
рантайма, иначе рантайм увидит все устройства. Ответ всегда ровно один JSON-объект в stdout,
диагностика только в stderr. Освобождение ресурсов идет через одну идемпотентную процедуру,
до которой доходят и отложенный выход, и обработчик сигналов.
*/

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"sync"
	"syscall"

	"github.com/xela07ax/usagerisk/internal/artifact"
	"github.com/xela07ax/usagerisk/internal/device"
	"github.com/xela07ax/usagerisk/internal/domain"
	"github.com/xela07ax/usagerisk/internal/features"
	"github.com/xela07ax/usagerisk/internal/model"
	"github.com/xela07ax/usagerisk/internal/risk"
	"go.uber.org/zap"
)

// Тексты ошибок протокола. Хост сравнивает их дословно.
const (
	MsgEmptyInput       = "Empty input"
	MsgInsufficientData = "Insufficient data"
	MsgModelNotFound    = "Model not found"

	defaultAnalysisDate = "Tomorrow"
)

var errEmptyInput = errors.New("worker: empty input")

// DeviceSelector — выбор индекса ускорителя. Сбои внутри, наружу только индекс.
type DeviceSelector interface {
	Select(ctx context.Context) int
}

type Options struct {
	// ModelPath — конкретный файл артефакта. Если пуст, версия ищется в ModelRoot.
	ModelPath string
	ModelRoot string

	Policy   risk.Policy
	Selector DeviceSelector
	Logger   *zap.Logger
}

type Worker struct {
	opts     Options
	analyzer *risk.Analyzer
	logger   *zap.Logger

	mu    sync.Mutex
	rt    *model.Runtime
	model model.Forecaster

	emitOnce    sync.Once
	cleanupOnce sync.Once

	// exit подменяется в тестах.
	exit func(code int)
}

func New(opts Options) *Worker {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		opts:     opts,
		analyzer: risk.NewAnalyzer(opts.Policy, logger),
		logger:   logger.Named("worker"),
		exit:     os.Exit,
	}
}

// failure — ответ с ошибкой. RiskAnalysis есть только у ошибок исполнения.
type failure struct {
	Error        string       `json:"error"`
	RiskAnalysis *failureRisk `json:"risk_analysis,omitempty"`
}

type failureRisk struct {
	Level domain.RiskLevel `json:"level"`
	Score int              `json:"score"`
}

// Run читает запрос из in и пишет ровно один ответ в out. Ошибка возвращается только
// если не удалось записать сам ответ; код выхода процесса при этом все равно 0.
func (w *Worker) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	defer w.Cleanup()

	resp, err := w.process(ctx, in)
	if err != nil {
		return w.emit(out, w.failureFor(err))
	}
	return w.emit(out, resp)
}

func (w *Worker) process(ctx context.Context, in io.Reader) (resp *domain.InferenceResponse, err error) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("panic in inference", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			resp, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()

	// 1. Устройство публикуется до рантайма.
	dev := 0
	if w.opts.Selector != nil {
		dev = w.opts.Selector.Select(ctx)
	}
	if err := device.Apply(dev); err != nil {
		w.logger.Debug("device env not applied", zap.Error(err))
	}

	// 2. Рантайм в режиме роста памяти.
	rt := model.NewRuntime(model.RuntimeOptions{MemoryGrowth: true})
	w.mu.Lock()
	w.rt = rt
	w.mu.Unlock()
	w.logger.Debug("runtime initialized", zap.String("device", rt.Device()), zap.Bool("memory_growth", rt.MemoryGrowth()))

	// 3. Запрос.
	req, err := decode(in)
	if err != nil {
		return nil, err
	}

	// 4. Окно признаков.
	win, meta, err := features.Build(req.SeqData, req.Emotion, req.Status)
	if err != nil {
		return nil, err
	}
	w.logger.Debug("feature window built",
		zap.String("analysis_date", meta.AnalysisDate),
		zap.String("input_type", meta.InputType),
		zap.Int("observed_hours", meta.ObservedHours),
	)

	// 5. Артефакт.
	path, err := w.resolveModel()
	if err != nil {
		return nil, err
	}
	if err := artifact.Verify(path); err != nil {
		return nil, err
	}
	m, err := rt.Load(path)
	if err != nil {
		return nil, err
	}
	w.mu.Lock()
	w.model = m
	w.mu.Unlock()

	// 6. Прямой проход и постобработка.
	f, err := m.Forecast(win)
	if err != nil {
		return nil, err
	}
	res := w.analyzer.Analyze(f, req.Emotion)

	date := meta.AnalysisDate
	if date == "" {
		date = req.AnalysisDate
	}
	if date == "" {
		date = defaultAnalysisDate
	}
	var uid int64
	if req.UserID != nil {
		uid = *req.UserID
	}
	return res.Response(uid, date), nil
}

func decode(in io.Reader) (*domain.InferenceRequest, error) {
	data, err := io.ReadAll(in)
	if err != nil {
		return nil, fmt.Errorf("read stdin: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errEmptyInput
	}
	var req domain.InferenceRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("decode request: %w", err)
	}
	req.Emotion, req.Status = normalizeMood(req.Emotion, req.Status)
	return &req, nil
}

// normalizeMood: пропущенное или незнакомое настроение — NORMAL, занятость — FREE.
func normalizeMood(e domain.Emotion, s domain.Status) (domain.Emotion, domain.Status) {
	e = domain.Emotion(strings.ToUpper(strings.TrimSpace(string(e))))
	switch e {
	case domain.EmotionGood, domain.EmotionNormal, domain.EmotionBad:
	default:
		e = domain.EmotionNormal
	}
	s = domain.Status(strings.ToUpper(strings.TrimSpace(string(s))))
	if s != domain.StatusBusy {
		s = domain.StatusFree
	}
	return e, s
}

func (w *Worker) resolveModel() (string, error) {
	if w.opts.ModelPath != "" {
		if !artifact.Exists(w.opts.ModelPath) {
			return "", fmt.Errorf("%w: %s", artifact.ErrNotFound, w.opts.ModelPath)
		}
		return w.opts.ModelPath, nil
	}
	if w.opts.ModelRoot == "" {
		return "", artifact.ErrNotFound
	}
	return artifact.NewStore(w.opts.ModelRoot, "", w.logger).Resolve()
}

func (w *Worker) failureFor(err error) failure {
	switch {
	case errors.Is(err, errEmptyInput):
		return failure{Error: MsgEmptyInput}
	case errors.Is(err, features.ErrInsufficientData):
		return failure{Error: MsgInsufficientData}
	case errors.Is(err, artifact.ErrNotFound):
		w.logger.Warn("model artifact missing", zap.Error(err))
		return failure{Error: MsgModelNotFound}
	default:
		w.logger.Error("inference failed", zap.Error(err))
		return failure{Error: err.Error(), RiskAnalysis: &failureRisk{Level: domain.LevelError, Score: 0}}
	}
}

// emit пишет ответ один раз. Повторные вызовы игнорируются.
func (w *Worker) emit(out io.Writer, v any) error {
	var err error
	w.emitOnce.Do(func() {
		err = json.NewEncoder(out).Encode(v)
	})
	return err
}

// Cleanup освобождает модель и рантайм и принудительно собирает мусор. Идемпотентна.
func (w *Worker) Cleanup() {
	w.cleanupOnce.Do(func() {
		w.mu.Lock()
		w.model = nil
		if w.rt != nil {
			w.rt.Close()
		}
		w.mu.Unlock()

		runtime.GC()
		debug.FreeOSMemory()
		w.logger.Debug("inference resources released")
	})
}

// WatchSignals: на SIGTERM/SIGINT освобождает ресурсы и завершает процесс с кодом 0.
// Ответ к этому моменту может быть не записан, хост считает это битым выводом.
func (w *Worker) WatchSignals() (stop func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGTERM, syscall.SIGINT)
	done := make(chan struct{})

	go func() {
		select {
		case sig := <-ch:
			w.logger.Warn("signal received, releasing resources", zap.String("signal", sig.String()))
			w.Cleanup()
			w.exit(0)
		case <-done:
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			signal.Stop(ch)
			close(done)
		})
	}
}
