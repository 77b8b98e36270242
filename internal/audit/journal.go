package audit

/*
Файл journal.go — асинхронный журнал предсказаний.

- Запись не блокирует ответ пользователю: события уходят в буферизованный канал,
  при переполнении лишнее сбрасывается с ошибкой в лог.
- Пакетная вставка по таймеру или при накоплении batchSize записей.
- Drain Pattern: Stop закрывает вход, воркер вычитывает остаток и делает финальный flush.
  Record держит RLock на время отправки, поэтому close в Stop никогда не встретит живую отправку.
*/

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const batchSize = 100

// StorageInterface определяет, куда физически будут сохраняться записи
type StorageInterface interface {
	WriteBatch(ctx context.Context, records []PredictionRecord) error
}

// Recorder — то, что нужно сервису предсказаний.
type Recorder interface {
	Record(rec PredictionRecord)
}

type Journal struct {
	ch       chan PredictionRecord
	repo     StorageInterface
	interval time.Duration
	logger   *zap.Logger
	wg       sync.WaitGroup

	// Gauge заполненности буфера, может быть nil
	fill func(n int)

	mu     sync.RWMutex
	closed bool
}

func NewJournal(repo StorageInterface, bufferSize int, flushInterval time.Duration, logger *zap.Logger) *Journal {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	if flushInterval <= 0 {
		flushInterval = time.Second
	}
	return &Journal{
		ch:       make(chan PredictionRecord, bufferSize),
		repo:     repo,
		interval: flushInterval,
		logger:   logger.Named("journal"),
	}
}

// OnFill подключает наблюдателя за заполненностью буфера (обычно prometheus gauge).
func (j *Journal) OnFill(fn func(n int)) {
	j.fill = fn
}

func (j *Journal) Start() {
	j.wg.Add(1)
	go j.worker()
}

// Stop «запирает» вход и ждет, пока воркер всё допишет.
func (j *Journal) Stop() {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return
	}
	j.closed = true
	j.logger.Info("stopping journal: closing channel and flushing buffer...")
	close(j.ch)
	j.mu.Unlock()

	j.wg.Wait()
	j.logger.Info("journal stopped gracefully")
}

func (j *Journal) Record(rec PredictionRecord) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		j.logger.Warn("prediction record dropped: journal is stopping", zap.String("id", rec.ID))
		return
	}

	// Load Shedding: при переполнении не ждем
	select {
	case j.ch <- rec:
		if j.fill != nil {
			j.fill(len(j.ch))
		}
	default:
		j.logger.Error("journal_buffer_overflow",
			zap.Int64("user_id", rec.UserID),
			zap.String("trace_id", rec.TraceID),
		)
	}
}

func (j *Journal) worker() {
	defer j.wg.Done()

	batch := make([]PredictionRecord, 0, batchSize)
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		// Background: основной контекст к этому моменту может быть закрыт
		if err := j.repo.WriteBatch(context.Background(), batch); err != nil {
			j.logger.Error("journal flush failed", zap.Int("records", len(batch)), zap.Error(err))
		}
		batch = batch[:0]
		if j.fill != nil {
			j.fill(len(j.ch))
		}
	}

	for {
		select {
		case rec, ok := <-j.ch:
			if !ok {
				// Канал закрыт в Stop(): остаток уже вычитан, финальный сброс
				flush()
				j.logger.Info("journal worker finished")
				return
			}
			batch = append(batch, rec)
			if len(batch) >= batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
