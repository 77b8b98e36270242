package device

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultDevice = 0

	// EnvVisibleDevices совпадает с переменной, которую читает model.NewRuntime.
	EnvVisibleDevices = "CUDA_VISIBLE_DEVICES"

	probeTimeout = 5 * time.Second
)

var (
	probeCommand = "nvidia-smi"
	probeArgs    = []string{"--query-gpu=index,memory.used", "--format=csv,noheader,nounits"}
)

var ErrNoDevices = errors.New("device: no devices reported")

// Runner запускает внешнюю утилиту и возвращает stdout.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner — Runner поверх os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// Usage — одна строка отчета утилиты.
type Usage struct {
	Index    int
	MemoryMB int
}

type Selector struct {
	runner  Runner
	timeout time.Duration
	logger  *zap.Logger
}

func NewSelector(runner Runner, logger *zap.Logger) *Selector {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Selector{runner: runner, timeout: probeTimeout, logger: logger.Named("device")}
}

// Select возвращает индекс устройства с наименьшей занятой памятью.
// Любой сбой опроса дает DefaultDevice и наружу не выходит.
func (s *Selector) Select(ctx context.Context) int {
	table, err := s.Probe(ctx)
	if err != nil {
		s.logger.Debug("device probe failed, using default", zap.Int("device", DefaultDevice), zap.Error(err))
		return DefaultDevice
	}
	best := Least(table)
	s.logger.Debug("device selected", zap.Int("device", best), zap.Int("candidates", len(table)))
	return best
}

// Probe опрашивает утилиту с таймаутом и разбирает ее вывод.
func (s *Selector) Probe(ctx context.Context) ([]Usage, error) {
	pCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	out, err := s.runner.Run(pCtx, probeCommand, probeArgs...)
	if err != nil {
		return nil, fmt.Errorf("device: %s: %w", probeCommand, err)
	}
	return Parse(out)
}

// Parse разбирает csv без заголовка вида "0, 1234".
func Parse(out []byte) ([]Usage, error) {
	var table []Usage
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		parts := strings.Split(line, ",")
		if len(parts) < 2 {
			return nil, fmt.Errorf("device: malformed line %q", line)
		}
		idx, err := strconv.Atoi(strings.TrimSpace(parts[0]))
		if err != nil {
			return nil, fmt.Errorf("device: bad index in %q: %w", line, err)
		}
		mem, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			return nil, fmt.Errorf("device: bad memory in %q: %w", line, err)
		}
		table = append(table, Usage{Index: idx, MemoryMB: mem})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(table) == 0 {
		return nil, ErrNoDevices
	}
	return table, nil
}

// Least: при равенстве выигрывает первый в списке.
func Least(table []Usage) int {
	if len(table) == 0 {
		return DefaultDevice
	}
	best := table[0]
	for _, u := range table[1:] {
		if u.MemoryMB < best.MemoryMB {
			best = u
		}
	}
	return best.Index
}

// Apply фиксирует видимость устройства для процесса. Вызывать до инициализации рантайма.
func Apply(device int) error {
	return os.Setenv(EnvVisibleDevices, strconv.Itoa(device))
}
