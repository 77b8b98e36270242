package model

import (
	"fmt"
	"os"
)

// EnvVisibleDevices — видимость ускорителя фиксируется при старте процесса.
const EnvVisibleDevices = "CUDA_VISIBLE_DEVICES"

// defaultArenaFloats — объем, который рантайм занимает заранее без режима роста памяти.
const defaultArenaFloats = 1 << 20

type RuntimeOptions struct {
	// MemoryGrowth: буферы выделяются по требованию, без предварительного захвата арены.
	MemoryGrowth bool
	ArenaFloats  int
}

// Runtime — числовой рантайм одного процесса воркера. Не потокобезопасен:
// воркер однопоточный и живет ровно одно предсказание.
type Runtime struct {
	device string
	growth bool

	arena []float64
	used  int

	allocated int
	closed    bool
}

// NewRuntime инициализирует рантайм. Устройство читается из окружения здесь и больше не меняется,
// поэтому выбор устройства обязан случиться раньше.
func NewRuntime(opts RuntimeOptions) *Runtime {
	rt := &Runtime{
		device: os.Getenv(EnvVisibleDevices),
		growth: opts.MemoryGrowth,
	}
	if !rt.growth {
		n := opts.ArenaFloats
		if n <= 0 {
			n = defaultArenaFloats
		}
		rt.arena = make([]float64, n)
	}
	return rt
}

func (rt *Runtime) Device() string { return rt.device }

func (rt *Runtime) MemoryGrowth() bool { return rt.growth }

// Allocated — сколько float64 рантайм выдал за жизнь процесса.
func (rt *Runtime) Allocated() int { return rt.allocated }

// Load читает артефакт и строит модель в этом рантайме.
func (rt *Runtime) Load(path string) (Forecaster, error) {
	if rt.closed {
		return nil, fmt.Errorf("model: runtime is closed")
	}
	a, err := ReadArtifact(path)
	if err != nil {
		return nil, err
	}
	return a.Build(rt)
}

// Close освобождает арену. Повторный вызов безопасен.
func (rt *Runtime) Close() {
	rt.arena = nil
	rt.used = 0
	rt.closed = true
}

// alloc выдает обнуленный буфер: из арены, если она есть и не исчерпана, иначе из кучи.
func (rt *Runtime) alloc(n int) []float64 {
	rt.allocated += n
	if rt.arena != nil && rt.used+n <= len(rt.arena) {
		buf := rt.arena[rt.used : rt.used+n : rt.used+n]
		rt.used += n
		clear(buf)
		return buf
	}
	return make([]float64, n)
}
