package engine

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Token — процессный замок на ускоритель: одно предсказание за раз.
// Ожидающие обслуживаются строго в порядке прихода.
type Token struct {
	sem  *semaphore.Weighted
	held atomic.Bool
}

func NewToken() *Token {
	return &Token{sem: semaphore.NewWeighted(1)}
}

// Acquire блокируется до получения токена или отмены ctx.
// release можно вызывать сколько угодно раз, освобождение произойдет один раз.
func (t *Token) Acquire(ctx context.Context) (release func(), err error) {
	if err := t.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	t.held.Store(true)

	var once sync.Once
	return func() {
		once.Do(func() {
			t.held.Store(false)
			t.sem.Release(1)
		})
	}, nil
}

// Held — занят ли токен прямо сейчас (для метрик и тестов).
func (t *Token) Held() bool {
	return t.held.Load()
}
