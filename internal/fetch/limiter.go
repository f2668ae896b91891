package fetch

import (
	"context"
	"sync"
	"time"
)

// Limiter — token bucket с полным сбросом.
//
// Ёмкость limits восстанавливается целиком, как только с момента последнего
// сброса прошло period. Плавного пополнения нет. Если токены закончились,
// Acquire спит ровно до конца текущего окна.
//
// Release возвращает токен (не больше ёмкости), поэтому Limiter заодно
// ограничивает число одновременно выполняемых запросов.
type Limiter struct {
	mu        sync.Mutex
	limits    int
	period    time.Duration
	tokens    int
	updatedAt time.Time
	now       func() time.Time
}

// NewLimiter создаёт Limiter с полной корзиной.
func NewLimiter(limits int, period time.Duration) *Limiter {
	if limits <= 0 {
		limits = 1
	}
	if period <= 0 {
		period = time.Second
	}

	return &Limiter{
		limits:    limits,
		period:    period,
		tokens:    limits,
		updatedAt: time.Now(),
		now:       time.Now,
	}
}

// Acquire забирает токен, при необходимости ожидая конца окна.
// Возвращает ctx.Err(), если контекст отменён во время ожидания.
func (l *Limiter) Acquire(ctx context.Context) error {
	for {
		wait, ok := l.take()
		if ok {
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// take пытается забрать токен. Если не вышло — возвращает время до конца окна.
func (l *Limiter) take() (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	elapsed := now.Sub(l.updatedAt)
	if elapsed >= l.period {
		l.tokens = l.limits
		l.updatedAt = now
		elapsed = 0
	}

	if l.tokens > 0 {
		l.tokens--
		return 0, true
	}

	return l.period - elapsed, false
}

// Release возвращает токен в корзину.
func (l *Limiter) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.tokens++
	if l.tokens > l.limits {
		l.tokens = l.limits
	}
}

// Available возвращает число токенов в текущем окне.
func (l *Limiter) Available() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.now().Sub(l.updatedAt) >= l.period {
		return l.limits
	}
	return l.tokens
}
