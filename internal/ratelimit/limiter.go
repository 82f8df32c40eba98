package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Decision is the outcome of one attempt against a limited key.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Limiter counts attempts per key within fixed rolling windows. The
// read-increment-write cycle for a key runs under a single mutex so
// concurrent callers observe a consistent counter.
type Limiter struct {
	store Store
	now   func() time.Time

	mu sync.Mutex
}

// NewLimiter constructs a Limiter over the given store.
func NewLimiter(store Store) *Limiter {
	return &Limiter{store: store, now: time.Now}
}

// WithClock overrides the time source. Tests only.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Attempt registers one attempt for key and reports whether it is within
// limit for the window. The first attempt of a window always passes; once
// the window elapses the counter resets regardless of its prior value.
func (l *Limiter) Attempt(ctx context.Context, key string, limit int, window time.Duration) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	entry, err := l.store.Get(ctx, key)
	if err != nil {
		return Decision{}, err
	}

	if entry == nil || now.Sub(entry.WindowStart) >= window {
		fresh := Entry{WindowStart: now, AttemptCount: 1}
		if err := l.store.Set(ctx, key, fresh, window); err != nil {
			return Decision{}, err
		}
		return Decision{Allowed: true, Remaining: limit - 1, ResetAt: now.Add(window)}, nil
	}

	entry.AttemptCount++
	if err := l.store.Set(ctx, key, *entry, window-now.Sub(entry.WindowStart)); err != nil {
		return Decision{}, err
	}
	remaining := limit - entry.AttemptCount
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   entry.AttemptCount <= limit,
		Remaining: remaining,
		ResetAt:   entry.WindowStart.Add(window),
	}, nil
}

// Reset clears the counter for key, letting the next attempt start a fresh
// window. Used after a successful login so legitimate users are not carried
// into the next window with a spent budget.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.store.Delete(ctx, key)
}
