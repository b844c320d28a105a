package ratelimit

import (
	"context"
	"sync"
	"time"
)

type window struct {
	count int
	start time.Time
}

// MemoryLimiter keeps per-key counters in process memory. It is correct for a
// single instance only; replicas each keep their own counters.
type MemoryLimiter struct {
	cfg Config
	now func() time.Time

	mu      sync.Mutex
	windows map[string]*window
}

// NewMemoryLimiter creates an in-process limiter.
func NewMemoryLimiter(cfg Config) *MemoryLimiter {
	return NewMemoryLimiterWithClock(cfg, time.Now)
}

// NewMemoryLimiterWithClock creates an in-process limiter reading time from now.
func NewMemoryLimiterWithClock(cfg Config, now func() time.Time) *MemoryLimiter {
	return &MemoryLimiter{
		cfg:     cfg,
		now:     now,
		windows: make(map[string]*window),
	}
}

// Allow starts a fresh window when none exists or the current one has
// elapsed, denies once the window's count reaches MaxRequests, and
// otherwise counts the request.
func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) > l.cfg.Window {
		l.windows[key] = &window{count: 1, start: now}
		return true, nil
	}
	if w.count >= l.cfg.MaxRequests {
		return false, nil
	}
	w.count++
	return true, nil
}

// Len returns the number of tracked keys.
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}
