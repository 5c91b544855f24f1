package ratelimit

import (
	"context"
	"sync"
	"time"
)

// sweepThreshold is the map size above which expired entries are purged.
const sweepThreshold = 10000

type entry struct {
	count     int
	resetTime time.Time
}

// MemoryLimiter keeps counters in process memory. One instance is shared by
// every caller in the process.
type MemoryLimiter struct {
	mu      sync.Mutex
	entries map[string]*entry
	now     func() time.Time
}

func NewMemoryLimiter() *MemoryLimiter {
	return NewMemoryLimiterWithClock(time.Now)
}

func NewMemoryLimiterWithClock(now func() time.Time) *MemoryLimiter {
	return &MemoryLimiter{entries: make(map[string]*entry), now: now}
}

func (l *MemoryLimiter) Check(_ context.Context, id string, policy Policy) (Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if len(l.entries) > sweepThreshold {
		l.sweep(now)
	}

	e, ok := l.entries[id]
	if !ok || now.After(e.resetTime) {
		e = &entry{count: 1, resetTime: now.Add(policy.Window)}
		l.entries[id] = e
		return Result{Success: true, Remaining: policy.MaxRequests - 1, ResetTime: e.resetTime}, nil
	}

	if e.count >= policy.MaxRequests {
		return Result{Success: false, Remaining: 0, ResetTime: e.resetTime}, nil
	}

	e.count++
	return Result{Success: true, Remaining: policy.MaxRequests - e.count, ResetTime: e.resetTime}, nil
}

func (l *MemoryLimiter) sweep(now time.Time) {
	for k, e := range l.entries {
		if now.After(e.resetTime) {
			delete(l.entries, k)
		}
	}
}

// Len reports how many identifiers are tracked.
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
