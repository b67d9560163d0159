package service

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// CallerLimiter hands out one token bucket per caller key. Callers are
// wallet addresses once authenticated, client IPs before that.
type CallerLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*limiterEntry
	now      func() time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewCallerLimiter returns nil when qps is not positive, which disables
// limiting.
func NewCallerLimiter(qps float64, burst int) *CallerLimiter {
	if qps <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = int(qps) + 1
	}
	return &CallerLimiter{
		limit:    rate.Limit(qps),
		burst:    burst,
		limiters: make(map[string]*limiterEntry),
		now:      time.Now,
	}
}

func (l *CallerLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	e, ok := l.limiters[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[key] = e
	}
	now := l.now()
	e.lastSeen = now
	l.mu.Unlock()
	return e.limiter.AllowN(now, 1)
}

// Prune forgets callers idle for longer than idle and returns how many were
// dropped.
func (l *CallerLimiter) Prune(idle time.Duration) int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-idle)
	n := 0
	for key, e := range l.limiters {
		if e.lastSeen.Before(cutoff) {
			delete(l.limiters, key)
			n++
		}
	}
	return n
}

func (l *CallerLimiter) Len() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}
