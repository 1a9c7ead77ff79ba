package bill

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// staleVisitorAge is how long a client may be idle before its limiter
// state is dropped.
const staleVisitorAge = time.Hour

// maxTrackedVisitors bounds the limiter map; crossing it triggers a
// cleanup of stale entries.
const maxTrackedVisitors = 10000

// RateLimiter enforces a per-client request rate, keyed by IP.
type RateLimiter struct {
	mu         sync.Mutex
	visitors   map[string]*visitor
	limit      rate.Limit
	burst      int
	timeSource TimeSource
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a limiter allowing perMinute requests per
// client, with bursts up to the same amount.
func NewRateLimiter(perMinute int) *RateLimiter {
	return &RateLimiter{
		visitors:   make(map[string]*visitor),
		limit:      rate.Limit(float64(perMinute) / 60.0),
		burst:      perMinute,
		timeSource: &defaultTimeSource{},
	}
}

// Allow reports whether a request from the client may proceed.
func (rl *RateLimiter) Allow(clientIP string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.timeSource.Now()
	v, ok := rl.visitors[clientIP]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.visitors[clientIP] = v
	}
	v.lastSeen = now

	if len(rl.visitors) > maxTrackedVisitors {
		rl.cleanupLocked(now)
	}

	return v.limiter.Allow()
}

// cleanupLocked drops clients with no recent activity. Callers hold mu.
func (rl *RateLimiter) cleanupLocked(now time.Time) {
	for ip, v := range rl.visitors {
		if now.Sub(v.lastSeen) > staleVisitorAge {
			delete(rl.visitors, ip)
		}
	}
}
