package utils

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter holds per-caller token buckets.
type RateLimiter struct {
	visitors map[string]*visitor
	mutex    sync.Mutex
	limit    rate.Limit
	burst    int
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(limit rate.Limit, burst int) *RateLimiter {
	return &RateLimiter{
		visitors: make(map[string]*visitor),
		limit:    limit,
		burst:    burst,
	}
}

// Allow checks if a caller is allowed to make a request
func (rl *RateLimiter) Allow(callerID string) bool {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	v, exists := rl.visitors[callerID]
	if !exists {
		v = &visitor{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.visitors[callerID] = v
	}
	v.lastSeen = time.Now()

	return v.limiter.Allow()
}

// StartCleanup evicts idle callers every interval until stop is closed.
func (rl *RateLimiter) StartCleanup(interval, maxIdle time.Duration, stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				rl.cleanupStaleVisitors(maxIdle)
			case <-stop:
				return
			}
		}
	}()
}

func (rl *RateLimiter) cleanupStaleVisitors(maxIdle time.Duration) {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	for id, v := range rl.visitors {
		if time.Since(v.lastSeen) > maxIdle {
			delete(rl.visitors, id)
		}
	}
}
