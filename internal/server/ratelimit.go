package server

import (
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter enforces global and per-caller request rate limits with token
// buckets. The global bucket is checked first, so one caller cannot starve
// the others past the shared ceiling.
type RateLimiter struct {
	mu        sync.Mutex
	global    *rate.Limiter
	callers   map[string]*rate.Limiter
	perCaller rate.Limit
	burst     int
}

// NewRateLimiter creates a rate limiter. globalRPM is the total
// requests/minute across all callers, perCallerRPM the requests/minute for
// each caller. Burst equals the per-minute budget, floored at one.
func NewRateLimiter(globalRPM, perCallerRPM int) *RateLimiter {
	return &RateLimiter{
		global:    rate.NewLimiter(rate.Limit(float64(globalRPM)/60.0), max(globalRPM, 1)),
		callers:   make(map[string]*rate.Limiter),
		perCaller: rate.Limit(float64(perCallerRPM) / 60.0),
		burst:     max(perCallerRPM, 1),
	}
}

// Allow reports whether a request from the given caller may proceed.
func (rl *RateLimiter) Allow(caller string) bool {
	if !rl.global.Allow() {
		return false
	}
	rl.mu.Lock()
	limiter, ok := rl.callers[caller]
	if !ok {
		limiter = rate.NewLimiter(rl.perCaller, rl.burst)
		rl.callers[caller] = limiter
	}
	rl.mu.Unlock()
	return limiter.Allow()
}
