package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterGlobalLimit(t *testing.T) {
	rl := NewRateLimiter(5, 100)

	allowed := 0
	for i := 0; i < 20; i++ {
		if rl.Allow("caller-a") {
			allowed++
		}
	}
	// Token bucket burst=5, so the first 5 pass and the rest are limited.
	assert.LessOrEqual(t, allowed, 6, "global limit should cap requests")
	assert.GreaterOrEqual(t, allowed, 4, "burst should allow at least 4")
}

func TestRateLimiterPerCallerLimit(t *testing.T) {
	rl := NewRateLimiter(1000, 3)

	allowed := 0
	for i := 0; i < 20; i++ {
		if rl.Allow("caller-a") {
			allowed++
		}
	}
	assert.LessOrEqual(t, allowed, 4, "per-caller limit should cap requests")

	assert.True(t, rl.Allow("caller-b"), "different caller should have its own bucket")
}

func TestRateLimiterCallerIsolation(t *testing.T) {
	rl := NewRateLimiter(1000, 2)

	rl.Allow("caller-a")
	rl.Allow("caller-a")
	rl.Allow("caller-a")

	assert.True(t, rl.Allow("caller-b"), "caller-b should not be affected by caller-a")
}
