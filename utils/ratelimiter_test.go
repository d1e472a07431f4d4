package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiterAllowsBurstThenBlocks(t *testing.T) {
	rl := NewRateLimiter(1, 2)

	assert.True(t, rl.Allow("caller-a"))
	assert.True(t, rl.Allow("caller-a"))
	assert.False(t, rl.Allow("caller-a"))

	// Independent bucket per caller.
	assert.True(t, rl.Allow("caller-b"))
}

func TestRateLimiterCleanup(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	rl.Allow("stale")
	rl.cleanupStaleVisitors(0)

	rl.mutex.Lock()
	defer rl.mutex.Unlock()
	assert.Empty(t, rl.visitors)
}

func (rl *RateLimiter) visitorCount() int {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()
	return len(rl.visitors)
}

func TestStartCleanupEvictsIdleCallers(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	stop := make(chan struct{})
	defer close(stop)
	rl.StartCleanup(time.Millisecond, time.Millisecond, stop)

	rl.Allow("idle-caller")
	require.Eventually(t, func() bool {
		return rl.visitorCount() == 0
	}, 2*time.Second, time.Millisecond, "idle caller never evicted")

	// An active caller gets a fresh bucket after eviction.
	assert.True(t, rl.Allow("idle-caller"))
}

func TestStartCleanupStops(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	stop := make(chan struct{})
	rl.StartCleanup(time.Millisecond, time.Hour, stop)
	close(stop)

	// With the cleanup goroutine stopped and a generous idle window,
	// entries stay put.
	rl.Allow("caller")
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 1, rl.visitorCount())
}
