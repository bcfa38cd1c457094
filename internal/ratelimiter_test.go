package internal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRateLimiter_AllowsUpToLimitPerWindow(t *testing.T) {
	req := require.New(t)
	limiter := NewRateLimiter(3, 100*time.Millisecond)

	for i := 0; i < 3; i++ {
		req.True(limiter.Allow("c1"), "hit %d should pass", i)
	}
	req.False(limiter.Allow("c1"))

	// other keys are unaffected
	req.True(limiter.Allow("c2"))

	// the window slides: after it elapses the key is allowed again
	time.Sleep(120 * time.Millisecond)
	req.True(limiter.Allow("c1"))
}

func TestRateLimiter_ZeroOptionsFallBackToDefaults(t *testing.T) {
	req := require.New(t)
	limiter := NewRateLimiter(0, 0)

	req.Equal(DefaultRateLimitBurst, limiter.limit)
	req.Equal(DefaultRateLimitWindow, limiter.window)
}

func TestRateLimiter_ForgetDropsState(t *testing.T) {
	req := require.New(t)
	limiter := NewRateLimiter(1, time.Minute)

	req.True(limiter.Allow("c1"))
	req.False(limiter.Allow("c1"))

	limiter.Forget("c1")
	req.True(limiter.Allow("c1"))
}
