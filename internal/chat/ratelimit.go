package chat

import (
	"math"
	"sync"
	"time"
)

// rateLimiter throttles inbound envelopes per connection. It is a token
// bucket holding at most Burst tokens, refilled continuously at a rate of
// Burst tokens per RefillInterval.
type rateLimiter struct {
	mu     sync.Mutex
	tokens float64
	burst  float64
	perSec float64
	last   time.Time
}

func newRateLimiter(cfg RateLimitConfig) *rateLimiter {
	burst := float64(cfg.Burst)
	if burst < 1 {
		burst = 1
	}
	interval := cfg.RefillInterval
	if interval <= 0 {
		interval = time.Second
	}

	return &rateLimiter{
		tokens: burst,
		burst:  burst,
		perSec: burst / interval.Seconds(),
		last:   time.Now(),
	}
}

// allow consumes one token, reporting false when the bucket is empty.
func (rl *rateLimiter) allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	rl.tokens = math.Min(rl.burst, rl.tokens+now.Sub(rl.last).Seconds()*rl.perSec)
	rl.last = now

	if rl.tokens < 1 {
		return false
	}
	rl.tokens--
	return true
}
