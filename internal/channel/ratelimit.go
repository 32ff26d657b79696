package channel

import (
	"context"
	"sync"
	"time"
)

const (
	defaultSendBurst     = 5
	defaultSendPerMinute = 20
)

// RateLimiter paces Bot API sends with one token bucket per chat. Telegram
// throttles a bot posting into a single channel at about 20 messages a minute.
type RateLimiter struct {
	mu      sync.Mutex
	burst   float64
	perSec  float64
	buckets map[int64]*bucket
	now     func() time.Time
}

type bucket struct {
	tokens float64
	last   time.Time
}

func NewRateLimiter(burst int, perMinute float64) *RateLimiter {
	if burst <= 0 {
		burst = defaultSendBurst
	}
	if perMinute <= 0 {
		perMinute = defaultSendPerMinute
	}
	return &RateLimiter{
		burst:   float64(burst),
		perSec:  perMinute / 60,
		buckets: make(map[int64]*bucket),
		now:     time.Now,
	}
}

// Wait takes a token for chatID, sleeping until one is available or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context, chatID int64) error {
	for {
		delay := rl.reserve(chatID)
		if delay == 0 {
			return nil
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// reserve takes a token and returns 0, or returns how long until the next one.
func (rl *RateLimiter) reserve(chatID int64) time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	b, ok := rl.buckets[chatID]
	if !ok {
		b = &bucket{tokens: rl.burst, last: now}
		rl.buckets[chatID] = b
	}
	b.tokens = min(rl.burst, b.tokens+now.Sub(b.last).Seconds()*rl.perSec)
	b.last = now

	if b.tokens >= 1 {
		b.tokens--
		return 0
	}
	return time.Duration((1 - b.tokens) / rl.perSec * float64(time.Second))
}
