package server

import (
	"sync"

	"golang.org/x/time/rate"
)

// chatRateLimiters hands out one token-bucket limiter per "role:actor_id"
// key, created lazily on first use. perMin <= 0 disables limiting entirely
// — the zero-config default for local/dev use where Chat.RateLimitPerMin
// is unset.
type chatRateLimiters struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	perMin   int
}

func newChatRateLimiters(perMin int) *chatRateLimiters {
	return &chatRateLimiters{limiters: make(map[string]*rate.Limiter), perMin: perMin}
}

// allow reports whether key may submit now, consuming one token if so.
func (c *chatRateLimiters) allow(key string) bool {
	if c == nil || c.perMin <= 0 {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.limiters[key]
	if !ok {
		// Burst equals the per-minute allowance so a caller can spend its
		// whole budget in one go after an idle period, then settles into
		// the steady per-minute rate.
		l = rate.NewLimiter(rate.Limit(float64(c.perMin)/60.0), c.perMin)
		c.limiters[key] = l
	}
	return l.Allow()
}
