package relay

import (
	"sync"
	"time"
)

// RateLimiter is a per-connection minimum-interval gate for outbound
// chat actions. Exceeding the limit is a soft debounce: callers drop the
// send silently rather than surfacing an error.
type RateLimiter struct {
	mu   sync.Mutex
	min  time.Duration
	last map[string]time.Time // connID -> last accepted send
	now  func() time.Time     // injectable clock for tests
}

func newRateLimiter(min time.Duration) *RateLimiter {
	return &RateLimiter{
		min:  min,
		last: make(map[string]time.Time),
		now:  time.Now,
	}
}

// Allow reports whether the connection may send now. The first call for
// a connection always succeeds; later calls succeed only when strictly
// more than the minimum interval has elapsed since the previous
// accepted call.
func (rl *RateLimiter) Allow(connID string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if last, ok := rl.last[connID]; ok && now.Sub(last) <= rl.min {
		return false
	}
	rl.last[connID] = now
	return true
}

// Forget drops the connection's state on teardown.
func (rl *RateLimiter) Forget(connID string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.last, connID)
}
