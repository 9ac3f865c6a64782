package chat

import (
	"sync"
	"time"
)

// rateWindow is one connection's fixed-window counter.
type rateWindow struct {
	count   int
	resetAt time.Time
}

// RateLimiter caps how many actions a connection may take inside a
// recurring fixed window. Budgets are tracked per connection, not per
// identity: a user with two connections gets two independent budgets.
type RateLimiter struct {
	mu      sync.Mutex
	clock   Clock
	limit   int
	window  time.Duration
	windows map[string]*rateWindow
}

// NewRateLimiter constructs a limiter allowing limit actions per window.
func NewRateLimiter(clock Clock, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		clock:   clock,
		limit:   limit,
		window:  window,
		windows: make(map[string]*rateWindow),
	}
}

// TryConsume records one action for the connection and reports whether it
// fits the budget. The first action of a window always succeeds; a rejected
// action does not advance the counter.
func (rl *RateLimiter) TryConsume(connID string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.clock.Now()
	w, ok := rl.windows[connID]
	if !ok || now.After(w.resetAt) {
		rl.windows[connID] = &rateWindow{count: 1, resetAt: now.Add(rl.window)}
		return true
	}
	if w.count >= rl.limit {
		return false
	}
	w.count++
	return true
}

// Forget discards the connection's window state on disconnect.
func (rl *RateLimiter) Forget(connID string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.windows, connID)
}
