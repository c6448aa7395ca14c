package server

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// RateLimiter implements a sliding-window rate limit per toast source.
type RateLimiter struct {
	mu       sync.Mutex
	clock    clock.Clock
	limit    int
	window    time.Duration
	counters  map[string][]time.Time
	lastSweep time.Time
}

// NewRateLimiter creates a rate limiter. If limit <= 0, Allow always returns true.
func NewRateLimiter(limit int, windowSeconds int, clk clock.Clock) *RateLimiter {
	if clk == nil {
		clk = clock.New()
	}
	rl := &RateLimiter{clock: clk, counters: make(map[string][]time.Time)}
	rl.Reset(limit, windowSeconds)
	return rl
}

// Reset changes the limit and window and forgets all recorded requests.
func (rl *RateLimiter) Reset(limit int, windowSeconds int) {
	if windowSeconds <= 0 {
		windowSeconds = 60
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.limit = limit
	rl.window = time.Duration(windowSeconds) * time.Second
	rl.counters = make(map[string][]time.Time)
}

// Allow checks whether the source is within its rate limit. Returns false if exceeded.
func (rl *RateLimiter) Allow(source string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if rl.limit <= 0 {
		return true
	}

	now := rl.clock.Now()
	cutoff := now.Add(-rl.window)
	rl.sweepLocked(now, cutoff)

	// Prune old timestamps
	timestamps := rl.counters[source]
	pruned := timestamps[:0]
	for _, ts := range timestamps {
		if ts.After(cutoff) {
			pruned = append(pruned, ts)
		}
	}

	if len(pruned) >= rl.limit {
		rl.counters[source] = pruned
		return false
	}

	rl.counters[source] = append(pruned, now)
	return true
}

// sweepLocked drops sources with no request inside the window, at most
// once per window. Sources come from a client header, so the map would
// otherwise grow with every new value.
func (rl *RateLimiter) sweepLocked(now, cutoff time.Time) {
	if now.Sub(rl.lastSweep) < rl.window {
		return
	}
	rl.lastSweep = now
	for source, timestamps := range rl.counters {
		if len(timestamps) == 0 || !timestamps[len(timestamps)-1].After(cutoff) {
			delete(rl.counters, source)
		}
	}
}

func (rl *RateLimiter) sources() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.counters)
}
