// Package ratelimit provides token-bucket and sliding-window limiters keyed
// by endpoint. The compiled-in keys mirror the venue's published quotas so
// outbound traffic stays under them even when the watcher runs hot.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter gates one logical endpoint.
type Limiter interface {
	// Wait blocks until a slot is available or ctx is done.
	Wait(ctx context.Context) error
	// Allow consumes a slot if one is available right now.
	Allow() bool
	// Remaining reports the slots currently available.
	Remaining() int
}

// TokenBucket refills continuously at refillPerSec up to capacity. Fractional
// refill intervals carry over, so high-rate buckets stay accurate at
// sub-second spacing.
type TokenBucket struct {
	mu           sync.Mutex
	capacity     int
	tokens       int
	refillPerSec int
	lastRefill   time.Time
}

func NewTokenBucket(capacity, refillPerSec int) *TokenBucket {
	return &TokenBucket{
		capacity:     capacity,
		tokens:       capacity,
		refillPerSec: refillPerSec,
		lastRefill:   time.Now(),
	}
}

func (tb *TokenBucket) refillLocked(now time.Time) {
	if tb.refillPerSec <= 0 {
		return
	}
	if tb.tokens >= tb.capacity {
		tb.lastRefill = now
		return
	}
	elapsed := now.Sub(tb.lastRefill)
	add := int(elapsed * time.Duration(tb.refillPerSec) / time.Second)
	if add <= 0 {
		return
	}
	if tb.tokens+add >= tb.capacity {
		tb.tokens = tb.capacity
		tb.lastRefill = now
		return
	}
	// Advance only by the time actually converted to tokens so the
	// fractional remainder counts toward the next refill.
	tb.tokens += add
	tb.lastRefill = tb.lastRefill.Add(time.Duration(add) * time.Second / time.Duration(tb.refillPerSec))
}

func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.refillLocked(time.Now())
	if tb.tokens > 0 {
		tb.tokens--
		return true
	}
	return false
}

func (tb *TokenBucket) Wait(ctx context.Context) error {
	for {
		if tb.Allow() {
			return nil
		}
		interval := time.Second
		if tb.refillPerSec > 0 {
			interval = time.Second / time.Duration(tb.refillPerSec)
		}
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (tb *TokenBucket) Remaining() int {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.refillLocked(time.Now())
	return tb.tokens
}

// SlidingWindow admits at most limit requests per window, counted against
// exact request timestamps.
type SlidingWindow struct {
	mu       sync.Mutex
	limit    int
	window   time.Duration
	requests []time.Time
}

func NewSlidingWindow(limit int, window time.Duration) *SlidingWindow {
	return &SlidingWindow{limit: limit, window: window}
}

func (sw *SlidingWindow) pruneLocked(now time.Time) {
	cutoff := now.Add(-sw.window)
	keep := sw.requests[:0]
	for _, ts := range sw.requests {
		if ts.After(cutoff) {
			keep = append(keep, ts)
		}
	}
	sw.requests = keep
}

func (sw *SlidingWindow) Allow() bool {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	now := time.Now()
	sw.pruneLocked(now)
	if len(sw.requests) >= sw.limit {
		return false
	}
	sw.requests = append(sw.requests, now)
	return true
}

func (sw *SlidingWindow) Wait(ctx context.Context) error {
	for {
		if sw.Allow() {
			return nil
		}
		sw.mu.Lock()
		wait := 50 * time.Millisecond
		if len(sw.requests) > 0 {
			if until := sw.window - time.Since(sw.requests[0]); until > wait {
				wait = until
			}
		}
		sw.mu.Unlock()
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (sw *SlidingWindow) Remaining() int {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.pruneLocked(time.Now())
	if n := sw.limit - len(sw.requests); n > 0 {
		return n
	}
	return 0
}

// Manager routes endpoint keys to their limiter. Unknown keys fall back to a
// permissive shared default so a missing table entry degrades instead of
// blocking.
type Manager struct {
	mu       sync.RWMutex
	limiters map[string]Limiter
	fallback Limiter
}

// NewManager seeds the endpoint table with the venue's published quotas.
func NewManager() *Manager {
	m := &Manager{
		limiters: make(map[string]Limiter),
		fallback: NewSlidingWindow(5000, 10*time.Second),
	}

	// CLOB REST quotas.
	m.limiters["clob:order:post"] = NewTokenBucket(2400, 240)
	m.limiters["clob:order:delete"] = NewTokenBucket(2400, 240)
	m.limiters["clob:orders:get"] = NewSlidingWindow(150, 10*time.Second)
	m.limiters["clob:book:get"] = NewSlidingWindow(200, 10*time.Second)
	m.limiters["clob:auth"] = NewSlidingWindow(60, 10*time.Second)

	// Gamma metadata API.
	m.limiters["gamma:markets:get"] = NewSlidingWindow(125, 10*time.Second)

	// JSON-RPC follow-up fetches issued by the stream transport.
	m.limiters["rpc:tx:get"] = NewTokenBucket(100, 100)

	return m
}

// Set installs or replaces the limiter for an endpoint.
func (m *Manager) Set(endpoint string, l Limiter) {
	m.mu.Lock()
	m.limiters[endpoint] = l
	m.mu.Unlock()
}

func (m *Manager) limiter(endpoint string) Limiter {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if l, ok := m.limiters[endpoint]; ok {
		return l
	}
	return m.fallback
}

func (m *Manager) Wait(ctx context.Context, endpoint string) error {
	return m.limiter(endpoint).Wait(ctx)
}

func (m *Manager) Allow(endpoint string) bool {
	return m.limiter(endpoint).Allow()
}

func (m *Manager) Remaining(endpoint string) int {
	return m.limiter(endpoint).Remaining()
}
