// Package ratelimit implements token bucket rate limiting for the engagement
// sink, one bucket per client address.
//
// A bucket allows bursts up to its capacity while holding the sustained rate
// to the refill rate.
package ratelimit

import (
	"sync"
	"time"
)

// TokenBucket is a thread-safe token bucket.
//
// Example usage:
//
//	bucket := NewTokenBucket(20, 5, time.Now) // burst of 20, 5 tokens/second
//	if bucket.Allow() {
//	    // Process request
//	}
type TokenBucket struct {
	capacity   float64
	tokens     float64
	refillRate float64
	lastRefill time.Time
	now        func() time.Time
	mu         sync.Mutex
	hitCount   int64 // requests rejected
	totalCount int64 // requests seen
}

// NewTokenBucket creates a full bucket. A nil now uses time.Now.
func NewTokenBucket(capacity, refillRate int, now func() time.Time) *TokenBucket {
	if now == nil {
		now = time.Now
	}
	return &TokenBucket{
		capacity:   float64(capacity),
		tokens:     float64(capacity),
		refillRate: float64(refillRate),
		lastRefill: now(),
		now:        now,
	}
}

// Allow consumes one token if available.
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.totalCount++
	tb.refill()

	if tb.tokens >= 1 {
		tb.tokens--
		return true
	}
	tb.hitCount++
	return false
}

func (tb *TokenBucket) refill() {
	now := tb.now()
	elapsed := now.Sub(tb.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	tb.tokens = minFloat(tb.capacity, tb.tokens+elapsed*tb.refillRate)
	tb.lastRefill = now
}

// Full reports whether the bucket has refilled completely.
func (tb *TokenBucket) Full() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.refill()
	return tb.tokens >= tb.capacity
}

// Stats returns rejected and total request counts.
func (tb *TokenBucket) Stats() (hits, total int64) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.hitCount, tb.totalCount
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
