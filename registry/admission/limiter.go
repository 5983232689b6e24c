// Copyright (C) 2025 Sol Labs, Inc.
// See LICENSE for copying information.

// Package admission sits in front of all request handling: a token-bucket
// rate limiter tiered by authentication status, and the client identity
// derivation it keys on.
package admission

import (
	"strings"
	"sync"
	"time"

	"github.com/zeebo/errs"
	"go.uber.org/zap"
)

// Error is the default error class for this package.
var Error = errs.Class("admission")

// LimiterConfig configures the rate limiter tiers, path costs and bucket
// eviction.
type LimiterConfig struct {
	AnonRate     float64 `help:"token refill rate for anonymous clients, per second" default:"30"`
	AnonCapacity float64 `help:"bucket capacity for anonymous clients" default:"50"`
	AuthRate     float64 `help:"token refill rate for authenticated clients, per second" default:"60"`
	AuthCapacity float64 `help:"bucket capacity for authenticated clients" default:"100"`

	CleanupInterval time.Duration `help:"how often stale buckets are swept" default:"5m"`

	// ExemptPaths bypass the limiter entirely.
	ExemptPaths []string

	// PathCosts maps path prefixes to token costs. The longest matching
	// prefix wins; unmatched paths cost 1.
	PathCosts map[string]float64
}

// DefaultLimiterConfig returns the limiter defaults. Downloads and uploads
// cost more than plain index reads.
func DefaultLimiterConfig() LimiterConfig {
	return LimiterConfig{
		AnonRate:        30,
		AnonCapacity:    50,
		AuthRate:        60,
		AuthCapacity:    100,
		CleanupInterval: 5 * time.Minute,
		ExemptPaths:     []string{"/health", "/metrics", "/docs"},
		PathCosts: map[string]float64{
			"/files/":  2,
			"/legacy/": 5,
			"/":        1,
		},
	}
}

// bucket is the per-client token bucket. Each bucket carries its own mutex
// so distinct clients never contend.
type bucket struct {
	mu sync.Mutex

	tokens   float64
	capacity float64
	rate     float64

	lastRefill time.Time
	lastAccess time.Time
}

// consume lazily refills and then test-and-decrements in one critical
// section.
func (b *bucket) consume(now time.Time, cost float64) (ok bool, remaining float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed > 0 {
		b.tokens = min(b.capacity, b.tokens+elapsed*b.rate)
		b.lastRefill = now
	}
	b.lastAccess = now

	if b.tokens >= cost {
		b.tokens -= cost
		return true, b.tokens
	}
	return false, b.tokens
}

// Limiter admits or rejects requests per client key. It is instantiated once
// at server startup and shared by all request handlers.
type Limiter struct {
	log    *zap.Logger
	config LimiterConfig

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time

	nowFn func() time.Time
}

// NewLimiter creates a limiter.
func NewLimiter(log *zap.Logger, config LimiterConfig) *Limiter {
	return &Limiter{
		log:       log,
		config:    config,
		buckets:   map[string]*bucket{},
		lastSweep: time.Now(),
		nowFn:     time.Now,
	}
}

// TestSetNow overrides the limiter time source.
func (limiter *Limiter) TestSetNow(now func() time.Time) {
	limiter.mu.Lock()
	defer limiter.mu.Unlock()
	limiter.nowFn = now
	limiter.lastSweep = now()
}

// Decision is the outcome of an admission check, carrying the values for
// the X-RateLimit response headers.
type Decision struct {
	Allowed   bool
	Limit     float64
	Remaining float64
	Reset     time.Time
}

// Exempt reports whether a path bypasses rate limiting.
func (limiter *Limiter) Exempt(path string) bool {
	for _, prefix := range limiter.config.ExemptPaths {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// Cost returns the token cost of a path. The longest configured prefix
// wins; unmatched paths cost 1.
func (limiter *Limiter) Cost(path string) float64 {
	bestLen := -1
	cost := 1.0
	for prefix, prefixCost := range limiter.config.PathCosts {
		if strings.HasPrefix(path, prefix) && len(prefix) > bestLen {
			bestLen = len(prefix)
			cost = prefixCost
		}
	}
	return cost
}

// Allow charges cost tokens against the client's bucket and reports whether
// the request is admitted. The authenticated tier gets a larger and faster
// bucket; the tier is fixed at bucket creation.
func (limiter *Limiter) Allow(clientKey string, authenticated bool, cost float64) Decision {
	now, b := limiter.getBucket(clientKey, authenticated)

	ok, remaining := b.consume(now, cost)
	if !ok {
		limiter.log.Warn("rate limit exceeded", zap.String("client", clientKey))
	}

	decision := Decision{
		Allowed:   ok,
		Limit:     b.capacity,
		Remaining: remaining,
	}
	if remaining < b.capacity {
		decision.Reset = now.Add(time.Duration((b.capacity - remaining) / b.rate * float64(time.Second)))
	}
	return decision
}

func (limiter *Limiter) getBucket(clientKey string, authenticated bool) (time.Time, *bucket) {
	limiter.mu.Lock()
	defer limiter.mu.Unlock()

	now := limiter.nowFn()
	if now.Sub(limiter.lastSweep) > limiter.config.CleanupInterval {
		limiter.sweep(now)
		limiter.lastSweep = now
	}

	b, ok := limiter.buckets[clientKey]
	if !ok {
		rate, capacity := limiter.config.AnonRate, limiter.config.AnonCapacity
		if authenticated {
			rate, capacity = limiter.config.AuthRate, limiter.config.AuthCapacity
		}
		b = &bucket{
			tokens:     capacity,
			capacity:   capacity,
			rate:       rate,
			lastRefill: now,
			lastAccess: now,
		}
		limiter.buckets[clientKey] = b
	}
	return now, b
}

// sweep drops buckets unused for longer than twice the cleanup interval,
// bounding memory. Called with limiter.mu held.
func (limiter *Limiter) sweep(now time.Time) {
	staleBefore := now.Add(-2 * limiter.config.CleanupInterval)

	removed := 0
	for clientKey, b := range limiter.buckets {
		b.mu.Lock()
		stale := b.lastAccess.Before(staleBefore)
		b.mu.Unlock()
		if stale {
			delete(limiter.buckets, clientKey)
			removed++
		}
	}
	if removed > 0 {
		limiter.log.Debug("swept stale rate limit buckets", zap.Int("count", removed))
	}
}

// BucketCount returns the number of live buckets.
func (limiter *Limiter) BucketCount() int {
	limiter.mu.Lock()
	defer limiter.mu.Unlock()
	return len(limiter.buckets)
}
