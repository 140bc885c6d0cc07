// Package ratelimit implements the per-caller, tier-aware token-bucket
// limiter used by the HTTP layer for fine-grained quota enforcement.
//
// Buckets are created on demand and stored in an internal map guarded by a
// mutex. Each (identifier, tier) pair owns an independent bucket that refills
// continuously over the tier's window. A background sweeper evicts idle
// buckets to bound memory; the sweeper has no externally observable effect
// beyond that bound.
//
// Notes:
//   - This limiter is process-local. For horizontally scaled deployments the
//     effective limit multiplies by replica count; a shared store would be
//     needed to enforce global limits.
//   - The limiter shapes normal traffic per caller; flood protection at the
//     IP level is the abuse package's job.
package ratelimit

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// Tier names a request class with its own quota configuration.
type Tier string

const (
	TierRead   Tier = "read"
	TierCreate Tier = "create"
	TierReact  Tier = "react"
	TierReport Tier = "report"
	TierAI     Tier = "ai"
	TierAdmin  Tier = "admin"
)

// TierConfig is the fixed quota of one tier: MaxTokens requests per Window.
type TierConfig struct {
	MaxTokens int
	Window    time.Duration
}

// DefaultTiers returns the built-in tier table. Callers may override entries
// from configuration before constructing the limiter.
func DefaultTiers() map[Tier]TierConfig {
	return map[Tier]TierConfig{
		TierRead:   {MaxTokens: 60, Window: time.Minute},
		TierCreate: {MaxTokens: 10, Window: time.Minute},
		TierReact:  {MaxTokens: 30, Window: time.Minute},
		TierReport: {MaxTokens: 5, Window: time.Minute},
		TierAI:     {MaxTokens: 5, Window: time.Minute},
		TierAdmin:  {MaxTokens: 30, Window: time.Minute},
	}
}

// Result is the outcome of a single quota check. Limit, Remaining, and
// ResetAt are reported on every check so the HTTP layer can emit rate-limit
// headers regardless of outcome; RetryAfter is only meaningful when the
// check was denied.
type Result struct {
	// Allowed reports whether the request may proceed.
	Allowed bool
	// Limit is the tier's maximum token count.
	Limit int
	// Remaining is the whole number of tokens left after this check.
	Remaining int
	// ResetAt is the epoch-second time at which the bucket is full again.
	ResetAt int64
	// RetryAfter is the whole seconds to wait until one token is available.
	// Zero when the request was allowed.
	RetryAfter int
}

// bucket is the per-(identifier, tier) token state. The fractional token
// count is the unit of mutual exclusion; all reads and writes happen under
// the limiter mutex.
type bucket struct {
	tokens     float64
	lastRefill time.Time
	lastSeen   time.Time
}

// Limiter is a tier-aware token-bucket rate limiter.
//
// This type is safe for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	tiers   map[Tier]TierConfig
	buckets map[string]*bucket

	// now is a seam for tests; defaults to time.Now.
	now func() time.Time

	done      chan struct{}
	closeOnce sync.Once
}

// New constructs a Limiter over the given tier table. The table must contain
// every tier the caller will check; checking an unknown tier is a programming
// error and panics.
func New(tiers map[Tier]TierConfig) *Limiter {
	return &Limiter{
		tiers:   tiers,
		buckets: make(map[string]*bucket),
		now:     time.Now,
		done:    make(chan struct{}),
	}
}

// Check consumes one token from the (identifier, tier) bucket if at least one
// is available, and reports the resulting quota state.
//
// A bucket is lazily created with full tokens on first observation. On every
// check the bucket is refilled by elapsed × maxTokens/window, capped at
// maxTokens. If fewer than one token remains the request is denied without
// consuming, and RetryAfter reports the wait (rounded up to whole seconds)
// until one token is available.
func (l *Limiter) Check(identifier string, tier Tier) Result {
	cfg, ok := l.tiers[tier]
	if !ok {
		panic(fmt.Sprintf("ratelimit: unknown tier %q", tier))
	}

	now := l.now()
	perSec := float64(cfg.MaxTokens) / cfg.Window.Seconds()
	key := string(tier) + ":" + identifier

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(cfg.MaxTokens), lastRefill: now}
		l.buckets[key] = b
	} else {
		elapsed := now.Sub(b.lastRefill).Seconds()
		if elapsed > 0 {
			b.tokens = math.Min(float64(cfg.MaxTokens), b.tokens+elapsed*perSec)
		}
		b.lastRefill = now
	}
	b.lastSeen = now

	if b.tokens < 1 {
		return Result{
			Allowed:    false,
			Limit:      cfg.MaxTokens,
			Remaining:  0,
			ResetAt:    resetAt(now, b.tokens, cfg.MaxTokens, perSec),
			RetryAfter: int(math.Ceil((1 - b.tokens) / perSec)),
		}
	}

	// Instant deduction of exactly one token; no fractional billing.
	b.tokens--

	return Result{
		Allowed:   true,
		Limit:     cfg.MaxTokens,
		Remaining: int(b.tokens),
		ResetAt:   resetAt(now, b.tokens, cfg.MaxTokens, perSec),
	}
}

// resetAt computes the epoch-second time at which a bucket holding tokens
// would be completely full again at the given refill rate.
func resetAt(now time.Time, tokens float64, max int, perSec float64) int64 {
	missing := float64(max) - tokens
	if missing <= 0 {
		return now.Unix()
	}
	return now.Add(time.Duration(math.Ceil(missing/perSec)) * time.Second).Unix()
}

// Len reports the number of live buckets. Intended for tests and metrics.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// StartSweeper launches a background goroutine that evicts buckets untouched
// for idleTTL or longer, every interval. The goroutine exits when Close is
// called and does not keep the process alive on its own.
func (l *Limiter) StartSweeper(interval, idleTTL time.Duration) {
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				l.sweep(idleTTL)
			case <-l.done:
				return
			}
		}
	}()
}

// sweep removes buckets idle for ttl or longer.
func (l *Limiter) sweep(ttl time.Duration) {
	now := l.now()
	l.mu.Lock()
	for k, b := range l.buckets {
		if now.Sub(b.lastSeen) >= ttl {
			delete(l.buckets, k)
		}
	}
	l.mu.Unlock()
}

// Close stops the sweeper goroutine. Safe to call more than once.
func (l *Limiter) Close() {
	l.closeOnce.Do(func() { close(l.done) })
}
