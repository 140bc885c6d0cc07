// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file adapts the tier-aware token-bucket limiter (internal/ratelimit)
// to HTTP: per-route-group tiers, standard rate-limit headers on every
// response that passes through the limiter, and a machine-readable 429 body
// with a retry hint on denial.
//
// Notes:
//   - The limiter is process-local. For horizontally scaled deployments,
//     prefer a distributed limiter (e.g., Redis-backed) to enforce global limits.
//   - The limiter shapes per-caller traffic; it is not an authorization
//     mechanism, and IP-level flood protection runs before it (see ipgate.go).
package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tbourn/go-forum-backend/internal/ratelimit"
)

// rateDenials counts requests denied by the token-bucket limiter, by tier.
var rateDenials = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "rate_limit_denials_total",
		Help: "Requests denied by the per-caller token-bucket limiter.",
	},
	[]string{"tier"},
)

func init() {
	prometheus.MustRegister(rateDenials)
}

// keyFunc selects the identity used to key a rate-limit bucket.
//
// Implementations should return a stable string for the duration of a request
// (e.g., "user:<id>" or "ip:<addr>"). The returned key is used to look up the
// corresponding token bucket.
type keyFunc func(*gin.Context) string

// KeyByUserOrIP returns a keyFunc that prefers a user identity (from the Gin
// context under "userID", typically set by your auth middleware) and falls back
// to the client IP address.
//
// The resulting keys are prefixed to avoid collisions between user and IP
// namespaces (e.g., "user:abc123" vs "ip:203.0.113.7").
func KeyByUserOrIP() keyFunc {
	return func(c *gin.Context) string {
		if v, ok := c.Get("userID"); ok {
			if s, ok := v.(string); ok && s != "" {
				return "user:" + s
			}
		}
		return "ip:" + c.ClientIP()
	}
}

// RateLimiter enforces the tiered token-bucket quota per caller identity.
//
// The underlying limiter owns bucket state and its sweeper lifecycle; this
// type only translates quota results into HTTP semantics. It is safe for
// concurrent use.
type RateLimiter struct {
	limiter *ratelimit.Limiter
	enabled bool
	keyFn   keyFunc
}

// NewRateLimiter constructs a RateLimiter over the given bucket store. When
// enabled is false every check passes; headers are then omitted entirely.
func NewRateLimiter(l *ratelimit.Limiter, enabled bool, keyFn keyFunc) *RateLimiter {
	return &RateLimiter{limiter: l, enabled: enabled, keyFn: keyFn}
}

// Tier returns a Gin middleware enforcing the named tier's quota.
//
// Behavior:
//   - If limiting is disabled or IsRateBypass(c) is true (idempotent replay),
//     the request proceeds without consuming tokens.
//   - Otherwise the standard headers are set from the quota result:
//     X-RateLimit-Limit, X-RateLimit-Remaining, X-RateLimit-Reset (epoch
//     seconds). Allowed requests proceed; denied requests get a 429 with a
//     Retry-After header and a JSON body carrying the RATE_LIMITED code and
//     the retry hint.
func (rl *RateLimiter) Tier(tier ratelimit.Tier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.enabled || IsRateBypass(c) {
			c.Next()
			return
		}

		res := rl.limiter.Check(rl.keyFn(c), tier)

		h := c.Writer.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt, 10))

		if res.Allowed {
			c.Next()
			return
		}

		rateDenials.WithLabelValues(string(tier)).Inc()
		c.Header("Retry-After", strconv.Itoa(res.RetryAfter))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id":  c.Writer.Header().Get("X-Request-ID"),
			"code":        "RATE_LIMITED",
			"message":     "rate limit exceeded",
			"retry_after": res.RetryAfter,
		})
	}
}

// IsRateBypass reports whether IdempotencyValidator marked this request for
// rate-limit bypass (i.e., it is a replay of a previously completed request).
//
// When true, Tier() will skip limiting so replays are served without
// consuming tokens.
func IsRateBypass(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyRateBypass) // set by IdempotencyValidator
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}
