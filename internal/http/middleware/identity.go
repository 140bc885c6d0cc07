// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file resolves the caller identity early in the chain so that every
// downstream consumer (idempotency, rate limiting, handlers) sees the same
// user id under the "userID" context key.
package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// HeaderUserID carries the caller identity as asserted by the fronting
// auth proxy. The service trusts it as-is; verifying the assertion is the
// proxy's job.
const HeaderUserID = "X-User-ID"

// Identity returns a Gin middleware that stashes the caller identity from the
// X-User-ID header under the "userID" context key. Requests without the
// header stay anonymous: no key is set, and rate limiting falls back to the
// client IP.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if id := strings.TrimSpace(c.GetHeader(HeaderUserID)); id != "" {
			c.Set("userID", id)
		}
		c.Next()
	}
}
