// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file guards privileged read routes with a minimum-role check. The
// caller's role and ban state are loaded fresh on every request; nothing is
// cached between requests, so a ban or demotion takes effect immediately.
package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-forum-backend/internal/access"
	"github.com/tbourn/go-forum-backend/internal/domain"
)

// UserLookup resolves a caller id to its user row. Implementations return
// (nil, nil) when no such user exists; an error signals a lookup failure.
type UserLookup func(ctx context.Context, id string) (*domain.User, error)

// RequireRole returns a Gin middleware that admits only callers whose stored
// role meets or exceeds required and who are not currently banned.
//
// Rejections:
//   - 401 UNAUTHORIZED for anonymous callers and ids with no user row
//   - 403 FORBIDDEN for banned callers and insufficient roles
//   - 500 INTERNAL_ERROR when the lookup itself fails
//
// Mutating routes do not need this guard: the dispatcher re-checks the actor
// inside its own transaction. The guard exists for read routes that would
// otherwise expose privileged data to any caller passing the rate limiter.
func RequireRole(required domain.Role, lookup UserLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := userIDFromCtx(c)
		if uid == "" || uid == "anonymous" {
			guardFail(c, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
			return
		}

		u, err := lookup(c.Request.Context(), uid)
		if err != nil {
			guardFail(c, http.StatusInternalServerError, "INTERNAL_ERROR", "could not resolve caller")
			return
		}
		if u == nil {
			guardFail(c, http.StatusUnauthorized, "UNAUTHORIZED", "unknown acting user")
			return
		}
		if access.IsBanned(access.SnapshotOf(u)) {
			guardFail(c, http.StatusForbidden, "FORBIDDEN", "account is banned")
			return
		}
		if !access.HasMinRole(u.Role, required) {
			guardFail(c, http.StatusForbidden, "FORBIDDEN", "insufficient privileges")
			return
		}

		c.Next()
	}
}

// guardFail writes the standard error envelope and stops the chain.
func guardFail(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"request_id": c.Writer.Header().Get("X-Request-ID"),
		"code":       code,
		"message":    message,
	})
}
