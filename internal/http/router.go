// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, identity, the IP flood gate, idempotency, and
// tiered rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Production-ready CORS and security header posture
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-forum-backend/internal/abuse"
	"github.com/tbourn/go-forum-backend/internal/aiclient"
	"github.com/tbourn/go-forum-backend/internal/config"
	"github.com/tbourn/go-forum-backend/internal/domain"
	"github.com/tbourn/go-forum-backend/internal/http/handlers"
	"github.com/tbourn/go-forum-backend/internal/http/middleware"
	"github.com/tbourn/go-forum-backend/internal/ratelimit"
	"github.com/tbourn/go-forum-backend/internal/repo"
	"github.com/tbourn/go-forum-backend/internal/services"
)

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), identity, the IP
// flood gate, idempotency and tiered rate limiting, CORS and security
// headers, health and metrics endpoints, and then mounts the versioned public
// API under /api/v*.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Identity (resolve caller before quota and idempotency decisions)
//  8. IP flood gate (coarse, per-address, before per-caller quotas)
//  9. Idempotency validator (before rate limiting to allow bypass on replay)
//  10. CORS and security headers
//
// Per-caller rate limiting is tier-scoped and applied per route, not
// globally, so reads and mutations draw from separate buckets.
func RegisterRoutes(r *gin.Engine, db *gorm.DB, limiter *ratelimit.Limiter, detector *abuse.Detector, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{
			"X-API-Key",
		},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// Response compression; Prometheus scrapes stay uncompressed.
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Caller identity, before anything keyed on it
	r.Use(middleware.Identity())

	// 8) IP flood gate, ahead of per-caller quotas
	r.Use(middleware.IPGate(detector))

	// 9) Idempotency validation (before rate limiting)
	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{
			MaxLen: 200,
		},
		func(ctx context.Context, userID, scope, key string, now time.Time) (*middleware.StoredResult, error) {
			rec, err := repo.GetIdempotency(ctx, db, userID, scope, key, now)
			if err != nil || rec == nil {
				return nil, nil
			}
			return &middleware.StoredResult{ResultID: rec.ResultID, Status: rec.Status}, nil
		},
	))

	// 10) CORS posture (safe defaults: allow all if none configured)
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps tests and simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderUserID, middleware.HeaderIdempotencyKey},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		// Echo ACAO with the request Origin when it is in the allowlist (in addition to gin-contrib/cors).
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderUserID, middleware.HeaderIdempotencyKey},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// Dependency injection: services ← repo/db/provider
	var provider aiclient.Provider
	if cfg.AI.APIKey != "" {
		provider = aiclient.New(cfg.AI.BaseURL, cfg.AI.APIKey, cfg.AI.Model)
	}
	clsSvc := services.NewClassifierService(db, provider)
	clsSvc.Timeout = cfg.AI.Timeout
	clsSvc.EnrichTimeout = cfg.AI.EnrichTimeout
	clsSvc.MinBlockConfidence = cfg.AI.MinBlockConfidence

	modSvc := services.NewModerationService(db)
	contentSvc := services.NewContentService(db, clsSvc)
	h := handlers.New(modSvc, contentSvc, db, cfg.IdempotencyTTL)

	// Tiered per-caller rate limiter
	rl := middleware.NewRateLimiter(limiter, cfg.RateLimit.Enabled, middleware.KeyByUserOrIP())

	// Role guard for privileged reads; role and ban state are loaded per
	// request so revocations apply immediately.
	lookupUser := func(ctx context.Context, id string) (*domain.User, error) {
		u, err := repo.GetUser(ctx, db, id)
		if errors.Is(err, repo.ErrNotFound) {
			return nil, nil
		}
		return u, err
	}
	moderatorOnly := middleware.RequireRole(domain.RoleModerator, lookupUser)
	adminOnly := middleware.RequireRole(domain.RoleAdmin, lookupUser)

	// Public API
	apiBase := cfg.APIBasePath // e.g. "/api/v1"
	api := groupWithPrefix(r, apiBase)
	{
		// Threads
		api.GET("/threads", rl.Tier(ratelimit.TierRead), h.ListThreads)
		api.POST("/threads", rl.Tier(ratelimit.TierCreate), h.CreateThread)
		api.GET("/threads/:id", rl.Tier(ratelimit.TierRead), h.GetThread)

		// Posts
		api.GET("/threads/:id/posts", rl.Tier(ratelimit.TierRead), h.ListPosts)
		api.POST("/threads/:id/posts", rl.Tier(ratelimit.TierCreate), h.CreatePost)

		// Moderation; the dispatcher authorizes POSTs itself, inside its
		// transaction, but the read routes need the guard up front.
		api.POST("/moderation/actions", rl.Tier(ratelimit.TierAdmin), h.DispatchAction)
		api.GET("/moderation/actions", rl.Tier(ratelimit.TierAdmin), moderatorOnly, h.ListActions)
		api.GET("/moderation/stats", rl.Tier(ratelimit.TierAdmin), moderatorOnly, h.Stats)

		// Audit ledger, admins only
		api.GET("/audit", rl.Tier(ratelimit.TierAdmin), adminOnly, h.ListAudit)
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
