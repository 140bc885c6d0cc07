// Command server runs the forum backend: trust and access enforcement in
// front of a thread/post store, exposed as a versioned JSON API.
//
// Startup order:
//  1. Load .env (best effort) and configuration from the environment.
//  2. Configure zerolog and Gin mode.
//  3. Open SQLite and migrate the schema.
//  4. Set up OpenTelemetry tracing (no-op unless enabled).
//  5. Build limiter and abuse detector state with their sweepers.
//  6. Register routes and serve until SIGINT/SIGTERM, then drain.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-forum-backend/internal/abuse"
	"github.com/tbourn/go-forum-backend/internal/config"
	httpapi "github.com/tbourn/go-forum-backend/internal/http"
	"github.com/tbourn/go-forum-backend/internal/observability"
	"github.com/tbourn/go-forum-backend/internal/ratelimit"
	"github.com/tbourn/go-forum-backend/internal/repo"
	"github.com/tbourn/go-forum-backend/internal/sysutil"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// Local development convenience; the file is absent in production.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	// A deployment can override the compiled-in version string.
	version = sysutil.FirstNonEmpty(os.Getenv("SERVICE_VERSION"), version)

	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	gin.SetMode(cfg.GinMode)

	db, err := repo.OpenSQLite(cfg.DBPath, cfg.OTEL.Enabled)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate schema")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("setup tracing")
	}

	// Quota state lives in-process; sweepers bound its memory.
	limiter := ratelimit.New(cfg.RateLimit.Tiers)
	limiter.StartSweeper(5*time.Minute, 10*time.Minute)
	defer limiter.Close()

	detector := abuse.New(cfg.Abuse.Threshold, cfg.Abuse.Window, cfg.Abuse.BlockDuration)
	detector.StartSweeper(5*time.Minute, 10*time.Minute)
	defer detector.Close()

	r := gin.New()
	httpapi.RegisterRoutes(r, db, limiter, detector, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server error")
		}
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(drainCtx); err != nil {
		log.Error().Err(err).Msg("shutdown incomplete")
	}
	if err := shutdownOTel(drainCtx); err != nil {
		log.Error().Err(err).Msg("tracer shutdown")
	}
	log.Info().Msg("server stopped")
}
