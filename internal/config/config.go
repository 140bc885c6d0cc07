// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, database paths, rate limiting, abuse
// detection, content classification, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tbourn/go-forum-backend/internal/ratelimit"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-forum-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// RateLimitConfig defines the token-bucket limiter settings: a global on/off
// switch plus per-tier overrides of the built-in table.
type RateLimitConfig struct {
	Enabled bool // RATE_LIMIT_ENABLED
	Tiers   map[ratelimit.Tier]ratelimit.TierConfig
}

// AbuseConfig defines the IP-level flood gate settings.
type AbuseConfig struct {
	Threshold     int           // ABUSE_THRESHOLD: max requests per window
	Window        time.Duration // ABUSE_WINDOW
	BlockDuration time.Duration // ABUSE_BLOCK_DURATION
}

// AIConfig defines the external content-classification settings. An empty
// APIKey leaves the capability unconfigured; classification then always
// passes.
type AIConfig struct {
	APIKey             string        // AI_API_KEY
	BaseURL            string        // AI_BASE_URL
	Model              string        // AI_MODEL
	Timeout            time.Duration // AI_TIMEOUT: budget for live content checks
	EnrichTimeout      time.Duration // AI_ENRICH_TIMEOUT: budget for async enrichment
	MinBlockConfidence float64       // AI_MIN_BLOCK_CONFIDENCE: BLOCKED below this becomes FLAGGED
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging
	LogLevel    string // debug|info|warn|error|fatal|panic
	LogPretty   bool   // pretty console logs in dev
	APIBasePath string // base path for API routes

	// App
	DBPath string // SQLite path

	// Enforcement
	RateLimit RateLimitConfig
	Abuse     AbuseConfig
	AI        AIConfig

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging
		LogLevel:    strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:   getbool("LOG_PRETTY", false),
		APIBasePath: normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// App
		DBPath: getenv("DB_PATH", "forum.db"),

		// Enforcement
		RateLimit: RateLimitConfig{
			Enabled: getbool("RATE_LIMIT_ENABLED", true),
			Tiers:   loadTiers(),
		},
		Abuse: AbuseConfig{
			Threshold:     getint("ABUSE_THRESHOLD", 300),
			Window:        getdur("ABUSE_WINDOW", time.Minute),
			BlockDuration: getdur("ABUSE_BLOCK_DURATION", 5*time.Minute),
		},
		AI: AIConfig{
			APIKey:             getenv("AI_API_KEY", ""),
			BaseURL:            getenv("AI_BASE_URL", "https://api.openai.com/v1"),
			Model:              getenv("AI_MODEL", "gpt-4o-mini"),
			Timeout:            getdur("AI_TIMEOUT", 2*time.Second),
			EnrichTimeout:      getdur("AI_ENRICH_TIMEOUT", 10*time.Second),
			MinBlockConfidence: getfloat("AI_MIN_BLOCK_CONFIDENCE", 0.7),
		},

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Idempotency
		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-forum-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	for tier, tc := range cfg.RateLimit.Tiers {
		if tc.MaxTokens < 1 {
			return cfg, errors.New("RATE_" + strings.ToUpper(string(tier)) + "_MAX must be >= 1")
		}
		if tc.Window <= 0 {
			return cfg, errors.New("RATE_" + strings.ToUpper(string(tier)) + "_WINDOW must be > 0")
		}
	}
	if cfg.Abuse.Threshold < 1 {
		return cfg, errors.New("ABUSE_THRESHOLD must be >= 1")
	}
	if cfg.Abuse.Window <= 0 || cfg.Abuse.BlockDuration <= 0 {
		return cfg, errors.New("abuse window and block duration must be positive")
	}
	if cfg.AI.Timeout <= 0 || cfg.AI.EnrichTimeout <= 0 {
		return cfg, errors.New("AI timeouts must be positive durations")
	}
	if cfg.AI.MinBlockConfidence < 0 || cfg.AI.MinBlockConfidence > 1 {
		return cfg, errors.New("AI_MIN_BLOCK_CONFIDENCE must be in [0,1]")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.IdempotencyTTL <= 0 {
		return cfg, errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// loadTiers starts from the built-in tier table and applies per-tier env
// overrides, e.g. RATE_CREATE_MAX=20 and RATE_CREATE_WINDOW=30s.
func loadTiers() map[ratelimit.Tier]ratelimit.TierConfig {
	tiers := ratelimit.DefaultTiers()
	for tier, tc := range tiers {
		key := strings.ToUpper(string(tier))
		tc.MaxTokens = getint("RATE_"+key+"_MAX", tc.MaxTokens)
		tc.Window = getdur("RATE_"+key+"_WINDOW", tc.Window)
		tiers[tier] = tc
	}
	return tiers
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
