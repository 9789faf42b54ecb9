// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes server settings,
// logging, database path, the WhatsApp gateway endpoint, scheduling and
// throttling knobs, reply-keyword sets, rate limiting, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
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
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-wa-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// GatewayConfig defines how to reach the external WhatsApp HTTP gateway.
type GatewayConfig struct {
	URL           string        // WA_GATEWAY_URL, base URL of the gateway
	Timeout       time.Duration // WA_GATEWAY_TIMEOUT per-call timeout
	SessionPrefix string        // WA_SESSION_PREFIX, sessions are "<prefix>_<userID>"
}

// SchedulerConfig defines the dispatch loop and throttling behavior.
type SchedulerConfig struct {
	Interval        time.Duration // SCHEDULER_INTERVAL between due-message ticks
	SendInterval    time.Duration // SEND_INTERVAL minimum gap between sends per batch
	StaleClaimAfter time.Duration // SCHEDULER_STALE_CLAIM_AFTER before abandoned dispatch claims are rescheduled
	AutoStart       bool          // SCHEDULER_AUTOSTART starts the loop at boot
}

// RedisConfig defines the optional dispatch-marker cache. An empty Addr
// disables Redis entirely.
type RedisConfig struct {
	Addr string        // REDIS_ADDR, e.g. "localhost:6379"; empty = disabled
	TTL  time.Duration // REDIS_DISPATCH_TTL for dispatched-message markers
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
	DBPath             string // SQLite path
	DefaultCountryCode string // digits prepended to domestic-looking numbers
	AffirmativeWords   []string
	NegativeWords      []string
	RecentEventsSize   int  // webhook ring buffer capacity
	RetainSentMessages bool // keep non-recurring messages after send
	MaxContentRunes    int  // outbound content length cap

	Gateway   GatewayConfig
	Scheduler SchedulerConfig
	Redis     RedisConfig

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

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
		DBPath:             getenv("DB_PATH", "app.db"),
		DefaultCountryCode: getenv("DEFAULT_COUNTRY_CODE", "55"),
		AffirmativeWords:   splitCSV(getenv("AFFIRMATIVE_WORDS", "sim,s,confirmo,confirmado,claro,ok,yes")),
		NegativeWords:      splitCSV(getenv("NEGATIVE_WORDS", "nao,n,cancelar,cancela,no")),
		RecentEventsSize:   getint("RECENT_EVENTS_SIZE", 100),
		RetainSentMessages: getbool("RETAIN_SENT_MESSAGES", false),
		MaxContentRunes:    getint("MAX_CONTENT_RUNES", 4096),

		Gateway: GatewayConfig{
			URL:           getenv("WA_GATEWAY_URL", "http://localhost:21465"),
			Timeout:       getdur("WA_GATEWAY_TIMEOUT", 30*time.Second),
			SessionPrefix: getenv("WA_SESSION_PREFIX", "user"),
		},
		Scheduler: SchedulerConfig{
			Interval:        getdur("SCHEDULER_INTERVAL", time.Minute),
			SendInterval:    getdur("SEND_INTERVAL", 3*time.Second),
			StaleClaimAfter: getdur("SCHEDULER_STALE_CLAIM_AFTER", 5*time.Minute),
			AutoStart:       getbool("SCHEDULER_AUTOSTART", true),
		},
		Redis: RedisConfig{
			Addr: getenv("REDIS_ADDR", ""),
			TTL:  getdur("REDIS_DISPATCH_TTL", 24*time.Hour),
		},

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-wa-backend"),
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
	cfg.Gateway.URL = strings.TrimRight(cfg.Gateway.URL, "/")
	cfg.DefaultCountryCode = digitsOnly(cfg.DefaultCountryCode)

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
	if strings.TrimSpace(cfg.Gateway.URL) == "" {
		return cfg, errors.New("WA_GATEWAY_URL must not be empty")
	}
	if cfg.Gateway.Timeout <= 0 {
		return cfg, errors.New("WA_GATEWAY_TIMEOUT must be > 0")
	}
	if strings.TrimSpace(cfg.Gateway.SessionPrefix) == "" {
		return cfg, errors.New("WA_SESSION_PREFIX must not be empty")
	}
	if cfg.Scheduler.Interval <= 0 {
		return cfg, errors.New("SCHEDULER_INTERVAL must be > 0")
	}
	if cfg.Scheduler.SendInterval < 0 {
		return cfg, errors.New("SEND_INTERVAL must be >= 0")
	}
	if cfg.Scheduler.StaleClaimAfter <= 0 {
		return cfg, errors.New("SCHEDULER_STALE_CLAIM_AFTER must be > 0")
	}
	if cfg.RecentEventsSize < 1 {
		return cfg, errors.New("RECENT_EVENTS_SIZE must be >= 1")
	}
	if cfg.MaxContentRunes < 1 {
		return cfg, errors.New("MAX_CONTENT_RUNES must be >= 1")
	}
	if len(cfg.AffirmativeWords) == 0 || len(cfg.NegativeWords) == 0 {
		return cfg, errors.New("AFFIRMATIVE_WORDS and NEGATIVE_WORDS must not be empty")
	}
	if cfg.Redis.Addr != "" && cfg.Redis.TTL <= 0 {
		return cfg, errors.New("REDIS_DISPATCH_TTL must be > 0 when REDIS_ADDR is set")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
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

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
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
