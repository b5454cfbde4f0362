// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, database path, event-bus delivery policy,
// TTL windows, rate limiting, and observability.
//
// The configuration is constructed once at process start and passed by
// reference to each component; nothing reads the environment after Load
// returns.
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
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-commerce-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// BusConfig defines the delivery policy of the in-process event bus.
type BusConfig struct {
	BufferSize       int           // per-subscriber channel depth
	MaxAttempts      int           // delivery attempts before dead-lettering
	EmailBatchSize   int           // batched confirmation consumer: flush size
	EmailBatchWindow time.Duration // batched confirmation consumer: max wait
}

// InvoiceConfig defines the invoice upload handshake parameters.
type InvoiceConfig struct {
	UploadDir      string        // filesystem object store root
	UploadBaseURL  string        // external base URL for upload targets
	UploadExpiry   time.Duration // validity of an issued upload target
	TransactionTTL time.Duration // transaction lifetime while awaiting upload
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

	// Storage
	DBPath string // SQLite path

	// Lifecycle event log
	EventTTL        time.Duration // order/product event expiry window
	InvoiceEventTTL time.Duration // invoice event expiry window
	SweepInterval   time.Duration // TTL sweeper cadence

	// Messaging
	Bus BusConfig

	// Invoice upload handshake
	Invoice InvoiceConfig

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
		Port:              envStr("PORT", "8080"),
		ReadTimeout:       envDur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: envDur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      envDur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       envDur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    envInt("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(envStr("GIN_MODE", "release")),

		LogLevel:    strings.ToLower(envStr("LOG_LEVEL", "info")),
		LogPretty:   envBool("LOG_PRETTY", false),
		APIBasePath: normalizeBasePath(envStr("API_BASE_PATH", "/")),

		DBPath: envStr("DB_PATH", "commerce.db"),

		EventTTL:        envDur("EVENT_TTL", 2*time.Hour),
		InvoiceEventTTL: envDur("INVOICE_EVENT_TTL", time.Hour),
		SweepInterval:   envDur("SWEEP_INTERVAL", 30*time.Second),

		Bus: BusConfig{
			BufferSize:       envInt("BUS_BUFFER_SIZE", 64),
			MaxAttempts:      envInt("BUS_MAX_ATTEMPTS", 3),
			EmailBatchSize:   envInt("EMAIL_BATCH_SIZE", 5),
			EmailBatchWindow: envDur("EMAIL_BATCH_WINDOW", 10*time.Second),
		},

		Invoice: InvoiceConfig{
			UploadDir:      envStr("UPLOAD_DIR", "uploads"),
			UploadBaseURL:  envStr("UPLOAD_BASE_URL", "http://localhost:8080"),
			UploadExpiry:   envDur("UPLOAD_EXPIRY", 300*time.Second),
			TransactionTTL: envDur("TRANSACTION_TTL", 2*time.Minute),
		},

		RateRPS:   envFloat("RATE_RPS", 5.0),
		RateBurst: envInt("RATE_BURST", 10),

		CORS: CORSConfig{
			AllowedOrigins: splitCSV(envStr("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: envBool("ENABLE_HSTS", false),
			HSTSMaxAge: envDur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		OTEL: OTELConfig{
			Enabled:     envBool("OTEL_ENABLED", false),
			Endpoint:    envStr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    envBool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: envStr("OTEL_SERVICE_NAME", "go-commerce-backend"),
			SampleRatio: envFloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// Normalization before validation.
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// Validation: first failing check wins.
	checks := []struct {
		bad bool
		msg string
	}{
		{!validLogLevel(cfg.LogLevel), "LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic"},
		{strings.TrimSpace(cfg.Port) == "", "PORT must not be empty"},
		{cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0,
			"timeouts must be positive durations"},
		{cfg.MaxHeaderBytes <= 0, "MAX_HEADER_BYTES must be > 0"},
		{strings.TrimSpace(cfg.DBPath) == "", "DB_PATH must not be empty"},
		{cfg.EventTTL <= 0 || cfg.InvoiceEventTTL <= 0, "event TTL windows must be > 0"},
		{cfg.SweepInterval <= 0, "SWEEP_INTERVAL must be > 0"},
		{cfg.Bus.BufferSize < 1, "BUS_BUFFER_SIZE must be >= 1"},
		{cfg.Bus.MaxAttempts < 1, "BUS_MAX_ATTEMPTS must be >= 1"},
		{cfg.Bus.EmailBatchSize < 1, "EMAIL_BATCH_SIZE must be >= 1"},
		{cfg.Bus.EmailBatchWindow <= 0, "EMAIL_BATCH_WINDOW must be > 0"},
		{strings.TrimSpace(cfg.Invoice.UploadDir) == "", "UPLOAD_DIR must not be empty"},
		{cfg.Invoice.UploadExpiry <= 0 || cfg.Invoice.TransactionTTL <= 0, "invoice expiry windows must be > 0"},
		{cfg.RateRPS < 0, "RATE_RPS must be >= 0"},
		{cfg.RateBurst < 1, "RATE_BURST must be >= 1"},
		{cfg.Security.HSTSMaxAge < 0, "HSTS_MAX_AGE must be >= 0"},
		{cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1, "OTEL_TRACES_SAMPLER_ARG must be in [0,1]"},
	}
	for _, c := range checks {
		if c.bad {
			return cfg, errors.New(c.msg)
		}
	}

	return cfg, nil
}

func validLogLevel(l string) bool {
	switch l {
	case "debug", "info", "warn", "error", "fatal", "panic":
		return true
	}
	return false
}

// Environment helpers. A set-but-unparseable value falls back to the default;
// an empty value counts as unset.

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	return v, ok && v != ""
}

func envStr(key, def string) string {
	if v, ok := lookup(key); ok {
		return v
	}
	return def
}

func envFloat(key string, def float64) float64 {
	v, ok := lookup(key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func envInt(key string, def int) int {
	v, ok := lookup(key)
	if !ok {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func envBool(key string, def bool) bool {
	v, ok := lookup(key)
	if !ok {
		return def
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	}
	return def
}

func envDur(key string, def time.Duration) time.Duration {
	v, ok := lookup(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures a leading '/' and strips any trailing '/' (except
// for the bare root).
func normalizeBasePath(p string) string {
	return "/" + strings.Trim(strings.TrimSpace(p), "/")
}
