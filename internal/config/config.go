package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration derived from environment variables.
// Empty DSNs and addresses disable the corresponding backend: banners are
// then kept in memory, engagement dedup is process-local, and events are
// only logged.
type Config struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	RedisAddr    string
	PostgresDSN  string
	GeoIPDB      string
	// Engagement analytics
	ClickHouseDSN string
	KafkaBrokers  []string
	KafkaTopic    string
	// EventBufferSize bounds the in-memory event buffer used without a sink.
	EventBufferSize int
	// Placement engine
	SlotCatalog       string
	CacheTTL          time.Duration
	DataAccessTimeout time.Duration
	// Engagement dedup
	ClickThrottle      time.Duration
	ImpressionDedupTTL time.Duration
	// Editor auth
	TokenSecret string
	TokenTTL    time.Duration
	// Event sink rate limiting, per client IP
	RateLimitEnabled    bool
	RateLimitCapacity   int
	RateLimitRefillRate int
	CORSAllowedOrigins  []string
	ServiceName         string
	// Database connection pooling configuration
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration
	DBConnMaxIdleTime time.Duration
	// Tracing configuration
	TracingEnabled    bool
	TempoEndpoint     string
	TracingSampleRate float64
	Environment       string
}

// Load parses environment variables and returns a Config populated with
// defaults when variables are absent.
func Load() Config {
	cfg := Config{}

	cfg.Port = getenv("PORT", "8787")
	cfg.ReadTimeout = envDuration("READ_TIMEOUT", 5*time.Second)
	cfg.WriteTimeout = envDuration("WRITE_TIMEOUT", 10*time.Second)
	cfg.RedisAddr = getenv("REDIS_ADDR", "")
	cfg.PostgresDSN = getenv("POSTGRES_DSN", "")
	cfg.GeoIPDB = getenv("GEOIP_DB", "")

	cfg.ClickHouseDSN = getenv("CLICKHOUSE_DSN", "")
	cfg.KafkaBrokers = envList("KAFKA_BROKERS")
	cfg.KafkaTopic = getenv("KAFKA_TOPIC", "banner-events")
	cfg.EventBufferSize = envInt("EVENT_BUFFER_SIZE", 10000)

	cfg.SlotCatalog = getenv("SLOT_CATALOG", "config/slots.yaml")
	cfg.CacheTTL = envDuration("CACHE_TTL", 5*time.Minute)
	cfg.DataAccessTimeout = envDuration("DATA_ACCESS_TIMEOUT", 8*time.Second)

	cfg.ClickThrottle = envDuration("CLICK_THROTTLE", 1000*time.Millisecond)
	cfg.ImpressionDedupTTL = envDuration("IMPRESSION_DEDUP_TTL", 24*time.Hour)

	cfg.TokenSecret = getenv("TOKEN_SECRET", "")
	cfg.TokenTTL = envDuration("TOKEN_TTL", 12*time.Hour)

	cfg.RateLimitEnabled = envBool("RATE_LIMIT_ENABLED", true)
	cfg.RateLimitCapacity = envInt("RATE_LIMIT_CAPACITY", 60)
	cfg.RateLimitRefillRate = envInt("RATE_LIMIT_REFILL_RATE", 10)
	cfg.CORSAllowedOrigins = envList("CORS_ALLOWED_ORIGINS")
	cfg.ServiceName = getenv("SERVICE_NAME", "portalads")

	// Database connection pooling configuration
	cfg.DBMaxOpenConns = envInt("DB_MAX_OPEN_CONNS", 25)
	cfg.DBMaxIdleConns = envInt("DB_MAX_IDLE_CONNS", 5)
	cfg.DBConnMaxLifetime = envDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	cfg.DBConnMaxIdleTime = envDuration("DB_CONN_MAX_IDLE_TIME", 1*time.Minute)

	// Tracing configuration
	cfg.TracingEnabled = envBool("TRACING_ENABLED", false)
	cfg.TempoEndpoint = getenv("TEMPO_ENDPOINT", "tempo:4317")
	cfg.TracingSampleRate = envFloat("TRACING_SAMPLE_RATE", 1.0) // Default to 100% sampling for dev
	cfg.Environment = getenv("ENV", "development")

	return cfg
}

// ErrMissingTokenSecret is returned by Validate when TOKEN_SECRET is unset.
var ErrMissingTokenSecret = errors.New("TOKEN_SECRET is required: editor tokens cannot be verified without it")

// Validate reports settings the server cannot run with.
func (c Config) Validate() error {
	if strings.TrimSpace(c.TokenSecret) == "" {
		return ErrMissingTokenSecret
	}
	return nil
}

// getenv returns the value of the environment variable if set, otherwise def.
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// envDuration parses an environment variable into a time.Duration.
// The value can be a duration string (e.g. "5s") or a number of seconds.
// If the variable is unset or invalid, def is returned.
func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return def
}

// envBool parses a boolean environment variable. Accepted values are those
// supported by strconv.ParseBool. When unset or invalid, def is returned.
func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	return def
}

// envInt parses an integer environment variable. When unset or invalid, def is returned.
func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if i, err := strconv.Atoi(v); err == nil {
		return i
	}
	return def
}

// envFloat parses a float64 environment variable. When unset or invalid, def is returned.
func envFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	return def
}

// envList splits a comma-separated environment variable, dropping empty items.
func envList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
