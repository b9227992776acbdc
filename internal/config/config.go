// Package config provides centralized configuration for the ingestion service.
// Settings come from environment variables with defaults and are validated
// once at startup so a misconfigured process never starts serving.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Upload   UploadConfig
	Audit    AuditConfig
	CORS     CORSConfig
	Redis    RedisConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
	Metrics  MetricsConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8000)
	Port int `env:"SERVER_PORT" envAlt:"PORT" default:"8000"`

	// ReadTimeout covers reading the whole request, multipart body included (default: 2m)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"2m"`

	// WriteTimeout is the maximum duration for writing a response (default: 30s)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"30s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout bounds graceful shutdown, queue drain included (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for non-upload requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string (required)
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	MaxConns        int           `env:"DB_MAX_CONNS" default:"20"`
	MinConns        int           `env:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`

	// BeginRetries is how many times opening a batch transaction is attempted (default: 3)
	BeginRetries int `env:"DB_BEGIN_RETRIES" default:"3"`
}

// UploadConfig holds spreadsheet ingestion settings.
type UploadConfig struct {
	// Directory is where uploaded files are spooled, one subdirectory per entity.
	Directory string `env:"UPLOAD_DIRECTORY" default:"uploads"`

	// AllowedExtensions is the accepted file extension list.
	AllowedExtensions []string `env:"UPLOAD_ALLOWED_EXTENSIONS" default:".xlsx,.xlsm,.csv"`

	// MaxFileSize is the maximum accepted file size in bytes (default: 50MB)
	MaxFileSize int64 `env:"UPLOAD_MAX_FILE_SIZE" default:"52428800"`

	// MaxConcurrent is the number of batches processed in parallel (default: 4)
	MaxConcurrent int `env:"UPLOAD_MAX_CONCURRENT" default:"4"`

	// QueueSize is the number of accepted batches waiting for a worker (default: 64)
	QueueSize int `env:"UPLOAD_QUEUE_SIZE" default:"64"`

	// Timeout bounds the processing of a single batch (default: 10m)
	Timeout time.Duration `env:"UPLOAD_TIMEOUT" default:"10m"`

	// StrictReferences rejects rows whose optional references do not resolve.
	StrictReferences bool `env:"IMPORT_STRICT_REFERENCES" default:"false"`

	// FileRetention removes spooled files older than this; 0 keeps them forever.
	FileRetention time.Duration `env:"UPLOAD_FILE_RETENTION" default:"0s"`

	// JanitorInterval is how often the retention sweep runs (default: 1h)
	JanitorInterval time.Duration `env:"UPLOAD_JANITOR_INTERVAL" default:"1h"`
}

// AuditConfig holds audit recorder settings.
type AuditConfig struct {
	// RecordRejectedRows writes one audit entry per rejected row in addition to the batch entry.
	RecordRejectedRows bool `env:"AUDIT_RECORD_REJECTED_ROWS" default:"false"`

	// FallbackPath receives audit entries as JSON lines when the store is unavailable.
	FallbackPath string `env:"AUDIT_FALLBACK_PATH"`

	// RetryAttempts is the number of attempts per audit write (default: 3)
	RetryAttempts int `env:"AUDIT_RETRY_ATTEMPTS" default:"3"`

	// RetryDelay is the base backoff between attempts (default: 100ms)
	RetryDelay time.Duration `env:"AUDIT_RETRY_DELAY" default:"100ms"`

	// BreakerFailures is the consecutive failures that open the circuit (default: 5)
	BreakerFailures int `env:"AUDIT_BREAKER_FAILURES" default:"5"`

	// BreakerTimeout is how long the circuit stays open (default: 30s)
	BreakerTimeout time.Duration `env:"AUDIT_BREAKER_TIMEOUT" default:"30s"`

	// WriteTimeout bounds one audit write including retries (default: 10s)
	WriteTimeout time.Duration `env:"AUDIT_WRITE_TIMEOUT" default:"10s"`
}

// CORSConfig holds cross-origin settings for the dashboard frontend.
type CORSConfig struct {
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" default:"http://localhost:5000,http://localhost:3000,http://127.0.0.1:5000"`
}

// RedisConfig holds the optional batch status cache settings.
// The cache is disabled when Addr is empty.
type RedisConfig struct {
	Addr      string        `env:"REDIS_ADDR"`
	Password  string        `env:"REDIS_PASSWORD"`
	DB        int           `env:"REDIS_DB" default:"0"`
	StatusTTL time.Duration `env:"REDIS_STATUS_TTL" default:"24h"`
}

// RateLimitConfig holds per-client rate limiting settings.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 120)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"120"`

	// UploadLimit is requests per minute for upload endpoints (default: 10)
	UploadLimit int `env:"RATE_LIMIT_UPLOAD" default:"10"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// RequireAPIKey enables X-API-Key checks on API routes.
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is the comma-separated list of accepted keys. An entry may be
	// written "name:key"; the name is then recorded as the audit actor.
	APIKeys []string `env:"API_KEYS"`

	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// MetricsConfig holds Prometheus exposition settings.
type MetricsConfig struct {
	Enabled bool   `env:"METRICS_ENABLED" default:"true"`
	Path    string `env:"METRICS_PATH" default:"/metrics"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// Enabled reports whether a Redis address is configured.
func (c *RedisConfig) Enabled() bool {
	return c.Addr != ""
}
