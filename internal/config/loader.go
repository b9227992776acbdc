package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Load reads configuration from the process environment, applies defaults
// for unset values and validates the result.
func Load() (*Config, error) {
	return LoadFrom(os.Getenv)
}

// LoadFrom is Load with an explicit variable source.
func LoadFrom(getenv func(string) string) (*Config, error) {
	cfg := &Config{}

	if err := loadStruct(reflect.ValueOf(cfg).Elem(), getenv); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// loadStruct recursively populates struct fields from environment variables.
func loadStruct(v reflect.Value, getenv func(string) string) error {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldVal := v.Field(i)

		if !fieldVal.CanSet() {
			continue
		}

		// Recurse into nested structs
		if field.Type.Kind() == reflect.Struct && field.Type != reflect.TypeOf(time.Time{}) {
			if err := loadStruct(fieldVal, getenv); err != nil {
				return err
			}
			continue
		}

		envName := field.Tag.Get("env")
		envAlt := field.Tag.Get("envAlt")
		defaultVal := field.Tag.Get("default")
		required := field.Tag.Get("required") == "true"

		if envName == "" {
			continue
		}

		value := strings.TrimSpace(getenv(envName))
		if value == "" && envAlt != "" {
			value = strings.TrimSpace(getenv(envAlt))
		}

		if value == "" {
			if required {
				return fmt.Errorf("required environment variable %s is not set", envName)
			}
			value = defaultVal
		}

		if value == "" {
			continue
		}

		if err := setField(fieldVal, value); err != nil {
			return fmt.Errorf("invalid value for %s=%q: %w", envName, value, err)
		}
	}

	return nil
}

// setField sets a reflect.Value from a string based on its type.
func setField(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int64:
		// Handle time.Duration specially
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration: %w", err)
			}
			field.Set(reflect.ValueOf(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer: %w", err)
			}
			field.SetInt(i)
		}

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			result := make([]string, 0, len(parts))
			for _, p := range parts {
				p = strings.TrimSpace(p)
				if p != "" {
					result = append(result, p)
				}
			}
			field.Set(reflect.ValueOf(result))
		} else {
			return fmt.Errorf("unsupported slice type: %s", field.Type().Elem().Kind())
		}

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	if c.Database.URL == "" {
		errs = append(errs, "DATABASE_URL is required")
	}
	if c.Database.MaxConns <= 0 {
		errs = append(errs, "DB_MAX_CONNS must be positive")
	}
	if c.Database.MinConns < 0 {
		errs = append(errs, "DB_MIN_CONNS must be non-negative")
	}
	if c.Database.MaxConns < c.Database.MinConns {
		errs = append(errs, fmt.Sprintf("DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)",
			c.Database.MaxConns, c.Database.MinConns))
	}
	if c.Database.BeginRetries <= 0 {
		errs = append(errs, "DB_BEGIN_RETRIES must be positive")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT (%d) must be 1-65535", c.Server.Port))
	}
	if c.Server.ReadTimeout < 0 {
		errs = append(errs, "SERVER_READ_TIMEOUT must be non-negative")
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, "SERVER_SHUTDOWN_TIMEOUT must be positive")
	}

	if c.Upload.Directory == "" {
		errs = append(errs, "UPLOAD_DIRECTORY must not be empty")
	}
	if len(c.Upload.AllowedExtensions) == 0 {
		errs = append(errs, "UPLOAD_ALLOWED_EXTENSIONS must list at least one extension")
	}
	for _, ext := range c.Upload.AllowedExtensions {
		if !strings.HasPrefix(ext, ".") {
			errs = append(errs, fmt.Sprintf("UPLOAD_ALLOWED_EXTENSIONS entry %q must start with a dot", ext))
		}
	}
	if c.Upload.MaxFileSize <= 0 {
		errs = append(errs, "UPLOAD_MAX_FILE_SIZE must be positive")
	}
	if c.Upload.MaxConcurrent <= 0 {
		errs = append(errs, "UPLOAD_MAX_CONCURRENT must be positive")
	}
	if c.Upload.QueueSize <= 0 {
		errs = append(errs, "UPLOAD_QUEUE_SIZE must be positive")
	}
	if c.Upload.Timeout <= 0 {
		errs = append(errs, "UPLOAD_TIMEOUT must be positive")
	}
	if c.Upload.FileRetention < 0 {
		errs = append(errs, "UPLOAD_FILE_RETENTION must be non-negative")
	}
	if c.Upload.FileRetention > 0 && c.Upload.JanitorInterval <= 0 {
		errs = append(errs, "UPLOAD_JANITOR_INTERVAL must be positive when UPLOAD_FILE_RETENTION is set")
	}

	if c.Audit.RetryAttempts <= 0 {
		errs = append(errs, "AUDIT_RETRY_ATTEMPTS must be positive")
	}
	if c.Audit.BreakerFailures <= 0 {
		errs = append(errs, "AUDIT_BREAKER_FAILURES must be positive")
	}
	if c.Audit.BreakerTimeout <= 0 {
		errs = append(errs, "AUDIT_BREAKER_TIMEOUT must be positive")
	}

	if c.Redis.Enabled() && c.Redis.StatusTTL <= 0 {
		errs = append(errs, "REDIS_STATUS_TTL must be positive when REDIS_ADDR is set")
	}

	if c.Rate.Enabled && c.Rate.RequestsPerMinute <= 0 {
		errs = append(errs, "RATE_LIMIT_REQUESTS_PER_MINUTE must be positive when rate limiting is enabled")
	}
	if c.Rate.Enabled && c.Rate.UploadLimit <= 0 {
		errs = append(errs, "RATE_LIMIT_UPLOAD must be positive when rate limiting is enabled")
	}

	if c.Security.RequireAPIKey && len(c.Security.APIKeys) == 0 {
		errs = append(errs, "REQUIRE_API_KEY is true but API_KEYS is empty; configure at least one API key or disable auth")
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		errs = append(errs, fmt.Sprintf("METRICS_PATH (%q) must start with /", c.Metrics.Path))
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// String returns a safe representation of the config for logging.
// Credentials are masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	fmt.Fprintf(&b, "Server: {Addr: %q}, ", c.Server.Addr())
	fmt.Fprintf(&b, "Database: {URL: [MASKED], MaxConns: %d, MinConns: %d}, ",
		c.Database.MaxConns, c.Database.MinConns)
	fmt.Fprintf(&b, "Upload: {Dir: %q, MaxFileSize: %d, Workers: %d, Queue: %d}, ",
		c.Upload.Directory, c.Upload.MaxFileSize, c.Upload.MaxConcurrent, c.Upload.QueueSize)
	fmt.Fprintf(&b, "Redis: {Enabled: %v}, ", c.Redis.Enabled())
	fmt.Fprintf(&b, "Rate: {Enabled: %v, RequestsPerMinute: %d}, ",
		c.Rate.Enabled, c.Rate.RequestsPerMinute)
	fmt.Fprintf(&b, "Logging: {Level: %q, Format: %q}", c.Logging.Level, c.Logging.Format)
	b.WriteString("}")
	return b.String()
}
