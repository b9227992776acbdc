package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// envMap builds a getenv function over a fixed set of variables.
func envMap(vars map[string]string) func(string) string {
	return func(key string) string { return vars[key] }
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := LoadFrom(envMap(map[string]string{
		"DATABASE_URL": "postgres://localhost/test",
	}))
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, "uploads", cfg.Upload.Directory)
	assert.Equal(t, []string{".xlsx", ".xlsm", ".csv"}, cfg.Upload.AllowedExtensions)
	assert.Equal(t, int64(50*1024*1024), cfg.Upload.MaxFileSize)
	assert.Equal(t, 4, cfg.Upload.MaxConcurrent)
	assert.Equal(t, 64, cfg.Upload.QueueSize)
	assert.Equal(t, 10*time.Minute, cfg.Upload.Timeout)
	assert.False(t, cfg.Upload.StrictReferences)
	assert.False(t, cfg.Audit.RecordRejectedRows)
	assert.Equal(t, 3, cfg.Audit.RetryAttempts)
	assert.Equal(t, 10*time.Second, cfg.Audit.WriteTimeout)
	assert.Equal(t, []string{"http://localhost:5000", "http://localhost:3000", "http://127.0.0.1:5000"}, cfg.CORS.AllowedOrigins)
	assert.False(t, cfg.Redis.Enabled())
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
}

func TestLoad_OverrideDefaults(t *testing.T) {
	cfg, err := LoadFrom(envMap(map[string]string{
		"DATABASE_URL":               "postgres://localhost/test",
		"SERVER_PORT":                "9090",
		"UPLOAD_MAX_CONCURRENT":      "10",
		"LOG_LEVEL":                  "debug",
		"AUDIT_RECORD_REJECTED_ROWS": "true",
		"AUDIT_WRITE_TIMEOUT":        "3s",
		"REDIS_ADDR":                 "localhost:6379",
	}))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0:9090", cfg.Server.Addr())
	assert.Equal(t, 10, cfg.Upload.MaxConcurrent)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Audit.RecordRejectedRows)
	assert.Equal(t, 3*time.Second, cfg.Audit.WriteTimeout)
	assert.True(t, cfg.Redis.Enabled())
}

func TestLoad_AltEnvVar(t *testing.T) {
	cfg, err := LoadFrom(envMap(map[string]string{
		"DB_URL": "postgres://localhost/alttest",
		"PORT":   "5001",
	}))
	require.NoError(t, err)

	assert.Equal(t, "postgres://localhost/alttest", cfg.Database.URL)
	assert.Equal(t, 5001, cfg.Server.Port)
}

func TestLoad_MissingRequired(t *testing.T) {
	_, err := LoadFrom(envMap(nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestLoad_Duration(t *testing.T) {
	cfg, err := LoadFrom(envMap(map[string]string{
		"DATABASE_URL":          "postgres://localhost/test",
		"SERVER_READ_TIMEOUT":   "45s",
		"UPLOAD_FILE_RETENTION": "72h",
	}))
	require.NoError(t, err)

	assert.Equal(t, 45*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 72*time.Hour, cfg.Upload.FileRetention)
}

func TestLoad_CommaSeparatedSlice(t *testing.T) {
	cfg, err := LoadFrom(envMap(map[string]string{
		"DATABASE_URL":    "postgres://localhost/test",
		"TRUSTED_PROXIES": "10.0.0.0/8, 172.16.0.0/12 , 192.168.0.0/16",
		"ALLOWED_ORIGINS": "https://dash.example.com,,",
	}))
	require.NoError(t, err)

	assert.Equal(t, []string{"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"}, cfg.Security.TrustedProxies)
	assert.Equal(t, []string{"https://dash.example.com"}, cfg.CORS.AllowedOrigins)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"bad integer", "SERVER_PORT", "eighty"},
		{"bad duration", "UPLOAD_TIMEOUT", "ten minutes"},
		{"bad bool", "IMPORT_STRICT_REFERENCES", "maybe"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFrom(envMap(map[string]string{
				"DATABASE_URL": "postgres://localhost/test",
				tt.key:         tt.val,
			}))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func validConfig(t *testing.T) *Config {
	t.Helper()
	cfg, err := LoadFrom(envMap(map[string]string{"DATABASE_URL": "postgres://localhost/test"}))
	require.NoError(t, err)
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid defaults", func(*Config) {}, ""},
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }, "SERVER_PORT"},
		{"max below min conns", func(c *Config) { c.Database.MaxConns = 1; c.Database.MinConns = 5 }, "DB_MAX_CONNS"},
		{"zero file size", func(c *Config) { c.Upload.MaxFileSize = 0 }, "UPLOAD_MAX_FILE_SIZE"},
		{"extension without dot", func(c *Config) { c.Upload.AllowedExtensions = []string{"xlsx"} }, "must start with a dot"},
		{"zero queue", func(c *Config) { c.Upload.QueueSize = 0 }, "UPLOAD_QUEUE_SIZE"},
		{"api key required but empty", func(c *Config) { c.Security.RequireAPIKey = true }, "API_KEYS"},
		{"bad log level", func(c *Config) { c.Logging.Level = "trace" }, "LOG_LEVEL"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "LOG_FORMAT"},
		{"redis without ttl", func(c *Config) { c.Redis.Addr = "localhost:6379"; c.Redis.StatusTTL = 0 }, "REDIS_STATUS_TTL"},
		{"metrics path", func(c *Config) { c.Metrics.Path = "metrics" }, "METRICS_PATH"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := validConfig(t)
	cfg.Server.Port = 0
	cfg.Upload.MaxConcurrent = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SERVER_PORT")
	assert.Contains(t, err.Error(), "UPLOAD_MAX_CONCURRENT")
}

func TestString_MasksDatabaseURL(t *testing.T) {
	cfg := validConfig(t)
	cfg.Database.URL = "postgres://user:secret@db/insurance"

	s := cfg.String()
	assert.NotContains(t, s, "secret")
	assert.Contains(t, s, "[MASKED]")
}
