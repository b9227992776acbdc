package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/JonMunkholm/InsuranceDashboard/internal/config"
	"github.com/JonMunkholm/InsuranceDashboard/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoActor() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(core.MetaFromContext(r.Context()).Actor))
	})
}

func TestAPIKeyAuth(t *testing.T) {
	cfg := &config.SecurityConfig{
		RequireAPIKey: true,
		APIKeys:       []string{"ops:s3cret", "plainkey"},
	}
	h := APIKeyAuth(cfg)(echoActor())

	tests := []struct {
		name   string
		key    string
		status int
		actor  string
	}{
		{"missing", "", http.StatusUnauthorized, ""},
		{"invalid", "nope", http.StatusForbidden, ""},
		{"named", "s3cret", http.StatusOK, "ops"},
		{"named key is not the secret", "ops:s3cret", http.StatusForbidden, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.key != "" {
				req.Header.Set("X-API-Key", tt.key)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, tt.actor, rec.Body.String())
			}
		})
	}
}

func TestAPIKeyAuth_UnnamedKeyGetsHashedActor(t *testing.T) {
	cfg := &config.SecurityConfig{RequireAPIKey: true, APIKeys: []string{"plainkey"}}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-API-Key", "plainkey")
	rec := httptest.NewRecorder()

	APIKeyAuth(cfg)(echoActor()).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Regexp(t, `^key-[0-9a-f]{8}$`, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "plainkey")
}

func TestAPIKeyAuth_Disabled(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	APIKeyAuth(&config.SecurityConfig{})(echoActor()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestTrustedRealIP(t *testing.T) {
	echo := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(ClientIP(r)))
	})
	h := TrustedRealIP([]string{"10.0.0.0/8", "192.168.1.5", "not-a-cidr"})(echo)

	tests := []struct {
		name   string
		remote string
		header string
		value  string
		want   string
	}{
		{"trusted real ip", "10.1.2.3:5000", "X-Real-IP", "203.0.113.9", "203.0.113.9"},
		{"trusted forwarded chain", "192.168.1.5:80", "X-Forwarded-For", "198.51.100.4, 10.1.1.1", "198.51.100.4"},
		{"untrusted ignored", "203.0.113.50:1234", "X-Real-IP", "1.1.1.1", "203.0.113.50"},
		{"invalid header ignored", "10.1.2.3:5000", "X-Real-IP", "garbage", "10.1.2.3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			req.Header.Set(tt.header, tt.value)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Body.String())
		})
	}
}

func TestRateLimiter_PerClient(t *testing.T) {
	rl := NewRateLimiter(2, nil)
	defer rl.Stop()

	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	h := rl.Middleware(ok)

	call := func(remote string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusNoContent, call("203.0.113.1:1000").Code)
	assert.Equal(t, http.StatusNoContent, call("203.0.113.1:1001").Code)

	limited := call("203.0.113.1:1002")
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.Equal(t, "30", limited.Header().Get("Retry-After"))
	assert.Contains(t, limited.Body.String(), "RATE001")

	// Another client has its own bucket.
	assert.Equal(t, http.StatusNoContent, call("203.0.113.2:1000").Code)
	assert.Equal(t, 2, rl.Len())
}

func TestRateLimiter_EvictsIdleClients(t *testing.T) {
	rl := NewRateLimiter(60, nil)
	defer rl.Stop()

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("a"))
	now = now.Add(idleAfter / 2)
	assert.True(t, rl.Allow("b"))

	now = now.Add(idleAfter/2 + time.Second)
	rl.evictIdle()

	assert.Equal(t, 1, rl.Len())
}

func TestLogger_CapturesStatus(t *testing.T) {
	h := Logger(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "short and stout", rec.Body.String())
}
