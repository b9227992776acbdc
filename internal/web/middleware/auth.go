package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"log/slog"
	"net/http"
	"strings"

	"github.com/JonMunkholm/InsuranceDashboard/internal/config"
	"github.com/JonMunkholm/InsuranceDashboard/internal/core"
)

type apiKey struct {
	name   string
	secret []byte
}

// APIKeyAuth returns middleware that validates the X-API-Key header against
// configured keys and stores the matching key's name as the audit actor.
// If RequireAPIKey is false, all requests pass through.
// If RequireAPIKey is true but no keys are configured, all requests are rejected.
func APIKeyAuth(cfg *config.SecurityConfig) func(http.Handler) http.Handler {
	keys := parseAPIKeys(cfg.APIKeys)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.RequireAPIKey {
				next.ServeHTTP(w, r)
				return
			}

			provided := r.Header.Get("X-API-Key")
			if provided == "" {
				slog.Warn("auth: missing API key",
					"path", r.URL.Path,
					"method", r.Method,
					"remote_addr", r.RemoteAddr,
				)
				writeJSONError(w, http.StatusUnauthorized, "missing API key", "AUTH_MISSING_KEY")
				return
			}

			name, ok := matchAPIKey(provided, keys)
			if !ok {
				slog.Warn("auth: invalid API key",
					"path", r.URL.Path,
					"method", r.Method,
					"remote_addr", r.RemoteAddr,
				)
				writeJSONError(w, http.StatusForbidden, "invalid API key", "AUTH_INVALID_KEY")
				return
			}

			ctx := core.ContextWithActor(r.Context(), name)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// parseAPIKeys splits "name:key" entries. Unnamed keys get a name derived
// from their hash so the secret never reaches the audit log.
func parseAPIKeys(entries []string) []apiKey {
	keys := make([]apiKey, 0, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, secret, found := strings.Cut(entry, ":")
		if !found || name == "" || secret == "" {
			secret = entry
			sum := sha256.Sum256([]byte(entry))
			name = "key-" + hex.EncodeToString(sum[:4])
		}
		keys = append(keys, apiKey{name: name, secret: []byte(secret)})
	}
	return keys
}

// matchAPIKey compares against ALL keys in constant time so the duration
// does not depend on which key matches.
func matchAPIKey(provided string, keys []apiKey) (string, bool) {
	var name string
	valid := 0
	for _, k := range keys {
		if subtle.ConstantTimeCompare([]byte(provided), k.secret) == 1 {
			valid = 1
			name = k.name
		}
	}
	return name, valid == 1
}

// writeJSONError writes the same error body shape the web package uses.
func writeJSONError(w http.ResponseWriter, status int, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + message + `","message":"` + message + `","code":"` + code + `"}`))
}
