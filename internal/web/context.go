package web

import (
	"context"
	"net/http"

	"github.com/JonMunkholm/InsuranceDashboard/internal/core"
	appmw "github.com/JonMunkholm/InsuranceDashboard/internal/web/middleware"
)

// WithRequestMetadata adds client IP and User-Agent to ctx for audit entries.
// The IP is the one resolved by TrustedRealIP.
func WithRequestMetadata(ctx context.Context, r *http.Request) context.Context {
	ctx = core.ContextWithIPAddress(ctx, appmw.ClientIP(r))
	if ua := r.UserAgent(); ua != "" {
		ctx = core.ContextWithUserAgent(ctx, ua)
	}
	return ctx
}

// requestMetadata applies WithRequestMetadata to every request.
func requestMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(WithRequestMetadata(r.Context(), r)))
	})
}
