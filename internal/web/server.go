// Package web provides the JSON HTTP API for file ingestion, audit logs and
// dashboard analytics.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/JonMunkholm/InsuranceDashboard/internal/config"
	"github.com/JonMunkholm/InsuranceDashboard/internal/core"
	appmw "github.com/JonMunkholm/InsuranceDashboard/internal/web/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthChecker is a dependency probed by GET /health.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Options carries optional server dependencies.
type Options struct {
	// Gatherer backs the metrics endpoint; nil leaves it unmounted.
	Gatherer prometheus.Gatherer

	// Checks are probed by /health, keyed by component name.
	Checks map[string]HealthChecker
}

// Server is the HTTP server for the ingestion API.
type Server struct {
	service *core.Service
	cfg     *config.Config
	opts    Options
	router  *chi.Mux
	server  *http.Server

	limiters []*appmw.RateLimiter
}

// NewServer creates a new Server instance.
func NewServer(service *core.Service, cfg *config.Config, opts Options) *Server {
	s := &Server{
		service: service,
		cfg:     cfg,
		opts:    opts,
		router:  chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(appmw.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(appmw.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORS.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-API-Key", "X-Request-Id"},
		ExposedHeaders: []string{"Location", "Retry-After", "X-Request-Id"},
		MaxAge:         300,
	}))
	s.router.Use(middleware.Compress(5, "application/json"))
	if s.cfg.Server.RequestTimeout > 0 {
		s.router.Use(middleware.Timeout(s.cfg.Server.RequestTimeout))
	}
	s.router.Use(securityHeaders)
	s.router.Use(requestMetadata)

	if s.cfg.Rate.Enabled {
		s.router.Use(s.newLimiter(s.cfg.Rate.RequestsPerMinute).Middleware)
	}
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	if s.cfg.Metrics.Enabled && s.opts.Gatherer != nil {
		s.router.Method(http.MethodGet, s.cfg.Metrics.Path, promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))
	}

	s.router.Group(func(r chi.Router) {
		r.Use(appmw.APIKeyAuth(&s.cfg.Security))

		r.Route("/file-upload", func(r chi.Router) {
			r.Get("/", s.handleListBatches)
			r.Get("/entities", s.handleEntities)
			r.Get("/status/{batch_id}", s.handleBatchStatus)
			r.Post("/status/{batch_id}/cancel", s.handleCancelBatch)
			r.Delete("/{data_type}/{batch_id}", s.handleDeleteUpload)

			r.Group(func(r chi.Router) {
				if s.cfg.Rate.Enabled {
					r.Use(s.newLimiter(s.cfg.Rate.UploadLimit).Middleware)
				}
				r.Post("/{data_type}", s.handleUpload)
				r.Post("/{data_type}/preview", s.handlePreview)
			})
		})

		r.Get("/audit-logs", s.handleAuditLogs)
		r.Get("/audit-logs/{id}", s.handleAuditLogEntry)

		r.Get("/analytics/overview", s.handleOverview)
	})

	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, ErrorResponse{
			Error:   "not found",
			Message: "No route matches " + r.URL.Path,
			Code:    "HTTP404",
		})
	})
}

func (s *Server) newLimiter(perMinute int) *appmw.RateLimiter {
	rl := appmw.NewRateLimiter(perMinute, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.respondError(w, r, core.ErrRateLimited)
	}))
	s.limiters = append(s.limiters, rl)
	return rl
}

// Start begins listening for HTTP requests on the configured address.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	slog.Info("starting server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	for _, rl := range s.limiters {
		rl.Stop()
	}
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// writeJSON encodes v as JSON with the given status.
// Encoding errors are only logged since headers are already sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
