// Package web serves the combine engine over HTTP.
//
// Routes:
//
//	GET  /healthz          liveness probe
//	POST /api/combine      multipart upload, responds with the combined CSV
//	GET  /api/runs?limit=  recent runs from the history store
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/csvcombine/internal/config"
	"github.com/JonMunkholm/csvcombine/internal/history"
	"github.com/JonMunkholm/csvcombine/internal/web/middleware"
)

// Server is the HTTP front end for combining uploads.
type Server struct {
	cfg            config.ServerConfig
	defaults       config.CombineConfig
	history        history.Store
	historyTimeout time.Duration

	router   *chi.Mux
	limiter  *rateLimiter
	combines *combineLimiter
	server   *http.Server
}

// NewServer builds the router. store may be history.Nop{}.
func NewServer(cfg *config.Config, store history.Store) *Server {
	if store == nil {
		store = history.Nop{}
	}
	s := &Server{
		cfg:            cfg.Server,
		defaults:       cfg.Combine,
		history:        store,
		historyTimeout: cfg.History.Timeout,
		router:         chi.NewRouter(),
		combines:       newCombineLimiter(cfg.Server.MaxConcurrent, cfg.Server.QueueWait),
	}
	if cfg.Server.RateLimit > 0 {
		s.limiter = newRateLimiter(cfg.Server.RateLimit, time.Minute)
	}
	s.setupMiddleware()
	s.setupRoutes()
	s.server = &http.Server{
		Addr:         s.cfg.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(middleware.TrustedRealIP(s.cfg.TrustedProxies))
	s.router.Use(middleware.Logger)
	s.router.Use(chimw.Recoverer)
	s.router.Use(chimw.Compress(5, "text/csv", "application/json"))
	if s.cfg.RequestTimeout > 0 {
		s.router.Use(chimw.Timeout(s.cfg.RequestTimeout))
	}
	s.router.Use(securityHeaders)
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(s.cfg.APIKeys))

		r.Get("/runs", s.handleRuns)

		r.Group(func(r chi.Router) {
			if s.limiter != nil {
				r.Use(s.limiter.middleware)
			}
			r.Use(s.combines.middleware)
			r.Post("/combine", s.handleCombine)
		})
	})
}

// Start listens on the configured address until Shutdown. After a graceful
// Shutdown it returns http.ErrServerClosed.
func (s *Server) Start() error {
	slog.Info("starting server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

// writeJSON encodes v as JSON with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
