// Package http serves the JSON API in front of the services.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"cofrinho/internal/diag"
	applog "cofrinho/internal/log"
	"cofrinho/internal/services"
)

// Pinger reports whether the data backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services are the handlers' dependencies. Diagnostics and Ready may be nil.
type Services struct {
	Profiles    *services.ProfileService
	Auditor     *services.StreakAuditor
	Txs         *services.TransactionService
	Dashboard   *services.DashboardService
	Diagnostics *diag.Recorder
	Ready       Pinger
}

type Config struct {
	Addr string
	Auth AuthConfig
	// RateLimitPerMinute caps API requests per user; zero disables it.
	RateLimitPerMinute int
	Location           *time.Location
	Now                func() time.Time
}

type Server struct {
	http.Server
	cfg     Config
	svc     Services
	limiter *rateLimiter
	events  *applog.StructuredLogger
	logger  *applog.Logger

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(cfg Config, svc Services, logger *applog.Logger) *Server {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = applog.Discard()
	}

	s := &Server{
		cfg:     cfg,
		svc:     svc,
		limiter: newRateLimiter(cfg.RateLimitPerMinute, cfg.Now),
		events:  applog.NewStructuredLogger(logger),
		logger:  logger.WithComponent(applog.ComponentHTTP),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	api := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, s.authenticate(s.rateLimit(h)))
	}
	api("POST /api/session", s.handleSession)
	api("GET /api/profile", s.handleProfile)
	api("PUT /api/profile/savings", s.handleUpdateSavings)
	api("GET /api/levels", s.handleLevels)
	api("GET /api/trophies", s.handleTrophies)
	api("GET /api/categories", s.handleCategories)
	api("GET /api/transactions", s.handleListTransactions)
	api("POST /api/transactions", s.handleCreateTransactions)
	api("PUT /api/transactions/{id}", s.handleUpdateTransaction)
	api("PATCH /api/transactions/{id}/status", s.handleUpdateStatus)
	api("DELETE /api/transactions/{id}", s.handleDeleteTransaction)
	api("GET /api/dashboard", s.handleDashboard)
	api("GET /api/analysis/categories", s.handleCategoryBreakdown)
	api("GET /api/diagnostics", s.handleDiagnostics)

	s.Server = http.Server{
		Addr:              cfg.Addr,
		Handler:           applog.Middleware(s.logger)(s.trace(securityHeaders(mux))),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// rateLimit throttles per authenticated user, falling back to the client IP.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := extractClientIP(r)
		if u, ok := userFrom(r.Context()); ok {
			key = "user:" + u.UID
		}
		if !s.limiter.allow(key) {
			applog.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
				applog.FieldClientIP, extractClientIP(r),
				applog.FieldPath, r.URL.Path)
			w.Header().Set("Retry-After", "60")
			respondError(w, http.StatusTooManyRequests, "rate limit exceeded, try again later")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Shutdown stops the limiter and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.svc.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.svc.Ready.Ping(ctx); err != nil {
			s.logger.WarnContext(ctx, "Readiness check failed",
				applog.FieldError, err.Error(), applog.FieldErrorType, applog.ErrorTypeDatabase)
			respondError(w, http.StatusServiceUnavailable, "backend unavailable")
			return
		}
	}
	respond(w, http.StatusOK, map[string]string{"status": "ready"})
}
