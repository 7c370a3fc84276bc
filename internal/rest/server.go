// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-webauthn-gateway.
//
// go-webauthn-gateway is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package rest

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jeremyhahn/go-webauthn-gateway/pkg/gateway"
	"github.com/jeremyhahn/go-webauthn-gateway/pkg/metrics"
	"github.com/jeremyhahn/go-webauthn-gateway/pkg/ratelimit"
	"github.com/jeremyhahn/go-webauthn-gateway/pkg/session"
	"github.com/jeremyhahn/go-webauthn-gateway/web"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server represents the gateway HTTP server.
type Server struct {
	server   *http.Server
	handlers *HandlerContext
	host     string
	port     int
	logger   *slog.Logger
}

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the interface to bind (default: localhost)
	Host string

	// Port is the HTTP port to listen on (default: 8080)
	Port int

	// Service orchestrates WebAuthn ceremonies
	Service *gateway.Service

	// Sessions is the durable session store
	Sessions session.Store

	// Codec signs and verifies session cookies
	Codec *session.CookieCodec

	// Limiter rate limits the ceremony endpoints (optional)
	Limiter *ratelimit.Limiter

	// Logger is the structured logger (optional, defaults to slog.Default)
	Logger *slog.Logger

	// MetricsEnabled exposes the Prometheus endpoint
	MetricsEnabled bool

	// MetricsPath is the Prometheus endpoint path (default: /metrics)
	MetricsPath string

	// ReadTimeout is the maximum duration for reading the entire request
	ReadTimeout time.Duration

	// WriteTimeout is the maximum duration before timing out writes
	WriteTimeout time.Duration

	// IdleTimeout is the maximum amount of time to wait for the next request
	IdleTimeout time.Duration
}

// NewServer creates a new gateway HTTP server.
func NewServer(cfg *Config) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Service == nil {
		return nil, fmt.Errorf("service is required")
	}
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if cfg.Codec == nil {
		return nil, fmt.Errorf("cookie codec is required")
	}

	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 120 * time.Second
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default().With("component", "rest")
	}

	handlers := NewHandlerContext(cfg.Service, cfg.Sessions, cfg.Codec, logger)

	server := &Server{
		handlers: handlers,
		host:     cfg.Host,
		port:     cfg.Port,
		logger:   logger,
	}

	router := server.setupRouter(cfg)

	server.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return server, nil
}

// setupRouter configures the chi router with all routes and middleware.
func (s *Server) setupRouter(cfg *Config) *chi.Mux {
	r := chi.NewRouter()

	r.Use(s.RecoveryMiddleware())
	r.Use(s.LoggingMiddleware())
	r.Use(metrics.HTTPMiddleware)

	if cfg.MetricsEnabled {
		r.Get(cfg.MetricsPath, promhttp.Handler().ServeHTTP)
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
	})

	// Ceremony and session endpoints. Every route below runs with a
	// session attached to the request context.
	r.Group(func(r chi.Router) {
		r.Use(s.handlers.SessionMiddleware())

		// Status probe for the reverse proxy's auth_request. The proxy
		// hits this on every downstream request, so it is never rate
		// limited.
		r.Get("/api/validate", s.handlers.ValidateHandler)

		r.Post("/api/logout", s.handlers.LogoutHandler)

		// Ceremony endpoints carry the per-client rate limit.
		r.Group(func(r chi.Router) {
			if cfg.Limiter != nil {
				r.Use(ratelimit.Middleware(cfg.Limiter))
			}

			r.Get("/api/authenticate", s.handlers.BeginAuthenticationHandler)
			r.Post("/api/authenticate", s.handlers.FinishAuthenticationHandler)

			r.Group(func(r chi.Router) {
				r.Use(s.handlers.RequireLoggedIn())

				r.Get("/api/register", s.handlers.BeginRegistrationHandler)
				r.Post("/api/register", s.handlers.FinishRegistrationHandler)
			})
		})

		// Credential management requires a logged in session;
		// unauthenticated browsers are redirected to the login page.
		r.Group(func(r chi.Router) {
			r.Use(s.handlers.RequireLoggedIn())

			r.Get("/api/credentials", s.handlers.ListCredentialsHandler)
			r.Delete("/api/credentials/{id}", s.handlers.DeleteCredentialHandler)
		})

		// Browser pages.
		r.Get("/authenticate", s.handlers.AuthenticatePageHandler)
		r.Group(func(r chi.Router) {
			r.Use(s.handlers.RequireLoggedIn())
			r.Get("/credentials", s.handlers.CredentialsPageHandler)
		})
	})

	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(web.Static()))))

	return r
}

// Start starts the gateway HTTP server.
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server",
		"host", s.host,
		"port", s.port)

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	return nil
}

// Stop gracefully stops the gateway HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down server")

	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Error("Failed to shutdown server", "error", err)
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.logger.Info("Server stopped")
	return nil
}

// Port returns the port the server is listening on.
func (s *Server) Port() int {
	return s.port
}

// Handler returns the configured router for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}
