// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-biosecure.
//
// go-biosecure is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package rest

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jeremyhahn/go-biosecure/pkg/correlation"
	"github.com/jeremyhahn/go-biosecure/pkg/fingerprint"
	fingerprinthttp "github.com/jeremyhahn/go-biosecure/pkg/fingerprint/http"
	"github.com/jeremyhahn/go-biosecure/pkg/health"
	"github.com/jeremyhahn/go-biosecure/pkg/logging"
	"github.com/jeremyhahn/go-biosecure/pkg/metrics"
	"github.com/jeremyhahn/go-biosecure/pkg/ratelimit"
)

// APIPrefix is where the fingerprint routes are mounted.
const APIPrefix = "/api/v1/fingerprint"

// Server represents the fingerprint HTTP server.
type Server struct {
	server  *http.Server
	handler http.Handler
	config  *Config
	logger  *logging.Logger
}

// Config holds the server configuration.
type Config struct {
	// Address is the listen address (default ":8443")
	Address string

	// Service handles fingerprint operations (required)
	Service *fingerprint.Service

	// Tokens issues session tokens after authentication (optional)
	Tokens *fingerprint.TokenIssuer

	// Limiter throttles fingerprint requests per client (optional)
	Limiter *ratelimit.Limiter

	// Health answers the /health probes (optional, a bare checker is used)
	Health *health.Checker

	// MetricsPath exposes Prometheus metrics when non-empty
	MetricsPath string

	// Strict is reported by the status endpoint
	Strict bool

	// AllowedOrigins may call the API cross-origin
	AllowedOrigins []string

	// TLSConfig enables HTTPS (optional)
	TLSConfig *tls.Config

	// Logger defaults to a discarding logger
	Logger *logging.Logger

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// NewServer creates a new fingerprint HTTP server.
func NewServer(cfg *Config) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Service == nil {
		return nil, fmt.Errorf("fingerprint service is required")
	}

	if cfg.Address == "" {
		cfg.Address = ":8443"
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 15 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 75 * time.Second
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 60 * time.Second
	}
	if cfg.Health == nil {
		cfg.Health = health.NewChecker()
	}
	if cfg.Limiter == nil {
		cfg.Limiter = ratelimit.New(nil)
	}
	log := cfg.Logger
	if log == nil {
		log = logging.Discard()
	}

	s := &Server{config: cfg, logger: log}
	s.handler = s.setupRouter()
	s.server = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
		TLSConfig:    cfg.TLSConfig,
	}
	return s, nil
}

// setupRouter configures the chi router with all routes and middleware.
func (s *Server) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(s.RecoveryMiddleware())
	r.Use(correlation.Middleware)
	r.Use(s.LoggingMiddleware())
	r.Use(metrics.HTTPMiddleware)
	r.Use(CORSMiddleware(s.config.AllowedOrigins))

	health.Mount(r, s.config.Health)
	if s.config.MetricsPath != "" {
		r.Handle(s.config.MetricsPath, metrics.Handler())
	}

	handler := fingerprinthttp.NewHandler(s.config.Service).
		WithLogger(s.logger.Slog()).
		WithStrict(s.config.Strict)
	if s.config.Tokens != nil {
		handler = handler.WithTokenIssuer(s.config.Tokens)
	}

	r.Route(APIPrefix, func(r chi.Router) {
		r.Use(ratelimit.Middleware(s.config.Limiter, nil))
		fingerprinthttp.MountChi(r, handler)
	})
	return r
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens on the configured address and serves until Stop.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Address, err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Stop.
func (s *Server) Serve(ln net.Listener) error {
	s.config.Health.MarkStarted()

	var err error
	if s.config.TLSConfig != nil {
		s.logger.Info("Starting HTTPS server", "address", ln.Addr().String())
		err = s.server.ServeTLS(ln, "", "")
	} else {
		s.logger.Info("Starting HTTP server", "address", ln.Addr().String())
		err = s.server.Serve(ln)
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Stop gracefully stops the server and the rate limiter.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down server")
	s.config.Health.MarkNotStarted()
	s.config.Limiter.Stop()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	s.logger.Info("Server stopped")
	return nil
}
