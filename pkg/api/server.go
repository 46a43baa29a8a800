package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sreerevanth/behaviorlens/pkg/api/middleware"
	"github.com/sreerevanth/behaviorlens/pkg/infra/logger"
	"github.com/sreerevanth/behaviorlens/pkg/infra/ratelimit"
)

type ServerConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	EnableCORS      bool
	CORSConfig      middleware.CORSConfig
	APIKey          string
	// RateLimitPerMin caps requests per client per minute; zero
	// disables the limiter.
	RateLimitPerMin int
}

func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:            "127.0.0.1:8080",
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		CORSConfig:      middleware.DefaultCORSConfig(),
	}
}

type Server struct {
	config   ServerConfig
	handlers *Handlers
	router   *Router
	http     *http.Server
}

func NewServer(handlers *Handlers, config ServerConfig) *Server {
	if config.Addr == "" {
		config.Addr = "127.0.0.1:8080"
	}
	if config.ReadTimeout == 0 {
		config.ReadTimeout = 15 * time.Second
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = 30 * time.Second
	}
	if config.IdleTimeout == 0 {
		config.IdleTimeout = 60 * time.Second
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = 10 * time.Second
	}

	router := NewRouter()
	handlers.Register(router)

	return &Server{
		config:   config,
		handlers: handlers,
		router:   router,
	}
}

// Start blocks serving requests until Stop is called.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.Handle("/api/v1/", http.StripPrefix("/api/v1", s.buildHandler()))
	mux.HandleFunc("/health", s.handleHealth)

	s.http = &http.Server{
		Addr:         s.config.Addr,
		Handler:      mux,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	logger.Info(context.Background(), "starting HTTP server", "addr", s.config.Addr)

	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func (s *Server) buildHandler() http.Handler {
	var handler http.Handler = s.router

	handler = middleware.Auth(s.config.APIKey)(handler)

	if s.config.RateLimitPerMin > 0 {
		handler = middleware.RateLimit(ratelimit.NewPerMinute(s.config.RateLimitPerMin))(handler)
	}

	// CORS runs before auth so browser preflights succeed without a key.
	if s.config.EnableCORS {
		handler = middleware.CORS(s.config.CORSConfig)(handler)
	}

	// Logging and recovery are outermost so every request is observed
	// and panics anywhere in the chain are caught.
	handler = middleware.Logging()(handler)
	handler = middleware.Recovery()(handler)

	return handler
}

func (s *Server) Stop(ctx context.Context) error {
	if s.http == nil {
		return nil
	}

	logger.Info(ctx, "stopping HTTP server")

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy"}`))
}

func (s *Server) Router() *Router {
	return s.router
}
