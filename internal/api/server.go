package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"arena-clash/internal/config"
)

// Server is the HTTP API server with WebSocket support.
type Server struct {
	router      *chi.Mux
	hub         *Hub
	rateLimiter *IPRateLimiter
	http        *http.Server
	log         *zap.Logger
}

// NewServer wires the router and hub. No listener is opened until Start.
func NewServer(cfg config.AppConfig, svc GameService, hub *Hub, verifier *TokenVerifier, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		hub:         hub,
		rateLimiter: NewIPRateLimiter(RateLimitFromLimits(cfg.Limits)),
		log:         logger.Named("server"),
	}
	s.router = NewRouter(RouterConfig{
		Game:        svc,
		Verifier:    verifier,
		Hub:         hub,
		Arena:       cfg.Arena,
		RateLimiter: s.rateLimiter,
		CORSOrigins: cfg.Server.AllowedOrigins,
		Logger:      logger,
	})
	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start serves until Stop is called. It returns nil after a graceful stop.
func (s *Server) Start() error {
	s.log.Info("API server starting", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Router returns the HTTP handler for use with httptest.
func (s *Server) Router() http.Handler {
	return s.router
}

// Stop drains HTTP requests, then closes every WebSocket connection.
// Hijacked connections are not tracked by http.Server, so the hub closes them.
func (s *Server) Stop(ctx context.Context) error {
	err := s.http.Shutdown(ctx)
	if s.hub != nil {
		s.hub.Close()
	}
	s.rateLimiter.Stop()
	return err
}
