//
//
package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/autoland/lander/internal/auth"
	"github.com/autoland/lander/internal/config"
	"github.com/autoland/lander/internal/logging"
	"github.com/autoland/lander/internal/observability"
)

// Deps are the collaborators the server reads from and writes to. Any of them may be
// nil; the matching endpoints then answer UNAVAILABLE.
type Deps struct {
	Status    StatusPort
	Telemetry TelemetryPort
	Events    EventPort
	Audit     AuditPort
	Auth      *auth.Middleware
	Collector *observability.LanderCollector
	Log       logging.Logger
}

// Server represents the HTTP API server.
type Server struct {
	httpServer *http.Server
	deps       Deps
	cfg        config.ServerConfig
	log        logging.Logger
	startTime  time.Time
}

// NewServer creates a new API server.
func NewServer(cfg config.ServerConfig, deps Deps) *Server {
	log := deps.Log
	if log == nil {
		log = logging.Noop()
	}
	return &Server{
		deps:      deps,
		cfg:       cfg,
		log:       log.With(logging.String("component", "api")),
		startTime: time.Now(),
	}
}

// Handler returns the routed handler without starting a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return mux
}

// Start listens on the configured address and serves until Stop.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ln)
}

// Serve serves on ln until Stop.
func (s *Server) Serve(ln net.Listener) error {
	s.httpServer = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	s.log.Info(context.Background(), "api listening", logging.String("addr", ln.Addr().String()))
	if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	return nil
}

// Stop gracefully stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	return nil
}
