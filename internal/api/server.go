package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/nerrad567/gray-logic-hmip/internal/history"
	"github.com/nerrad567/gray-logic-hmip/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-hmip/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-hmip/internal/model"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// HistoryReader is the part of *history.Journal the API reads from.
type HistoryReader interface {
	History(ctx context.Context, entityID string, limit int) ([]history.Entry, error)
}

// StreamStatus reports whether the event stream is connected.
// *stream.Conn satisfies it.
type StreamStatus interface {
	IsConnected() bool
}

// HealthChecker is a sink that can verify its connection.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Logger   *logging.Logger
	Graph    *model.Graph
	Hub      *Hub          // optional; /ws answers 503 without it
	History  HistoryReader // optional; /history answers 503 without it
	Stream   StreamStatus  // optional
	Version  string

	// Checks are run on every GET /health, keyed by sink name. Optional.
	Checks map[string]HealthChecker
}

// Server is the HTTP API server.
type Server struct {
	cfg     config.APIConfig
	wsCfg   config.WebSocketConfig
	secret  []byte
	logger  *logging.Logger
	graph   *model.Graph
	hub     *Hub
	history HistoryReader
	stream  StreamStatus
	checks  map[string]HealthChecker
	version string

	server   *http.Server
	listener net.Listener
}

// New creates an API server. It is not listening until Start is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Graph == nil {
		return nil, fmt.Errorf("entity graph is required")
	}

	return &Server{
		cfg:     deps.Config,
		wsCfg:   deps.WS,
		secret:  []byte(deps.Security.JWT.Secret),
		logger:  deps.Logger,
		graph:   deps.Graph,
		hub:     deps.Hub,
		history: deps.History,
		stream:  deps.Stream,
		checks:  deps.Checks,
		version: deps.Version,
	}, nil
}

// Handler returns the routed handler without starting a listener.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start binds the configured address and serves in the background.
func (s *Server) Start(_ context.Context) error {
	if len(s.secret) == 0 {
		s.logger.Warn("API authentication disabled: no JWT secret configured")
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("API server listening", "address", ln.Addr().String())
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close waits up to gracefulShutdownTimeout for in-flight requests.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck reports whether the server has been started.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
