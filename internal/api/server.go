// Package api provides the HTTP API server that exposes the dashboard view
// to presentation clients.
package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/trading-dashboard/internal/adapter"
	"github.com/trading-dashboard/internal/circuitbreaker"
	"github.com/trading-dashboard/internal/logging"
	"github.com/trading-dashboard/internal/service"
	"github.com/trading-dashboard/internal/storage"
	"github.com/trading-dashboard/internal/view"
	"github.com/trading-dashboard/internal/worker"
)

// SchedulerStatusProvider reports the poll scheduler's state
type SchedulerStatusProvider interface {
	Status() *worker.SchedulerStatus
}

// BackendHealthProvider reports per-endpoint backend health
type BackendHealthProvider interface {
	Health() []*adapter.EndpointHealth
}

// Dependencies are the components the server reads from. Store and
// Formatter are required; the rest only feed /health.
type Dependencies struct {
	Store     *storage.SnapshotStore
	Formatter *view.Formatter
	Scheduler SchedulerStatusProvider
	Monitor   *service.TickMonitor
	Backend   BackendHealthProvider
	Breakers  *circuitbreaker.CircuitBreakerManager
	Logger    *logging.Logger
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	RateLimitRPS    float64 // per client, 0 disables
	RateLimitBurst  int
	RecentTrades    int
	MaxTradesLimit  int
	PollInterval    time.Duration
	WSWriteTimeout  time.Duration
	AllowAnyOrigin  bool
	ShutdownTimeout time.Duration
}

// Server represents the HTTP API server.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	config     *ServerConfig

	store     *storage.SnapshotStore
	formatter *view.Formatter
	scheduler SchedulerStatusProvider
	monitor   *service.TickMonitor
	backend   BackendHealthProvider
	breakers  *circuitbreaker.CircuitBreakerManager
	logger    *logging.Logger

	upgrader websocket.Upgrader
	done     chan struct{}
	doneOnce sync.Once
}

// NewServer creates a new API server instance.
func NewServer(config *ServerConfig, deps Dependencies) (*Server, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("snapshot store cannot be nil")
	}
	if deps.Formatter == nil {
		return nil, fmt.Errorf("formatter cannot be nil")
	}

	cfg := *config
	if cfg.RecentTrades <= 0 {
		cfg.RecentTrades = view.DefaultRecentTrades
	}
	if cfg.MaxTradesLimit <= 0 {
		cfg.MaxTradesLimit = 500
	}
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 10
	}
	if cfg.WSWriteTimeout <= 0 {
		cfg.WSWriteTimeout = 10 * time.Second
	}

	logger := deps.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	s := &Server{
		router:    mux.NewRouter(),
		config:    &cfg,
		store:     deps.Store,
		formatter: deps.Formatter,
		scheduler: deps.Scheduler,
		monitor:   deps.Monitor,
		backend:   deps.Backend,
		breakers:  deps.Breakers,
		logger:    logger.WithComponent("api"),
		done:      make(chan struct{}),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
	}
	if cfg.AllowAnyOrigin {
		s.upgrader.CheckOrigin = func(r *http.Request) bool { return true }
	}

	s.setupRouter()

	return s, nil
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	s.router.Use(LoggingMiddleware(s.logger))
	s.router.Use(RecoveryMiddleware(s.logger))
	s.router.Use(CORSMiddleware)
	if s.config.RateLimitRPS > 0 {
		rateLimiter := NewRateLimiter(s.config.RateLimitRPS, s.config.RateLimitBurst)
		s.router.Use(RateLimitMiddleware(rateLimiter))
	}

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	api := s.router.PathPrefix("/api/view").Subrouter()
	// OPTIONS is routed so CORS preflights reach the middleware
	api.HandleFunc("", s.handleDashboard).Methods("GET", "OPTIONS")
	api.HandleFunc("/trades", s.handleTrades).Methods("GET", "OPTIONS")
	api.HandleFunc("/chart", s.handleChart).Methods("GET", "OPTIONS")
	api.HandleFunc("/snapshot", s.handleSnapshot).Methods("GET", "OPTIONS")

	s.router.HandleFunc("/ws", s.handleWebSocket).Methods("GET")
}

// Router returns the HTTP handler with all middleware applied
func (s *Server) Router() http.Handler {
	return s.router
}

// Addr returns the listen address
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("Starting API server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server and disconnects websocket clients.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down API server")
	s.doneOnce.Do(func() { close(s.done) })
	return s.httpServer.Shutdown(ctx)
}
