// Package api provides the HTTP REST API for Greenhouse Core.
//
// It exposes the latest telemetry, device states, decision history and a
// manual override endpoint to dashboards and operators.
//
// The server follows the same lifecycle pattern as other infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/verdantio/greenhouse-core/internal/decision"
	"github.com/verdantio/greenhouse-core/internal/device"
	"github.com/verdantio/greenhouse-core/internal/executor"
	"github.com/verdantio/greenhouse-core/internal/forecast"
	"github.com/verdantio/greenhouse-core/internal/infrastructure/config"
	"github.com/verdantio/greenhouse-core/internal/infrastructure/logging"
	"github.com/verdantio/greenhouse-core/internal/infrastructure/metrics"
	"github.com/verdantio/greenhouse-core/internal/telemetry"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// CommandExecutor applies manual override decisions through the same
// safety gate the control loop uses.
type CommandExecutor interface {
	Execute(ctx context.Context, d decision.Decision) (executor.Result, error)
}

// Forecaster supplies the cached weather snapshot for the status
// endpoint. Optional.
type Forecaster interface {
	Snapshot(ctx context.Context) (*forecast.Snapshot, error)
}

// Broker reports MQTT connectivity for the health endpoint. Optional.
type Broker interface {
	IsConnected() bool
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	Logger   *logging.Logger
	Registry *device.Registry
	Store    *telemetry.Store
	Executor CommandExecutor
	History  decision.HistoryRepository
	Forecast Forecaster       // optional
	Broker   Broker           // optional
	Metrics  *metrics.Metrics // optional; /metrics returns 404 without it
	Version  string
}

// Server is the HTTP API server for Greenhouse Core.
type Server struct {
	cfg      config.APIConfig
	logger   *logging.Logger
	registry *device.Registry
	store    *telemetry.Store
	executor CommandExecutor
	history  decision.HistoryRepository
	forecast Forecaster
	broker   Broker
	metrics  *metrics.Metrics
	version  string
	server   *http.Server
	now      func() time.Time
	newID    func() string
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("device registry is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("telemetry store is required")
	}
	if deps.Executor == nil {
		return nil, fmt.Errorf("executor is required")
	}
	if deps.History == nil {
		return nil, fmt.Errorf("decision history is required")
	}

	return &Server{
		cfg:      deps.Config,
		logger:   deps.Logger,
		registry: deps.Registry,
		store:    deps.Store,
		executor: deps.Executor,
		history:  deps.History,
		forecast: deps.Forecast,
		broker:   deps.Broker,
		metrics:  deps.Metrics,
		version:  deps.Version,
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
	}, nil
}

// Start begins listening for HTTP connections in a background goroutine.
// The server is stopped with Close().
func (s *Server) Start(_ context.Context) error {
	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	s.logger.Info("API server started", "address", s.server.Addr)
	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete, then
// forcefully closes remaining connections.
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

// HealthCheck verifies the API server is running.
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
