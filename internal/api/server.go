package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/clearwave/clearwave-core/internal/audit"
	"github.com/clearwave/clearwave-core/internal/auth"
	"github.com/clearwave/clearwave-core/internal/devicekey"
	"github.com/clearwave/clearwave-core/internal/infrastructure/config"
	"github.com/clearwave/clearwave-core/internal/infrastructure/logging"
	"github.com/clearwave/clearwave-core/internal/infrastructure/mqtt"
	"github.com/clearwave/clearwave-core/internal/org"
	"github.com/clearwave/clearwave-core/internal/telemetry"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config    config.APIConfig
	Logger    *logging.Logger
	Auth      *auth.Service
	Users     auth.UserRepository
	Orgs      org.Repository
	Keys      *devicekey.Authority
	KeyRepo   devicekey.Repository
	Telemetry *telemetry.Service
	AuditRepo audit.Repository
	Recorder  *audit.Recorder
	DB        *sql.DB      // optional: pool stats for /metrics
	MQTT      *mqtt.Client // optional: broker status for /metrics
	Version   string
}

// Server is the HTTP API server for ClearWave Core.
//
// It manages the HTTP listener, routes, and middleware. The server is
// created with New() and started with Start().
type Server struct {
	cfg       config.APIConfig
	logger    *logging.Logger
	auth      *auth.Service
	users     auth.UserRepository
	orgs      org.Repository
	keys      *devicekey.Authority
	keyRepo   devicekey.Repository
	telemetry *telemetry.Service
	auditRepo audit.Repository
	recorder  *audit.Recorder
	db        *sql.DB
	mqtt      *mqtt.Client
	version   string
	startTime time.Time
	server    *http.Server
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Auth == nil {
		return nil, fmt.Errorf("auth service is required")
	}
	if deps.Users == nil {
		return nil, fmt.Errorf("user repository is required")
	}
	// MQTT and InfluxDB are optional — HTTP ingest and reads work without them

	return &Server{
		cfg:       deps.Config,
		logger:    deps.Logger,
		auth:      deps.Auth,
		users:     deps.Users,
		orgs:      deps.Orgs,
		keys:      deps.Keys,
		keyRepo:   deps.KeyRepo,
		telemetry: deps.Telemetry,
		auditRepo: deps.AuditRepo,
		recorder:  deps.Recorder,
		db:        deps.DB,
		mqtt:      deps.MQTT,
		version:   deps.Version,
		startTime: time.Now(),
	}, nil
}

// Start begins listening for HTTP connections.
//
// It builds the router and launches the HTTP listener in a background
// goroutine. The server can be stopped with Close().
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
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
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

// HealthCheck verifies the API server is running and responsive.
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
