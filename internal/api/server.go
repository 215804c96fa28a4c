package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/schooltrack/asset-core/internal/audit"
	"github.com/schooltrack/asset-core/internal/auth"
	"github.com/schooltrack/asset-core/internal/automation"
	"github.com/schooltrack/asset-core/internal/device"
	"github.com/schooltrack/asset-core/internal/infrastructure/config"
	"github.com/schooltrack/asset-core/internal/infrastructure/database"
	"github.com/schooltrack/asset-core/internal/infrastructure/logging"
	"github.com/schooltrack/asset-core/internal/school"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	Security config.SecurityConfig
	Logger   *logging.Logger
	DB       *database.DB

	Devices    *device.Manager
	DeviceRepo device.Repository
	Schools    school.Repository
	Rules      *automation.Registry
	Engine     *automation.Engine

	UserRepo  auth.UserRepository
	TokenRepo auth.TokenRepository
	ScopeRepo auth.ScopeRepository
	AuditRepo audit.Repository

	Version string
}

// Server is the HTTP API server for SchoolTrack Asset Core.
//
// It manages the HTTP listener, routes, and middleware. The server is
// created with New() and started with Start().
type Server struct {
	cfg    config.APIConfig
	secCfg config.SecurityConfig
	logger *logging.Logger
	db     *database.DB

	devices    *device.Manager
	deviceRepo device.Repository
	schools    school.Repository
	rules      *automation.Registry
	engine     *automation.Engine

	userRepo  auth.UserRepository
	tokenRepo auth.TokenRepository
	scopeRepo auth.ScopeRepository
	auditRepo audit.Repository
	auditCh   chan *audit.AuditLog

	version string
	server  *http.Server
	cancel  context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Devices == nil {
		return nil, fmt.Errorf("device manager is required")
	}
	if deps.Schools == nil {
		return nil, fmt.Errorf("school repository is required")
	}
	if deps.UserRepo == nil {
		return nil, fmt.Errorf("user repository is required")
	}
	if deps.Security.JWT.Secret == "" {
		return nil, fmt.Errorf("JWT secret is required")
	}

	s := &Server{
		cfg:        deps.Config,
		secCfg:     deps.Security,
		logger:     deps.Logger,
		db:         deps.DB,
		devices:    deps.Devices,
		deviceRepo: deps.DeviceRepo,
		schools:    deps.Schools,
		rules:      deps.Rules,
		engine:     deps.Engine,
		userRepo:   deps.UserRepo,
		tokenRepo:  deps.TokenRepo,
		scopeRepo:  deps.ScopeRepo,
		auditRepo:  deps.AuditRepo,
		version:    deps.Version,
	}

	if s.auditRepo != nil {
		s.auditCh = make(chan *audit.AuditLog, auditChanSize)
	}

	return s, nil
}

// Start begins listening for HTTP connections.
//
// It sets up the router, starts the async audit log writer, and launches
// the HTTP listener in a background goroutine. The server can be stopped
// with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if s.auditCh != nil {
		go s.drainAuditLog(srvCtx)
	}

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

	// Cancel background goroutines (audit writer)
	if s.cancel != nil {
		s.cancel()
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
