package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/remoteeye-relay/internal/auth"
	"github.com/nerrad567/remoteeye-relay/internal/command"
	"github.com/nerrad567/remoteeye-relay/internal/device"
	"github.com/nerrad567/remoteeye-relay/internal/infrastructure/config"
	"github.com/nerrad567/remoteeye-relay/internal/infrastructure/logging"
	"github.com/nerrad567/remoteeye-relay/internal/infrastructure/objectstore"
	"github.com/nerrad567/remoteeye-relay/internal/presence"
	"github.com/nerrad567/remoteeye-relay/internal/push"
	"github.com/nerrad567/remoteeye-relay/internal/realtime"
	"github.com/nerrad567/remoteeye-relay/internal/recording"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// defaultPairingTTL applies when Deps.PairingTTL is zero.
const defaultPairingTTL = 10 * time.Minute

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config     config.APIConfig
	WS         config.WebSocketConfig
	Logger     *logging.Logger
	Devices    device.Repository
	Commands   command.Repository
	Dispatcher *command.Dispatcher
	Recordings recording.Repository
	Pairings   auth.PairingRepository
	Tokens     *auth.TokenIssuer
	Registry   *presence.Registry
	Protocol   *realtime.Protocol

	// Push is optional; nil behaves as push.Disabled.
	Push push.Notifier

	// Storage is optional; nil behaves as an unconfigured store.
	Storage *objectstore.Store

	PairingTTL time.Duration
	Version    string
}

// Server is the HTTP API server for the RemoteEye relay.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg        config.APIConfig
	wsCfg      config.WebSocketConfig
	logger     *logging.Logger
	devices    device.Repository
	commands   command.Repository
	dispatcher *command.Dispatcher
	recordings recording.Repository
	pairings   auth.PairingRepository
	tokens     *auth.TokenIssuer
	registry   *presence.Registry
	protocol   *realtime.Protocol
	push       push.Notifier
	storage    *objectstore.Store
	pairingTTL time.Duration
	version    string

	server *http.Server
	hub    *Hub

	// baseCtx outlives individual requests; WebSocket sessions run on it.
	baseCtx context.Context
	cancel  context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (logger, repositories, dispatcher, protocol)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	switch {
	case deps.Logger == nil:
		return nil, fmt.Errorf("logger is required")
	case deps.Devices == nil:
		return nil, fmt.Errorf("device repository is required")
	case deps.Commands == nil:
		return nil, fmt.Errorf("command repository is required")
	case deps.Dispatcher == nil:
		return nil, fmt.Errorf("command dispatcher is required")
	case deps.Recordings == nil:
		return nil, fmt.Errorf("recording repository is required")
	case deps.Pairings == nil:
		return nil, fmt.Errorf("pairing repository is required")
	case deps.Tokens == nil:
		return nil, fmt.Errorf("token issuer is required")
	case deps.Registry == nil:
		return nil, fmt.Errorf("presence registry is required")
	case deps.Protocol == nil:
		return nil, fmt.Errorf("realtime protocol is required")
	}

	notifier := deps.Push
	if notifier == nil {
		notifier = push.Disabled{}
	}
	pairingTTL := deps.PairingTTL
	if pairingTTL <= 0 {
		pairingTTL = defaultPairingTTL
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:        deps.Config,
		wsCfg:      deps.WS,
		logger:     deps.Logger,
		devices:    deps.Devices,
		commands:   deps.Commands,
		dispatcher: deps.Dispatcher,
		recordings: deps.Recordings,
		pairings:   deps.Pairings,
		tokens:     deps.Tokens,
		registry:   deps.Registry,
		protocol:   deps.Protocol,
		push:       notifier,
		storage:    deps.Storage,
		pairingTTL: pairingTTL,
		version:    deps.Version,
		baseCtx:    ctx,
		cancel:     cancel,
	}
	s.hub = NewHub(s.logger)

	s.logger.Info("API capabilities",
		"push", s.push.IsConfigured(),
		"storage", s.storage.IsConfigured(),
	)
	return s, nil
}

// Handler returns the routed HTTP handler. Start uses it; tests may serve it
// directly with httptest.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start begins listening for HTTP connections.
//
// The listener runs in a background goroutine. The returned channel receives
// the listener's terminal error, or is closed without a value after a clean
// shutdown.
//
// Returns:
//   - <-chan error: listener outcome
//   - error: if the server was already started
func (s *Server) Start() (<-chan error, error) {
	if s.server != nil {
		return nil, fmt.Errorf("api server already started")
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()

	return errCh, nil
}

// Close gracefully shuts down the API server, then closes every WebSocket
// connection so their sessions run the normal disconnect path.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	var shutdownErr error
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
		defer cancel()

		s.logger.Info("API server shutting down")
		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("shutting down API server: %w", err)
		}
	}

	// Hijacked WebSocket connections are not tracked by http.Server.
	s.hub.CloseAll(gracefulShutdownTimeout)
	s.cancel()
	return shutdownErr
}

// HealthCheck verifies the API server is running and responsive.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
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
