package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/climate-ip/internal/bridge"
	"github.com/nerrad567/climate-ip/internal/climateip/controller"
	"github.com/nerrad567/climate-ip/internal/history"
	"github.com/nerrad567/climate-ip/internal/infrastructure/config"
)

// gracefulShutdownTimeout bounds in-flight requests on Close.
const gracefulShutdownTimeout = 10 * time.Second

// Bridge is the part of *bridge.Bridge the API serves.
type Bridge interface {
	Devices() []controller.Snapshot
	Device(id string) (controller.Snapshot, error)
	SetProperty(ctx context.Context, deviceID, name string, value any, source string) error
	Refresh(ctx context.Context, deviceID string) error
	History(ctx context.Context, deviceID string, limit int) ([]history.Entry, error)
	Health() bridge.HealthMessage
	Subscribe(l bridge.Listener) (unsubscribe func())
}

// Logger is the structured logger used by the API.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	Security config.SecurityConfig
	Logger   Logger
	Bridge   Bridge

	// Gatherer backs /metrics; nil serves the default registry.
	Gatherer prometheus.Gatherer

	Version string
}

// Server is the HTTP API server.
type Server struct {
	cfg      config.APIConfig
	secCfg   config.SecurityConfig
	logger   Logger
	bridge   Bridge
	gatherer prometheus.Gatherer
	version  string

	hub    *Hub
	server *http.Server
	cancel context.CancelFunc
}

// New creates an API server. It does not listen until Start.
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If the logger or bridge is missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Bridge == nil {
		return nil, fmt.Errorf("bridge is required")
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}

	return &Server{
		cfg:      deps.Config,
		secCfg:   deps.Security,
		logger:   deps.Logger,
		bridge:   deps.Bridge,
		gatherer: deps.Gatherer,
		version:  deps.Version,
		hub:      NewHub(deps.Logger, deps.Bridge.SetProperty),
	}, nil
}

// Start relays bridge events to WebSocket clients and starts listening in
// a background goroutine.
//
// Returns:
//   - error: If the listen address cannot be bound
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	unsubscribe := s.bridge.Subscribe(s.hub.relay)
	go func() {
		<-srvCtx.Done()
		unsubscribe()
		s.hub.closeAll()
	}()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.Handler(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		s.cancel()
		return fmt.Errorf("listening on %s: %w", s.server.Addr, err)
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS", "address", s.server.Addr, "cert", s.cfg.TLS.CertFile)
			err = s.server.ServeTLS(ln, s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close stops the WebSocket relay and shuts the listener down, waiting up
// to 10 seconds for in-flight requests.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
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
