package analyticsmcp

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/wagiedev/analytics-mcp/internal/config"
	srverrors "github.com/wagiedev/analytics-mcp/internal/errors"
	"github.com/wagiedev/analytics-mcp/internal/registry"
	"github.com/wagiedev/analytics-mcp/internal/router"
	"github.com/wagiedev/analytics-mcp/internal/session"
	"github.com/wagiedev/analytics-mcp/internal/telemetry"
	"github.com/wagiedev/analytics-mcp/internal/transport"
	"github.com/wagiedev/analytics-mcp/internal/trust"
)

// Version is the module version advertised to clients when WithServerInfo is
// not used.
const Version = "0.1.0"

// instrumentationName scopes the server's meters and tracers.
const instrumentationName = "github.com/wagiedev/analytics-mcp"

// Server coordinates the HTTP surface: both transports, the shared tool
// registry, the session tracker, and graceful shutdown.
//
// A Server moves through three phases: configure (New, RegisterTool), serve
// (Start or Run), and drain (Shutdown). It cannot be restarted.
type Server struct {
	log      *slog.Logger
	cfg      *config.Config
	obs      *telemetry.Observer
	policy   trust.Policy
	tracker  *session.Tracker
	registry *registry.Registry

	name         string
	version      string
	instructions string
	permissive   bool

	mu         sync.Mutex
	started    bool
	closed     bool
	listener   net.Listener
	httpServer *http.Server
	handler    http.Handler
	sse        *transport.SSE
	serveErr   chan error
}

// New creates a Server. Settings resolve functional options over environment
// variables over the optional YAML file over defaults; an invalid resolved
// configuration fails here, not at Start.
func New(opts ...Option) (*Server, error) {
	o := applyOptions(opts)

	cfg := &config.Config{}
	if o.configFile != "" {
		fileCfg, err := config.LoadFile(o.configFile)
		if err != nil {
			return nil, err
		}
		cfg = fileCfg
	}

	envCfg, err := config.FromEnv()
	if err != nil {
		return nil, err
	}
	cfg.Overlay(envCfg)
	cfg.Overlay(&o.overlay)
	cfg.ApplyDefaults()
	if o.port != nil {
		cfg.Port = *o.port
		cfg.SSEPort = *o.port
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := o.logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: logLevel(cfg.LogLevel),
		}))
	}

	obs, err := telemetry.NewObserver(
		otel.GetMeterProvider().Meter(instrumentationName),
		otel.GetTracerProvider().Tracer(instrumentationName),
	)
	if err != nil {
		return nil, err
	}

	policy := o.policy
	permissive := false
	if policy == nil {
		policy = trust.FromHosts(cfg.AllowedHosts)
		permissive = cfg.Permissive()
	}

	name := o.name
	if name == "" {
		name = "analytics-mcp"
	}
	version := o.version
	if version == "" {
		version = Version
	}

	return &Server{
		log:          log.With("component", "server"),
		cfg:          cfg,
		obs:          obs,
		policy:       policy,
		tracker:      session.New(log, obs),
		registry:     registry.New(log, obs),
		name:         name,
		version:      version,
		instructions: o.instructions,
		permissive:   permissive,
	}, nil
}

// RegisterTool adds tools to the server. It fails with ErrServerStarted once
// Start has been called, and with ErrToolExists on a duplicate name.
func (s *Server) RegisterTool(tools ...Tool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return srverrors.ErrServerStarted
	}

	for _, t := range tools {
		if err := s.registry.Register(descriptor(t)); err != nil {
			return err
		}
	}

	return nil
}

// Start freezes the registry, binds the listener, and begins serving in a
// background goroutine. A bind failure surfaces as a BindError and leaves
// nothing running.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return srverrors.ErrServerClosed
	}
	if s.started {
		return srverrors.ErrServerStarted
	}

	s.registry.Freeze()
	if s.registry.Len() == 0 {
		s.log.Warn("starting with an empty tool registry")
	}
	if err := s.tracker.Start(); err != nil {
		return err
	}

	handler, sse, err := s.buildHandler()
	if err != nil {
		return err
	}

	listener, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return &srverrors.BindError{Addr: s.cfg.Addr(), Err: err}
	}

	s.listener = listener
	s.handler = handler
	s.sse = sse
	s.httpServer = &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.serveErr = make(chan error, 1)
	s.started = true

	go func() {
		err := s.httpServer.Serve(listener)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		s.serveErr <- err
	}()

	s.logStartup()

	return nil
}

// buildHandler composes the adapters, router, and middleware for the
// configured mode.
func (s *Server) buildHandler() (http.Handler, *transport.SSE, error) {
	sse := transport.NewSSE(transport.SSEConfig{
		Log:           s.log,
		Policy:        s.policy,
		Registry:      s.registry,
		Tracker:       s.tracker,
		BasePath:      "/sse",
		KeepAlive:     s.cfg.KeepAliveInterval,
		ServerName:    s.name,
		ServerVersion: s.version,
		Instructions:  s.instructions,
	})

	bindings := []router.Binding{{Prefix: "/sse", Handler: sse}}
	if s.cfg.Mode == config.ModeDual {
		streamable, err := transport.NewStreamable(transport.StreamableConfig{
			Log:           s.log,
			Policy:        s.policy,
			Registry:      s.registry,
			Tracker:       s.tracker,
			ServerName:    s.name,
			ServerVersion: s.version,
			Instructions:  s.instructions,
		})
		if err != nil {
			return nil, nil, err
		}
		bindings = append(bindings, router.Binding{Prefix: "/mcp", Handler: streamable})
	}

	rt, err := router.New(s.log, bindings...)
	if err != nil {
		return nil, nil, err
	}

	handler := router.WithCORS(router.WithObservability(s.log, s.obs, rt))

	return handler, sse, nil
}

// logStartup announces the listening surface the way operators expect to see
// it: one line per endpoint, plus the trust posture.
func (s *Server) logStartup() {
	addr := s.listener.Addr().String()
	s.log.Info("server listening", "addr", addr, "mode", string(s.cfg.Mode))
	if s.cfg.Mode == config.ModeDual {
		s.log.Info("endpoint ready", "path", "/mcp", "transport", "streamable")
	}
	s.log.Info("endpoint ready", "path", "/sse", "transport", "sse")
	s.log.Info("endpoint ready", "path", router.HealthPath, "transport", "health")

	if s.permissive {
		s.log.Warn("trust policy accepts every host; set MCP_ALLOWED_HOSTS to restrict")
	}
}

// Addr returns the bound listen address, or "" before Start. Useful when
// binding port 0.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return ""
	}

	return s.listener.Addr().String()
}

// ActiveSessions returns the number of live sessions across both transports.
func (s *Server) ActiveSessions() int {
	return s.tracker.Count()
}

// Handler returns the composed HTTP handler. It is available once Start has
// run; embedders who want the routes on their own listener can still call
// Start with port 0 and ignore the bound socket.
func (s *Server) Handler() http.Handler {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.handler
}

// Shutdown drains the server: the listener stops accepting, in-flight
// requests get until ctx to finish, SSE streams are closed, and the tracker
// evicts every remaining session. Idempotent.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed || !s.started {
		s.closed = true
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	httpServer := s.httpServer
	sse := s.sse
	s.mu.Unlock()

	s.log.Info("shutting down", "active_sessions", s.tracker.Count())

	// Push streams live as long as their request; close them first or the
	// drain below would wait out its whole window on them.
	sse.CloseAll()

	err := httpServer.Shutdown(ctx)
	if err != nil {
		// Drain window expired; cut the remaining connections.
		err = errors.Join(err, httpServer.Close())
	}

	s.tracker.Stop()

	s.log.Info("shutdown complete")

	return err
}

// Run starts the server and blocks until ctx is cancelled or serving fails,
// then drains within the configured drain timeout. Cancellation is the normal
// way to stop and returns nil.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		select {
		case err := <-s.serveErr:
			return err
		case <-gctx.Done():
			return gctx.Err()
		}
	})

	g.Go(func() error {
		<-gctx.Done()

		drainCtx, cancel := context.WithTimeout(context.Background(), s.cfg.DrainTimeout)
		defer cancel()

		return s.Shutdown(drainCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}

func logLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
