package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"mercator-hq/lineage/pkg/config"
	"mercator-hq/lineage/pkg/telemetry/health"
	"mercator-hq/lineage/pkg/telemetry/tracing"
)

// Options holds the handlers served next to the webhook.
type Options struct {
	// Webhook answers AdmissionReview requests at the mutate path. Required.
	Webhook http.Handler

	// Exporter is attached to the context of every review so admission
	// spans are exported. Nil disables admission spans.
	Exporter *tracing.Exporter

	// Health serves the probes when non-nil.
	Health       *health.Checker
	HealthConfig *config.HealthConfig

	// Metrics is served at MetricsPath when non-nil.
	Metrics     http.Handler
	MetricsPath string

	// Version information for /version.
	Version   string
	Commit    string
	BuildTime string

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Server is the HTTP server of the admission webhook.
type Server struct {
	config     *config.WebhookConfig
	opts       Options
	logger     *slog.Logger
	handler    http.Handler
	httpServer *http.Server
	addr       net.Addr

	shutdownOnce sync.Once
	mu           sync.RWMutex
	isRunning    bool
}

// NewServer creates a server. Call Start to listen.
func NewServer(cfg *config.WebhookConfig, opts Options) (*Server, error) {
	if opts.Webhook == nil {
		return nil, errors.New("webhook handler is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &Server{
		config: cfg,
		opts:   opts,
		logger: opts.Logger.With("component", "server"),
	}
	s.handler = s.setupRoutes()
	return s, nil
}

// Start listens on the configured address and serves until ctx is
// canceled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.ListenAddress, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is canceled or the server fails.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		ln.Close()
		return errors.New("server is already running")
	}

	s.httpServer = &http.Server{
		Handler:        s.handler,
		ReadTimeout:    s.config.ReadTimeout,
		WriteTimeout:   s.config.WriteTimeout,
		IdleTimeout:    s.config.IdleTimeout,
		MaxHeaderBytes: s.config.MaxHeaderBytes,
		ErrorLog:       slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}

	// Stops the certificate reloader when Serve returns.
	tlsCtx, stopTLS := context.WithCancel(ctx)
	defer stopTLS()

	if s.config.TLS.Enabled {
		tlsConfig, err := s.configureTLS(tlsCtx)
		if err != nil {
			s.mu.Unlock()
			ln.Close()
			return fmt.Errorf("failed to configure TLS: %w", err)
		}
		s.httpServer.TLSConfig = tlsConfig
	}

	s.addr = ln.Addr()
	s.isRunning = true
	srv := s.httpServer
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting webhook server",
			"address", ln.Addr().String(),
			"mutate_path", s.config.MutatePath,
			"tls_enabled", s.config.TLS.Enabled,
		)

		var err error
		if s.config.TLS.Enabled {
			err = srv.ServeTLS(ln, "", "")
		} else {
			err = srv.Serve(ln)
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
		close(errChan)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case err, ok := <-errChan:
		if !ok {
			return nil
		}
		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()
		return err
	}
}

// Shutdown gracefully shuts down the server. Reviews in flight get up to
// the configured shutdown timeout to complete.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		if !s.isRunning {
			s.mu.Unlock()
			return
		}
		srv := s.httpServer
		s.mu.Unlock()

		timeout := s.config.ShutdownTimeout
		if timeout <= 0 {
			timeout = config.DefaultShutdownTimeout
		}
		s.logger.Info("initiating graceful shutdown", "timeout", timeout.String())

		shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("error during server shutdown", "error", err)
			shutdownErr = fmt.Errorf("server shutdown error: %w", err)
		}

		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()

		s.logger.Info("webhook server stopped")
	})

	return shutdownErr
}

// setupRoutes configures HTTP routes and the middleware chain.
func (s *Server) setupRoutes() http.Handler {
	mux := http.NewServeMux()

	mutatePath := s.config.MutatePath
	if mutatePath == "" {
		mutatePath = config.DefaultMutatePath
	}
	mux.Handle(mutatePath, tracing.Middleware(s.opts.Exporter)(s.opts.Webhook))

	var quiet []string
	if s.opts.Health != nil {
		healthCfg := config.HealthConfig{
			LivenessPath:  config.DefaultLivenessPath,
			ReadinessPath: config.DefaultReadinessPath,
		}
		if c := s.opts.HealthConfig; c != nil {
			if c.LivenessPath != "" {
				healthCfg.LivenessPath = c.LivenessPath
			}
			if c.ReadinessPath != "" {
				healthCfg.ReadinessPath = c.ReadinessPath
			}
		}
		s.opts.Health.Register(mux, &healthCfg, s.opts.Version, s.opts.Commit, s.opts.BuildTime)
		quiet = append(quiet, healthCfg.LivenessPath, healthCfg.ReadinessPath)
	}

	if s.opts.Metrics != nil {
		metricsPath := s.opts.MetricsPath
		if metricsPath == "" {
			metricsPath = config.DefaultPrometheusPath
		}
		mux.Handle(metricsPath, s.opts.Metrics)
		quiet = append(quiet, metricsPath)
	}

	var handler http.Handler = mux
	handler = LoggingMiddleware(s.logger, quiet...)(handler)
	handler = RequestIDMiddleware(handler)
	// Recovery middleware (outermost)
	handler = RecoveryMiddleware(s.logger)(handler)

	return handler
}

// configureTLS loads the serving certificate and keeps it current.
func (s *Server) configureTLS(ctx context.Context) (*tls.Config, error) {
	tlsCfg := s.config.TLS
	if tlsCfg.CertFile == "" {
		return nil, errors.New("TLS cert file not specified")
	}
	if tlsCfg.KeyFile == "" {
		return nil, errors.New("TLS key file not specified")
	}

	reloader := NewCertificateReloader(tlsCfg.CertFile, tlsCfg.KeyFile, tlsCfg.ReloadInterval, s.logger)
	if err := reloader.Start(ctx); err != nil {
		return nil, err
	}

	minVersion := uint16(tls.VersionTLS12)
	if tlsCfg.MinVersion == "1.3" {
		minVersion = tls.VersionTLS13
	}

	return &tls.Config{
		MinVersion:     minVersion,
		GetCertificate: reloader.GetCertificate,
	}, nil
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Addr returns the address the server listens on, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr
}

// Handler returns the configured HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}
