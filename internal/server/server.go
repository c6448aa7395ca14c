// Package server exposes the toast registry over HTTP and runs the
// background consumers of its lifecycle events.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/oktsec/toastd/internal/config"
	"github.com/oktsec/toastd/internal/history"
	"github.com/oktsec/toastd/internal/mcp"
	"github.com/oktsec/toastd/internal/metrics"
	"github.com/oktsec/toastd/internal/notify"
	"github.com/oktsec/toastd/internal/relay"
	"github.com/oktsec/toastd/internal/toast"
)

// Server is the toastd HTTP server.
type Server struct {
	cfg      *config.Config
	version  string
	srv      *http.Server
	ln       net.Listener
	handler  http.Handler
	manager  *toast.Manager
	history  *history.Store
	notifier *notify.Notifier
	metrics  *metrics.Collector
	limiter  *RateLimiter
	redis    *redis.Client
	logger   *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type options struct {
	version     string
	managerOpts []toast.ManagerOption
	listen      bool
}

// Option customises NewServer.
type Option func(*options)

// WithVersion sets the version reported by /health and MCP.
func WithVersion(v string) Option {
	return func(o *options) { o.version = v }
}

// WithManagerOptions passes options through to toast.New.
func WithManagerOptions(opts ...toast.ManagerOption) Option {
	return func(o *options) { o.managerOpts = append(o.managerOpts, opts...) }
}

// WithoutListener skips binding a port. Handler still works, Start does not.
func WithoutListener() Option {
	return func(o *options) { o.listen = false }
}

// NewServer creates the toast manager and wires every consumer of its
// events according to cfg.
func NewServer(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Server, error) {
	o := options{version: "dev", listen: true}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Server{
		cfg:      cfg,
		version:  o.version,
		manager:  toast.New(cfg.ToastSettings(), logger, o.managerOpts...),
		notifier: notify.NewNotifier(cfg.Webhooks, logger),
		limiter:  NewRateLimiter(cfg.RateLimit.PerSource, cfg.RateLimit.WindowS, nil),
		logger:   logger,
	}
	s.metrics = metrics.New(s.manager)

	if cfg.History.Enabled {
		store, err := history.NewStore(cfg.History.Driver, cfg.History.DSN, logger)
		if err != nil {
			s.manager.Close()
			return nil, fmt.Errorf("opening history store: %w", err)
		}
		s.history = store
	}

	if cfg.Relay.Enabled {
		s.redis = relay.NewClient(cfg.Relay)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.startConsumers(ctx)

	mcpServer := mcp.NewServer(managerBackend{s}, s.version, logger)
	s.handler = s.routes(mcp.HTTPHandler(mcpServer))

	if o.listen {
		// Bind to 127.0.0.1 by default (localhost only).
		bind := cfg.Server.Bind
		if bind == "" {
			bind = "127.0.0.1"
		}
		ln, actualPort, err := listenAutoPort(bind, cfg.Server.Port, logger)
		if err != nil {
			s.stopBackground()
			return nil, fmt.Errorf("binding port: %w", err)
		}
		cfg.Server.Port = actualPort
		s.ln = ln
	}

	s.srv = &http.Server{
		Handler:        s.handler,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   30 * time.Second, // cleared per request by the SSE handler
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1 MB
	}
	return s, nil
}

// startConsumers subscribes every event consumer before any toast can be
// created so none of them misses the first events.
func (s *Server) startConsumers(ctx context.Context) {
	run := func(fn func(<-chan toast.Event)) {
		events, _ := s.manager.Subscribe()
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			fn(events)
		}()
	}

	run(func(ev <-chan toast.Event) { s.metrics.Run(ctx, ev) })
	run(func(ev <-chan toast.Event) { s.notifier.Run(ctx, ev) })

	if s.history != nil {
		run(func(ev <-chan toast.Event) { s.history.Run(ctx, ev) })
		if s.cfg.History.RetentionDays > 0 {
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				s.purgeLoop(ctx)
			}()
		}
	}

	if s.redis != nil {
		if ch := s.cfg.Relay.EventsChannel; ch != "" {
			pub := relay.NewPublisher(s.redis, ch, s.logger)
			run(func(ev <-chan toast.Event) { pub.Run(ctx, ev) })
		}
		sub := relay.NewSubscriber(s.redis, s.cfg.Relay.AlertsChannel, s.manager, s.logger)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := sub.Run(ctx); err != nil {
				s.logger.Error("relay subscriber stopped", "error", err)
			}
		}()
	}
}

// purgeLoop drops history rows past the retention window once an hour.
func (s *Server) purgeLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		n, err := s.history.Purge(s.cfg.History.RetentionDays, time.Now())
		if err != nil {
			s.logger.Error("history purge failed", "error", err)
		} else if n > 0 {
			s.logger.Info("history purged", "rows", n, "retention_days", s.cfg.History.RetentionDays)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Server) routes(mcpHandler http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", s.metrics.Handler())

	mux.HandleFunc("POST /v1/toasts", s.handleCreate(false))
	mux.HandleFunc("POST /v1/alerts", s.handleCreate(true))
	mux.HandleFunc("GET /v1/toasts", s.handleList)
	mux.HandleFunc("GET /v1/toasts/visible", s.handleVisible)
	mux.HandleFunc("GET /v1/toasts/{id}", s.handleGet)
	mux.HandleFunc("DELETE /v1/toasts/{id}", s.handleDismiss)
	mux.HandleFunc("POST /v1/toasts/{id}/hover", s.handleHover)
	mux.HandleFunc("POST /v1/toasts/{id}/actions/{action}", s.handleAction)
	mux.HandleFunc("GET /v1/events", s.handleEvents)
	if s.history != nil {
		mux.HandleFunc("GET /v1/history", s.handleHistory)
		mux.HandleFunc("GET /v1/history/stats", s.handleHistoryStats)
	}
	mux.Handle("/mcp", mcpHandler)

	var h http.Handler = mux
	h = instrument(s.metrics)(h)
	h = securityHeaders(h)
	h = logging(s.logger)(h)
	h = recovery(s.logger)(h)
	h = requestID(h)
	if s.cfg.Tracing.Enabled {
		h = otelhttp.NewHandler(h, "toastd",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	}
	return h
}

// listenAutoPort tries the configured port; if busy, scans up to 10 higher ports.
func listenAutoPort(bind string, port int, logger *slog.Logger) (net.Listener, int, error) {
	addr := net.JoinHostPort(bind, fmt.Sprint(port))
	ln, err := net.Listen("tcp", addr)
	if err == nil {
		// When port is 0, the OS assigns a random port; return the actual port.
		actual := ln.Addr().(*net.TCPAddr).Port
		return ln, actual, nil
	}

	if !isAddrInUse(err) {
		return nil, 0, err
	}

	logger.Warn("port in use, searching for available port", "port", port)
	for offset := 1; offset <= 10; offset++ {
		tryPort := port + offset
		ln, err = net.Listen("tcp", net.JoinHostPort(bind, fmt.Sprint(tryPort)))
		if err == nil {
			logger.Info("using alternative port", "original", port, "actual", tryPort)
			return ln, tryPort, nil
		}
	}
	return nil, 0, fmt.Errorf("port %d and next 10 ports are all in use", port)
}

func isAddrInUse(err error) bool {
	if errors.Is(err, syscall.EADDRINUSE) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && errors.Is(opErr.Err, syscall.EADDRINUSE)
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Manager returns the toast registry.
func (s *Server) Manager() *toast.Manager {
	return s.manager
}

// History returns the history store, or nil when history is disabled.
func (s *Server) History() *history.Store {
	return s.history
}

// Port returns the actual port the server is bound to.
func (s *Server) Port() int {
	return s.cfg.Server.Port
}

// Reconfigure applies a reloaded config to the running server. Listener,
// history and relay settings need a restart and are ignored.
func (s *Server) Reconfigure(cfg *config.Config) {
	s.manager.Reconfigure(cfg.ToastSettings())
	s.notifier.SetWebhooks(cfg.Webhooks)
	s.limiter.Reset(cfg.RateLimit.PerSource, cfg.RateLimit.WindowS)
	s.logger.Info("configuration reloaded",
		"max_visible", cfg.Toasts.MaxVisible,
		"position", cfg.Toasts.Position,
		"webhooks", len(cfg.Webhooks),
	)
}

// Start begins listening. Blocks until the server is shut down.
func (s *Server) Start() error {
	if s.ln == nil {
		return errors.New("server has no listener")
	}
	s.logger.Info("toastd starting",
		"addr", s.ln.Addr().String(),
		"history", s.history != nil,
		"relay", s.redis != nil,
		"tracing", s.cfg.Tracing.Enabled,
	)
	return s.srv.Serve(s.ln)
}

// Shutdown gracefully stops the server and its consumers.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down")
	var err error
	if s.ln != nil {
		err = s.srv.Shutdown(ctx)
	}
	if cerr := s.stopBackground(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

func (s *Server) stopBackground() error {
	s.cancel()
	s.manager.Close()
	s.wg.Wait()
	s.notifier.Wait()

	var err error
	if s.history != nil {
		err = s.history.Close()
	}
	if s.redis != nil {
		if cerr := s.redis.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
