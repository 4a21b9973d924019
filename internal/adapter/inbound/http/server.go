package http

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Sentinel-Gate/edgegate/internal/domain/ratelimit"
)

// Server is the inbound adapter that exposes the gateway routes over HTTP.
type Server struct {
	router          *Router
	server          *http.Server
	addr            string
	allowedOrigins  []string
	logger          *slog.Logger
	metrics         *Metrics
	registry        *prometheus.Registry
	healthChecker   *HealthChecker
	limiter         ratelimit.Limiter
	limit           ratelimit.Limit
	trustedProxies  TrustedProxies
	shutdownTimeout time.Duration
}

// Option is a functional option for configuring Server.
type Option func(*Server)

// WithAddr sets the listen address for the HTTP server.
// Default is ":3000".
func WithAddr(addr string) Option {
	return func(s *Server) {
		s.addr = addr
	}
}

// WithAllowedOrigins sets the CORS allowlist. "*" admits every origin.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) {
		s.allowedOrigins = origins
	}
}

// WithLogger sets the logger for the HTTP server.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetrics sets the metrics and the registry served on /metrics. The
// metrics must be registered with reg.
func WithMetrics(metrics *Metrics, reg *prometheus.Registry) Option {
	return func(s *Server) {
		s.metrics = metrics
		s.registry = reg
	}
}

// WithHealthChecker sets the health checker for the /health endpoint.
func WithHealthChecker(hc *HealthChecker) Option {
	return func(s *Server) {
		s.healthChecker = hc
	}
}

// WithRateLimit applies limit per client address to API routes.
func WithRateLimit(limiter ratelimit.Limiter, limit ratelimit.Limit) Option {
	return func(s *Server) {
		s.limiter = limiter
		s.limit = limit
	}
}

// WithTrustedProxies sets the peers allowed to report the client address
// through X-Forwarded-For and X-Real-IP. Default is none.
func WithTrustedProxies(trusted TrustedProxies) Option {
	return func(s *Server) {
		s.trustedProxies = trusted
	}
}

// WithShutdownTimeout bounds graceful shutdown. Default is 10s.
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.shutdownTimeout = d
	}
}

// NewServer creates a Server for router.
func NewServer(router *Router, opts ...Option) *Server {
	s := &Server{
		router:          router,
		addr:            ":3000",
		allowedOrigins:  []string{"*"},
		logger:          slog.Default(),
		shutdownTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
		s.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		s.metrics = NewMetrics(s.registry)
	}
	return s
}

// Handler builds the complete middleware chain.
//
// Order (outermost first):
//  1. ErrorFilter - last-resort error layer, recovers panics from everything below
//  2. MetricsMiddleware - duration and status
//  3. RequestID - request ID and enriched logger
//  4. RealIP - client address, proxy headers from trusted peers only
//  5. CORS - preflight and CORS headers
//  6. RateLimit - per-client budget (API routes only)
//  7. Router - AuthGate, RoleGate, route handler
func (s *Server) Handler() http.Handler {
	var api http.Handler = s.router
	if s.limiter != nil {
		api = RateLimitMiddleware(s.limiter, s.limit, s.metrics)(api)
	}

	mux := http.NewServeMux()
	if s.healthChecker != nil {
		mux.Handle("GET /health", s.healthChecker.Handler())
	} else {
		mux.Handle("GET /health", healthHandler())
	}
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		Registry: s.registry,
	}))
	mux.Handle("/", api)

	var handler http.Handler = mux
	handler = CORSMiddleware(s.allowedOrigins)(handler)
	handler = RealIPMiddleware(s.trustedProxies)(handler)
	handler = RequestIDMiddleware(s.logger)(handler)
	handler = MetricsMiddleware(s.metrics)(handler)
	handler = ErrorFilter(s.logger)(handler)
	return handler
}

// Start begins accepting HTTP connections.
// It blocks until the context is cancelled or an error occurs.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", ln.Addr().String())
		err := s.server.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, shutting down HTTP server")
		return s.shutdown()
	case err := <-errCh:
		return err
	}
}

// shutdown performs graceful shutdown of the HTTP server.
func (s *Server) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Error("error during server shutdown", "error", err)
		return err
	}

	s.logger.Info("HTTP server shutdown complete")
	return nil
}

// Close gracefully shuts down the server.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
	return s.shutdown()
}

// healthHandler is the /health answer when no checker is configured.
func healthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"healthy"}`))
	})
}
