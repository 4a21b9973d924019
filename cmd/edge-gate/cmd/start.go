package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/Sentinel-Gate/edgegate/internal/adapter/inbound/http"
	"github.com/Sentinel-Gate/edgegate/internal/adapter/outbound/httpsvc"
	"github.com/Sentinel-Gate/edgegate/internal/adapter/outbound/memory"
	"github.com/Sentinel-Gate/edgegate/internal/adapter/outbound/redisbus"
	"github.com/Sentinel-Gate/edgegate/internal/adapter/outbound/sqlite"
	"github.com/Sentinel-Gate/edgegate/internal/config"
	"github.com/Sentinel-Gate/edgegate/internal/domain/auth"
	"github.com/Sentinel-Gate/edgegate/internal/domain/command"
	"github.com/Sentinel-Gate/edgegate/internal/domain/ratelimit"
	"github.com/Sentinel-Gate/edgegate/internal/observability"
	"github.com/Sentinel-Gate/edgegate/internal/service"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the gateway",
	Long: `Start the edge gateway.

The gateway connects to the broker of every configured backend and serves
the API on server.http_addr under server.api_prefix. /health and /metrics are served outside the prefix.

Examples:
  # Start with config file settings
  edge-gate start

  # Start with a specific config file
  edge-gate --config /path/to/edge-gate.yaml start

  # Start with verbose logging and tracing
  edge-gate start --dev`,
	RunE: runStart,
}

var devMode bool

func init() {
	startCmd.Flags().BoolVar(&devMode, "dev", false, "Enable development mode (debug logging, span export)")
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	// Load without validation so the --dev flag applies first.
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if devMode {
		cfg.DevMode = true
	}
	cfg.SetDevDefaults()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	// stop() restores default signal handling so a second Ctrl+C kills.
	ctx, stop := signal.NotifyContext(context.Background(), gracefulSignals()...)
	go func() {
		<-ctx.Done()
		stop()
	}()

	logLevel := parseLogLevel(cfg.Server.LogLevel)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)
	logger.Debug("log level configured", "level", cfg.Server.LogLevel, "effective", logLevel.String())

	if configFile := config.ConfigFileUsed(); configFile != "" {
		logger.Info("loaded config", "file", configFile)
	}

	pidPath := cfg.Server.PIDFile
	if err := writePIDFile(pidPath); err != nil {
		logger.Warn("failed to write PID file", "path", pidPath, "error", err)
	} else {
		defer os.Remove(pidPath)
	}

	if err := run(ctx, cfg, logger); err != nil {
		return err
	}

	logger.Info("edge-gate stopped")
	return nil
}

// run wires every component and serves until ctx is cancelled. Components
// are released in reverse order of creation.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	// ===== Tracing =====
	tracer, shutdownTracing, err := observability.SetupTracing(observability.TracingOptions{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: "edge-gate",
		SampleRatio: cfg.Tracing.SampleRatio,
		Version:     Version,
	})
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("failed to flush spans", "error", err)
		}
	}()

	// ===== Metrics =====
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := http.NewMetrics(reg)

	// ===== Broker backends =====
	endpoints := make(map[string]redisbus.Endpoint, len(cfg.Backends))
	for _, name := range cfg.BackendNames() {
		url, timeout := cfg.BackendEndpoint(name)
		endpoints[name] = redisbus.Endpoint{URL: url, Timeout: timeout}
	}
	registry, err := redisbus.NewRegistry(endpoints, logger,
		redisbus.WithObserver(metrics),
		redisbus.WithTracer(tracer),
	)
	if err != nil {
		return fmt.Errorf("failed to configure broker backends: %w", err)
	}
	defer func() {
		if err := registry.Close(); err != nil {
			logger.Warn("error closing broker connections", "error", err)
		}
	}()
	if err := registry.Start(ctx); err != nil {
		return fmt.Errorf("failed to connect to broker: %w", err)
	}
	logger.Info("broker connected", "backends", strings.Join(registry.Backends(), ","))

	clients := make(map[string]*redisbus.Client, len(config.DefaultBackends)+1)
	for _, name := range append([]string{cfg.Jobs.FallbackBackend}, config.DefaultBackends...) {
		c, err := registry.Client(name)
		if err != nil {
			return fmt.Errorf("backend %s: %w", name, err)
		}
		clients[name] = c
	}

	// ===== HTTP backends =====
	salesHTTP, err := httpsvc.NewClient(config.BackendSales, cfg.Services.Sales.URL, config.ParseDurationOrZero(cfg.Services.Sales.Timeout))
	if err != nil {
		return fmt.Errorf("services.sales: %w", err)
	}
	purchasesHTTP, err := httpsvc.NewClient(config.BackendPurchases, cfg.Services.Purchases.URL, config.ParseDurationOrZero(cfg.Services.Purchases.Timeout))
	if err != nil {
		return fmt.Errorf("services.purchases: %w", err)
	}
	processingHTTP, err := httpsvc.NewClient("processing", cfg.Services.Processing.URL, config.ParseDurationOrZero(cfg.Services.Processing.Timeout))
	if err != nil {
		return fmt.Errorf("services.processing: %w", err)
	}
	salesProxy := httpsvc.NewProxy(salesHTTP,
		cfg.Server.APIPrefix+"/sales/route-validator",
		"/route-validator",
		config.ParseDurationOrZero(cfg.Services.Sales.Timeout),
		http.WriteError,
	)

	// ===== Jobs =====
	ledger, err := sqlite.Open(ctx, cfg.Jobs.LedgerPath, logger)
	if err != nil {
		return fmt.Errorf("failed to open job ledger: %w", err)
	}
	defer func() {
		if err := ledger.Close(); err != nil {
			logger.Warn("error closing job ledger", "error", err)
		}
	}()

	fallbackBus, err := registry.Bus(cfg.Jobs.FallbackBackend)
	if err != nil {
		return fmt.Errorf("jobs.fallback_backend: %w", err)
	}
	jobService := service.NewJobService(
		httpsvc.NewProcessingClient(processingHTTP),
		clients[cfg.Jobs.FallbackBackend],
		service.JobServiceConfig{
			FallbackPattern:       command.Cmd(cfg.Jobs.FallbackPattern),
			EventsURLPrefix:       cfg.Server.APIPrefix + "/jobs",
			ProgressChannelPrefix: cfg.Jobs.ProgressChannelPrefix,
			EmitTimeout:           config.ParseDurationOrZero(cfg.Jobs.EmitTimeout),
		},
		logger,
		service.WithJobLedger(ledger),
		service.WithJobObserver(metrics),
		service.WithJobTracer(tracer),
	)
	// Fallback emissions run detached from requests; let them finish.
	defer jobService.Wait()

	janitor := service.NewUploadJanitor(cfg.Jobs.UploadDir,
		config.ParseDurationOrZero(cfg.Jobs.MaxAge),
		config.ParseDurationOrZero(cfg.Jobs.CleanupInterval),
		logger,
	)
	janitor.Start(ctx)
	defer janitor.Stop()

	// ===== Routes =====
	handlers := http.NewHandlers(http.Deps{
		Auth:          clients[config.BackendAuth],
		Gescom:        clients[config.BackendGescom],
		Sales:         clients[config.BackendSales],
		Purchases:     clients[config.BackendPurchases],
		RAGBackend:    clients[config.BackendRAGIABackend],
		ETLIndexer:    clients[config.BackendRAGETLIndexer],
		SalesHTTP:     salesHTTP,
		PurchasesHTTP: purchasesHTTP,
		SalesProxy:    salesProxy,
		Jobs:          jobService,
		Progress:      progressSource{bus: fallbackBus},
		Uploads: http.UploadLimits{
			Dir:         cfg.Jobs.UploadDir,
			MaxFiles:    cfg.Jobs.MaxFiles,
			MaxFileSize: int64(cfg.Jobs.MaxFileSizeMB) << 20,
		},
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         logger,
	})

	gate := auth.NewGate(clients[config.BackendAuth], logger)
	router := http.NewRouter(gate)
	if err := router.Mount(http.ResolveRoutes(cfg.Server.APIPrefix, http.APIRoutes(handlers))); err != nil {
		return fmt.Errorf("failed to register routes: %w", err)
	}

	// ===== Server =====
	trustedProxies, err := http.ParseTrustedProxies(cfg.Server.TrustedProxies)
	if err != nil {
		return fmt.Errorf("server.trusted_proxies: %w", err)
	}
	opts := []http.Option{
		http.WithAddr(cfg.Server.HTTPAddr),
		http.WithAllowedOrigins(cfg.Server.AllowedOrigins),
		http.WithLogger(logger),
		http.WithMetrics(metrics, reg),
		http.WithTrustedProxies(trustedProxies),
		http.WithShutdownTimeout(config.ParseDurationOrZero(cfg.Server.ShutdownTimeout)),
	}

	var rateLimiter *memory.RateLimiter
	if cfg.RateLimit.Enabled {
		rateLimiter = memory.NewRateLimiter(
			config.ParseDurationOrZero(cfg.RateLimit.CleanupInterval),
			config.ParseDurationOrZero(cfg.RateLimit.MaxTTL),
		)
		rateLimiter.Start(ctx)
		defer rateLimiter.Stop()
		opts = append(opts, http.WithRateLimit(rateLimiter, ratelimit.Limit{
			Rate:   cfg.RateLimit.IPRate,
			Burst:  cfg.RateLimit.Burst,
			Period: time.Minute,
		}))
	}
	opts = append(opts, http.WithHealthChecker(http.NewHealthChecker(registry, rateLimiter, Version)))

	logger.Info("edge-gate starting",
		"version", Version,
		"dev_mode", cfg.DevMode,
		"http_addr", cfg.Server.HTTPAddr,
		"api_prefix", cfg.Server.APIPrefix,
		"routes", len(router.Routes()),
		"rate_limit", cfg.RateLimit.Enabled,
		"tracing", cfg.Tracing.Enabled,
		"upload_dir", cfg.Jobs.UploadDir,
	)

	server := http.NewServer(router, opts...)
	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// progressSource serves job progress subscriptions from a broker bus.
type progressSource struct {
	bus *redisbus.Bus
}

func (p progressSource) Subscribe(ctx context.Context, channel string) (http.ProgressStream, error) {
	sub, err := p.bus.Subscribe(ctx, channel)
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// parseLogLevel converts a string log level to slog.Level.
// Returns slog.LevelInfo for unrecognized values.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
