// Package config provides configuration types for the edge gateway.
//
// The gateway is configured from a single YAML file plus environment
// overrides. Durations are strings parsed with time.ParseDuration ("30s",
// "2h"). Backends reached over the broker are listed by logical name; a
// backend without its own redis_url or timeout uses the broker's.
package config

import (
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/viper"
)

// Default backend names. Every one of them is always present after
// SetDefaults, so routes can rely on them.
const (
	BackendAuth          = "auth"
	BackendGescom        = "gescom"
	BackendSales         = "sales"
	BackendPurchases     = "purchases"
	BackendRAGIABackend  = "rag_ia_backend"
	BackendRAGETLIndexer = "rag_etl_indexer"
)

// DefaultBackends lists the backends every deployment talks to.
var DefaultBackends = []string{
	BackendAuth,
	BackendGescom,
	BackendSales,
	BackendPurchases,
	BackendRAGIABackend,
	BackendRAGETLIndexer,
}

// Config is the top-level configuration.
type Config struct {
	// Server configures the HTTP listener.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Broker is the default Redis endpoint for command/response calls.
	Broker BrokerConfig `yaml:"broker" mapstructure:"broker"`

	// Backends maps a logical backend name to its broker settings.
	Backends map[string]BackendConfig `yaml:"backends" mapstructure:"backends" validate:"dive"`

	// Services configures the backends reached over plain HTTP.
	Services ServicesConfig `yaml:"services" mapstructure:"services"`

	// Jobs configures bulk uploads and job submission.
	Jobs JobsConfig `yaml:"jobs" mapstructure:"jobs"`

	// RateLimit configures per-IP rate limiting.
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`

	// Tracing configures OpenTelemetry span export.
	Tracing TracingConfig `yaml:"tracing" mapstructure:"tracing"`

	// DevMode enables verbose logging and tracing of every request.
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	// HTTPAddr is the address to listen on. Defaults to ":3000".
	HTTPAddr string `yaml:"http_addr" mapstructure:"http_addr" validate:"omitempty,hostname_port"`

	// APIPrefix is prepended to every API route. Defaults to "/api/v1".
	APIPrefix string `yaml:"api_prefix" mapstructure:"api_prefix" validate:"omitempty,api_prefix"`

	// LogLevel sets the minimum log level. DevMode overrides it to "debug".
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`

	// AllowedOrigins is the CORS allow list. Defaults to ["*"].
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`

	// TrustedProxies lists the reverse proxies (IPs or CIDRs) whose
	// X-Forwarded-For is used to find the client address. Empty means the
	// socket peer is always the client.
	TrustedProxies []string `yaml:"trusted_proxies" mapstructure:"trusted_proxies" validate:"omitempty,dive,cidr|ip"`

	// ShutdownTimeout bounds graceful shutdown. Defaults to "10s".
	ShutdownTimeout string `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout" validate:"omitempty,duration"`

	// PIDFile is where "start" records its PID for "stop".
	// Defaults to ~/.edge-gate/server.pid.
	PIDFile string `yaml:"pid_file" mapstructure:"pid_file"`
}

// BrokerConfig configures the default broker connection.
type BrokerConfig struct {
	// RedisURL is a redis:// or rediss:// URL. Defaults to redis://localhost:6379/0.
	RedisURL string `yaml:"redis_url" mapstructure:"redis_url" validate:"required,redis_url"`

	// DefaultTimeout is the reply deadline of a call. Defaults to "30s".
	DefaultTimeout string `yaml:"default_timeout" mapstructure:"default_timeout" validate:"required,duration"`
}

// BackendConfig overrides broker settings for one backend.
type BackendConfig struct {
	RedisURL string `yaml:"redis_url" mapstructure:"redis_url" validate:"omitempty,redis_url"`
	Timeout  string `yaml:"timeout" mapstructure:"timeout" validate:"omitempty,duration"`
}

// ServicesConfig lists the HTTP backends.
type ServicesConfig struct {
	Sales      HTTPServiceConfig `yaml:"sales" mapstructure:"sales"`
	Purchases  HTTPServiceConfig `yaml:"purchases" mapstructure:"purchases"`
	Processing HTTPServiceConfig `yaml:"processing" mapstructure:"processing"`
}

// HTTPServiceConfig configures one HTTP backend.
type HTTPServiceConfig struct {
	URL     string `yaml:"url" mapstructure:"url" validate:"required,url"`
	Timeout string `yaml:"timeout" mapstructure:"timeout" validate:"required,duration"`
}

// JobsConfig configures bulk uploads.
type JobsConfig struct {
	// UploadDir holds uploaded files until the janitor removes them.
	UploadDir string `yaml:"upload_dir" mapstructure:"upload_dir" validate:"required"`

	// MaxFiles is the maximum number of files in one bulk upload.
	MaxFiles int `yaml:"max_files" mapstructure:"max_files" validate:"min=1"`

	// MaxFileSizeMB bounds each uploaded file.
	MaxFileSizeMB int `yaml:"max_file_size_mb" mapstructure:"max_file_size_mb" validate:"min=1"`

	// FallbackBackend is the broker backend the fallback emission goes to.
	FallbackBackend string `yaml:"fallback_backend" mapstructure:"fallback_backend" validate:"required"`

	// FallbackPattern is the event pattern emitted on fallback.
	FallbackPattern string `yaml:"fallback_pattern" mapstructure:"fallback_pattern" validate:"required"`

	// ProgressChannelPrefix prefixes the per-job progress channel.
	ProgressChannelPrefix string `yaml:"progress_channel_prefix" mapstructure:"progress_channel_prefix" validate:"required"`

	// LedgerPath is the SQLite file recording submissions. ":memory:" keeps
	// the ledger in process memory.
	LedgerPath string `yaml:"ledger_path" mapstructure:"ledger_path" validate:"required"`

	// CleanupInterval is how often the upload janitor runs.
	CleanupInterval string `yaml:"cleanup_interval" mapstructure:"cleanup_interval" validate:"required,duration"`

	// MaxAge is how long an uploaded file is kept.
	MaxAge string `yaml:"max_age" mapstructure:"max_age" validate:"required,duration"`

	// EmitTimeout bounds a single fallback emission.
	EmitTimeout string `yaml:"emit_timeout" mapstructure:"emit_timeout" validate:"required,duration"`
}

// RateLimitConfig configures rate limiting.
type RateLimitConfig struct {
	// Enabled turns rate limiting on or off.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// IPRate is the maximum requests per minute per client IP.
	IPRate int `yaml:"ip_rate" mapstructure:"ip_rate" validate:"omitempty,min=1"`

	// Burst is how many requests a client may send back to back.
	// Defaults to IPRate.
	Burst int `yaml:"burst" mapstructure:"burst" validate:"omitempty,min=1"`

	// CleanupInterval is how often idle keys are dropped.
	CleanupInterval string `yaml:"cleanup_interval" mapstructure:"cleanup_interval" validate:"omitempty,duration"`

	// MaxTTL is how long an idle key is kept.
	MaxTTL string `yaml:"max_ttl" mapstructure:"max_ttl" validate:"omitempty,duration"`
}

// TracingConfig configures span export to stdout.
type TracingConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// SampleRatio is the fraction of requests traced. Defaults to 1.
	SampleRatio float64 `yaml:"sample_ratio" mapstructure:"sample_ratio" validate:"min=0,max=1"`
}

// SetDevDefaults applies development overrides. Applied after SetDefaults
// and before validation.
func (c *Config) SetDevDefaults() {
	if !c.DevMode {
		return
	}
	c.Server.LogLevel = "debug"
	if !viper.IsSet("tracing.enabled") {
		c.Tracing.Enabled = true
	}
}

// SetDefaults applies default values to every optional field.
func (c *Config) SetDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = ":3000"
	}
	if c.Server.APIPrefix == "" {
		c.Server.APIPrefix = "/api/v1"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"*"}
	}
	if c.Server.ShutdownTimeout == "" {
		c.Server.ShutdownTimeout = "10s"
	}
	if c.Server.PIDFile == "" {
		if home, err := os.UserHomeDir(); err == nil {
			c.Server.PIDFile = filepath.Join(home, ".edge-gate", "server.pid")
		} else {
			c.Server.PIDFile = filepath.Join(os.TempDir(), "edge-gate.pid")
		}
	}

	if c.Broker.RedisURL == "" {
		c.Broker.RedisURL = "redis://localhost:6379/0"
	}
	if c.Broker.DefaultTimeout == "" {
		c.Broker.DefaultTimeout = "30s"
	}

	if c.Backends == nil {
		c.Backends = make(map[string]BackendConfig)
	}
	for _, name := range DefaultBackends {
		if _, ok := c.Backends[name]; !ok {
			c.Backends[name] = BackendConfig{}
		}
	}

	c.Services.Sales.setDefaults("http://sales-service:8000", "60s")
	c.Services.Purchases.setDefaults("http://purchases:3000", "10s")
	c.Services.Processing.setDefaults("http://rag-ia-backend:8000", "30s")

	if c.Jobs.UploadDir == "" {
		c.Jobs.UploadDir = "temp_uploads"
	}
	if c.Jobs.MaxFiles == 0 {
		c.Jobs.MaxFiles = 20
	}
	if c.Jobs.MaxFileSizeMB == 0 {
		c.Jobs.MaxFileSizeMB = 25
	}
	if c.Jobs.FallbackBackend == "" {
		c.Jobs.FallbackBackend = BackendRAGIABackend
	}
	if c.Jobs.FallbackPattern == "" {
		c.Jobs.FallbackPattern = "catalog.process_bulk_upload"
	}
	if c.Jobs.ProgressChannelPrefix == "" {
		c.Jobs.ProgressChannelPrefix = "jobs.progress"
	}
	if c.Jobs.LedgerPath == "" {
		c.Jobs.LedgerPath = filepath.Join("data", "jobs.db")
	}
	if c.Jobs.CleanupInterval == "" {
		c.Jobs.CleanupInterval = "1h"
	}
	if c.Jobs.MaxAge == "" {
		c.Jobs.MaxAge = "2h"
	}
	if c.Jobs.EmitTimeout == "" {
		c.Jobs.EmitTimeout = "10s"
	}

	// Enabled by default; viper.IsSet tells "absent" from an explicit false.
	if !viper.IsSet("rate_limit.enabled") {
		c.RateLimit.Enabled = true
	}
	if c.RateLimit.IPRate == 0 {
		c.RateLimit.IPRate = 300
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = c.RateLimit.IPRate
	}
	if c.RateLimit.CleanupInterval == "" {
		c.RateLimit.CleanupInterval = "5m"
	}
	if c.RateLimit.MaxTTL == "" {
		c.RateLimit.MaxTTL = "1h"
	}

	if !viper.IsSet("tracing.sample_ratio") && c.Tracing.SampleRatio == 0 {
		c.Tracing.SampleRatio = 1
	}
}

func (s *HTTPServiceConfig) setDefaults(url, timeout string) {
	if s.URL == "" {
		s.URL = url
	}
	if s.Timeout == "" {
		s.Timeout = timeout
	}
}

// BackendEndpoint resolves the Redis URL and call timeout of a backend,
// falling back to the broker defaults.
func (c *Config) BackendEndpoint(name string) (string, time.Duration) {
	b := c.Backends[name]
	url := b.RedisURL
	if url == "" {
		url = c.Broker.RedisURL
	}
	timeout := b.Timeout
	if timeout == "" {
		timeout = c.Broker.DefaultTimeout
	}
	return url, ParseDurationOrZero(timeout)
}

// BackendNames returns the configured backend names in order.
func (c *Config) BackendNames() []string {
	names := make([]string, 0, len(c.Backends))
	for name := range c.Backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParseDurationOrZero parses a duration that already passed validation. An
// unparseable value yields zero.
func ParseDurationOrZero(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}
