package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestConfig_SetDefaults(t *testing.T) {
	var cfg Config
	cfg.SetDefaults()

	if cfg.Server.HTTPAddr != ":3000" {
		t.Errorf("HTTPAddr = %q, want :3000", cfg.Server.HTTPAddr)
	}
	if cfg.Server.APIPrefix != "/api/v1" {
		t.Errorf("APIPrefix = %q", cfg.Server.APIPrefix)
	}
	if len(cfg.Server.AllowedOrigins) != 1 || cfg.Server.AllowedOrigins[0] != "*" {
		t.Errorf("AllowedOrigins = %v", cfg.Server.AllowedOrigins)
	}
	if cfg.Broker.DefaultTimeout != "30s" {
		t.Errorf("DefaultTimeout = %q", cfg.Broker.DefaultTimeout)
	}
	for _, name := range DefaultBackends {
		if _, ok := cfg.Backends[name]; !ok {
			t.Errorf("default backend %s missing", name)
		}
	}
	if cfg.Services.Sales.Timeout != "60s" || cfg.Services.Purchases.Timeout != "10s" {
		t.Errorf("service timeouts = %q %q", cfg.Services.Sales.Timeout, cfg.Services.Purchases.Timeout)
	}
	if cfg.Jobs.MaxAge != "2h" || cfg.Jobs.FallbackBackend != BackendRAGIABackend {
		t.Errorf("jobs = %+v", cfg.Jobs)
	}
	if !cfg.RateLimit.Enabled || cfg.RateLimit.Burst != cfg.RateLimit.IPRate {
		t.Errorf("rate limit = %+v", cfg.RateLimit)
	}
	if cfg.Tracing.SampleRatio != 1 {
		t.Errorf("SampleRatio = %v", cfg.Tracing.SampleRatio)
	}
}

func TestConfig_SetDefaults_KeepsExplicitBackends(t *testing.T) {
	cfg := Config{Backends: map[string]BackendConfig{
		"auth":    {Timeout: "5s"},
		"billing": {RedisURL: "redis://billing:6379"},
	}}
	cfg.SetDefaults()

	if cfg.Backends["auth"].Timeout != "5s" {
		t.Error("explicit auth timeout overwritten")
	}
	if _, ok := cfg.Backends["billing"]; !ok {
		t.Error("extra backend dropped")
	}
	if len(cfg.Backends) != len(DefaultBackends)+1 {
		t.Errorf("backends = %v", cfg.BackendNames())
	}
}

func TestConfig_BackendEndpoint(t *testing.T) {
	cfg := Config{Backends: map[string]BackendConfig{
		"auth":   {Timeout: "5s"},
		"gescom": {RedisURL: "redis://gescom:6379/1"},
	}}
	cfg.SetDefaults()

	url, timeout := cfg.BackendEndpoint("auth")
	if url != "redis://localhost:6379/0" || timeout != 5*time.Second {
		t.Errorf("auth endpoint = %s %v", url, timeout)
	}
	url, timeout = cfg.BackendEndpoint("gescom")
	if url != "redis://gescom:6379/1" || timeout != 30*time.Second {
		t.Errorf("gescom endpoint = %s %v", url, timeout)
	}
}

func TestConfig_SetDevDefaults(t *testing.T) {
	cfg := Config{DevMode: true}
	cfg.SetDefaults()
	cfg.SetDevDefaults()
	if cfg.Server.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.Server.LogLevel)
	}
	if !cfg.Tracing.Enabled {
		t.Error("dev mode should enable tracing")
	}
}

func TestFindConfigFileInPaths(t *testing.T) {
	dir := t.TempDir()
	if got := findConfigFileInPaths([]string{dir}); got != "" {
		t.Errorf("found %q in empty dir", got)
	}

	// The binary name without extension must never match.
	if err := os.WriteFile(filepath.Join(dir, "edge-gate"), []byte("ELF"), 0o600); err != nil {
		t.Fatal(err)
	}
	if got := findConfigFileInPaths([]string{dir}); got != "" {
		t.Errorf("matched binary %q", got)
	}

	want := filepath.Join(dir, "edge-gate.yml")
	if err := os.WriteFile(want, []byte("dev_mode: true\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if got := findConfigFileInPaths([]string{t.TempDir(), dir}); got != want {
		t.Errorf("findConfigFileInPaths() = %q, want %q", got, want)
	}
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	path := filepath.Join(t.TempDir(), "edge-gate.yaml")
	yaml := `
server:
  http_addr: "127.0.0.1:9090"
broker:
  redis_url: "redis://broker:6379/0"
backends:
  auth:
    timeout: "5s"
jobs:
  ledger_path: ":memory:"
rate_limit:
  enabled: false
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("EDGE_GATE_SERVICES_SALES_URL", "http://sales.internal:8000")

	InitViper(path)
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Server.HTTPAddr != "127.0.0.1:9090" {
		t.Errorf("HTTPAddr = %q", cfg.Server.HTTPAddr)
	}
	if cfg.Services.Sales.URL != "http://sales.internal:8000" {
		t.Errorf("Sales.URL = %q, env override not applied", cfg.Services.Sales.URL)
	}
	if _, timeout := cfg.BackendEndpoint("auth"); timeout != 5*time.Second {
		t.Errorf("auth timeout = %v", timeout)
	}
	if cfg.RateLimit.Enabled {
		t.Error("explicit rate_limit.enabled=false ignored")
	}
	if ConfigFileUsed() != path {
		t.Errorf("ConfigFileUsed() = %q", ConfigFileUsed())
	}
}

func TestParseDurationOrZero(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"30s", 30 * time.Second},
		{"1h30m", 90 * time.Minute},
		{"", 0},
		{"soon", 0},
	}
	for _, tt := range tests {
		if got := ParseDurationOrZero(tt.in); got != tt.want {
			t.Errorf("ParseDurationOrZero(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
