package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

// InitViper initializes Viper with the configuration file and environment variables.
// If configFile is empty, it searches for edge-gate.yaml/.yml in standard locations.
// The search requires an explicit YAML extension so the binary itself is never
// picked up as a config file.
func InitViper(configFile string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		viper.SetConfigFile(found)
	} else {
		// Without search paths ReadInConfig returns ConfigFileNotFoundError,
		// which callers treat as "env only".
		viper.SetConfigName("edge-gate")
		viper.SetConfigType("yaml")
	}

	// Environment variable support: EDGE_GATE_SERVER_HTTP_ADDR
	viper.SetEnvPrefix("EDGE_GATE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	bindNestedEnvKeys()
}

// findConfigFile searches standard locations for edge-gate.yaml or .yml.
func findConfigFile() string {
	home, _ := os.UserHomeDir()
	paths := []string{
		".",
		filepath.Join(home, ".edge-gate"),
	}
	if runtime.GOOS == "windows" {
		if pd := os.Getenv("ProgramData"); pd != "" {
			paths = append(paths, filepath.Join(pd, "edge-gate"))
		}
	} else {
		paths = append(paths, "/etc/edge-gate")
	}
	return findConfigFileInPaths(paths)
}

// findConfigFileInPaths returns the first edge-gate.yaml/.yml found in paths.
func findConfigFileInPaths(paths []string) string {
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, "edge-gate"+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// bindNestedEnvKeys binds nested keys so they can be overridden from the
// environment. Example: EDGE_GATE_BROKER_REDIS_URL overrides broker.redis_url.
func bindNestedEnvKeys() {
	for _, key := range []string{
		"server.http_addr",
		"server.api_prefix",
		"server.log_level",
		"server.shutdown_timeout",
		"server.pid_file",
		"server.trusted_proxies",

		"broker.redis_url",
		"broker.default_timeout",

		"services.sales.url",
		"services.sales.timeout",
		"services.purchases.url",
		"services.purchases.timeout",
		"services.processing.url",
		"services.processing.timeout",

		"jobs.upload_dir",
		"jobs.max_files",
		"jobs.max_file_size_mb",
		"jobs.fallback_backend",
		"jobs.fallback_pattern",
		"jobs.progress_channel_prefix",
		"jobs.ledger_path",
		"jobs.cleanup_interval",
		"jobs.max_age",
		"jobs.emit_timeout",

		"rate_limit.enabled",
		"rate_limit.ip_rate",
		"rate_limit.burst",
		"rate_limit.cleanup_interval",
		"rate_limit.max_ttl",

		"tracing.enabled",
		"tracing.sample_ratio",

		"dev_mode",
	} {
		_ = viper.BindEnv(key)
	}

	// Per-backend overrides for the well-known backends:
	// EDGE_GATE_BACKENDS_AUTH_REDIS_URL, EDGE_GATE_BACKENDS_AUTH_TIMEOUT.
	// Additional backends are declared in the config file.
	for _, name := range DefaultBackends {
		_ = viper.BindEnv("backends." + name + ".redis_url")
		_ = viper.BindEnv("backends." + name + ".timeout")
	}
}

// LoadConfig reads the configuration, applies defaults and dev defaults,
// and validates it.
func LoadConfig() (*Config, error) {
	cfg, err := LoadConfigRaw()
	if err != nil {
		return nil, err
	}
	cfg.SetDevDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// LoadConfigRaw reads the configuration file and applies defaults, but
// does NOT apply dev defaults or validate. Use this when CLI flags may
// override DevMode before validation.
func LoadConfigRaw() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()
	return &cfg, nil
}

// ConfigFileUsed returns the path of the loaded config file, or "" when
// running from environment variables only.
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}
