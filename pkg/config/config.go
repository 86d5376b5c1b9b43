package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/plugman/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	// Plugin discovery and loading
	Plugins PluginConfig

	// Host HTTP endpoint configuration
	Server ServerConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// PluginConfig holds discovery settings
type PluginConfig struct {
	SearchDirs           []string
	ManifestName         string
	DiscoveryConcurrency int

	// Manifest cache; disabled when ManifestCacheSize is 0
	ManifestCacheSize int
	ManifestCacheTTL  time.Duration
}

// ServerConfig holds the introspection server settings used by `plugman serve`
type ServerConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// Load triggers allowed per client per minute; 0 disables the limit
	LoadRateLimit int
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel  string
	LogFormat string

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTel observability.OTelConfig
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Plugins:       loadPluginConfig(),
		Server:        loadServerConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns the configuration used when no environment is set
func DefaultConfig() *Config {
	return &Config{
		Plugins: PluginConfig{
			SearchDirs:           DefaultSearchDirs(),
			ManifestName:         "plugin.yaml",
			DiscoveryConcurrency: 4,
			ManifestCacheSize:    256,
			ManifestCacheTTL:     5 * time.Minute,
		},
		Server: ServerConfig{
			Addr:            "127.0.0.1:9464",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			LoadRateLimit:   6,
		},
		Observability: ObservabilityConfig{
			LogLevel:       "info",
			LogFormat:      observability.FormatText,
			MetricsEnabled: true,
			OTel: observability.OTelConfig{
				Endpoint:       "localhost:4317",
				ServiceName:    "plugman",
				ServiceVersion: "1.0.0",
				Insecure:       true,
			},
		},
	}
}

// DefaultSearchDirs returns the standard plugin search directories
func DefaultSearchDirs() []string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = os.TempDir()
	}

	return []string{
		filepath.Join(homeDir, ".plugman", "plugins"),
		"/etc/plugman/plugins",
		"./plugins", // Current directory
	}
}

// loadPluginConfig loads plugin configuration from environment
func loadPluginConfig() PluginConfig {
	defaults := DefaultConfig().Plugins

	return PluginConfig{
		SearchDirs:           getEnvList("PLUGMAN_PLUGIN_DIRS", defaults.SearchDirs),
		ManifestName:         getEnv("PLUGMAN_MANIFEST_NAME", defaults.ManifestName),
		DiscoveryConcurrency: getEnvInt("PLUGMAN_DISCOVERY_CONCURRENCY", defaults.DiscoveryConcurrency),
		ManifestCacheSize:    getEnvInt("PLUGMAN_MANIFEST_CACHE_SIZE", defaults.ManifestCacheSize),
		ManifestCacheTTL:     getEnvDuration("PLUGMAN_MANIFEST_CACHE_TTL", defaults.ManifestCacheTTL),
	}
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	defaults := DefaultConfig().Server

	return ServerConfig{
		Addr:            getEnv("PLUGMAN_HTTP_ADDR", defaults.Addr),
		ReadTimeout:     getEnvDuration("PLUGMAN_READ_TIMEOUT", defaults.ReadTimeout),
		WriteTimeout:    getEnvDuration("PLUGMAN_WRITE_TIMEOUT", defaults.WriteTimeout),
		ShutdownTimeout: getEnvDuration("PLUGMAN_SHUTDOWN_TIMEOUT", defaults.ShutdownTimeout),
		LoadRateLimit:   getEnvInt("PLUGMAN_LOAD_RATE_LIMIT", defaults.LoadRateLimit),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	defaults := DefaultConfig().Observability

	return ObservabilityConfig{
		LogLevel:       getEnv("PLUGMAN_LOG_LEVEL", defaults.LogLevel),
		LogFormat:      getEnv("PLUGMAN_LOG_FORMAT", defaults.LogFormat),
		MetricsEnabled: getEnvBool("PLUGMAN_METRICS_ENABLED", defaults.MetricsEnabled),
		OTel: observability.OTelConfig{
			Enabled:        getEnvBool("PLUGMAN_OTEL_ENABLED", false),
			Endpoint:       getEnv("PLUGMAN_OTEL_ENDPOINT", defaults.OTel.Endpoint),
			ServiceName:    getEnv("PLUGMAN_OTEL_SERVICE_NAME", defaults.OTel.ServiceName),
			ServiceVersion: getEnv("PLUGMAN_OTEL_SERVICE_VERSION", defaults.OTel.ServiceVersion),
			Insecure:       getEnvBool("PLUGMAN_OTEL_INSECURE", defaults.OTel.Insecure),
		},
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if len(c.Plugins.SearchDirs) == 0 {
		return fmt.Errorf("at least one plugin search directory is required")
	}
	for _, dir := range c.Plugins.SearchDirs {
		if strings.TrimSpace(dir) == "" {
			return fmt.Errorf("plugin search directories must not be empty")
		}
	}
	if c.Plugins.ManifestName == "" {
		return fmt.Errorf("manifest name is required")
	}
	if strings.ContainsRune(c.Plugins.ManifestName, filepath.Separator) {
		return fmt.Errorf("manifest name must be a file name, got %q", c.Plugins.ManifestName)
	}
	if c.Plugins.DiscoveryConcurrency < 1 {
		return fmt.Errorf("discovery concurrency must be at least 1")
	}
	if c.Plugins.ManifestCacheSize < 0 {
		return fmt.Errorf("manifest cache size must not be negative")
	}

	switch strings.ToLower(c.Observability.LogFormat) {
	case observability.FormatText, observability.FormatJSON:
	default:
		return fmt.Errorf("invalid log format: %s (must be text or json)", c.Observability.LogFormat)
	}

	if c.Server.Addr == "" {
		return fmt.Errorf("server address is required")
	}
	if c.Server.LoadRateLimit < 0 {
		return fmt.Errorf("load rate limit must not be negative")
	}

	// Validate OpenTelemetry config
	if c.Observability.OTel.Enabled {
		if c.Observability.OTel.Endpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTel.ServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvList returns a path-list environment variable or a default
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var result []string
	for _, part := range filepath.SplitList(value) {
		if part = strings.TrimSpace(part); part != "" {
			result = append(result, part)
		}
	}
	return result
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
