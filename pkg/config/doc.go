// Package config loads plugin manager configuration from environment
// variables with defaults for every setting.
//
// # Environment
//
// Plugin discovery:
//
//	PLUGMAN_PLUGIN_DIRS="/opt/app/plugins:/usr/share/app/plugins"
//	PLUGMAN_MANIFEST_NAME="plugin.yaml"
//	PLUGMAN_DISCOVERY_CONCURRENCY="4"
//	PLUGMAN_MANIFEST_CACHE_SIZE="256"  # 0 disables the cache
//	PLUGMAN_MANIFEST_CACHE_TTL="5m"
//
// Introspection server (plugman serve):
//
//	PLUGMAN_HTTP_ADDR="127.0.0.1:9464"
//	PLUGMAN_READ_TIMEOUT="15s"
//	PLUGMAN_WRITE_TIMEOUT="15s"
//	PLUGMAN_SHUTDOWN_TIMEOUT="30s"
//	PLUGMAN_LOAD_RATE_LIMIT="6"  # load triggers per client per minute, 0 disables
//
// Observability:
//
//	PLUGMAN_LOG_LEVEL="info"  # debug, info, warn, error
//	PLUGMAN_LOG_FORMAT="text" # text, json
//	PLUGMAN_METRICS_ENABLED="true"
//	PLUGMAN_OTEL_ENABLED="true"
//	PLUGMAN_OTEL_ENDPOINT="otel-collector:4317"
//
// # Usage Example
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println(cfg.Plugins.SearchDirs)
//
// # Related Packages
//
//   - pkg/plugins: Builds manager options from PluginConfig
//   - pkg/observability: Uses observability configuration
package config
