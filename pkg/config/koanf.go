package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/Sternrassler/bizcache/pkg/cache"
	"github.com/Sternrassler/bizcache/pkg/delivery"
	"github.com/Sternrassler/bizcache/pkg/invalidation"
	"github.com/Sternrassler/bizcache/pkg/ratelimit"
)

// ConfigPathEnvVar names the variable holding the YAML file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// DefaultConfigPaths are tried in order when CONFIG_PATH is unset.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Cache: CacheConfig{
			Enabled:         true,
			RedisURL:        "redis://localhost:6379/0",
			PoolSize:        10,
			OpTimeout:       cache.DefaultOpTimeout,
			ProbeInterval:   cache.DefaultProbeInterval,
			LocalTTL:        cache.DefaultLocalTTL,
			CleanupInterval: cache.DefaultCleanupInterval,
		},
		Delivery: DeliveryConfig{
			CompressionThreshold: delivery.DefaultThreshold,
			CompressionLevel:     delivery.DefaultLevel,
		},
		RateLimit: RateLimitConfig{
			Enabled:  true,
			Requests: ratelimit.DefaultLimit,
			Window:   ratelimit.DefaultWindow,
		},
		Warmer: WarmerConfig{
			Enabled:        true,
			MaxConcurrency: invalidation.DefaultWarmerConfig().MaxConcurrency,
			Timeout:        invalidation.DefaultWarmerConfig().Timeout,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Pretty: false,
		},
	}
}

// Load reads defaults, the config file and the environment, then validates.
func Load() (*Config, error) {
	return load(findConfigFile())
}

// LoadFile is Load with an explicit file path. An empty path skips the file layer.
func LoadFile(path string) (*Config, error) {
	return load(path)
}

func load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		return p
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

var envMappings = map[string]string{
	"host":             "server.host",
	"port":             "server.port",
	"read_timeout":     "server.read_timeout",
	"write_timeout":    "server.write_timeout",
	"shutdown_timeout": "server.shutdown_timeout",

	"cache_enabled":          "cache.enabled",
	"redis_url":              "cache.redis_url",
	"redis_pool_size":        "cache.pool_size",
	"cache_op_timeout":       "cache.op_timeout",
	"cache_probe_interval":   "cache.probe_interval",
	"cache_local_ttl":        "cache.local_ttl",
	"cache_cleanup_interval": "cache.cleanup_interval",

	"compression_threshold": "delivery.compression_threshold",
	"compression_level":     "delivery.compression_level",

	"rate_limit_enabled":  "rate_limit.enabled",
	"rate_limit_requests": "rate_limit.requests",
	"rate_limit_window":   "rate_limit.window",

	"warmer_enabled":     "warmer.enabled",
	"warmer_concurrency": "warmer.max_concurrency",
	"warmer_timeout":     "warmer.timeout",

	"log_level":  "logging.level",
	"log_pretty": "logging.pretty",
}

// envKey maps a variable name to its config path. Unknown variables map to
// "" and are ignored.
func envKey(name string) string {
	return envMappings[strings.ToLower(name)]
}
