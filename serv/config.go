package serv

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is the service configuration, loaded from a YAML file with
// FMSYNC_-prefixed environment overrides.
type Config struct {
	// APIBaseURL is the Buildstate FM API root, e.g.
	// https://api.buildstate.io/v1
	APIBaseURL string `mapstructure:"api_base_url"`

	// APIToken is the bearer token. Usually supplied via
	// FMSYNC_API_TOKEN rather than the config file.
	APIToken string `mapstructure:"api_token"`

	// LogLevel is one of debug, info, warn, error, none.
	LogLevel string `mapstructure:"log_level"`

	// LogJSON switches log output from console to JSON.
	LogJSON bool `mapstructure:"log_json"`

	// CacheBackend is "memory" or "redis".
	CacheBackend string `mapstructure:"cache_backend"`

	// RedisURL is required when CacheBackend is "redis".
	RedisURL string `mapstructure:"redis_url"`

	// SubscribeURL is the websocket endpoint for entity-change events.
	// Empty disables push invalidation.
	SubscribeURL string `mapstructure:"subscribe_url"`

	Caching CachingConfig `mapstructure:"caching"`
	Upload  UploadConfig  `mapstructure:"upload"`

	// MaxInflightMutations bounds concurrent mutation attempts and
	// with them the live rollback snapshots. Zero uses the engine
	// default.
	MaxInflightMutations int `mapstructure:"max_inflight_mutations"`

	// RefreshWorkers sizes the stale-entry refresh pool.
	RefreshWorkers int `mapstructure:"refresh_workers"`
}

// UploadConfig controls the upload queue.
type UploadConfig struct {
	// CompressionThreshold is the payload size in bytes above which
	// non-image files are gzipped before transfer. Zero uses the
	// default.
	CompressionThreshold int64 `mapstructure:"compression_threshold"`

	// QueueDepth bounds how many batches may wait. Zero uses the
	// default.
	QueueDepth int `mapstructure:"queue_depth"`
}

// ReadInConfig loads the configuration from the given file path.
func ReadInConfig(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)

	v.SetDefault("log_level", "info")
	v.SetDefault("cache_backend", "memory")
	v.SetDefault("caching.ttl", 3600)
	v.SetDefault("caching.fresh_ttl", 300)
	v.SetDefault("refresh_workers", 4)

	v.SetEnvPrefix("FMSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var conf Config
	if err := v.Unmarshal(&conf); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &conf, nil
}

// Validate checks the configuration for mistakes that would otherwise
// surface as confusing runtime failures.
func (c *Config) Validate() error {
	if c.APIBaseURL == "" {
		return fmt.Errorf("api_base_url is required")
	}
	switch c.CacheBackend {
	case "", "memory":
	case "redis":
		if c.RedisURL == "" {
			return fmt.Errorf("redis_url is required when cache_backend is redis")
		}
	default:
		return fmt.Errorf("unknown cache_backend %q", c.CacheBackend)
	}
	if c.Caching.FreshTTL > c.Caching.TTL && c.Caching.TTL > 0 {
		return fmt.Errorf("caching.fresh_ttl must not exceed caching.ttl")
	}
	return nil
}
