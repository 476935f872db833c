package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the default environment prefix: TAGCACHE_BACKEND,
// TAGCACHE_LOCK_MODE, ...
const EnvPrefix = "TAGCACHE"

// Load reads configPath (optional) and environment variables, applies
// defaults and validates. Errors from Validate wrap ErrConfiguration.
func Load(configPath, envPrefix string) (*Config, error) {
	v := viper.New()

	if envPrefix != "" {
		v.SetEnvPrefix(envPrefix)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// defaults go through viper so every key is known and env overrides bind
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromEnv loads configuration only from environment variables.
func LoadFromEnv(envPrefix string) (*Config, error) {
	return Load("", envPrefix)
}

// Default returns the configuration Load produces with no file and no env.
func Default() Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("backend", BackendLocal)
	v.SetDefault("connection_string", "")
	v.SetDefault("instance_name", "")
	v.SetDefault("default_ttl_minutes", 120)
	v.SetDefault("short_ttl_minutes", 1)
	v.SetDefault("codec", "json")
	v.SetDefault("max_value_bytes", 0)

	v.SetDefault("local.store", StoreRistretto)
	v.SetDefault("local.max_cost", 100_000)
	v.SetDefault("local.num_counters", 1_000_000)
	v.SetDefault("local.life_window", 24*time.Hour)
	v.SetDefault("local.max_size_mb", 0)
	v.SetDefault("local.clean_window", 5*time.Minute)
	v.SetDefault("local.shared_generations", false)
	v.SetDefault("local.gen_retention", 30*24*time.Hour)
	v.SetDefault("local.cleanup_interval", time.Hour)

	v.SetDefault("distributed.pool_size", 10)
	v.SetDefault("distributed.dial_timeout", 5*time.Second)
	v.SetDefault("distributed.retry_attempts", 3)
	v.SetDefault("distributed.retry_interval", time.Second)
	v.SetDefault("distributed.prune_interval", time.Duration(0))

	v.SetDefault("lock.mode", "auto")
	v.SetDefault("lock.key_prefix", "lock:")
}
