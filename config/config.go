// Package config loads the cache configuration from a YAML file and
// TAGCACHE_* environment variables.
package config

import (
	"errors"
	"time"
)

// ErrConfiguration marks a configuration the cache cannot start with.
var ErrConfiguration = errors.New("tagcache: invalid configuration")

const (
	BackendLocal       = "local"
	BackendDistributed = "distributed"

	StoreRistretto = "ristretto"
	StoreBigcache  = "bigcache"
)

type Config struct {
	// Backend selects exactly one backend: "local" or "distributed".
	Backend string `mapstructure:"backend"`
	// ConnectionString is the Redis address or URL. Required for the
	// distributed backend and for shared generations.
	ConnectionString string `mapstructure:"connection_string"`
	// InstanceName prefixes every key in the shared store.
	InstanceName string `mapstructure:"instance_name"`

	DefaultTTLMinutes int `mapstructure:"default_ttl_minutes"`
	ShortTTLMinutes   int `mapstructure:"short_ttl_minutes"`

	// Codec is the value encoding used by typed caches: json, msgpack, cbor.
	Codec string `mapstructure:"codec"`
	// MaxValueBytes > 0 refuses to decode stored payloads larger than this.
	MaxValueBytes int `mapstructure:"max_value_bytes"`

	Local       LocalConfig       `mapstructure:"local"`
	Distributed DistributedConfig `mapstructure:"distributed"`
	Lock        LockConfig        `mapstructure:"lock"`
}

type LocalConfig struct {
	// Store is the in-process store: ristretto (default) or bigcache.
	Store string `mapstructure:"store"`

	// ristretto
	MaxCost     int64 `mapstructure:"max_cost"`
	NumCounters int64 `mapstructure:"num_counters"`

	// bigcache
	LifeWindow  time.Duration `mapstructure:"life_window"`
	MaxSizeMB   int           `mapstructure:"max_size_mb"`
	CleanWindow time.Duration `mapstructure:"clean_window"`

	// SharedGenerations keeps prefix generations in Redis so that prefix
	// invalidation reaches every process. Needs ConnectionString.
	SharedGenerations bool          `mapstructure:"shared_generations"`
	GenRetention      time.Duration `mapstructure:"gen_retention"`
	CleanupInterval   time.Duration `mapstructure:"cleanup_interval"`
}

type DistributedConfig struct {
	PoolSize      int           `mapstructure:"pool_size"`
	DialTimeout   time.Duration `mapstructure:"dial_timeout"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
	RetryInterval time.Duration `mapstructure:"retry_interval"`
	// PruneInterval > 0 drops expired keys from the in-process registry.
	PruneInterval time.Duration `mapstructure:"prune_interval"`
}

type LockConfig struct {
	// Mode is auto, atomic or naive.
	Mode      string `mapstructure:"mode"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

func (c Config) DefaultTTL() time.Duration { return time.Duration(c.DefaultTTLMinutes) * time.Minute }
func (c Config) ShortTTL() time.Duration   { return time.Duration(c.ShortTTLMinutes) * time.Minute }
