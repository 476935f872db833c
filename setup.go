package tagcache

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/protobuf/proto"

	c "github.com/unkn0wn-root/tagcache/codec"
	"github.com/unkn0wn-root/tagcache/config"
	gen "github.com/unkn0wn-root/tagcache/genstore"
	pr "github.com/unkn0wn-root/tagcache/provider"
	"github.com/unkn0wn-root/tagcache/provider/bigcache"
	"github.com/unkn0wn-root/tagcache/provider/redis"
	"github.com/unkn0wn-root/tagcache/provider/ristretto"
)

// Manager is what Open builds from a config: one backend, a lock on the same
// store and a key factory carrying the configured TTLs.
type Manager struct {
	Backend Backend
	Locker  *Locker
	Keys    KeyFactory

	codec    string
	maxValue int
	log      Logger
	hooks    Hooks
}

type OpenOption func(*openOptions)

type openOptions struct {
	log   Logger
	hooks Hooks
}

func WithLogger(l Logger) OpenOption { return func(o *openOptions) { o.log = l } }
func WithHooks(h Hooks) OpenOption   { return func(o *openOptions) { o.hooks = h } }

// Open validates cfg and constructs exactly one backend. Configuration
// problems are returned wrapping config.ErrConfiguration.
func Open(ctx context.Context, cfg config.Config, opts ...OpenOption) (*Manager, error) {
	if err := config.Validate(&cfg); err != nil {
		return nil, err
	}
	o := openOptions{log: NopLogger{}, hooks: NopHooks{}}
	for _, opt := range opts {
		opt(&o)
	}
	o.log = coalesce[Logger](o.log, NopLogger{})
	o.hooks = coalesce[Hooks](o.hooks, NopHooks{})

	mode, err := ParseLockMode(cfg.Lock.Mode)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrConfiguration, err)
	}

	var b Backend
	switch cfg.Backend {
	case config.BackendDistributed:
		b, err = openDistributed(ctx, cfg, o)
	default:
		b, err = openLocal(ctx, cfg, o)
	}
	if err != nil {
		return nil, err
	}

	l, err := NewLocker(b.Provider(), LockOptions{
		Mode:      mode,
		KeyPrefix: cfg.Lock.KeyPrefix,
		Logger:    o.log,
		Hooks:     o.hooks,
	})
	if err != nil {
		_ = b.Close(ctx)
		return nil, err
	}

	o.log.Info("cache opened", Fields{"backend": b.Kind(), "lock": l.Mode().String()})
	return &Manager{
		Backend: b,
		Locker:  l,
		Keys:    NewKeyFactory(cfg.DefaultTTL(), cfg.ShortTTL()),
		codec:   cfg.Codec,
		log:     o.log,
		hooks:   o.hooks,

		maxValue: cfg.MaxValueBytes,
	}, nil
}

func redisOptions(cfg config.Config) []redis.Option {
	d := cfg.Distributed
	var out []redis.Option
	if d.PoolSize > 0 {
		out = append(out, redis.WithPoolSize(d.PoolSize))
	}
	if d.RetryAttempts > 0 {
		out = append(out, redis.WithRetry(d.RetryAttempts, d.RetryInterval))
	}
	if d.DialTimeout > 0 {
		out = append(out, redis.WithTimeouts(d.DialTimeout, d.DialTimeout, d.DialTimeout))
	}
	return out
}

func openDistributed(ctx context.Context, cfg config.Config, o openOptions) (Backend, error) {
	rdb, err := redis.Open(ctx, cfg.ConnectionString, redisOptions(cfg)...)
	if err != nil {
		return nil, err
	}
	p, err := redis.New(redis.Config{Client: rdb, CloseClient: true, InstanceName: cfg.InstanceName})
	if err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return NewDistributedBackend(DistributedOptions{
		Provider:      p,
		Logger:        o.log,
		Hooks:         o.hooks,
		PruneInterval: cfg.Distributed.PruneInterval,
	})
}

func openLocal(ctx context.Context, cfg config.Config, o openOptions) (Backend, error) {
	lc := cfg.Local

	var (
		p   pr.Provider
		err error
	)
	switch lc.Store {
	case config.StoreBigcache:
		p, err = bigcache.New(bigcache.Config{
			LifeWindow:         lc.LifeWindow,
			CleanWindow:        lc.CleanWindow,
			HardMaxCacheSizeMB: lc.MaxSizeMB,
		})
	default:
		rc := ristretto.DefaultConfig()
		if lc.MaxCost > 0 {
			rc.MaxCost = lc.MaxCost
		}
		if lc.NumCounters > 0 {
			rc.NumCounters = lc.NumCounters
		}
		p, err = ristretto.New(rc)
	}
	if err != nil {
		return nil, err
	}

	var gs gen.GenStore
	if lc.SharedGenerations {
		rdb, err := redis.Open(ctx, cfg.ConnectionString, redisOptions(cfg)...)
		if err != nil {
			_ = p.Close(ctx)
			return nil, err
		}
		gs, err = gen.NewRedisGenStore(gen.RedisConfig{
			Client:      rdb,
			Namespace:   cfg.InstanceName,
			TTL:         lc.GenRetention,
			CloseClient: true,
		})
		if err != nil {
			_ = rdb.Close()
			_ = p.Close(ctx)
			return nil, err
		}
	}

	return NewLocalBackend(LocalOptions{
		Provider:        p,
		Logger:          o.log,
		Hooks:           o.hooks,
		GenStore:        gs,
		CleanupInterval: lc.CleanupInterval,
		GenRetention:    lc.GenRetention,
	})
}

// Close closes the backend.
func (m *Manager) Close(ctx context.Context) error {
	return m.Backend.Close(ctx)
}

// For returns a typed cache over m's backend using the configured codec.
// tune, if given, adjusts the options before construction.
func For[V any](m *Manager, tune ...func(*Options[V])) (Cache[V], error) {
	if m == nil {
		return nil, errors.New("tagcache: nil manager")
	}
	cd, err := codecFor[V](m.codec)
	if err != nil {
		return nil, err
	}
	if m.maxValue > 0 {
		cd = c.Limit[V]{Inner: cd, MaxDecode: m.maxValue}
	}
	opts := Options[V]{Backend: m.Backend, Codec: cd, Logger: m.log, Hooks: m.hooks}
	for _, f := range tune {
		f(&opts)
	}
	return New(opts)
}

// ForProto is For for protobuf messages. Messages always use the protobuf
// wire format, whatever codec the config names; ctor must return a fresh
// non-nil message.
func ForProto[T proto.Message](m *Manager, ctor func() T, tune ...func(*Options[T])) (Cache[T], error) {
	if ctor == nil {
		return nil, errors.New("tagcache: nil message constructor")
	}
	set := func(o *Options[T]) {
		var cd c.Codec[T] = c.NewProtobuf(ctor)
		if m.maxValue > 0 {
			cd = c.Limit[T]{Inner: cd, MaxDecode: m.maxValue}
		}
		o.Codec = cd
	}
	return For(m, append([]func(*Options[T]){set}, tune...)...)
}

func codecFor[V any](name string) (c.Codec[V], error) {
	cd, err := c.ByName[V](name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrConfiguration, err)
	}
	return cd, nil
}
