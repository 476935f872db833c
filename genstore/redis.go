package genstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/tagcache/internal/util"
)

const scanBatch = 256

// RedisGenStore shares generations across processes and survives restarts.
// Optionally, a TTL can be applied to prefix counters to prevent unbounded
// growth; the TTL is refreshed on every Register and Bump and must exceed the
// longest entry TTL. The epoch never expires.
type RedisGenStore struct {
	rdb         redis.UniversalClient
	ns          string        // logical namespace
	ttl         time.Duration // optional TTL for prefix counters; 0 disables expiry
	closeClient bool
}

var _ GenStore = (*RedisGenStore)(nil)

type RedisConfig struct {
	Client    redis.UniversalClient
	Namespace string
	TTL       time.Duration
	// CloseClient hands ownership of Client to the store.
	CloseClient bool
}

func NewRedisGenStore(cfg RedisConfig) (*RedisGenStore, error) {
	if cfg.Client == nil {
		return nil, errors.New("genstore: nil redis client")
	}
	return &RedisGenStore{rdb: cfg.Client, ns: cfg.Namespace, ttl: cfg.TTL, closeClient: cfg.CloseClient}, nil
}

func (s *RedisGenStore) base() string           { return "gen:" + s.ns + ":" }
func (s *RedisGenStore) key(p string) string    { return s.base() + "p:" + p }
func (s *RedisGenStore) epochKey() string       { return s.base() + "epoch" }
func (s *RedisGenStore) name(key string) string { return strings.TrimPrefix(key, s.base()+"p:") }

func parseGen(v any, at string) (uint64, error) {
	var str string
	switch vv := v.(type) {
	case nil:
		return 0, nil
	case string:
		str = vv
	case []byte:
		str = string(vv)
	default:
		str = fmt.Sprint(vv)
	}
	u, err := strconv.ParseUint(str, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("redis gen parse at %s: %w", at, err)
	}
	return u, nil
}

func (s *RedisGenStore) get(ctx context.Context, key string) (uint64, error) {
	res, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return parseGen(res, key)
}

// Snapshot returns the current generation. Missing keys are generation 0.
func (s *RedisGenStore) Snapshot(ctx context.Context, prefix string) (uint64, error) {
	return s.get(ctx, s.key(prefix))
}

// SnapshotMany reads all generations with a single MGET.
func (s *RedisGenStore) SnapshotMany(ctx context.Context, prefixes []string) (map[string]uint64, error) {
	if len(prefixes) == 0 {
		return map[string]uint64{}, nil
	}
	keys := make([]string, len(prefixes))
	for i, p := range prefixes {
		keys[i] = s.key(p)
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	out := make(map[string]uint64, len(prefixes))
	for i, v := range vals {
		u, err := parseGen(v, prefixes[i])
		if err != nil {
			return nil, err
		}
		out[prefixes[i]] = u
	}
	return out, nil
}

// Register creates missing counters at 0 (SETNX) and reads them back in one
// pipelined round trip.
func (s *RedisGenStore) Register(ctx context.Context, prefixes []string) (map[string]uint64, error) {
	out := make(map[string]uint64, len(prefixes))
	if len(prefixes) == 0 {
		return out, nil
	}
	gets := make([]*redis.StringCmd, len(prefixes))
	_, err := s.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, name := range prefixes {
			k := s.key(name)
			p.SetNX(ctx, k, 0, 0)
			if s.ttl > 0 {
				p.Expire(ctx, k, s.ttl)
			}
			gets[i] = p.Get(ctx, k)
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	for i, cmd := range gets {
		v, err := cmd.Result()
		if errors.Is(err, redis.Nil) {
			out[prefixes[i]] = 0
			continue
		}
		if err != nil {
			return nil, err
		}
		u, err := parseGen(v, prefixes[i])
		if err != nil {
			return nil, err
		}
		out[prefixes[i]] = u
	}
	return out, nil
}

// Bump atomically increments the generation and (optionally) refreshes TTL.
// When ttl > 0, INCR + EXPIRE are pipelined in a single round-trip.
func (s *RedisGenStore) Bump(ctx context.Context, prefix string) (uint64, error) {
	k := s.key(prefix)

	if s.ttl <= 0 {
		v, err := s.rdb.Incr(ctx, k).Result()
		if err != nil {
			return 0, err
		}
		return uint64(v), nil
	}

	var incr *redis.IntCmd
	_, err := s.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, k)
		p.Expire(ctx, k, s.ttl)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return uint64(incr.Val()), nil
}

func (s *RedisGenStore) scan(ctx context.Context, match string, fn func(keys []string) error) error {
	var cursor uint64
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, match, scanBatch).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := fn(keys); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

func (s *RedisGenStore) Keys(ctx context.Context, startsWith string) ([]string, error) {
	seen := make(map[string]struct{})
	match := util.EscapeGlob(s.key(startsWith)) + "*"
	err := s.scan(ctx, match, func(keys []string) error {
		for _, k := range keys {
			seen[s.name(k)] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

func (s *RedisGenStore) Reset(ctx context.Context) error {
	return s.scan(ctx, util.EscapeGlob(s.key(""))+"*", func(keys []string) error {
		return s.rdb.Del(ctx, keys...).Err()
	})
}

func (s *RedisGenStore) Epoch(ctx context.Context) (uint64, error) {
	return s.get(ctx, s.epochKey())
}

func (s *RedisGenStore) BumpEpoch(ctx context.Context) (uint64, error) {
	v, err := s.rdb.Incr(ctx, s.epochKey()).Result()
	if err != nil {
		return 0, err
	}
	return uint64(v), nil
}

// Cleanup is not applicable for RedisGenStore (Redis handles expiry if TTL is set).
func (s *RedisGenStore) Cleanup(time.Duration) {}

// Close closes the client when the store owns it.
func (s *RedisGenStore) Close(context.Context) error {
	if !s.closeClient {
		return nil
	}
	if err := s.rdb.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
		return err
	}
	return nil
}
