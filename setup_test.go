package tagcache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/unkn0wn-root/tagcache/codec"
	"github.com/unkn0wn-root/tagcache/config"
	"github.com/unkn0wn-root/tagcache/memo"
)

func openT(t *testing.T, cfg config.Config) *Manager {
	t.Helper()
	m, err := Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = m.Close(context.Background()) })
	return m
}

func forT[V any](t *testing.T, m *Manager) Cache[V] {
	t.Helper()
	cc, err := For[V](m)
	if err != nil {
		t.Fatalf("For: %v", err)
	}
	return cc
}

// scenario is the basic compute, read, invalidate round trip.
func scenario(t *testing.T, m *Manager) {
	t.Helper()
	ctx := context.Background()
	users := forT[*user](t, m)

	k, err := m.Keys.PrepareDefault(NewKey("default.key", 0, "default"))
	if err != nil {
		t.Fatal(err)
	}
	if k.TTL() != DefaultCacheTime {
		t.Fatalf("default TTL = %v", k.TTL())
	}

	calls := 0
	v, err := users.GetOrCompute(ctx, k, kadir(&calls))
	if err != nil || v == nil || *v != (user{Name: "Kadir", Age: 12}) {
		t.Fatalf("GetOrCompute = %+v, %v", v, err)
	}

	got, ok, err := users.Get(ctx, k)
	if err != nil || !ok || got.Name != "Kadir" {
		t.Fatalf("Get = %+v ok=%v err=%v", got, ok, err)
	}

	if err := users.RemoveByPrefix(ctx, "defa"); err != nil {
		t.Fatal(err)
	}
	if _, ok, err := users.Get(ctx, k); err != nil || ok {
		t.Fatalf("Get after RemoveByPrefix ok=%v err=%v", ok, err)
	}
}

func TestOpenLocalRistretto(t *testing.T) {
	m := openT(t, config.Default())
	if m.Backend.Kind() != KindLocal || m.Locker.Mode() != LockAtomic {
		t.Fatalf("kind=%s lock=%v", m.Backend.Kind(), m.Locker.Mode())
	}
	scenario(t, m)
}

func TestOpenLocalBigcache(t *testing.T) {
	cfg := config.Default()
	cfg.Local.Store = config.StoreBigcache
	cfg.Codec = "msgpack"
	scenario(t, openT(t, cfg))
}

func TestOpenLocalSharedGenerations(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := config.Default()
	cfg.ConnectionString = mr.Addr()
	cfg.InstanceName = "svc"
	cfg.Local.SharedGenerations = true

	ca := forT[string](t, openT(t, cfg))
	cb := forT[string](t, openT(t, cfg))
	ctx := context.Background()

	k := NewKey("greeting", time.Hour, "greetings")
	if err := ca.Set(ctx, k, "hi from a"); err != nil {
		t.Fatal(err)
	}
	if err := cb.Set(ctx, k, "hi from b"); err != nil {
		t.Fatal(err)
	}

	if err := ca.RemoveByPrefix(ctx, "greet"); err != nil {
		t.Fatal(err)
	}
	if _, ok, err := cb.Get(ctx, k); err != nil || ok {
		t.Fatalf("prefix invalidation must reach the other process: ok=%v err=%v", ok, err)
	}
}

func TestOpenDistributed(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := config.Default()
	cfg.Backend = "Distributed"
	cfg.ConnectionString = "redis://" + mr.Addr()
	cfg.InstanceName = "svc:"
	cfg.Codec = "cbor"

	m := openT(t, cfg)
	if m.Backend.Kind() != KindDistributed || m.Locker.Mode() != LockAtomic {
		t.Fatalf("kind=%s lock=%v", m.Backend.Kind(), m.Locker.Mode())
	}
	scenario(t, m)

	// keys carry the instance prefix in the shared store
	strs := forT[string](t, m)
	if err := strs.Set(context.Background(), NewKey("k", time.Hour), "v"); err != nil {
		t.Fatal(err)
	}
	if !mr.Exists("svc:k") {
		t.Fatalf("svc:k missing, have %v", mr.Keys())
	}

	ok, err := m.Locker.WithLock(context.Background(), "job", time.Minute, func(context.Context) error {
		if !mr.Exists("svc:lock:job") {
			t.Errorf("lock sentinel missing, have %v", mr.Keys())
		}
		return nil
	})
	if err != nil || !ok {
		t.Fatalf("WithLock = %v, %v", ok, err)
	}
}

func TestOpenRejectsBadConfig(t *testing.T) {
	cases := map[string]func(*config.Config){
		"no backend":           func(c *config.Config) { c.Backend = "" },
		"unknown backend":      func(c *config.Config) { c.Backend = "memcached" },
		"distributed no conn":  func(c *config.Config) { c.Backend = config.BackendDistributed },
		"shared gens no conn":  func(c *config.Config) { c.Local.SharedGenerations = true },
		"zero default ttl":     func(c *config.Config) { c.DefaultTTLMinutes = 0 },
		"unknown lock mode":    func(c *config.Config) { c.Lock.Mode = "optimistic" },
		"unknown codec":        func(c *config.Config) { c.Codec = "xml" },
		"bigcache no lifetime": func(c *config.Config) { c.Local.Store = config.StoreBigcache; c.Local.LifeWindow = 0 },
		"unknown local store":  func(c *config.Config) { c.Local.Store = "lru" },
		"negative short ttl":   func(c *config.Config) { c.ShortTTLMinutes = -1 },
		"negative value limit": func(c *config.Config) { c.MaxValueBytes = -1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := config.Default()
			mutate(&cfg)
			if _, err := Open(context.Background(), cfg); !errors.Is(err, config.ErrConfiguration) {
				t.Fatalf("Open err = %v, want ErrConfiguration", err)
			}
		})
	}
}

func TestOpenUnreachableRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := config.Default()
	cfg.Backend = config.BackendDistributed
	cfg.ConnectionString = addr
	cfg.Distributed.RetryAttempts = 1
	cfg.Distributed.RetryInterval = time.Millisecond
	if _, err := Open(context.Background(), cfg); err == nil {
		t.Fatalf("Open should fail against a closed server")
	}
}

func TestForAppliesTuning(t *testing.T) {
	m := openT(t, config.Default())
	cc, err := For[string](m, func(o *Options[string]) { o.Disabled = true })
	if err != nil {
		t.Fatal(err)
	}
	if cc.Enabled() {
		t.Fatalf("tuning did not disable the cache")
	}

	if _, err := For[string](nil); err == nil {
		t.Fatalf("For(nil) should fail")
	}
	if _, err := codecFor[string]("xml"); !errors.Is(err, config.ErrConfiguration) {
		t.Fatalf("codecFor(xml) = %v", err)
	}
}

func TestMemoAcrossCachesOfOneManager(t *testing.T) {
	m := openT(t, config.Default())
	ctx := memo.NewContext(context.Background())
	cc := forT[int](t, m)

	k := NewKey("counter", time.Hour, "counters")
	if err := cc.Set(ctx, k, 41); err != nil {
		t.Fatal(err)
	}
	if v, ok := memo.Lookup(ctx, "counter"); !ok || v != 41 {
		t.Fatalf("memo = %v, %v", v, ok)
	}

	if err := cc.RemoveByPrefix(ctx, "COUNT"); err != nil {
		t.Fatal(err)
	}
	if memo.Contains(ctx, "counter") {
		t.Fatalf("RemoveByPrefix must forget the memo entry")
	}
}

func TestForProtoStoresMessages(t *testing.T) {
	cfg := config.Default()
	cfg.Codec = "msgpack"
	m := openT(t, cfg)
	ctx := context.Background()

	names, err := ForProto(m, func() *wrapperspb.StringValue { return new(wrapperspb.StringValue) })
	if err != nil {
		t.Fatal(err)
	}
	k := NewKey("name.{0}", time.Hour, "names")
	k, _ = k.Resolve(7)
	if err := names.Set(ctx, k, wrapperspb.String("Kadir")); err != nil {
		t.Fatal(err)
	}
	got, ok, err := names.Get(ctx, k)
	if err != nil || !ok || !proto.Equal(got, wrapperspb.String("Kadir")) {
		t.Fatalf("Get = %v ok=%v err=%v", got, ok, err)
	}

	if _, err := ForProto[*wrapperspb.StringValue](m, nil); err == nil {
		t.Fatalf("nil constructor should fail")
	}
}

func TestMaxValueBytesRefusesLargePayloads(t *testing.T) {
	cfg := config.Default()
	cfg.MaxValueBytes = 16
	m := openT(t, cfg)
	ctx := context.Background()
	strs := forT[string](t, m)

	small := NewKey("small", time.Hour)
	if err := strs.Set(ctx, small, "ok"); err != nil {
		t.Fatal(err)
	}
	if v, ok, err := strs.Get(ctx, small); err != nil || !ok || v != "ok" {
		t.Fatalf("small Get = %q ok=%v err=%v", v, ok, err)
	}

	big := NewKey("big", time.Hour)
	if err := strs.Set(ctx, big, "a value well past sixteen bytes"); err != nil {
		t.Fatal(err)
	}
	_, _, err := strs.Get(ctx, big)
	if !errors.Is(err, ErrSerialization) || !errors.Is(err, codec.ErrTooLarge) {
		t.Fatalf("large Get err = %v", err)
	}
}
