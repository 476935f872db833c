package genstore

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisStore(t *testing.T, ttl time.Duration) (*RedisGenStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s, err := NewRedisGenStore(RedisConfig{Client: rdb, Namespace: "app", TTL: ttl, CloseClient: true})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s, mr
}

func TestRedisRegisterBumpSnapshot(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisStore(t, 0)

	got, err := s.Register(ctx, []string{"default", "orders"})
	if err != nil {
		t.Fatal(err)
	}
	if got["default"] != 0 || got["orders"] != 0 {
		t.Fatalf("fresh prefixes should be 0: %v", got)
	}
	if !mr.Exists("gen:app:p:default") {
		t.Fatalf("register should create the counter; keys=%v", mr.Keys())
	}

	if g, err := s.Bump(ctx, "orders"); err != nil || g != 1 {
		t.Fatalf("Bump = %d, %v", g, err)
	}
	got, err = s.Register(ctx, []string{"orders"})
	if err != nil || got["orders"] != 1 {
		t.Fatalf("register must keep existing gen: %v %v", got, err)
	}

	many, err := s.SnapshotMany(ctx, []string{"default", "orders", "missing"})
	if err != nil {
		t.Fatal(err)
	}
	if many["default"] != 0 || many["orders"] != 1 || many["missing"] != 0 {
		t.Fatalf("SnapshotMany = %v", many)
	}
	if mr.Exists("gen:app:p:missing") {
		t.Fatalf("snapshot must not create counters")
	}
}

func TestRedisKeysEscapesPattern(t *testing.T) {
	ctx := context.Background()
	s, _ := newRedisStore(t, 0)

	if _, err := s.Register(ctx, []string{"default", "default.users", "de*fault", "other"}); err != nil {
		t.Fatal(err)
	}
	keys, err := s.Keys(ctx, "defa")
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"default", "default.users"}; !reflect.DeepEqual(keys, want) {
		t.Fatalf("Keys = %v want %v", keys, want)
	}
	keys, _ = s.Keys(ctx, "de*")
	if want := []string{"de*fault"}; !reflect.DeepEqual(keys, want) {
		t.Fatalf("glob chars must be literal: %v", keys)
	}
}

func TestRedisResetKeepsEpoch(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisStore(t, 0)

	if _, err := s.Bump(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if e, err := s.BumpEpoch(ctx); err != nil || e != 1 {
		t.Fatalf("BumpEpoch = %d, %v", e, err)
	}
	if err := s.Reset(ctx); err != nil {
		t.Fatal(err)
	}
	if mr.Exists("gen:app:p:a") {
		t.Fatalf("reset should delete prefix counters")
	}
	if e, _ := s.Epoch(ctx); e != 1 {
		t.Fatalf("reset must keep the epoch, got %d", e)
	}
}

func TestRedisTTLRefreshedOnBump(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisStore(t, time.Minute)

	if _, err := s.Bump(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if ttl := mr.TTL("gen:app:p:a"); ttl != time.Minute {
		t.Fatalf("ttl = %v want 1m", ttl)
	}
	mr.FastForward(2 * time.Minute)
	if g, _ := s.Snapshot(ctx, "a"); g != 0 {
		t.Fatalf("expired counter should read as 0, got %d", g)
	}
}

func TestRedisRejectsNilClient(t *testing.T) {
	if _, err := NewRedisGenStore(RedisConfig{}); err == nil {
		t.Fatalf("expected error for nil client")
	}
}
