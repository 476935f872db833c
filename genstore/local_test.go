package genstore

import (
	"context"
	"reflect"
	"testing"
	"time"
)

func TestLocalSnapshotManyIncludesAllAndZeroForMissing(t *testing.T) {
	ctx := context.Background()
	s := NewLocalGenStore(0, 0)
	t.Cleanup(func() { _ = s.Close(ctx) })

	keys := []string{"a", "b", "c"}
	// bump b twice -> gen=2
	if _, err := s.Bump(ctx, "b"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Bump(ctx, "b"); err != nil {
		t.Fatal(err)
	}

	got, err := s.SnapshotMany(ctx, keys)
	if err != nil {
		t.Fatal(err)
	}

	if got["a"] != 0 || got["b"] != 2 || got["c"] != 0 {
		t.Fatalf("got=%v want a=0,b=2,c=0", got)
	}
}

func TestLocalSnapshotDoesNotRegister(t *testing.T) {
	ctx := context.Background()
	s := NewLocalGenStore(0, 0)
	t.Cleanup(func() { _ = s.Close(ctx) })

	if _, err := s.SnapshotMany(ctx, []string{"ghost"}); err != nil {
		t.Fatal(err)
	}
	keys, _ := s.Keys(ctx, "")
	if len(keys) != 0 {
		t.Fatalf("snapshot must not register prefixes, got %v", keys)
	}
}

func TestLocalRegisterAndKeys(t *testing.T) {
	ctx := context.Background()
	s := NewLocalGenStore(0, 0)
	t.Cleanup(func() { _ = s.Close(ctx) })

	got, err := s.Register(ctx, []string{"default", "default.users", "orders"})
	if err != nil {
		t.Fatal(err)
	}
	for k, g := range got {
		if g != 0 {
			t.Fatalf("fresh prefix %s should start at 0, got %d", k, g)
		}
	}
	if _, err := s.Bump(ctx, "orders"); err != nil {
		t.Fatal(err)
	}
	got, _ = s.Register(ctx, []string{"orders"})
	if got["orders"] != 1 {
		t.Fatalf("register must not reset a known prefix, got %d", got["orders"])
	}

	keys, err := s.Keys(ctx, "defa")
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"default", "default.users"}; !reflect.DeepEqual(keys, want) {
		t.Fatalf("Keys = %v want %v", keys, want)
	}
}

func TestLocalResetKeepsEpoch(t *testing.T) {
	ctx := context.Background()
	s := NewLocalGenStore(0, 0)
	t.Cleanup(func() { _ = s.Close(ctx) })

	if _, err := s.Bump(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if e, _ := s.BumpEpoch(ctx); e != 1 {
		t.Fatalf("epoch = %d want 1", e)
	}
	if err := s.Reset(ctx); err != nil {
		t.Fatal(err)
	}
	if g, _ := s.Snapshot(ctx, "a"); g != 0 {
		t.Fatalf("reset should drop prefix counters, got %d", g)
	}
	if e, _ := s.Epoch(ctx); e != 1 {
		t.Fatalf("reset must keep the epoch, got %d", e)
	}
}

func TestLocalSnapshotManyDoesNotMutateInput(t *testing.T) {
	ctx := context.Background()
	s := NewLocalGenStore(0, 0)
	t.Cleanup(func() { _ = s.Close(ctx) })

	in := []string{"x", "y"}
	cp := append([]string(nil), in...)
	if _, err := s.SnapshotMany(ctx, in); err != nil {
		t.Fatal(err)
	}
	for i := range in {
		if in[i] != cp[i] {
			t.Fatalf("input mutated at %d: %q -> %q", i, cp[i], in[i])
		}
	}
}

func TestLocalCleanupPrunesOld(t *testing.T) {
	ctx := context.Background()
	s := NewLocalGenStore(0, time.Second)
	t.Cleanup(func() { _ = s.Close(ctx) })

	now := time.Now()
	s.now = func() time.Time { return now }

	if _, err := s.Bump(ctx, "old"); err != nil {
		t.Fatal(err)
	}
	now = now.Add(1500 * time.Millisecond)
	if _, err := s.Register(ctx, []string{"fresh"}); err != nil {
		t.Fatal(err)
	}
	s.Cleanup(time.Second)

	if g, _ := s.Snapshot(ctx, "old"); g != 0 {
		t.Fatalf("expected pruned -> 0, got %d", g)
	}
	if keys, _ := s.Keys(ctx, ""); !reflect.DeepEqual(keys, []string{"fresh"}) {
		t.Fatalf("fresh prefix should survive cleanup, keys=%v", keys)
	}
}

func TestLocalCloseIdempotent(t *testing.T) {
	s := NewLocalGenStore(10*time.Millisecond, time.Minute)
	if err := s.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
}
