package tagcache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	pr "github.com/unkn0wn-root/tagcache/provider"
	"github.com/unkn0wn-root/tagcache/provider/ristretto"
)

func TestLockModeParse(t *testing.T) {
	for in, want := range map[string]LockMode{"": LockAuto, "auto": LockAuto, "atomic": LockAtomic, "naive": LockNaive} {
		got, err := ParseLockMode(in)
		if err != nil || got != want {
			t.Fatalf("ParseLockMode(%q) = %v, %v", in, got, err)
		}
		if in != "" && got.String() != in {
			t.Fatalf("String() = %q want %q", got.String(), in)
		}
	}
	if _, err := ParseLockMode("optimistic"); err == nil {
		t.Fatalf("unknown mode should fail")
	}
}

func mustLocker(t *testing.T, p pr.Provider, opts LockOptions) *Locker {
	t.Helper()
	l, err := NewLocker(p, opts)
	if err != nil {
		t.Fatalf("NewLocker: %v", err)
	}
	return l
}

func TestLockModeSelection(t *testing.T) {
	plain := newMemProvider()
	capable := atomicMemProvider{newMemProvider()}

	for _, tc := range []struct {
		name string
		l    *Locker
		want LockMode
	}{
		{"auto with Adder", mustLocker(t, capable, LockOptions{}), LockAtomic},
		{"auto without Adder", mustLocker(t, plain, LockOptions{}), LockNaive},
		{"forced naive", mustLocker(t, capable, LockOptions{Mode: LockNaive}), LockNaive},
	} {
		if got := tc.l.Mode(); got != tc.want {
			t.Fatalf("%s: mode = %v want %v", tc.name, got, tc.want)
		}
	}

	if _, err := NewLocker(plain, LockOptions{Mode: LockAtomic}); !errors.Is(err, ErrAtomicLockUnsupported) {
		t.Fatalf("atomic on plain provider: %v", err)
	}
	if _, err := NewLocker(nil, LockOptions{}); !errors.Is(err, ErrNoProvider) {
		t.Fatalf("nil provider: %v", err)
	}
}

func TestWithLockRunsAndReleases(t *testing.T) {
	mp := newMemProvider()
	l := mustLocker(t, atomicMemProvider{mp}, LockOptions{})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ran := false
		ok, err := l.WithLock(ctx, "report", time.Minute, func(context.Context) error {
			ran = true
			if !mp.has("lock:report") {
				t.Errorf("sentinel not held while fn runs")
			}
			return nil
		})
		if err != nil || !ok || !ran {
			t.Fatalf("round %d: ok=%v ran=%v err=%v", i, ok, ran, err)
		}
	}
	if mp.has("lock:report") {
		t.Fatalf("sentinel left behind")
	}
}

func TestWithLockExcludesOverlappingHolder(t *testing.T) {
	h := newRecHooks()
	l := mustLocker(t, atomicMemProvider{newMemProvider()}, LockOptions{Hooks: h, KeyPrefix: "mutex/"})
	ctx := context.Background()

	ok, err := l.WithLock(ctx, "job", time.Minute, func(ctx context.Context) error {
		inner, err := l.WithLock(ctx, "job", time.Minute, func(context.Context) error {
			t.Errorf("second holder must not run")
			return nil
		})
		if err != nil || inner {
			t.Errorf("overlapping WithLock = %v, %v", inner, err)
		}

		other, err := l.WithLock(ctx, "other-job", time.Minute, func(context.Context) error { return nil })
		if err != nil || !other {
			t.Errorf("different resource should be independent: %v, %v", other, err)
		}
		return nil
	})
	if err != nil || !ok {
		t.Fatalf("outer WithLock = %v, %v", ok, err)
	}
	if len(h.contended) != 1 || h.contended[0] != "job" {
		t.Fatalf("contended = %v", h.contended)
	}
}

func TestWithLockAtomicUnderContention(t *testing.T) {
	l := mustLocker(t, atomicMemProvider{newMemProvider()}, LockOptions{})

	var inside, maxInside, acquired atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			ok, err := l.WithLock(context.Background(), "r", time.Minute, func(context.Context) error {
				n := inside.Add(1)
				for {
					m := maxInside.Load()
					if n <= m || maxInside.CompareAndSwap(m, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				inside.Add(-1)
				return nil
			})
			if err != nil {
				t.Errorf("WithLock: %v", err)
			}
			if ok {
				acquired.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()
	if m := maxInside.Load(); m != 1 {
		t.Fatalf("max concurrent holders = %d", m)
	}
	if acquired.Load() < 1 {
		t.Fatalf("nobody acquired the lock")
	}
}

func TestWithLockExclusiveOnPressuredRistretto(t *testing.T) {
	ctx := context.Background()
	p, err := ristretto.New(ristretto.Config{NumCounters: 100, MaxCost: 2, BufferItems: 64})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = p.Close(ctx) })
	for _, k := range []string{"hot1", "hot2"} {
		_, _ = p.Set(ctx, k, []byte("v"), 1, 0)
		for i := 0; i < 50; i++ {
			_, _, _ = p.Get(ctx, k)
		}
	}
	l := mustLocker(t, p, LockOptions{Mode: LockAtomic})

	for i := 0; i < 5; i++ {
		ok, err := l.WithLock(ctx, "job", time.Minute, func(ctx context.Context) error {
			inner, err := l.WithLock(ctx, "job", time.Minute, func(context.Context) error {
				t.Errorf("second holder ran while the store was full")
				return nil
			})
			if err != nil || inner {
				t.Errorf("inner WithLock = %v, %v", inner, err)
			}
			return nil
		})
		if err != nil || !ok {
			t.Fatalf("round %d: outer WithLock = %v, %v", i, ok, err)
		}
	}
}

// barrierProvider holds every Get of the lock key until n callers have read
// it, so concurrent check-then-set callers all see it free.
type barrierProvider struct {
	*memProvider
	arrived sync.WaitGroup
}

func (b *barrierProvider) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, ok, err := b.memProvider.Get(ctx, key)
	b.arrived.Done()
	b.arrived.Wait()
	return v, ok, err
}

func TestNaiveLockCanAdmitTwoHolders(t *testing.T) {
	bp := &barrierProvider{memProvider: newMemProvider()}
	bp.arrived.Add(2)
	h := newRecHooks()
	l := mustLocker(t, bp, LockOptions{Hooks: h})
	if l.Mode() != LockNaive {
		t.Fatalf("mode = %v", l.Mode())
	}

	var ran atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := l.WithLock(context.Background(), "r", time.Minute, func(context.Context) error {
				ran.Add(1)
				return nil
			})
			if err != nil || !ok {
				t.Errorf("WithLock = %v, %v", ok, err)
			}
		}()
	}
	wg.Wait()
	if n := ran.Load(); n != 2 {
		t.Fatalf("check-then-set should admit both racing callers, ran %d", n)
	}
	if h.naive != 1 {
		t.Fatalf("naive mode reported %d times, want once", h.naive)
	}
}

func TestWithLockReleasesOnPanic(t *testing.T) {
	mp := newMemProvider()
	l := mustLocker(t, atomicMemProvider{mp}, LockOptions{})

	func() {
		defer func() {
			if recover() == nil {
				t.Fatalf("panic should propagate")
			}
		}()
		_, _ = l.WithLock(context.Background(), "p", time.Minute, func(context.Context) error {
			panic("boom")
		})
	}()
	if mp.has("lock:p") {
		t.Fatalf("sentinel survived the panic")
	}
}

func TestWithLockReturnsFnError(t *testing.T) {
	mp := newMemProvider()
	l := mustLocker(t, mp, LockOptions{})

	boom := errors.New("job failed")
	ok, err := l.WithLock(context.Background(), "j", time.Minute, func(context.Context) error { return boom })
	if !ok || !errors.Is(err, boom) {
		t.Fatalf("WithLock = %v, %v", ok, err)
	}
	if mp.has("lock:j") {
		t.Fatalf("sentinel left behind")
	}
}

func TestWithLockStoreErrorIsNotContention(t *testing.T) {
	mp := newMemProvider()
	boom := errors.New("store down")
	mp.setErr = boom
	h := newRecHooks()
	l := mustLocker(t, atomicMemProvider{mp}, LockOptions{Hooks: h})

	ok, err := l.WithLock(context.Background(), "j", time.Minute, func(context.Context) error {
		t.Errorf("fn must not run")
		return nil
	})
	if ok || !errors.Is(err, boom) {
		t.Fatalf("WithLock = %v, %v", ok, err)
	}
	if len(h.contended) != 0 {
		t.Fatalf("store failure reported as contention: %v", h.contended)
	}
}

func TestWithLockRejectsNonPositiveLease(t *testing.T) {
	l := mustLocker(t, newMemProvider(), LockOptions{})
	for _, lease := range []time.Duration{0, -time.Second} {
		ok, err := l.WithLock(context.Background(), "j", lease, func(context.Context) error { return nil })
		if ok || !errors.Is(err, ErrInvalidLease) {
			t.Fatalf("lease %v: %v, %v", lease, ok, err)
		}
	}
}

func TestExpiredLeaseDoesNotReleaseNewHolder(t *testing.T) {
	mp := newMemProvider()
	now := time.Now()
	mp.now = func() time.Time { return now }
	p := atomicMemProvider{mp}
	l := mustLocker(t, p, LockOptions{})
	ctx := context.Background()

	ok, err := l.WithLock(ctx, "r", time.Second, func(ctx context.Context) error {
		mp.mu.Lock()
		now = now.Add(2 * time.Second) // our lease ran out
		mp.mu.Unlock()
		added, err := p.Add(ctx, "lock:r", []byte("someone-else"), time.Minute)
		if err != nil || !added {
			t.Errorf("new holder Add = %v, %v", added, err)
		}
		return nil
	})
	if err != nil || !ok {
		t.Fatalf("WithLock = %v, %v", ok, err)
	}
	if !mp.has("lock:r") {
		t.Fatalf("the new holder's sentinel must survive")
	}
}

func TestWithLockCanceledContextStillReleases(t *testing.T) {
	mp := newMemProvider()
	l := mustLocker(t, atomicMemProvider{mp}, LockOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	ok, err := l.WithLock(ctx, "c", time.Minute, func(context.Context) error {
		cancel()
		return nil
	})
	if err != nil || !ok {
		t.Fatalf("WithLock = %v, %v", ok, err)
	}
	if mp.has("lock:c") {
		t.Fatalf("sentinel left behind")
	}
}
