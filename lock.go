package tagcache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	pr "github.com/unkn0wn-root/tagcache/provider"
)

type LockMode int

const (
	// LockAuto uses an atomic add when the provider has one and falls back to
	// check-then-set otherwise.
	LockAuto LockMode = iota
	// LockAtomic requires provider.Adder.
	LockAtomic
	// LockNaive checks for the sentinel, then writes it. Two callers can both
	// see the resource free and both run; exclusion only holds under low
	// contention.
	LockNaive
)

func (m LockMode) String() string {
	switch m {
	case LockAuto:
		return "auto"
	case LockAtomic:
		return "atomic"
	case LockNaive:
		return "naive"
	default:
		return fmt.Sprintf("LockMode(%d)", int(m))
	}
}

// ParseLockMode accepts "", "auto", "atomic" and "naive".
func ParseLockMode(s string) (LockMode, error) {
	switch s {
	case "", "auto":
		return LockAuto, nil
	case "atomic":
		return LockAtomic, nil
	case "naive":
		return LockNaive, nil
	}
	return LockAuto, fmt.Errorf("tagcache: unknown lock mode %q", s)
}

type LockOptions struct {
	Mode      LockMode
	KeyPrefix string // prepended to resource names; "" => "lock:"
	Logger    Logger // if nil, NopLogger is used
	Hooks     Hooks  // if nil, NopHooks is used
}

// Locker is an advisory lock over a raw store: a sentinel key with a TTL
// equal to the lease. It does not renew; a critical section that outlives
// its lease is no longer protected.
type Locker struct {
	p      pr.Provider
	adder  pr.Adder
	cad    pr.ValueDeleter
	mode   LockMode
	prefix string
	log    Logger
	hooks  Hooks

	warnOnce sync.Once
}

func NewLocker(p pr.Provider, opts LockOptions) (*Locker, error) {
	if p == nil {
		return nil, ErrNoProvider
	}
	l := &Locker{
		p:      p,
		prefix: coalesce(opts.KeyPrefix, defaultLockPrefix),
		log:    coalesce[Logger](opts.Logger, NopLogger{}),
		hooks:  coalesce[Hooks](opts.Hooks, NopHooks{}),
	}
	l.adder, _ = p.(pr.Adder)
	l.cad, _ = p.(pr.ValueDeleter)

	switch opts.Mode {
	case LockAtomic:
		if l.adder == nil {
			return nil, ErrAtomicLockUnsupported
		}
		l.mode = LockAtomic
	case LockNaive:
		l.mode = LockNaive
	case LockAuto:
		if l.adder != nil {
			l.mode = LockAtomic
		} else {
			l.mode = LockNaive
		}
	default:
		return nil, fmt.Errorf("tagcache: unknown lock mode %d", int(opts.Mode))
	}
	return l, nil
}

// Mode is the effective mode: LockAtomic or LockNaive.
func (l *Locker) Mode() LockMode { return l.mode }

// WithLock runs fn while holding resource for at most lease.
//
//	held by someone else  -> (false, nil), fn not called
//	store failure         -> (false, err), fn not called
//	fn returned err       -> (true, err)
//
// The sentinel is released on every path, panics included.
func (l *Locker) WithLock(ctx context.Context, resource string, lease time.Duration, fn func(context.Context) error) (acquired bool, err error) {
	if lease <= 0 {
		return false, ErrInvalidLease
	}
	key := l.prefix + resource
	token := []byte(uuid.NewString())

	acquired, err = l.acquire(ctx, key, token, lease)
	if err != nil || !acquired {
		if err == nil {
			l.hooks.LockContended(resource)
			l.log.Debug("lock held elsewhere", Fields{"resource": resource})
		}
		return false, err
	}

	defer l.release(context.WithoutCancel(ctx), key, token)
	return true, fn(ctx)
}

func (l *Locker) acquire(ctx context.Context, key string, token []byte, lease time.Duration) (bool, error) {
	if l.mode == LockAtomic {
		return l.adder.Add(ctx, key, token, lease)
	}

	l.warnOnce.Do(func() {
		l.hooks.NaiveLock()
		l.log.Warn("lock uses check-then-set; exclusion is not guaranteed under contention", nil)
	})
	_, held, err := l.p.Get(ctx, key)
	if err != nil || held {
		return false, err
	}
	if _, err := l.p.Set(ctx, key, token, 1, lease); err != nil {
		return false, err
	}
	return true, nil
}

func (l *Locker) release(ctx context.Context, key string, token []byte) {
	if l.cad != nil {
		ok, err := l.cad.DelIfValue(ctx, key, token)
		if err != nil {
			l.log.Error("lock release failed", Fields{"key": key}.with(err))
		} else if !ok {
			l.log.Warn("lock expired before release", Fields{"key": key})
		}
		return
	}
	if err := l.p.Del(ctx, key); err != nil {
		l.log.Error("lock release failed", Fields{"key": key}.with(err))
	}
}
