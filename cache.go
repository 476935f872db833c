package tagcache

import (
	"context"
	"fmt"

	"golang.org/x/sync/singleflight"

	c "github.com/unkn0wn-root/tagcache/codec"
	"github.com/unkn0wn-root/tagcache/memo"
)

type cache[V any] struct {
	backend  Backend
	codec    c.Codec[V]
	log      Logger
	hooks    Hooks
	enabled  bool
	failOpen bool

	coalesce bool
	sf       singleflight.Group
}

type flightResult[V any] struct {
	v   V
	err error
}

func newCache[V any](opts Options[V]) (*cache[V], error) {
	if opts.Backend == nil {
		return nil, ErrNoBackend
	}
	cc := &cache[V]{
		backend:  opts.Backend,
		codec:    opts.Codec,
		enabled:  !opts.Disabled,
		failOpen: opts.FailOpenReads,
		coalesce: opts.Coalesce,
	}
	if cc.codec == nil {
		cc.codec = c.JSON[V]{}
	}
	cc.log = coalesce[Logger](opts.Logger, NopLogger{})
	cc.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	return cc, nil
}

func (cc *cache[V]) Enabled() bool    { return cc.enabled }
func (cc *cache[V]) Backend() Backend { return cc.backend }

// Close closes the backend. Other caches sharing it stop working too.
func (cc *cache[V]) Close(ctx context.Context) error {
	return cc.backend.Close(ctx)
}

func (cc *cache[V]) GetOrCompute(ctx context.Context, key Key, compute ComputeFunc[V]) (V, error) {
	if !cc.enabled || key.ttl <= 0 {
		v, _, err := compute(ctx)
		return v, err
	}
	if v, ok := cc.memoized(ctx, key.name); ok {
		return v, nil
	}

	v, ok, err := cc.load(ctx, key)
	if err != nil {
		var zero V
		return zero, err
	}
	if ok {
		return v, nil
	}

	if !cc.coalesce {
		return cc.computeAndStore(ctx, key, compute)
	}
	res, _, _ := cc.sf.Do(key.name, func() (any, error) {
		v, err := cc.computeAndStore(ctx, key, compute)
		return flightResult[V]{v: v, err: err}, nil
	})
	fr := res.(flightResult[V])
	if fr.err == nil && !isAbsent(fr.v) {
		// shared result: make sure this request's memo has it too
		memo.Store(ctx, key.name, fr.v, key.prefixes...)
	}
	return fr.v, fr.err
}

func (cc *cache[V]) computeAndStore(ctx context.Context, key Key, compute ComputeFunc[V]) (V, error) {
	v, found, err := compute(ctx)
	if err != nil || !found || isAbsent(v) {
		return v, err
	}
	if err := cc.store(ctx, key, v); err != nil {
		return v, err
	}
	return v, nil
}

func (cc *cache[V]) Get(ctx context.Context, key Key) (V, bool, error) {
	if !cc.enabled {
		var zero V
		return zero, false, nil
	}
	return cc.load(ctx, key)
}

func (cc *cache[V]) Set(ctx context.Context, key Key, value V) error {
	if !cc.enabled || key.ttl <= 0 || isAbsent(value) {
		return nil
	}
	return cc.store(ctx, key, value)
}

func (cc *cache[V]) Remove(ctx context.Context, key Key, params ...any) error {
	r, err := key.Resolve(params...)
	if err != nil {
		return err
	}
	memo.Forget(ctx, r.name)
	if !cc.enabled {
		return nil
	}
	return cc.backend.Delete(ctx, r.name)
}

// RemoveByPrefix with an empty resolved prefix is a no-op: no entry carries
// an empty prefix. The memo is matched the way the backend matches, so both
// forget the same entries.
func (cc *cache[V]) RemoveByPrefix(ctx context.Context, prefix string, params ...any) error {
	p, err := ResolvePrefix(prefix, params...)
	if err != nil {
		return err
	}
	if p == "" {
		return nil
	}
	if cc.backend.Kind() == KindLocal {
		memo.ForgetTagged(ctx, p)
	} else {
		memo.ForgetPrefix(ctx, p)
	}
	if !cc.enabled {
		return nil
	}
	_, err = cc.backend.DeletePrefix(ctx, p)
	return err
}

func (cc *cache[V]) Clear(ctx context.Context) error {
	memo.Purge(ctx)
	if !cc.enabled {
		return nil
	}
	return cc.backend.Flush(ctx)
}

func (cc *cache[V]) memoized(ctx context.Context, name string) (V, bool) {
	raw, ok := memo.Lookup(ctx, name)
	if !ok {
		var zero V
		return zero, false
	}
	v, ok := raw.(V) // another Cache[T] may have stored a different type here
	return v, ok
}

// load reads through the backend and records hits in the request memo.
func (cc *cache[V]) load(ctx context.Context, key Key) (V, bool, error) {
	var zero V
	raw, ok, err := cc.backend.Load(ctx, key)
	if err != nil {
		if cc.failOpen {
			cc.log.Warn("read failed; treating as miss", Fields{"key": key.name}.with(err))
			return zero, false, nil
		}
		return zero, false, err
	}
	if !ok {
		return zero, false, nil
	}
	v, err := cc.codec.Decode(raw)
	if err != nil {
		_ = cc.backend.Delete(ctx, key.name) // self-heal
		cc.hooks.SelfHeal(key.name, "value_decode")
		return zero, false, fmt.Errorf("%w: decode %q: %w", ErrSerialization, key.name, err)
	}
	memo.Store(ctx, key.name, v, key.prefixes...)
	return v, true, nil
}

func (cc *cache[V]) store(ctx context.Context, key Key, v V) error {
	payload, err := cc.codec.Encode(v)
	if err != nil {
		return fmt.Errorf("%w: encode %q: %w", ErrSerialization, key.name, err)
	}
	if err := cc.backend.Store(ctx, key, payload); err != nil {
		return err
	}
	memo.Store(ctx, key.name, v, key.prefixes...)
	return nil
}
