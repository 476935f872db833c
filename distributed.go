package tagcache

import (
	"context"
	"sync"
	"time"

	pr "github.com/unkn0wn-root/tagcache/provider"
)

// DistributedOptions configure a DistributedBackend. Only Provider is required.
type DistributedOptions struct {
	Provider pr.Provider

	Logger   Logger    // if nil, NopLogger is used
	Hooks    Hooks     // if nil, NopHooks is used
	Registry *Registry // nil => a fresh registry owned by the backend

	// PruneInterval > 0 periodically drops registry keys the store no longer
	// holds. Needs a provider implementing provider.Exister.
	PruneInterval time.Duration
}

// DistributedBackend writes raw codec payloads to a shared store and tracks
// the keys it touched in a Registry.
type DistributedBackend struct {
	provider pr.Provider
	reg      *Registry
	log      Logger
	hooks    Hooks

	ticker *time.Ticker
	stopCh chan struct{}
	wg     sync.WaitGroup

	closeOnce sync.Once
	closeErr  error
}

var _ Backend = (*DistributedBackend)(nil)

func NewDistributedBackend(opts DistributedOptions) (*DistributedBackend, error) {
	if opts.Provider == nil {
		return nil, ErrNoProvider
	}
	b := &DistributedBackend{
		provider: opts.Provider,
		reg:      opts.Registry,
		log:      coalesce[Logger](opts.Logger, NopLogger{}),
		hooks:    coalesce[Hooks](opts.Hooks, NopHooks{}),
	}
	if b.reg == nil {
		b.reg = NewRegistry()
	}

	if opts.PruneInterval > 0 {
		exists, ok := existsCheck(opts.Provider)
		if !ok {
			b.log.Warn("registry prune disabled: provider cannot check existence", nil)
		} else {
			b.ticker = time.NewTicker(opts.PruneInterval)
			b.stopCh = make(chan struct{})
			b.wg.Add(1)
			go func() {
				defer b.wg.Done()
				for {
					select {
					case <-b.ticker.C:
						b.prune(exists)
					case <-b.stopCh:
						return
					}
				}
			}()
		}
	}
	return b, nil
}

func (b *DistributedBackend) Kind() string          { return KindDistributed }
func (b *DistributedBackend) Provider() pr.Provider { return b.provider }
func (b *DistributedBackend) Registry() *Registry   { return b.reg }

// existsCheck prefers one pipelined round trip per batch and falls back to
// one Exists per key, where an error keeps the key.
func existsCheck(p pr.Provider) (ExistsFunc, bool) {
	if bx, ok := p.(pr.BatchExister); ok {
		return bx.ExistsMany, true
	}
	ex, ok := p.(pr.Exister)
	if !ok {
		return nil, false
	}
	return func(ctx context.Context, keys []string) ([]bool, error) {
		out := make([]bool, len(keys))
		for i, k := range keys {
			live, err := ex.Exists(ctx, k)
			out[i] = live || err != nil
		}
		return out, nil
	}, true
}

func (b *DistributedBackend) prune(exists ExistsFunc) {
	n, err := b.reg.Prune(context.Background(), exists)
	if err != nil {
		b.log.Warn("registry prune stopped", Fields{"removed": n}.with(err))
	}
	if n > 0 {
		b.hooks.RegistryPruned(n)
	}
}

func (b *DistributedBackend) Load(ctx context.Context, key Key) ([]byte, bool, error) {
	raw, ok, err := b.provider.Get(ctx, key.name)
	if err != nil || !ok {
		return nil, false, err
	}
	b.reg.Add(key.name, key.prefixes)
	return raw, true, nil
}

// Store registers the key after the write lands, so a concurrent prefix
// delete can never forget a live key.
func (b *DistributedBackend) Store(ctx context.Context, key Key, payload []byte) error {
	ok, err := b.provider.Set(ctx, key.name, payload, 1, key.ttl)
	if err != nil {
		return err
	}
	if !ok {
		b.hooks.ProviderSetRejected(key.name)
		return nil
	}
	b.reg.Add(key.name, key.prefixes)
	return nil
}

func (b *DistributedBackend) Delete(ctx context.Context, name string) error {
	if err := b.provider.Del(ctx, name); err != nil {
		return err
	}
	b.reg.Remove(name)
	return nil
}

func (b *DistributedBackend) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	n, err := b.reg.Evict(ctx, prefix, b.provider.Del)
	if err != nil {
		b.hooks.InvalidateOutage(prefix, nil, err)
		b.log.Error("prefix delete incomplete", Fields{"prefix": prefix, "deleted": n}.with(err))
		return n, &InvalidateError{Prefix: prefix, DelErr: err}
	}
	b.hooks.PrefixInvalidated(prefix, n)
	b.log.Debug("deleted prefix", Fields{"prefix": prefix, "deleted": n})
	return n, nil
}

func (b *DistributedBackend) Flush(ctx context.Context) error {
	n, err := b.reg.EvictAll(ctx, b.provider.Del)
	if err != nil {
		b.hooks.InvalidateOutage("", nil, err)
		b.log.Error("clear incomplete", Fields{"deleted": n}.with(err))
		return &InvalidateError{DelErr: err}
	}
	b.log.Debug("cleared", Fields{"deleted": n})
	return nil
}

// Close stops the prune loop and closes the provider, once.
func (b *DistributedBackend) Close(ctx context.Context) error {
	b.closeOnce.Do(func() {
		if b.stopCh != nil {
			close(b.stopCh)
			b.ticker.Stop()
			b.wg.Wait()
		}
		b.closeErr = b.provider.Close(ctx)
	})
	return b.closeErr
}
