package tagcache

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	gen "github.com/unkn0wn-root/tagcache/genstore"
	"github.com/unkn0wn-root/tagcache/internal/wire"
	pr "github.com/unkn0wn-root/tagcache/provider"
)

type SetCostFunc func(key string, raw []byte) int64

// LocalOptions configure a LocalBackend. Only Provider is required.
type LocalOptions struct {
	Provider pr.Provider

	Logger          Logger        // if nil, NopLogger is used
	Hooks           Hooks         // if nil, NopHooks is used
	GenStore        gen.GenStore  // nil => LocalGenStore (in-process)
	CleanupInterval time.Duration // 0 => 1h
	GenRetention    time.Duration // 0 => 30d; must exceed the longest TTL
	ComputeSetCost  SetCostFunc   // default 1
}

// LocalBackend keeps entries in a process-local store and invalidates them
// lazily through generation counters: an entry is framed with the epoch and
// the generation of each of its prefixes, and a read that finds any of them
// outdated deletes the entry and reports a miss.
type LocalBackend struct {
	provider       pr.Provider
	gen            gen.GenStore
	log            Logger
	hooks          Hooks
	computeSetCost SetCostFunc

	closeOnce sync.Once
	closeErr  error
}

var _ Backend = (*LocalBackend)(nil)

func NewLocalBackend(opts LocalOptions) (*LocalBackend, error) {
	if opts.Provider == nil {
		return nil, ErrNoProvider
	}
	b := &LocalBackend{
		provider: opts.Provider,
		log:      coalesce[Logger](opts.Logger, NopLogger{}),
		hooks:    coalesce[Hooks](opts.Hooks, NopHooks{}),
	}
	if opts.ComputeSetCost != nil {
		b.computeSetCost = opts.ComputeSetCost
	} else {
		b.computeSetCost = func(string, []byte) int64 { return 1 }
	}
	if opts.GenStore != nil {
		b.gen = opts.GenStore
	} else {
		b.gen = gen.NewLocalGenStore(
			coalesce(opts.CleanupInterval, defaultSweep),
			coalesce(opts.GenRetention, defaultGenRetention),
		)
	}
	return b, nil
}

func (b *LocalBackend) Kind() string          { return KindLocal }
func (b *LocalBackend) Provider() pr.Provider { return b.provider }

// tags lower-cases and dedups prefixes, keeping first-seen order.
func tags(prefixes []string) []string {
	if len(prefixes) == 0 {
		return nil
	}
	out := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		lp := strings.ToLower(p)
		if !slices.Contains(out, lp) {
			out = append(out, lp)
		}
	}
	return out
}

func (b *LocalBackend) Load(ctx context.Context, key Key) ([]byte, bool, error) {
	k := key.Name()
	raw, ok, err := b.provider.Get(ctx, k)
	if err != nil || !ok {
		return nil, false, err
	}
	e, err := wire.Decode(raw)
	if err != nil {
		b.heal(ctx, k, "corrupt")
		return nil, false, nil
	}

	epoch, err := b.gen.Epoch(ctx)
	if err != nil {
		b.hooks.GenSnapshotError(1, err)
		return nil, false, err
	}
	if e.Epoch != epoch {
		b.heal(ctx, k, "gen_mismatch")
		return nil, false, nil
	}
	if len(e.Tags) > 0 {
		names := make([]string, len(e.Tags))
		for i, t := range e.Tags {
			names[i] = t.Prefix
		}
		cur, err := b.gen.SnapshotMany(ctx, names)
		if err != nil {
			b.hooks.GenSnapshotError(len(names), err)
			return nil, false, err
		}
		for _, t := range e.Tags {
			if cur[t.Prefix] != t.Gen {
				b.heal(ctx, k, "gen_mismatch")
				return nil, false, nil
			}
		}
	}
	return e.Payload, true, nil
}

func (b *LocalBackend) heal(ctx context.Context, k, reason string) {
	_ = b.provider.Del(ctx, k)
	b.hooks.SelfHeal(k, reason)
	b.log.Debug("dropped entry on read", Fields{"key": k, "reason": reason})
}

func (b *LocalBackend) Store(ctx context.Context, key Key, payload []byte) error {
	k := key.Name()

	// The epoch is read before the prefix generations. A Flush in between
	// leaves the entry on the old epoch, never on the new epoch paired with
	// counters from before the reset.
	epoch, err := b.gen.Epoch(ctx)
	if err != nil {
		b.hooks.GenSnapshotError(1, err)
		return err
	}
	e := wire.Entry{Epoch: epoch, Payload: payload}

	if names := tags(key.prefixes); len(names) > 0 {
		gens, err := b.gen.Register(ctx, names)
		if err != nil {
			b.hooks.GenSnapshotError(len(names), err)
			return err
		}
		e.Tags = make([]wire.Tag, len(names))
		for i, n := range names {
			e.Tags[i] = wire.Tag{Prefix: n, Gen: gens[n]}
		}
	}

	raw, err := wire.Encode(e)
	if err != nil {
		return err
	}
	ok, err := b.provider.Set(ctx, k, raw, b.computeSetCost(k, raw), key.ttl)
	if err != nil {
		return err
	}
	if !ok {
		b.hooks.ProviderSetRejected(k)
		b.log.Debug("Set rejected by provider (pressure)", Fields{"key": k})
	}
	return nil
}

func (b *LocalBackend) Delete(ctx context.Context, name string) error {
	return b.provider.Del(ctx, name)
}

func (b *LocalBackend) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	lp := strings.ToLower(prefix)
	names, err := b.gen.Keys(ctx, lp)
	if err != nil {
		b.hooks.GenSnapshotError(0, err)
		return 0, &InvalidateError{Prefix: prefix, BumpErr: err}
	}
	var errs []error
	bumped := 0
	for _, n := range names {
		if _, err := b.gen.Bump(ctx, n); err != nil {
			b.hooks.GenBumpError(n, err)
			errs = append(errs, err)
			continue
		}
		bumped++
	}
	b.hooks.PrefixInvalidated(prefix, bumped)
	if len(errs) > 0 {
		ie := &InvalidateError{Prefix: prefix, BumpErr: errors.Join(errs...)}
		b.hooks.InvalidateOutage(prefix, ie.BumpErr, nil)
		b.log.Error("prefix invalidation incomplete", Fields{"prefix": prefix, "bumped": bumped}.with(ie))
		return bumped, ie
	}
	b.log.Debug("invalidated prefix", Fields{"prefix": prefix, "matched": bumped})
	return bumped, nil
}

// Flush moves the epoch first so no entry can validate against the reset
// prefix counters. Store reads the epoch before the counters for the same
// reason.
func (b *LocalBackend) Flush(ctx context.Context) error {
	if _, err := b.gen.BumpEpoch(ctx); err != nil {
		b.hooks.GenBumpError("", err)
		return &InvalidateError{BumpErr: err}
	}
	if err := b.gen.Reset(ctx); err != nil {
		// entries are already stale through the epoch
		b.log.Warn("prefix counters not reset", Fields{}.with(err))
	}
	return nil
}

// Close releases the gen store and the provider (best effort, once).
func (b *LocalBackend) Close(ctx context.Context) error {
	b.closeOnce.Do(func() {
		_ = b.gen.Close(ctx)
		b.closeErr = b.provider.Close(ctx)
	})
	return b.closeErr
}
