package tagcache

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
)

type regEntry struct {
	lower    string
	prefixes []string // lower-cased
	seq      uint64   // bumped on every Add
}

// Registry remembers every key a DistributedBackend has read or written, with
// its prefixes, so prefix deletes work on stores without pattern scans.
//
// A Registry only knows this process. It is safe for concurrent use; every
// operation takes one registry-wide mutex. Prune does its store round trips
// without holding it.
type Registry struct {
	mu   sync.Mutex
	keys map[string]regEntry
	seq  uint64
}

func NewRegistry() *Registry {
	return &Registry{keys: make(map[string]regEntry)}
}

// Add records key with prefixes, merged into what is already known.
func (r *Registry) Add(key string, prefixes []string) {
	lp := tags(prefixes)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	e, ok := r.keys[key]
	if !ok {
		r.keys[key] = regEntry{lower: strings.ToLower(key), prefixes: lp, seq: r.seq}
		return
	}
	e.seq = r.seq
	for _, p := range lp {
		if !slices.Contains(e.prefixes, p) {
			e.prefixes = append(e.prefixes, p)
		}
	}
	r.keys[key] = e
}

func (r *Registry) Remove(key string) {
	r.mu.Lock()
	delete(r.keys, key)
	r.mu.Unlock()
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.keys)
}

// Keys returns the registered keys, sorted.
func (r *Registry) Keys() []string {
	r.mu.Lock()
	out := make([]string, 0, len(r.keys))
	for k := range r.keys {
		out = append(out, k)
	}
	r.mu.Unlock()
	sort.Strings(out)
	return out
}

func (e regEntry) matches(lp string) bool {
	if strings.HasPrefix(e.lower, lp) {
		return true
	}
	for _, p := range e.prefixes {
		if strings.HasPrefix(p, lp) {
			return true
		}
	}
	return false
}

// Evict deletes, through del, every key whose name or one of whose prefixes
// starts with prefix (case-insensitive), and forgets it. The lock is held for
// the whole pass. On the first delete error it stops; keys not yet deleted
// stay registered.
func (r *Registry) Evict(ctx context.Context, prefix string, del func(context.Context, string) error) (int, error) {
	lp := strings.ToLower(prefix)
	return r.evict(ctx, func(e regEntry) bool { return e.matches(lp) }, del)
}

// EvictAll is Evict for every registered key.
func (r *Registry) EvictAll(ctx context.Context, del func(context.Context, string) error) (int, error) {
	return r.evict(ctx, func(regEntry) bool { return true }, del)
}

func (r *Registry) evict(ctx context.Context, match func(regEntry) bool, del func(context.Context, string) error) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	victims := make([]string, 0)
	for k, e := range r.keys {
		if match(e) {
			victims = append(victims, k)
		}
	}
	sort.Strings(victims)

	n := 0
	for _, k := range victims {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		if err := del(ctx, k); err != nil {
			return n, err
		}
		delete(r.keys, k)
		n++
	}
	return n, nil
}

// pruneBatch is how many keys one existence check covers.
const pruneBatch = 256

// ExistsFunc reports, for each key, whether the store still has it.
type ExistsFunc func(ctx context.Context, keys []string) ([]bool, error)

// Prune forgets keys the store no longer has. The key set is snapshotted
// under the lock and checked outside it, batch by batch. A key is dropped only
// if no Add touched it while its batch was in flight. A failed batch keeps
// its keys.
func (r *Registry) Prune(ctx context.Context, exists ExistsFunc) (int, error) {
	r.mu.Lock()
	seen := make(map[string]uint64, len(r.keys))
	keys := make([]string, 0, len(r.keys))
	for k, e := range r.keys {
		seen[k] = e.seq
		keys = append(keys, k)
	}
	r.mu.Unlock()
	sort.Strings(keys)

	n := 0
	for len(keys) > 0 {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		batch := keys[:min(pruneBatch, len(keys))]
		keys = keys[len(batch):]

		live, err := exists(ctx, batch)
		if err != nil || len(live) != len(batch) {
			continue
		}
		r.mu.Lock()
		for i, k := range batch {
			if live[i] {
				continue
			}
			if e, ok := r.keys[k]; ok && e.seq == seen[k] {
				delete(r.keys, k)
				n++
			}
		}
		r.mu.Unlock()
	}
	return n, nil
}
