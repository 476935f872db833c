package tagcache

import (
	"context"

	c "github.com/unkn0wn-root/tagcache/codec"
)

// ComputeFunc produces the value for a missing key. found=false, or a nil
// pointer/map/slice/interface value, means "nothing to cache": the value is
// returned to the caller but never stored.
type ComputeFunc[V any] func(ctx context.Context) (v V, found bool, err error)

// Cache is the typed compute-once API over a Backend. V is the caller's value
// type. Serialization is handled by a pluggable Codec[V].
type Cache[V any] interface {
	Enabled() bool
	Backend() Backend
	Close(context.Context) error

	// GetOrCompute returns the memoized or stored value for key, computing and
	// storing it on a miss. key.TTL() <= 0 always computes and stores nothing.
	GetOrCompute(ctx context.Context, key Key, compute ComputeFunc[V]) (V, error)
	Get(ctx context.Context, key Key) (v V, ok bool, err error)
	Set(ctx context.Context, key Key, value V) error

	// Remove resolves key with params and deletes it.
	Remove(ctx context.Context, key Key, params ...any) error
	// RemoveByPrefix resolves the prefix template with params and drops every
	// entry tagged with a prefix that starts with it, ignoring case. The
	// distributed backend also drops entries whose key starts with it; the
	// local backend matches tags only.
	RemoveByPrefix(ctx context.Context, prefix string, params ...any) error
	// Clear drops everything the backend has written.
	Clear(ctx context.Context) error
}

// Options tune a Cache. Only Backend is required; others have sensible defaults.
type Options[V any] struct {
	Backend Backend
	Codec   c.Codec[V] // nil => codec.JSON[V]

	Logger Logger // if nil, NopLogger is used
	Hooks  Hooks  // if nil, NopHooks is used

	// FailOpenReads treats store read errors as misses (logged) instead of
	// returning them. Write errors are always returned.
	FailOpenReads bool
	// Coalesce collapses concurrent misses on one key in this process into a
	// single compute.
	Coalesce bool
	Disabled bool // default false (enabled); disabled caches always compute
}

func New[V any](opts Options[V]) (Cache[V], error) {
	return newCache[V](opts)
}
