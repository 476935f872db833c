package tagcache

import (
	"context"

	pr "github.com/unkn0wn-root/tagcache/provider"
)

const (
	KindLocal       = "local"
	KindDistributed = "distributed"
)

// Backend stores encoded values under resolved keys and knows how to drop
// them by prefix. Several Cache[V] may share one Backend.
type Backend interface {
	Kind() string

	// Load returns (nil, false, nil) on miss, including stale or corrupt
	// entries the backend dropped on the way.
	Load(ctx context.Context, key Key) ([]byte, bool, error)
	// Store writes payload for key.TTL(). Callers never pass ttl <= 0.
	Store(ctx context.Context, key Key, payload []byte) error
	Delete(ctx context.Context, name string) error
	// DeletePrefix drops every entry tagged with a prefix starting with
	// prefix, case-insensitively. It returns how many prefixes (local) or
	// keys (distributed) matched; no match is not an error.
	DeletePrefix(ctx context.Context, prefix string) (int, error)
	// Flush drops everything this backend has written.
	Flush(ctx context.Context) error

	// Provider is the raw store, shared with Locker.
	Provider() pr.Provider
	// Close is idempotent.
	Close(ctx context.Context) error
}
