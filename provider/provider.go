// Package provider defines the raw storage abstraction used by tagcache.
//
// Implementations MUST be byte-for-byte transparent: Get must return exactly the
// same []byte that was previously passed to Set for a key (no prepended/appended
// metadata, no re-encoding, no mutation).
//
// The base contract is deliberately small (get/set/delete with TTL). Stores that
// can do more advertise it through the optional interfaces below; the lock and
// the distributed registry check for them with a type assertion.
package provider

import (
	"context"
	"time"
)

// Provider is a minimal byte store with TTLs. Must be safe for concurrent use.
type Provider interface {
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss.
	// If an IO/remote error happens, return (nil, false, err).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value with the given TTL. May ignore cost if unsupported.
	// Returns ok=false when the store rejected the write under pressure.
	Set(ctx context.Context, key string, value []byte, cost int64, ttl time.Duration) (ok bool, err error)

	// Del removes a key (best-effort).
	Del(ctx context.Context, key string) error

	// Close releases resources.
	Close(ctx context.Context) error
}

// Adder is implemented by stores with an atomic "set if absent".
// Add returns true only when this call created the key.
type Adder interface {
	Add(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
}

// ValueDeleter is implemented by stores that can delete a key only while it
// still holds an expected value, as one atomic step.
type ValueDeleter interface {
	DelIfValue(ctx context.Context, key string, value []byte) (bool, error)
}

// Exister reports whether a key is currently live in the store.
type Exister interface {
	Exists(ctx context.Context, key string) (bool, error)
}

// BatchExister checks many keys in one round trip. The result is parallel to keys.
type BatchExister interface {
	ExistsMany(ctx context.Context, keys []string) ([]bool, error)
}
