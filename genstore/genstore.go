// Package genstore keeps the generation counters behind prefix invalidation.
//
// Every prefix owns a counter and the whole store owns one more, the epoch.
// An entry remembers the counters it was written under; once any of them has
// moved on, the entry is stale. Prefix names are opaque here: callers decide
// on case folding.
package genstore

import (
	"context"
	"time"
)

// GenStore abstracts where generations live.
// Use LocalGenStore (default) for in-process gens, or RedisGenStore to share
// invalidation across processes.
type GenStore interface {
	// Snapshot returns the current generation; missing => 0.
	Snapshot(ctx context.Context, prefix string) (uint64, error)
	// SnapshotMany returns gens for many prefixes; missing => 0.
	SnapshotMany(ctx context.Context, prefixes []string) (map[string]uint64, error)
	// Register is SnapshotMany that also records missing prefixes at 0 so Keys
	// can find them later. Known prefixes are marked as recently used.
	Register(ctx context.Context, prefixes []string) (map[string]uint64, error)
	// Bump atomically increments and returns the new generation.
	Bump(ctx context.Context, prefix string) (uint64, error)
	// Keys lists registered prefixes that start with the given string.
	Keys(ctx context.Context, startsWith string) ([]string, error)
	// Reset forgets every prefix counter. The epoch is kept.
	Reset(ctx context.Context) error
	// Epoch returns the global generation; missing => 0.
	Epoch(ctx context.Context) (uint64, error)
	// BumpEpoch atomically increments the global generation.
	BumpEpoch(ctx context.Context) (uint64, error)
	// Cleanup prunes old metadata if applicable (no-op for Redis).
	Cleanup(retention time.Duration)
	// Close releases resources (no-op ok).
	Close(context.Context) error
}
