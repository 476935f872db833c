package tagcache

import "time"

const (
	// DefaultCacheTime is the TTL PrepareDefault applies.
	DefaultCacheTime = 120 * time.Minute
	// ShortTermCacheTime is the TTL PrepareShortTerm applies.
	ShortTermCacheTime = time.Minute

	defaultGenRetention = 30 * 24 * time.Hour
	defaultSweep        = time.Hour
	defaultLockPrefix   = "lock:"
)

// coalesce returns def when v is the zero value of T - otherwise v.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
