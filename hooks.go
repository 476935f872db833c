package tagcache

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// The cache calls them on hot paths.
type Hooks interface {
	// An entry was deleted by the cache on read.
	// reason ∈ {"corrupt", "gen_mismatch", "value_decode"}
	SelfHeal(storageKey, reason string)

	// Provider returned ok=false on Set (backpressure/eviction).
	ProviderSetRejected(storageKey string)

	// GenStore errors (snapshot or bump).
	// count is number of prefixes involved.
	GenSnapshotError(count int, err error)
	GenBumpError(prefix string, err error)

	// RemoveByPrefix matched this many prefixes (local) or keys (distributed).
	PrefixInvalidated(prefix string, matched int)

	// A prefix or clear operation failed part way (likely backend outage).
	InvalidateOutage(prefix string, bumpErr, delErr error)

	// Registry prune dropped keys the store no longer holds.
	RegistryPruned(removed int)

	// WithLock found the resource already held.
	LockContended(resource string)

	// The lock runs check-then-set because the store has no atomic add.
	NaiveLock()
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) SelfHeal(string, string)               {}
func (NopHooks) ProviderSetRejected(string)            {}
func (NopHooks) GenSnapshotError(int, error)           {}
func (NopHooks) GenBumpError(string, error)            {}
func (NopHooks) PrefixInvalidated(string, int)         {}
func (NopHooks) InvalidateOutage(string, error, error) {}
func (NopHooks) RegistryPruned(int)                    {}
func (NopHooks) LockContended(string)                  {}
func (NopHooks) NaiveLock()                            {}
