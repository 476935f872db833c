// Package tagcache is a compute-once cache with prefix ("tag") invalidation,
// a request-scoped memo and an advisory lock, over either a process-local or
// a shared store.
//
// Components:
//   - Key: a template name, its prefixes and a TTL. Resolve substitutes
//     positional {0} placeholders with normalized parameters.
//   - Backend: LocalBackend (Ristretto/BigCache plus generation counters) or
//     DistributedBackend (Redis plus an in-process key registry).
//   - Cache[V]: typed GetOrCompute/Get/Set/Remove/RemoveByPrefix/Clear over a
//     Backend, with a pluggable Codec[V] and the memo from package memo.
//   - Locker: WithLock over the backend's raw store.
//
// Prefix invalidation:
//
//	local:       every prefix owns a generation; entries record the generations
//	             they were written under and are dropped on read once stale.
//	distributed: the backend remembers every key it wrote and deletes the
//	             ones whose name or prefixes start with the given prefix.
//
// The distributed registry is per process. RemoveByPrefix and Clear only see
// keys this process has written or read.
//
// Typical use:
//
//	users := tagcache.NewKey("user.{0}", 0, "user.")
//	k, _ := factory.PrepareDefault(users, id)
//	u, err := cache.GetOrCompute(ctx, k, func(ctx context.Context) (User, bool, error) {
//	    u, err := db.User(ctx, id)
//	    return u, err == nil, err
//	})
package tagcache
