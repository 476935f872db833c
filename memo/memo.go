// Package memo is a per-request memo for cache reads.
//
// A scope lives in a context.Context for one unit of work (usually one HTTP
// request). Values found or computed during the request are kept there so
// repeated lookups skip the shared store. Without a scope in ctx every
// operation is a no-op or a miss.
package memo

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"sync"
)

// Items is the per-request mapping the memo writes into. Hosts that already
// carry a request bag can adapt it; MapItems is the default. Implementations
// need not be safe for concurrent use; the scope serializes access.
type Items interface {
	Get(key string) (any, bool)
	Set(key string, v any)
	Remove(key string)
	Has(key string) bool
	Keys() []string
}

// MapItems is a plain map Items.
type MapItems map[string]any

func (m MapItems) Get(key string) (any, bool) { v, ok := m[key]; return v, ok }
func (m MapItems) Set(key string, v any)      { m[key] = v }
func (m MapItems) Remove(key string)          { delete(m, key) }
func (m MapItems) Has(key string) bool        { _, ok := m[key]; return ok }
func (m MapItems) Keys() []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

type scope struct {
	mu    sync.RWMutex
	items Items
	// tags of every key stored through this package, lower-cased
	tags map[string][]string
}

type ctxKey struct{}

// NewContext returns ctx carrying a fresh scope.
func NewContext(ctx context.Context) context.Context {
	return WithItems(ctx, MapItems{})
}

// WithItems returns ctx carrying a scope backed by items.
func WithItems(ctx context.Context, items Items) context.Context {
	if items == nil {
		items = MapItems{}
	}
	return context.WithValue(ctx, ctxKey{}, &scope{items: items, tags: make(map[string][]string)})
}

// Active reports whether ctx carries a scope.
func Active(ctx context.Context) bool { return from(ctx) != nil }

// Middleware gives every request its own scope.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(NewContext(r.Context())))
	})
}

func from(ctx context.Context) *scope {
	if ctx == nil {
		return nil
	}
	s, _ := ctx.Value(ctxKey{}).(*scope)
	return s
}

func Lookup(ctx context.Context, key string) (any, bool) {
	s := from(ctx)
	if s == nil {
		return nil, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.items.Get(key)
}

func Contains(ctx context.Context, key string) bool {
	s := from(ctx)
	if s == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.items.Has(key)
}

// Store keeps v under key. tags are matched by ForgetPrefix alongside the key.
func Store(ctx context.Context, key string, v any, tags ...string) {
	s := from(ctx)
	if s == nil {
		return
	}
	lt := make([]string, 0, len(tags))
	for _, t := range tags {
		if t != "" {
			lt = append(lt, strings.ToLower(t))
		}
	}
	s.mu.Lock()
	s.items.Set(key, v)
	s.tags[key] = lt
	s.mu.Unlock()
}

func Forget(ctx context.Context, key string) {
	s := from(ctx)
	if s == nil {
		return
	}
	s.mu.Lock()
	s.items.Remove(key)
	delete(s.tags, key)
	s.mu.Unlock()
}

// ForgetPrefix drops every item whose key, or one of whose tags, starts with
// prefix, ignoring case. It returns the number of items dropped.
func ForgetPrefix(ctx context.Context, prefix string) int {
	return forget(ctx, prefix, true)
}

// ForgetTagged is ForgetPrefix that ignores item keys and matches tags only.
func ForgetTagged(ctx context.Context, prefix string) int {
	return forget(ctx, prefix, false)
}

func forget(ctx context.Context, prefix string, byKey bool) int {
	s := from(ctx)
	if s == nil {
		return 0
	}
	lp := strings.ToLower(prefix)

	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, k := range s.items.Keys() {
		keyHit := byKey && strings.HasPrefix(strings.ToLower(k), lp)
		if !keyHit && !anyHasPrefix(s.tags[k], lp) {
			continue
		}
		s.items.Remove(k)
		delete(s.tags, k)
		n++
	}
	return n
}

// Purge drops every item stored through this package. Items the host put
// into the bag directly are left alone.
func Purge(ctx context.Context) {
	s := from(ctx)
	if s == nil {
		return
	}
	s.mu.Lock()
	for k := range s.tags {
		s.items.Remove(k)
	}
	s.tags = make(map[string][]string)
	s.mu.Unlock()
}

func anyHasPrefix(ss []string, lp string) bool {
	for _, s := range ss {
		if strings.HasPrefix(s, lp) {
			return true
		}
	}
	return false
}
