package provider

import (
	"bytes"
	"sync"
	"time"
)

// sweepAt bounds how many leases may pile up before expired ones are dropped.
const sweepAt = 1024

// Leases holds values written through Adder by in-process stores. They live
// outside the store's eviction and admission policy, so a held lock sentinel
// disappears only when it expires or is deleted.
type Leases struct {
	mu sync.Mutex
	m  map[string]lease

	// Now is the clock used for deadlines.
	Now func() time.Time
}

type lease struct {
	value    []byte
	deadline time.Time // zero => no expiry
}

func (l lease) live(now time.Time) bool { return l.deadline.IsZero() || now.Before(l.deadline) }

func NewLeases() *Leases {
	return &Leases{m: map[string]lease{}, Now: time.Now}
}

// Get returns the live value held under key.
func (ls *Leases) Get(key string) ([]byte, bool) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	l, ok := ls.m[key]
	if !ok {
		return nil, false
	}
	if !l.live(ls.Now()) {
		delete(ls.m, key)
		return nil, false
	}
	return l.value, true
}

// Put stores a copy of value under key. ttl <= 0 means no expiry.
func (ls *Leases) Put(key string, value []byte, ttl time.Duration) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	now := ls.Now()
	if len(ls.m) >= sweepAt {
		for k, l := range ls.m {
			if !l.live(now) {
				delete(ls.m, k)
			}
		}
	}
	l := lease{value: append([]byte(nil), value...)}
	if ttl > 0 {
		l.deadline = now.Add(ttl)
	}
	ls.m[key] = l
}

// DelIfValue deletes key when it holds value. held reports whether key had a
// live lease at all, so callers know whether to look further.
func (ls *Leases) DelIfValue(key string, value []byte) (held, deleted bool) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	l, ok := ls.m[key]
	if !ok {
		return false, false
	}
	if !l.live(ls.Now()) {
		delete(ls.m, key)
		return false, false
	}
	if !bytes.Equal(l.value, value) {
		return true, false
	}
	delete(ls.m, key)
	return true, true
}

func (ls *Leases) Del(key string) {
	ls.mu.Lock()
	delete(ls.m, key)
	ls.mu.Unlock()
}

func (ls *Leases) Len() int {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return len(ls.m)
}
