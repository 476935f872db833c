// Package bigcache adapts allegro/bigcache as a process-local store.
//
// BigCache only knows a global LifeWindow. Per-entry TTLs are honoured by
// framing every value with its deadline and checking it on read; the frame is
// stripped again, so Get still returns exactly the bytes given to Set.
// LifeWindow stays an upper bound on any entry's lifetime.
package bigcache

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"time"

	bc "github.com/allegro/bigcache/v3"

	pr "github.com/unkn0wn-root/tagcache/provider"
)

const deadlineLen = 8

type Provider struct {
	c   *bc.BigCache
	now func() time.Time

	// Add writes to leases so LifeWindow or HardMaxCacheSize eviction cannot
	// drop a held sentinel.
	addMu  sync.Mutex
	leases *pr.Leases
}

var (
	_ pr.Provider     = (*Provider)(nil)
	_ pr.Adder        = (*Provider)(nil)
	_ pr.ValueDeleter = (*Provider)(nil)
	_ pr.Exister      = (*Provider)(nil)
)

type Config struct {
	LifeWindow         time.Duration
	CleanWindow        time.Duration
	MaxEntriesInWindow int
	MaxEntrySize       int
	HardMaxCacheSizeMB int // ~ memory limit; 0 = unlimited
}

func New(cfg Config) (*Provider, error) {
	if cfg.LifeWindow <= 0 {
		return nil, errors.New("bigcache: LifeWindow must be positive")
	}
	conf := bc.DefaultConfig(cfg.LifeWindow)
	if cfg.CleanWindow > 0 {
		conf.CleanWindow = cfg.CleanWindow
	}
	if cfg.MaxEntriesInWindow > 0 {
		conf.MaxEntriesInWindow = cfg.MaxEntriesInWindow
	}
	if cfg.MaxEntrySize > 0 {
		conf.MaxEntrySize = cfg.MaxEntrySize
	}
	if cfg.HardMaxCacheSizeMB > 0 {
		conf.HardMaxCacheSize = cfg.HardMaxCacheSizeMB
	}
	conf.Verbose = false
	c, err := bc.New(context.Background(), conf)
	if err != nil {
		return nil, err
	}
	return &Provider{c: c, now: time.Now, leases: pr.NewLeases()}, nil
}

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	b, ok, err := p.get(key)
	if err != nil || ok {
		return b, ok, err
	}
	if v, held := p.leases.Get(key); held {
		return v, true, nil
	}
	return nil, false, nil
}

func (p *Provider) get(key string) ([]byte, bool, error) {
	b, err := p.c.Get(key)
	if errors.Is(err, bc.ErrEntryNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if len(b) < deadlineLen {
		_ = p.c.Delete(key)
		return nil, false, nil
	}
	if dl := int64(binary.BigEndian.Uint64(b[:deadlineLen])); dl != 0 && p.now().UnixNano() >= dl {
		_ = p.c.Delete(key)
		return nil, false, nil
	}
	return b[deadlineLen:], true, nil
}

// Set ignores cost. ttl <= 0 means "until LifeWindow".
func (p *Provider) Set(_ context.Context, key string, value []byte, _ int64, ttl time.Duration) (bool, error) {
	return true, p.c.Set(key, p.frame(value, ttl))
}

func (p *Provider) frame(value []byte, ttl time.Duration) []byte {
	var dl int64
	if ttl > 0 {
		dl = p.now().Add(ttl).UnixNano()
	}
	out := make([]byte, deadlineLen+len(value))
	binary.BigEndian.PutUint64(out[:deadlineLen], uint64(dl))
	copy(out[deadlineLen:], value)
	return out
}

func (p *Provider) Add(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	p.addMu.Lock()
	defer p.addMu.Unlock()
	_, ok, err := p.Get(ctx, key)
	if err != nil || ok {
		return false, err
	}
	p.leases.Put(key, value, ttl)
	return true, nil
}

func (p *Provider) DelIfValue(ctx context.Context, key string, value []byte) (bool, error) {
	p.addMu.Lock()
	defer p.addMu.Unlock()
	if held, deleted := p.leases.DelIfValue(key, value); held {
		return deleted, nil
	}
	cur, ok, err := p.get(key)
	if err != nil || !ok || !bytes.Equal(cur, value) {
		return false, err
	}
	return true, p.Del(ctx, key)
}

func (p *Provider) Exists(ctx context.Context, key string) (bool, error) {
	_, ok, err := p.Get(ctx, key)
	return ok, err
}

func (p *Provider) Del(_ context.Context, key string) error {
	p.leases.Del(key)
	if err := p.c.Delete(key); err != nil && !errors.Is(err, bc.ErrEntryNotFound) {
		return err
	}
	return nil
}

func (p *Provider) Close(_ context.Context) error {
	return p.c.Close()
}
