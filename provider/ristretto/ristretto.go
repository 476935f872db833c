// Package ristretto adapts dgraph-io/ristretto as the default process-local store.
package ristretto

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"time"

	rc "github.com/dgraph-io/ristretto"

	pr "github.com/unkn0wn-root/tagcache/provider"
)

type Provider struct {
	c *rc.Cache

	// ristretto buffers writes; sync makes Set visible to the next Get.
	sync bool

	// Values written by Add live in leases, not in c: ristretto's admission
	// policy may drop any write, and a dropped sentinel would let a second Add win.
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
	NumCounters int64
	MaxCost     int64
	BufferItems int64
	Metrics     bool
	// Async skips waiting for the write buffer to drain after Set.
	// Faster, but a Get right after Set may miss.
	Async bool
}

// DefaultConfig sizes the store for roughly 100k entries with unit cost.
func DefaultConfig() Config {
	return Config{
		NumCounters: 1e6,
		MaxCost:     1e5,
		BufferItems: 64,
	}
}

func New(cfg Config) (*Provider, error) {
	if cfg.NumCounters <= 0 || cfg.MaxCost <= 0 || cfg.BufferItems <= 0 {
		return nil, errors.New("ristretto: invalid config")
	}
	c, err := rc.NewCache(&rc.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
		Metrics:     cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}
	return &Provider{c: c, sync: !cfg.Async, leases: pr.NewLeases()}, nil
}

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := p.c.Get(key)
	if !ok {
		if v, held := p.leases.Get(key); held {
			return v, true, nil
		}
		return nil, false, nil
	}
	b, _ := v.([]byte)
	if b == nil {
		// self-heal: drop unexpected entry shape
		p.c.Del(key)
		return nil, false, nil
	}
	return b, true, nil
}

func (p *Provider) Set(_ context.Context, key string, value []byte, cost int64, ttl time.Duration) (bool, error) {
	if ttl < 0 {
		ttl = 0
	}
	ok := p.c.SetWithTTL(key, value, cost, ttl)
	if ok && p.sync {
		p.c.Wait()
	}
	return ok, nil
}

// Add is set-if-absent over both the cache and the leases. The value is held
// outside ristretto until it expires or DelIfValue/Del removes it.
func (p *Provider) Add(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	p.addMu.Lock()
	defer p.addMu.Unlock()
	if _, held := p.leases.Get(key); held {
		return false, nil
	}
	if _, ok := p.c.Get(key); ok {
		return false, nil
	}
	p.leases.Put(key, value, ttl)
	return true, nil
}

func (p *Provider) DelIfValue(_ context.Context, key string, value []byte) (bool, error) {
	p.addMu.Lock()
	defer p.addMu.Unlock()
	if held, deleted := p.leases.DelIfValue(key, value); held {
		return deleted, nil
	}
	v, ok := p.c.Get(key)
	if !ok {
		return false, nil
	}
	if b, _ := v.([]byte); !bytes.Equal(b, value) {
		return false, nil
	}
	p.c.Del(key)
	return true, nil
}

func (p *Provider) Exists(ctx context.Context, key string) (bool, error) {
	_, ok, err := p.Get(ctx, key)
	return ok, err
}

func (p *Provider) Del(_ context.Context, key string) error {
	p.c.Del(key)
	p.leases.Del(key)
	return nil
}

func (p *Provider) Close(_ context.Context) error {
	p.c.Wait()
	p.c.Close()
	return nil
}

// Metrics exposes ristretto's counters when Config.Metrics is set (nil otherwise).
func (p *Provider) Metrics() *rc.Metrics { return p.c.Metrics }
