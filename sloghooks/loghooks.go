// Package sloghooks logs tagcache Hooks events through log/slog, with
// sampling for the noisy ones and keys redacted by default.
package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/tagcache"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	SelfHealEvery  uint64
	ContendedEvery uint64
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	selfHealCtr  atomic.Uint64
	contendedCtr atomic.Uint64
}

var _ tagcache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) SelfHeal(storageKey, reason string) {
	if h.l == nil || !sample(h.opts.SelfHealEvery, &h.selfHealCtr) {
		return
	}
	h.l.Debug("tagcache.self_heal",
		"key", h.redact(storageKey),
		"reason", reason)
}

func (h *Hooks) ProviderSetRejected(storageKey string) {
	if h.l == nil {
		return
	}
	h.l.Warn("tagcache.provider_set_rejected",
		"key", h.redact(storageKey))
}

func (h *Hooks) GenSnapshotError(count int, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("tagcache.gen_snapshot_error",
		"count", count,
		"err", err)
}

func (h *Hooks) GenBumpError(prefix string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("tagcache.gen_bump_error",
		"prefix", prefix,
		"err", err)
}

// Prefixes are logged as-is: they name groups, not individual entries.
func (h *Hooks) PrefixInvalidated(prefix string, matched int) {
	if h.l == nil {
		return
	}
	h.l.Debug("tagcache.prefix_invalidated",
		"prefix", prefix,
		"matched", matched)
}

func (h *Hooks) InvalidateOutage(prefix string, bumpErr, delErr error) {
	if h.l == nil {
		return
	}
	h.l.Error("tagcache.invalidate_outage",
		"prefix", prefix,
		"bump_err", bumpErr,
		"del_err", delErr)
}

func (h *Hooks) RegistryPruned(removed int) {
	if h.l == nil {
		return
	}
	h.l.Debug("tagcache.registry_pruned", "removed", removed)
}

func (h *Hooks) LockContended(resource string) {
	if h.l == nil || !sample(h.opts.ContendedEvery, &h.contendedCtr) {
		return
	}
	h.l.Info("tagcache.lock_contended", "resource", resource)
}

func (h *Hooks) NaiveLock() {
	if h.l == nil {
		return
	}
	h.l.Warn("tagcache.naive_lock",
		"msg", "store has no atomic add; lock falls back to check-then-set")
}
