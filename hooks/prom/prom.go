// Package prom counts tagcache hook events as Prometheus metrics.
//
// Storage keys, prefixes and lock resources are not used as labels; their
// cardinality is unbounded.
package prom

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/unkn0wn-root/tagcache"
)

var _ tagcache.Hooks = (*Hooks)(nil)

type Options struct {
	Namespace string // "" => "tagcache"
	Subsystem string

	// Registerer receives the collectors; nil => prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer
}

type Hooks struct {
	selfHeal     *prometheus.CounterVec
	setRejected  prometheus.Counter
	genErrors    *prometheus.CounterVec
	invalidated  prometheus.Counter
	matched      prometheus.Counter
	outages      *prometheus.CounterVec
	pruned       prometheus.Counter
	lockContend  prometheus.Counter
	naiveLocking prometheus.Gauge
}

// New builds and registers the collectors. Registering twice on the same
// Registerer fails with prometheus.AlreadyRegisteredError.
func New(opts Options) (*Hooks, error) {
	ns := opts.Namespace
	if ns == "" {
		ns = "tagcache"
	}
	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{Namespace: ns, Subsystem: opts.Subsystem, Name: name, Help: help})
	}
	counterVec := func(name, help string, labels ...string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Subsystem: opts.Subsystem, Name: name, Help: help}, labels)
	}

	naive := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: ns,
		Subsystem: opts.Subsystem,
		Name:      "lock_naive",
		Help:      "1 when the lock runs check-then-set.",
	})
	h := &Hooks{
		selfHeal:     counterVec("self_heal_total", "Entries deleted on read.", "reason"),
		setRejected:  counter("set_rejected_total", "Writes the store refused under pressure."),
		genErrors:    counterVec("generation_errors_total", "Generation store failures.", "op"),
		invalidated:  counter("prefix_invalidations_total", "Prefix invalidations that completed."),
		matched:      counter("prefix_matched_total", "Prefixes bumped or keys deleted by prefix invalidations."),
		outages:      counterVec("invalidation_failures_total", "Prefix or clear operations that failed part way.", "stage"),
		pruned:       counter("registry_pruned_total", "Registry keys dropped because the store no longer holds them."),
		lockContend:  counter("lock_contended_total", "Lock attempts that found the resource held."),
		naiveLocking: naive,
	}
	for _, c := range []prometheus.Collector{
		h.selfHeal, h.setRejected, h.genErrors, h.invalidated, h.matched,
		h.outages, h.pruned, h.lockContend, h.naiveLocking,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return h, nil
}

func (h *Hooks) SelfHeal(_, reason string)   { h.selfHeal.WithLabelValues(reason).Inc() }
func (h *Hooks) ProviderSetRejected(string)  { h.setRejected.Inc() }
func (h *Hooks) GenSnapshotError(int, error) { h.genErrors.WithLabelValues("snapshot").Inc() }
func (h *Hooks) GenBumpError(string, error)  { h.genErrors.WithLabelValues("bump").Inc() }
func (h *Hooks) RegistryPruned(removed int)  { h.pruned.Add(float64(removed)) }
func (h *Hooks) LockContended(string)        { h.lockContend.Inc() }
func (h *Hooks) NaiveLock()                  { h.naiveLocking.Set(1) }

func (h *Hooks) PrefixInvalidated(_ string, n int) {
	h.invalidated.Inc()
	h.matched.Add(float64(n))
}

func (h *Hooks) InvalidateOutage(_ string, bumpErr, delErr error) {
	if bumpErr != nil {
		h.outages.WithLabelValues("bump").Inc()
	}
	if delErr != nil {
		h.outages.WithLabelValues("delete").Inc()
	}
}
