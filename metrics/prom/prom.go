// Package prom exports cache and pool metrics to Prometheus.
package prom

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/schedwatch/resourcemgr/cache"
	"github.com/schedwatch/resourcemgr/pool"
)

// CacheAdapter implements cache.Metrics backed by Prometheus
// counters/gauges. Safe for concurrent use; all Prometheus metric types
// are goroutine-safe.
type CacheAdapter struct {
	hits    prometheus.Counter
	misses  prometheus.Counter
	evicts  *prometheus.CounterVec
	entries prometheus.Gauge
}

// NewCache constructs a cache metrics adapter.
//   - reg:     registry to register with (nil => prometheus.DefaultRegisterer)
//   - ns, sub: Prometheus namespace and subsystem
func NewCache(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels) *CacheAdapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	a := &CacheAdapter{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, Name: "hits_total",
			Help: "Cache hits", ConstLabels: constLabels,
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, Name: "misses_total",
			Help: "Cache misses", ConstLabels: constLabels,
		}),
		evicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, Name: "evictions_total",
			Help: "Cache removals by reason", ConstLabels: constLabels,
		}, []string{"reason"}),
		entries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: sub, Name: "entries",
			Help: "Resident entries", ConstLabels: constLabels,
		}),
	}
	reg.MustRegister(a.hits, a.misses, a.evicts, a.entries)
	return a
}

func (a *CacheAdapter) Hit()  { a.hits.Inc() }
func (a *CacheAdapter) Miss() { a.misses.Inc() }

func (a *CacheAdapter) Evict(r cache.EvictReason) {
	a.evicts.WithLabelValues(evictReason(r)).Inc()
}

func (a *CacheAdapter) Entries(total int) { a.entries.Set(float64(total)) }

func evictReason(r cache.EvictReason) string {
	switch r {
	case cache.EvictExpired:
		return "expired"
	case cache.EvictDeleted:
		return "deleted"
	case cache.EvictCleared:
		return "cleared"
	default:
		return "unknown"
	}
}

var _ cache.Metrics = (*CacheAdapter)(nil)

// PoolAdapter implements pool.Metrics for one pool. Use the pool name
// as the subsystem (or a const label) to keep pools distinguishable.
type PoolAdapter struct {
	acquires prometheus.Counter
	waits    prometheus.Histogram
	timeouts prometheus.Counter
	opened   prometheus.Counter
	closed   *prometheus.CounterVec
	size     *prometheus.GaugeVec
}

// NewPool constructs a pool metrics adapter.
func NewPool(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels) *PoolAdapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	a := &PoolAdapter{
		acquires: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, Name: "acquires_total",
			Help: "Successful slot acquisitions", ConstLabels: constLabels,
		}),
		waits: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns, Subsystem: sub, Name: "acquire_wait_seconds",
			Help:        "Time callers waited to acquire a slot",
			ConstLabels: constLabels,
			Buckets:     prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
		timeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, Name: "acquire_timeouts_total",
			Help: "Acquisitions that gave up", ConstLabels: constLabels,
		}),
		opened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, Name: "slots_opened_total",
			Help: "Slots opened", ConstLabels: constLabels,
		}),
		closed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, Name: "slots_closed_total",
			Help: "Slots closed by reason", ConstLabels: constLabels,
		}, []string{"reason"}),
		size: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: sub, Name: "slots",
			Help: "Slot census by state", ConstLabels: constLabels,
		}, []string{"state"}),
	}
	reg.MustRegister(a.acquires, a.waits, a.timeouts, a.opened, a.closed, a.size)
	return a
}

func (a *PoolAdapter) Acquire(wait time.Duration) {
	a.acquires.Inc()
	a.waits.Observe(wait.Seconds())
}

func (a *PoolAdapter) Timeout()    { a.timeouts.Inc() }
func (a *PoolAdapter) SlotOpened() { a.opened.Inc() }

func (a *PoolAdapter) SlotClosed(r pool.CloseReason) {
	a.closed.WithLabelValues(r.String()).Inc()
}

func (a *PoolAdapter) Size(size, inUse, idle int) {
	a.size.WithLabelValues("total").Set(float64(size))
	a.size.WithLabelValues("in_use").Set(float64(inUse))
	a.size.WithLabelValues("idle").Set(float64(idle))
}

var _ pool.Metrics = (*PoolAdapter)(nil)
