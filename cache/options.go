package cache

import (
	"context"
	"time"
)

// DefaultCleanupInterval is the sweeper period applied when
// Options.CleanupInterval is zero.
const DefaultCleanupInterval = 30 * time.Second

// EvictReason explains why an entry was removed.
type EvictReason int

const (
	// EvictExpired — the entry's TTL deadline passed (lazy or swept).
	EvictExpired EvictReason = iota
	// EvictDeleted — removed by an explicit Delete.
	EvictDeleted
	// EvictCleared — removed by Clear.
	EvictCleared
)

// Metrics exposes cache-level observability hooks. NoopMetrics is used
// when none is configured. Implementations must be safe for concurrent
// use; hooks may be invoked under a shard lock, so keep them cheap.
type Metrics interface {
	Hit()
	Miss()
	Evict(reason EvictReason)
	Entries(total int)
}

// Clock provides time in UnixNano; override it for deterministic tests.
type Clock interface{ NowUnixNano() int64 }

// Options configures the cache. Zero values are safe: New applies the
// defaults documented per field.
type Options[K comparable, V any] struct {
	// Shards is the number of shard partitions, rounded up to a power
	// of two. If <= 0, a CPU-based default is chosen.
	Shards int

	// DefaultTTL applies to Set/Add when no per-key TTL is given.
	// Zero means entries never expire unless SetWithTTL is used.
	DefaultTTL time.Duration

	// CleanupInterval is the background sweep period. Zero selects
	// DefaultCleanupInterval; a negative value disables the sweeper
	// entirely (lazy expiration on Get still applies).
	CleanupInterval time.Duration

	// Loader fetches a value on cache miss. Used by GetOrLoad.
	Loader func(ctx context.Context, k K) (V, error)

	// Efficiency derives the efficiency score from the observed hit
	// rate and eviction rate (both per-lookup). It must be
	// order-preserving: non-decreasing in hitRate and non-increasing
	// in evictionRate. Nil selects DefaultEfficiency.
	Efficiency func(hitRate, evictionRate float64) float64

	// OnEvict is called for every removal, after the entry has been
	// unlinked and the shard lock released.
	OnEvict func(k K, v V, reason EvictReason)

	// Metrics receives observability signals. Nil => NoopMetrics.
	Metrics Metrics

	// Clock overrides the time source (tests). Nil => time.Now().
	Clock Clock
}

// DefaultEfficiency scores cache behavior as hitRate / (1 + evictionRate):
// monotonically increasing in hit rate, decreasing in eviction churn,
// and bounded by [0, 1] for rates in [0, 1].
func DefaultEfficiency(hitRate, evictionRate float64) float64 {
	return hitRate / (1 + evictionRate)
}
