package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/schedwatch/resourcemgr/internal/singleflight"
	"github.com/schedwatch/resourcemgr/internal/util"
)

// ErrNoLoader is returned by GetOrLoad when no Loader was configured.
var ErrNoLoader = errors.New("cache: no Loader provided")

// cache is a sharded TTL key/value store. See package doc for the
// concurrency model.
type cache[K comparable, V any] struct {
	shards []*shard[K, V]
	hash   func(K) uint64
	closed atomic.Bool
	stop   chan struct{}

	opt Options[K, V]

	// singleflight group coalescing concurrent loads in GetOrLoad.
	sf singleflight.Group[K, V]
}

// New constructs a cache from the provided Options. Defaults:
//   - Shards <= 0          -> CPU-based, rounded up to a power of two
//   - nil Metrics          -> NoopMetrics
//   - nil Efficiency       -> DefaultEfficiency
//   - CleanupInterval == 0 -> DefaultCleanupInterval (< 0 disables)
func New[K comparable, V any](opt Options[K, V]) Cache[K, V] {
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}
	if opt.Efficiency == nil {
		opt.Efficiency = DefaultEfficiency
	}
	if opt.CleanupInterval == 0 {
		opt.CleanupInterval = DefaultCleanupInterval
	}

	sh := opt.Shards
	if sh <= 0 {
		sh = util.DefaultShardCount()
	} else {
		sh = int(util.NextPow2(uint64(sh)))
	}
	opt.Shards = sh

	c := &cache[K, V]{
		shards: make([]*shard[K, V], sh),
		hash:   util.Sum64[K],
		stop:   make(chan struct{}),
		opt:    opt,
	}
	for i := range c.shards {
		c.shards[i] = newShard[K, V](&c.opt)
	}

	if opt.CleanupInterval > 0 {
		go c.sweeper(opt.CleanupInterval)
	}
	return c
}

// ---- Cache[K,V] implementation ----

func (c *cache[K, V]) Set(k K, v V) {
	if c.closed.Load() {
		return
	}
	now := c.now()
	c.getShard(k).set(k, v, now, c.deadline(now, c.opt.DefaultTTL))
}

func (c *cache[K, V]) SetWithTTL(k K, v V, ttl time.Duration) {
	if c.closed.Load() {
		return
	}
	now := c.now()
	c.getShard(k).set(k, v, now, c.deadline(now, ttl))
}

func (c *cache[K, V]) Add(k K, v V) bool {
	if c.closed.Load() {
		return false
	}
	now := c.now()
	return c.getShard(k).add(k, v, now, c.deadline(now, c.opt.DefaultTTL))
}

func (c *cache[K, V]) Get(k K) (V, bool) {
	if c.closed.Load() {
		var zero V
		return zero, false
	}
	return c.getShard(k).get(k, c.now())
}

func (c *cache[K, V]) Delete(k K) bool {
	if c.closed.Load() {
		return false
	}
	return c.getShard(k).del(k)
}

func (c *cache[K, V]) Clear() {
	if c.closed.Load() {
		return
	}
	for _, s := range c.shards {
		s.clear()
	}
	c.opt.Metrics.Entries(0)
}

func (c *cache[K, V]) Len() int {
	total := 0
	for _, s := range c.shards {
		total += s.len()
	}
	return total
}

// Stats aggregates the per-shard counters into one snapshot. Rates are
// computed against total lookups (hits + misses).
func (c *cache[K, V]) Stats() Stats {
	var st Stats
	for _, s := range c.shards {
		st.Hits += s.hits.Load()
		st.Misses += s.misses.Load()
		st.Evictions += s.expired.Load()
		st.Entries += s.len()
	}
	if lookups := st.Hits + st.Misses; lookups > 0 {
		st.HitRate = float64(st.Hits) / float64(lookups)
		st.Efficiency = c.opt.Efficiency(st.HitRate, float64(st.Evictions)/float64(lookups))
	}
	c.opt.Metrics.Entries(st.Entries)
	return st
}

// GetOrLoad returns the value for k; on miss it loads via Options.Loader,
// coalescing concurrent loads for the same key.
func (c *cache[K, V]) GetOrLoad(ctx context.Context, k K) (V, error) {
	// Fast path.
	if v, ok := c.Get(k); ok {
		return v, nil
	}
	if c.opt.Loader == nil {
		var zero V
		return zero, ErrNoLoader
	}

	return c.sf.Do(ctx, k, func() (V, error) {
		// Double-check after joining the flight.
		if v, ok := c.Get(k); ok {
			return v, nil
		}
		v, err := c.opt.Loader(ctx, k)
		if err == nil {
			c.Set(k, v)
		}
		return v, err
	})
}

// Close stops the background sweeper and marks the cache closed.
// Subsequent operations are no-ops.
func (c *cache[K, V]) Close() error {
	if c.closed.CompareAndSwap(false, true) {
		close(c.stop)
	}
	return nil
}

// ---- helpers ----

func (c *cache[K, V]) getShard(k K) *shard[K, V] {
	return c.shards[util.ShardIndex(c.hash(k), len(c.shards))]
}

func (c *cache[K, V]) now() int64 {
	if c.opt.Clock != nil {
		return c.opt.Clock.NowUnixNano()
	}
	return time.Now().UnixNano()
}

// deadline converts a relative TTL into an absolute UnixNano deadline.
// A non-positive ttl returns 0 (no expiration).
func (c *cache[K, V]) deadline(now int64, ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}
	return now + int64(ttl)
}
