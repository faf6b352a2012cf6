// Package cache provides a generic, sharded in-memory key/value store
// with per-entry TTL, lazy expiration on read, a periodic cleanup
// sweep, optional singleflight loading, and lightweight metrics hooks.
//
// Design
//
//   - Concurrency: the key space is split across shards, each protected
//     by its own RWMutex. A key maps to exactly one shard via FNV-1a
//     hashing; the shard count is fixed at construction (no live
//     resharding). Sharding bounds lock contention to roughly
//     1/num_shards of the traffic under a uniform key distribution.
//
//   - Locks guard only the in-memory map mutation. They are never held
//     while a caller uses a returned value, while a Loader computes a
//     value, or across any I/O.
//
//   - TTL: every entry carries an absolute deadline (UnixNano; zero
//     means no expiration). Expired entries are removed lazily when a
//     Get encounters them, and eagerly by a background sweeper that
//     wakes every CleanupInterval. Overwriting a key resets its
//     deadline.
//
//   - Absence is not an error: Get reports a missing or expired key
//     through its ok flag, never through an error value.
//
//   - GetOrLoad coalesces concurrent loads for the same key with
//     singleflight, so a thundering herd of misses triggers at most one
//     computation per key.
//
//   - Metrics: Options.Metrics receives Hit/Miss/Evict/Entries signals;
//     NoopMetrics is the default. Stats() returns an aggregated
//     snapshot including hit rate and an efficiency score. The scoring
//     function is pluggable (Options.Efficiency) and must be
//     order-preserving: a higher hit rate or a lower eviction rate can
//     never lower the score.
//
// Basic usage
//
//	c := cache.New[string, []byte](cache.Options[string, []byte]{
//	    DefaultTTL:      5 * time.Minute,
//	    CleanupInterval: 30 * time.Second,
//	})
//	defer c.Close()
//
//	c.Set("a", []byte("1"))
//	if v, ok := c.Get("a"); ok {
//	    _ = v
//	}
//	c.Delete("a")
//
// With GetOrLoad (singleflight)
//
//	c := cache.New[string, string](cache.Options[string, string]{
//	    DefaultTTL: time.Minute,
//	    Loader: func(ctx context.Context, k string) (string, error) {
//	        return fetchFromBackend(ctx, k)
//	    },
//	})
//	v, err := c.GetOrLoad(ctx, "key")
//
// All methods are safe for concurrent use by multiple goroutines.
package cache
