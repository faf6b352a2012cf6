package cache

import (
	"context"
	"time"
)

// Cache is a sharded, TTL-based in-memory key/value cache interface.
// All methods are safe for concurrent use by multiple goroutines.
// Typical operation cost is amortized O(1): one map access under a
// shard lock.
type Cache[K comparable, V any] interface {
	// Set inserts or overwrites k→v using the cache's DefaultTTL.
	// Overwriting resets the entry's creation time and deadline.
	Set(k K, v V)

	// SetWithTTL inserts or overwrites k→v with a per-key TTL.
	// A non-positive ttl disables expiration for this entry.
	SetWithTTL(k K, v V, ttl time.Duration)

	// Add inserts k→v only if k is absent (no overwrite).
	// Returns false if the key already exists.
	Add(k K, v V) bool

	// Get returns the value for k and a presence flag. Both a key that
	// was never set and a key that has expired report absent; an
	// expired entry encountered here is removed.
	Get(k K) (V, bool)

	// Delete removes k if present and returns true on success.
	Delete(k K) bool

	// Clear empties all shards. Concurrent readers observe either the
	// pre-clear or post-clear state of a shard, never a partial one.
	Clear()

	// Len returns the total number of resident entries across shards.
	Len() int

	// Stats returns an aggregated counter snapshot.
	Stats() Stats

	// GetOrLoad returns the value for k, loading it via Options.Loader
	// on miss. Concurrent loads for the same key are coalesced
	// (singleflight). Returns ErrNoLoader if no Loader was configured.
	GetOrLoad(ctx context.Context, k K) (V, error)

	// Close stops the background sweeper and marks the cache closed.
	// Operations on a closed cache are no-ops.
	Close() error
}

// Stats is a point-in-time snapshot of cache counters and derived
// scores. Evictions counts TTL expirations only (lazy and swept);
// explicit Delete/Clear removals are not evictions.
type Stats struct {
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Evictions uint64  `json:"evictions"`
	Entries   int     `json:"entry_count"`
	HitRate   float64 `json:"hit_rate"`
	// Efficiency is Options.Efficiency applied to the hit and eviction
	// rates; with the default scoring it lands in [0, 1].
	Efficiency float64 `json:"efficiency_score"`
}
