package cache

import "sync/atomic"

// entry is the stored record for one key. An entry pointer is published
// into the shard map under the shard's write lock and never mutated in
// place except for lastAccess, so readers holding the read lock always
// observe a fully written value.
type entry[V any] struct {
	val V

	// createdAt and expireAt are absolute UnixNano stamps.
	// expireAt == 0 means no TTL.
	createdAt int64
	expireAt  int64

	// lastAccess is stamped on every hit. Atomic so Get can update it
	// while holding only the shard read lock.
	lastAccess atomic.Int64
}

// expired reports whether the entry's deadline has been reached at now.
// The deadline itself is already expired: an entry lives for [createdAt,
// createdAt+ttl).
func (e *entry[V]) expired(now int64) bool {
	return e.expireAt != 0 && now >= e.expireAt
}
