package cache

import (
	"sync"

	"github.com/schedwatch/resourcemgr/internal/util"
)

// shard is an independently locked partition of the key space. The
// lock guards only the map; it is never held while a caller uses a
// returned value or while a Loader runs.
type shard[K comparable, V any] struct {
	mu sync.RWMutex
	m  map[K]*entry[V]

	opt *Options[K, V]

	// Hot counters on separate cache lines to avoid false sharing.
	_       util.CacheLinePad
	hits    util.PaddedAtomicInt64
	misses  util.PaddedAtomicInt64
	expired util.PaddedAtomicUint64
}

func newShard[K comparable, V any](opt *Options[K, V]) *shard[K, V] {
	return &shard[K, V]{
		m:   make(map[K]*entry[V]),
		opt: opt,
	}
}

// set inserts or overwrites. Overwrites publish a fresh entry pointer,
// which resets createdAt and the deadline.
func (s *shard[K, V]) set(k K, v V, now, deadline int64) {
	e := &entry[V]{val: v, createdAt: now, expireAt: deadline}
	e.lastAccess.Store(now)

	s.mu.Lock()
	s.m[k] = e
	s.mu.Unlock()
}

// add inserts only if k is absent (an expired resident entry counts as
// absent and is replaced). Returns false when a live entry exists.
func (s *shard[K, V]) add(k K, v V, now, deadline int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.m[k]; ok && !old.expired(now) {
		return false
	}
	e := &entry[V]{val: v, createdAt: now, expireAt: deadline}
	e.lastAccess.Store(now)
	s.m[k] = e
	return true
}

// get returns the live value for k. An expired entry found here is
// removed (lazy expiration) and reported as a miss.
func (s *shard[K, V]) get(k K, now int64) (V, bool) {
	s.mu.RLock()
	e, ok := s.m[k]
	if ok && !e.expired(now) {
		v := e.val
		e.lastAccess.Store(now)
		s.mu.RUnlock()
		s.hits.Add(1)
		s.opt.Metrics.Hit()
		return v, true
	}
	s.mu.RUnlock()

	if ok {
		s.expireLazily(k, e, now)
	}
	s.misses.Add(1)
	s.opt.Metrics.Miss()
	var zero V
	return zero, false
}

// expireLazily upgrades to the write lock and removes the entry, but
// only if it is still the same one we saw and still expired (a
// concurrent Set may have replaced it).
func (s *shard[K, V]) expireLazily(k K, e *entry[V], now int64) {
	s.mu.Lock()
	cur, ok := s.m[k]
	if !ok || cur != e || !cur.expired(now) {
		s.mu.Unlock()
		return
	}
	delete(s.m, k)
	s.mu.Unlock()

	s.expired.Add(1)
	s.opt.Metrics.Evict(EvictExpired)
	if cb := s.opt.OnEvict; cb != nil {
		cb(k, e.val, EvictExpired)
	}
}

// del removes k if present and returns true on success.
func (s *shard[K, V]) del(k K) bool {
	s.mu.Lock()
	e, ok := s.m[k]
	if ok {
		delete(s.m, k)
	}
	s.mu.Unlock()

	if !ok {
		return false
	}
	s.opt.Metrics.Evict(EvictDeleted)
	if cb := s.opt.OnEvict; cb != nil {
		cb(k, e.val, EvictDeleted)
	}
	return true
}

// clear swaps the whole map out in one locked step, so concurrent
// readers see either the old population or an empty shard.
func (s *shard[K, V]) clear() {
	s.mu.Lock()
	old := s.m
	s.m = make(map[K]*entry[V])
	s.mu.Unlock()

	if cb := s.opt.OnEvict; cb != nil {
		for k, e := range old {
			cb(k, e.val, EvictCleared)
		}
	}
	for range old {
		s.opt.Metrics.Evict(EvictCleared)
	}
}

// sweep removes every entry whose deadline has passed and returns the
// number removed. Like every other eviction path, callbacks run after
// the lock is released, so a misbehaving callback cannot wedge the
// shard.
func (s *shard[K, V]) sweep(now int64) int {
	type dead struct {
		k K
		v V
	}
	var removed []dead

	s.mu.Lock()
	for k, e := range s.m {
		if e.expired(now) {
			delete(s.m, k)
			removed = append(removed, dead{k, e.val})
		}
	}
	s.mu.Unlock()

	if len(removed) == 0 {
		return 0
	}
	s.expired.Add(uint64(len(removed)))
	for _, d := range removed {
		s.opt.Metrics.Evict(EvictExpired)
		if cb := s.opt.OnEvict; cb != nil {
			cb(d.k, d.v, EvictExpired)
		}
	}
	return len(removed)
}

func (s *shard[K, V]) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}
