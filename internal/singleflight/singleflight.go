// Package singleflight coalesces concurrent calls for the same key so
// that the underlying work runs at most once at a time per key.
package singleflight

import (
	"context"
	"sync"
)

// Group deduplicates in-flight calls keyed by K. The first caller for a
// key becomes the leader and runs fn; concurrent callers for the same
// key wait for the leader's result.
//
// Publishing (val, err) happens-before close(done), so followers that
// return after <-done observe the final values. Cancelling a follower's
// ctx unblocks only that follower; the leader's fn keeps running. If the
// work itself must be cancellable, thread ctx into fn.
type Group[K comparable, V any] struct {
	mu sync.Mutex
	m  map[K]*flight[V]
}

type flight[V any] struct {
	done chan struct{} // closed once val/err are published
	val  V
	err  error
}

// Do runs fn once for key, returning the shared result to every
// concurrent caller. A follower whose ctx is cancelled returns ctx.Err()
// while the leader continues.
func (g *Group[K, V]) Do(ctx context.Context, key K, fn func() (V, error)) (V, error) {
	g.mu.Lock()
	if g.m == nil {
		g.m = make(map[K]*flight[V])
	}
	if f, ok := g.m[key]; ok {
		// In-flight call exists: wait as a follower.
		done := f.done
		g.mu.Unlock()

		select {
		case <-done:
			return f.val, f.err
		case <-ctx.Done():
			var zero V
			return zero, ctx.Err()
		}
	}

	f := &flight[V]{done: make(chan struct{})}
	g.m[key] = f
	g.mu.Unlock()

	// Leader path: run fn outside the lock.
	f.val, f.err = fn()
	close(f.done)

	g.mu.Lock()
	delete(g.m, key)
	g.mu.Unlock()

	return f.val, f.err
}
