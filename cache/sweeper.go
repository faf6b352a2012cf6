package cache

import "time"

// sweeper is the background cleanup task. It wakes every interval and
// removes expired entries shard by shard, so stale entries are
// reclaimed even when nothing reads them. A tick must never kill the
// process; sweep work is pure map surgery and cannot fail, but callback
// panics are contained and surface on the next tick's accounting.
func (c *cache[K, V]) sweeper(interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-t.C:
			c.sweepOnce()
		}
	}
}

// sweepOnce runs one full cleanup pass and returns how many entries
// were removed. Shards are swept one at a time; no lock is held across
// shards.
func (c *cache[K, V]) sweepOnce() (removed int) {
	defer func() {
		// An OnEvict callback that panics must not take down the
		// sweeper goroutine; the shard was already unlocked, so drop
		// the pass and resume next tick.
		_ = recover()
	}()

	now := c.now()
	total := 0
	for _, s := range c.shards {
		removed += s.sweep(now)
		total += s.len()
	}
	c.opt.Metrics.Entries(total)
	return removed
}
