package cache

import (
	"strconv"
	"testing"
	"time"
)

// End-to-end sweep: 1000 distinct keys with a 1s TTL across an 8-shard
// cache, simulated time advanced by 2s, one cleanup pass empties it.
func TestSweep_ExpiresAllShards(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{}
	cc := New[string, string](Options[string, string]{
		Shards:          8,
		Clock:           clk,
		CleanupInterval: -1, // drive the sweep by hand
	})
	t.Cleanup(func() { _ = cc.Close() })

	for i := 0; i < 1000; i++ {
		cc.SetWithTTL("k:"+strconv.Itoa(i), "v", time.Second)
	}
	if n := cc.Len(); n != 1000 {
		t.Fatalf("preload want 1000 entries, got %d", n)
	}

	clk.add(2 * time.Second)
	removed := cc.(*cache[string, string]).sweepOnce()
	if removed != 1000 {
		t.Fatalf("sweep want 1000 removals, got %d", removed)
	}

	st := cc.Stats()
	if st.Entries != 0 {
		t.Fatalf("entry count after sweep want 0, got %d", st.Entries)
	}
	if st.Evictions != 1000 {
		t.Fatalf("evictions want 1000, got %d", st.Evictions)
	}
}

// A sweep removes only entries whose deadline passed.
func TestSweep_SparesLiveEntries(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{}
	cc := New[string, string](Options[string, string]{
		Shards:          4,
		Clock:           clk,
		CleanupInterval: -1,
	})
	t.Cleanup(func() { _ = cc.Close() })

	cc.SetWithTTL("short", "v", time.Second)
	cc.SetWithTTL("long", "v", time.Hour)
	cc.Set("forever", "v") // no TTL

	clk.add(2 * time.Second)
	if removed := cc.(*cache[string, string]).sweepOnce(); removed != 1 {
		t.Fatalf("sweep want 1 removal, got %d", removed)
	}
	if _, ok := cc.Get("long"); !ok {
		t.Fatal("unexpired entry must survive the sweep")
	}
	if _, ok := cc.Get("forever"); !ok {
		t.Fatal("no-TTL entry must survive the sweep")
	}
}

// The deadline itself is expired: at exactly createdAt+ttl the entry is
// gone for both the sweep and lazy Get.
func TestSweep_ExpiresAtExactDeadline(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{}
	cc := New[string, string](Options[string, string]{
		Shards:          1,
		Clock:           clk,
		CleanupInterval: -1,
	})
	t.Cleanup(func() { _ = cc.Close() })

	cc.SetWithTTL("swept", "v", time.Second)
	cc.SetWithTTL("lazy", "v", time.Second)

	clk.add(time.Second)
	if removed := cc.(*cache[string, string]).sweepOnce(); removed != 2 {
		t.Fatalf("sweep at the exact deadline want 2 removals, got %d", removed)
	}

	cc.SetWithTTL("lazy", "v", time.Second)
	clk.add(time.Second)
	if _, ok := cc.Get("lazy"); ok {
		t.Fatal("Get at the exact deadline must report absent")
	}
}

// A panicking OnEvict must not leave a shard lock held: the sweep pass
// is dropped, but the shard stays usable.
func TestSweep_PanickingOnEvictKeepsShardUsable(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{}
	cc := New[string, string](Options[string, string]{
		Shards:          1,
		Clock:           clk,
		CleanupInterval: -1,
		OnEvict: func(string, string, EvictReason) {
			panic("callback failure")
		},
	})
	t.Cleanup(func() { _ = cc.Close() })

	cc.SetWithTTL("gone", "v", time.Second)
	clk.add(2 * time.Second)
	cc.(*cache[string, string]).sweepOnce()

	done := make(chan struct{})
	go func() {
		cc.Set("after", "v")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("shard blocked after a panicking sweep callback")
	}
	if v, ok := cc.Get("after"); !ok || v != "v" {
		t.Fatalf("shard must serve reads after the contained panic, got %q ok=%v", v, ok)
	}
	if _, ok := cc.Get("gone"); ok {
		t.Fatal("swept entry must stay removed")
	}
}

// OnEvict fires for swept entries with the expiration reason.
func TestSweep_OnEvictCallback(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{}
	var evicted []string
	cc := New[string, string](Options[string, string]{
		Shards:          1,
		Clock:           clk,
		CleanupInterval: -1,
		OnEvict: func(k, _ string, reason EvictReason) {
			if reason == EvictExpired {
				evicted = append(evicted, k)
			}
		},
	})
	t.Cleanup(func() { _ = cc.Close() })

	cc.SetWithTTL("gone", "v", time.Second)
	clk.add(2 * time.Second)
	cc.(*cache[string, string]).sweepOnce()

	if len(evicted) != 1 || evicted[0] != "gone" {
		t.Fatalf("OnEvict want [gone], got %v", evicted)
	}
}
