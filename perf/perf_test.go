package perf

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schedwatch/resourcemgr/cache"
	"github.com/schedwatch/resourcemgr/pool"
	"github.com/schedwatch/resourcemgr/tracker"
)

type stubCache struct {
	mu    sync.Mutex
	stats cache.Stats
	calls int
}

func (s *stubCache) Stats() cache.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.stats
}

type stubPools struct {
	stats  []pool.Stats
	health map[string]pool.HealthResult
}

func (s *stubPools) HealthCheckAll(ctx context.Context) map[string]pool.HealthResult {
	return s.health
}

func (s *stubPools) StatsAll() []pool.Stats { return s.stats }

type stubLeaks struct {
	records []tracker.Record
}

func (s *stubLeaks) DetectLeaks(maxLifetime time.Duration) []tracker.Record {
	return s.records
}

func hasRecommendation(recs []string, substr string) bool {
	for _, r := range recs {
		if strings.Contains(r, substr) {
			return true
		}
	}
	return false
}

func TestReport_HealthySystemNoRecommendations(t *testing.T) {
	a := New(
		&stubCache{stats: cache.Stats{Hits: 90, Misses: 10, HitRate: 0.90}},
		&stubPools{
			stats:  []pool.Stats{{Name: "db", Utilization: 0.40}},
			health: map[string]pool.HealthResult{"db": {HealthyCount: 4, Status: "healthy"}},
		},
		&stubLeaks{},
		Options{},
	)

	rep := a.Report(context.Background())
	assert.Empty(t, rep.Recommendations)
	assert.Empty(t, rep.Leaks)
	require.Len(t, rep.Pools, 1)
	assert.Equal(t, "db", rep.Pools[0].Stats.Name)
	assert.Equal(t, "healthy", rep.Pools[0].Health.Status)
}

func TestReport_LowHitRateRecommendation(t *testing.T) {
	a := New(&stubCache{stats: cache.Stats{Hits: 30, Misses: 70, HitRate: 0.30}}, nil, nil, Options{})

	rep := a.Report(context.Background())
	require.Len(t, rep.Recommendations, 1)
	assert.True(t, hasRecommendation(rep.Recommendations, "hit rate"))
	assert.True(t, hasRecommendation(rep.Recommendations, "TTL"))
}

func TestReport_ColdCacheNoHitRateNoise(t *testing.T) {
	// Zero lookups means no hit-rate signal; the report must not tell
	// anyone to tune a cache nothing has touched yet.
	a := New(&stubCache{stats: cache.Stats{}}, nil, nil, Options{})

	rep := a.Report(context.Background())
	assert.Empty(t, rep.Recommendations)
}

func TestReport_HighUtilizationRecommendation(t *testing.T) {
	a := New(nil, &stubPools{
		stats:  []pool.Stats{{Name: "db", Utilization: 0.95}},
		health: map[string]pool.HealthResult{"db": {Status: "healthy"}},
	}, nil, Options{})

	rep := a.Report(context.Background())
	require.Len(t, rep.Recommendations, 1)
	assert.True(t, hasRecommendation(rep.Recommendations, `pool "db" utilization`))
	assert.True(t, hasRecommendation(rep.Recommendations, "MaxSize"))
}

func TestReport_UnhealthyPoolRecommendation(t *testing.T) {
	a := New(nil, &stubPools{
		stats:  []pool.Stats{{Name: "mq", Utilization: 0.10}},
		health: map[string]pool.HealthResult{"mq": {UnhealthyCount: 2, Status: "unhealthy"}},
	}, nil, Options{})

	rep := a.Report(context.Background())
	require.Len(t, rep.Recommendations, 1)
	assert.True(t, hasRecommendation(rep.Recommendations, "backing service"))
}

func TestReport_LeakRecommendationNamesOldest(t *testing.T) {
	t0 := time.Unix(1_700_000_000, 0).UTC()
	a := New(nil, nil, &stubLeaks{records: []tracker.Record{
		{ID: "h-1", OwnerTag: "batch-job", PoolName: "db", AcquiredAt: t0},
		{ID: "h-2", OwnerTag: "web", PoolName: "db", AcquiredAt: t0.Add(time.Minute)},
	}}, Options{})

	rep := a.Report(context.Background())
	require.Len(t, rep.Leaks, 2)
	require.Len(t, rep.Recommendations, 1)
	assert.True(t, hasRecommendation(rep.Recommendations, "2 leaked handle(s)"))
	assert.True(t, hasRecommendation(rep.Recommendations, "batch-job"))
}

func TestReport_CustomTargets(t *testing.T) {
	a := New(
		&stubCache{stats: cache.Stats{Hits: 80, Misses: 20, HitRate: 0.80}},
		&stubPools{stats: []pool.Stats{{Name: "db", Utilization: 0.50}}, health: map[string]pool.HealthResult{}},
		nil,
		Options{HitRateTarget: 0.95, UtilizationTarget: 0.40},
	)

	rep := a.Report(context.Background())
	assert.True(t, hasRecommendation(rep.Recommendations, "hit rate"))
	assert.True(t, hasRecommendation(rep.Recommendations, "utilization"))
}

func TestLast_CachesReport(t *testing.T) {
	clk := &stubClock{t: time.Unix(1_700_000_000, 0)}
	a := New(&stubCache{}, nil, nil, Options{Clock: clk})

	_, ok := a.Last()
	assert.False(t, ok, "no report before the first tick")

	rep := a.Report(context.Background())
	last, ok := a.Last()
	require.True(t, ok)
	assert.Equal(t, rep.GeneratedAt, last.GeneratedAt)
	assert.Equal(t, clk.t, last.GeneratedAt)
}

type stubClock struct{ t time.Time }

func (c *stubClock) Now() time.Time { return c.t }

func TestReport_NilSources(t *testing.T) {
	a := New(nil, nil, nil, Options{})

	rep := a.Report(context.Background())
	assert.Empty(t, rep.Pools)
	assert.Empty(t, rep.Leaks)
	assert.Empty(t, rep.Recommendations)
}

func TestReport_ReadsOnly(t *testing.T) {
	// The aggregator consumes live cache and pool values without
	// mutating them: counters before and after a report must match.
	c := cache.New[string, int](cache.Options[string, int]{CleanupInterval: -1})
	defer c.Close()
	c.Set("a", 1)
	c.Get("a")
	c.Get("missing")
	before := c.Stats()

	a := New(c, nil, nil, Options{})
	a.Report(context.Background())
	a.Report(context.Background())

	after := c.Stats()
	assert.Equal(t, before.Hits, after.Hits)
	assert.Equal(t, before.Misses, after.Misses)
	assert.Equal(t, before.Entries, after.Entries)
}

func TestRun_StopsOnCancel(t *testing.T) {
	src := &stubCache{stats: cache.Stats{Hits: 1, HitRate: 1}}
	a := New(src, nil, nil, Options{Interval: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for {
		if _, ok := a.Last(); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("no report produced before deadline")
		}
		time.Sleep(time.Millisecond)
	}
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on cancel")
	}
}
