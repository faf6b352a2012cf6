// Package perf periodically consolidates cache, pool, and tracker
// counters into one report with advisory tuning recommendations. The
// aggregator only reads from its sources; it never mutates cache or
// pool state, and it runs on its own timer, off the request path.
package perf

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/schedwatch/resourcemgr/cache"
	"github.com/schedwatch/resourcemgr/pool"
	"github.com/schedwatch/resourcemgr/tracker"
)

// CacheSource yields a cache counter snapshot.
type CacheSource interface {
	Stats() cache.Stats
}

// PoolSource yields pool health and census data; *pool.Manager
// satisfies it.
type PoolSource interface {
	HealthCheckAll(ctx context.Context) map[string]pool.HealthResult
	StatsAll() []pool.Stats
}

// LeakSource yields loans held past a threshold; *tracker.Tracker
// satisfies it.
type LeakSource interface {
	DetectLeaks(maxLifetime time.Duration) []tracker.Record
}

// Clock overrides the time source (tests). Nil => time.Now().
type Clock interface{ Now() time.Time }

// Options tunes the aggregator. Targets are policy, not algorithm:
// adjust them per deployment.
type Options struct {
	// Interval between report ticks. Zero selects a minute.
	Interval time.Duration
	// LeakThreshold is how long a handle may stay out before it is
	// flagged. Zero selects 5 minutes.
	LeakThreshold time.Duration
	// HitRateTarget is the cache hit rate below which a tuning
	// recommendation fires. Zero selects 0.70.
	HitRateTarget float64
	// UtilizationTarget is the pool utilization above which a tuning
	// recommendation fires. Zero selects 0.80.
	UtilizationTarget float64

	Logger zerolog.Logger
	Clock  Clock
}

func (o Options) withDefaults() Options {
	if o.Interval == 0 {
		o.Interval = time.Minute
	}
	if o.LeakThreshold == 0 {
		o.LeakThreshold = 5 * time.Minute
	}
	if o.HitRateTarget == 0 {
		o.HitRateTarget = 0.70
	}
	if o.UtilizationTarget == 0 {
		o.UtilizationTarget = 0.80
	}
	return o
}

// Aggregator polls its sources and assembles Reports.
type Aggregator struct {
	cacheSrc CacheSource
	pools    PoolSource
	leaks    LeakSource
	opt      Options

	mu   sync.RWMutex
	last *Report
}

// New wires an aggregator to its sources. Any source may be nil; the
// corresponding report section is then empty.
func New(cacheSrc CacheSource, pools PoolSource, leaks LeakSource, opt Options) *Aggregator {
	return &Aggregator{
		cacheSrc: cacheSrc,
		pools:    pools,
		leaks:    leaks,
		opt:      opt.withDefaults(),
	}
}

// Run ticks every Options.Interval until ctx is cancelled. A tick that
// panics is logged and retried on the next tick; it never takes the
// process down.
func (a *Aggregator) Run(ctx context.Context) {
	t := time.NewTicker(a.opt.Interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			a.tick(ctx)
		}
	}
}

func (a *Aggregator) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			a.opt.Logger.Error().Interface("panic", r).Msg("report tick failed; retrying next tick")
		}
	}()

	rep := a.Report(ctx)
	a.opt.Logger.Info().
		Float64("cache_hit_rate", rep.Cache.HitRate).
		Int("cache_entries", rep.Cache.Entries).
		Int("pools", len(rep.Pools)).
		Int("leaks", len(rep.Leaks)).
		Int("recommendations", len(rep.Recommendations)).
		Msg("performance report")
}

// Report assembles a fresh consolidated report and caches it for Last.
func (a *Aggregator) Report(ctx context.Context) Report {
	rep := Report{GeneratedAt: a.now()}

	if a.cacheSrc != nil {
		rep.Cache = a.cacheSrc.Stats()
	}
	if a.pools != nil {
		health := a.pools.HealthCheckAll(ctx)
		for _, st := range a.pools.StatsAll() {
			rep.Pools = append(rep.Pools, PoolReport{
				Stats:  st,
				Health: health[st.Name],
			})
		}
	}
	if a.leaks != nil {
		rep.Leaks = a.leaks.DetectLeaks(a.opt.LeakThreshold)
	}
	rep.Recommendations = a.recommend(rep)

	a.mu.Lock()
	a.last = &rep
	a.mu.Unlock()
	return rep
}

// Last returns the most recently assembled report, or false when no
// tick has completed yet.
func (a *Aggregator) Last() (Report, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.last == nil {
		return Report{}, false
	}
	return *a.last, true
}

func (a *Aggregator) now() time.Time {
	if a.opt.Clock != nil {
		return a.opt.Clock.Now()
	}
	return time.Now()
}
