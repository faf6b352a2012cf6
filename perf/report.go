package perf

import (
	"fmt"
	"time"

	"github.com/schedwatch/resourcemgr/cache"
	"github.com/schedwatch/resourcemgr/pool"
	"github.com/schedwatch/resourcemgr/tracker"
)

// Report is one consolidated snapshot across the resource layer.
type Report struct {
	GeneratedAt     time.Time        `json:"generated_at"`
	Cache           cache.Stats      `json:"cache"`
	Pools           []PoolReport     `json:"pools"`
	Leaks           []tracker.Record `json:"leaks,omitempty"`
	Recommendations []string         `json:"recommendations,omitempty"`
}

// PoolReport pairs one pool's census with its latest health result.
type PoolReport struct {
	Stats  pool.Stats        `json:"stats"`
	Health pool.HealthResult `json:"health"`
}

// recommend derives advisory tuning suggestions from threshold
// breaches. Recommendations never feed back into cache or pool state;
// they are output only.
func (a *Aggregator) recommend(rep Report) []string {
	var recs []string

	lookups := rep.Cache.Hits + rep.Cache.Misses
	if lookups > 0 && rep.Cache.HitRate < a.opt.HitRateTarget {
		recs = append(recs, fmt.Sprintf(
			"cache hit rate %.2f below target %.2f: consider a longer default TTL or more shards",
			rep.Cache.HitRate, a.opt.HitRateTarget))
	}

	for _, pr := range rep.Pools {
		if pr.Stats.Utilization > a.opt.UtilizationTarget {
			recs = append(recs, fmt.Sprintf(
				"pool %q utilization %.2f above target %.2f: consider raising MaxSize",
				pr.Stats.Name, pr.Stats.Utilization, a.opt.UtilizationTarget))
		}
		if pr.Health.Status == "unhealthy" {
			recs = append(recs, fmt.Sprintf(
				"pool %q has no healthy idle connections: check the backing service",
				pr.Stats.Name))
		}
	}

	if len(rep.Leaks) > 0 {
		oldest := rep.Leaks[0] // DetectLeaks orders oldest first
		recs = append(recs, fmt.Sprintf(
			"%d leaked handle(s) past %s: oldest is %s from pool %q held since %s",
			len(rep.Leaks), a.opt.LeakThreshold, oldest.OwnerTag, oldest.PoolName,
			oldest.AcquiredAt.Format(time.RFC3339)))
	}
	return recs
}
