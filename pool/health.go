package pool

import (
	"context"
)

// HealthResult summarizes one pool's probe pass.
type HealthResult struct {
	HealthyCount   int    `json:"healthy_count"`
	UnhealthyCount int    `json:"unhealthy_count"`
	Status         string `json:"status"`
}

func healthStatus(healthy, unhealthy int) string {
	switch {
	case unhealthy == 0:
		return "healthy"
	case healthy > 0:
		return "degraded"
	default:
		return "unhealthy"
	}
}

// HealthCheck probes every idle slot. A slot that fails its probe (or
// whose probe times out) transitions to Closing and is replaced up to
// MinSize. The pass also retires slots past MaxLifetime and, while the
// pool holds more than MinSize, idle slots unused past IdleTimeout.
//
// Probes run against the backing connection outside any pool lock;
// only the O(1) state flips before and after are locked. Per-slot
// failures are remediated internally and never surface as an error
// here — the error return is reserved for a pool that is not Ready.
func (p *Pool[C]) HealthCheck(ctx context.Context) (HealthResult, error) {
	now := p.now()

	p.mu.Lock()
	if p.state != StateReady {
		p.mu.Unlock()
		return HealthResult{}, ErrPoolClosed
	}

	var retireLifetime, retireIdle, candidates []*slot[C]
	remaining := len(p.slots)
	for _, s := range p.idle {
		switch {
		case p.cfg.MaxLifetime > 0 && now.Sub(s.createdAt) > p.cfg.MaxLifetime:
			s.state = SlotClosing
			delete(p.slots, s.id)
			remaining--
			retireLifetime = append(retireLifetime, s)
		case now.Sub(s.lastUsedAt) > p.cfg.IdleTimeout && remaining > p.cfg.MinSize:
			// Opportunistic shrink back toward MinSize.
			s.state = SlotClosing
			delete(p.slots, s.id)
			remaining--
			retireIdle = append(retireIdle, s)
		default:
			// Borrow the slot for probing.
			s.state = SlotAcquired
			candidates = append(candidates, s)
		}
	}
	p.idle = p.idle[:0]
	p.mu.Unlock()

	p.destroySlots(retireLifetime, CloseLifetime)
	p.destroySlots(retireIdle, CloseIdle)

	healthy, unhealthy := 0, 0
	for i, s := range candidates {
		if p.probeLimit != nil {
			if err := p.probeLimit.Wait(ctx); err != nil {
				// Sweep cut short: hand the unprobed remainder back.
				p.returnProbed(candidates[i:])
				p.replenish()
				p.publishSize()
				return HealthResult{healthy, unhealthy, healthStatus(healthy, unhealthy)}, nil
			}
		}

		if err := p.runProbe(ctx, s.conn); err != nil {
			unhealthy++
			p.mu.Lock()
			s.state = SlotClosing
			delete(p.slots, s.id)
			p.checkDrainedLocked()
			p.mu.Unlock()
			p.destroySlots([]*slot[C]{s}, CloseUnhealthy)
			p.log.Warn().Uint64("slot", s.id).Err(err).Msg("health probe failed; slot evicted")
			continue
		}
		healthy++
		p.returnProbed([]*slot[C]{s})
	}

	p.replenish()
	p.publishSize()
	return HealthResult{healthy, unhealthy, healthStatus(healthy, unhealthy)}, nil
}

// returnProbed hands borrowed slots back to waiters or the idle list.
// Slots borrowed for probing keep their original lastUsedAt, so a probe
// pass does not reset idle accounting.
func (p *Pool[C]) returnProbed(slots []*slot[C]) {
	p.mu.Lock()
	for _, s := range slots {
		if p.state != StateReady {
			delete(p.slots, s.id)
			s.state = SlotClosing
			p.checkDrainedLocked()
			p.mu.Unlock()
			p.destroySlots([]*slot[C]{s}, CloseShutdown)
			p.mu.Lock()
			continue
		}
		last := s.lastUsedAt
		p.handoffLocked(s)
		s.lastUsedAt = last
	}
	p.mu.Unlock()
}

// runProbe checks one connection, bounded by HealthCheckTimeout. A probe
// that runs past its deadline counts as a failure.
func (p *Pool[C]) runProbe(ctx context.Context, conn C) error {
	if p.probe == nil {
		return nil
	}
	pctx, cancel := context.WithTimeout(ctx, p.cfg.HealthCheckTimeout)
	defer cancel()
	return p.probe(pctx, conn)
}
