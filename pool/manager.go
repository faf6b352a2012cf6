package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/schedwatch/resourcemgr/tracker"
)

// ManagedPool is the type-erased surface the Manager needs from a
// Pool[C] of any element type.
type ManagedPool interface {
	Name() string
	Stats() Stats
	HealthCheck(ctx context.Context) (HealthResult, error)
	Shutdown(ctx context.Context) error
}

var _ ManagedPool = (*Pool[int])(nil)

// Manager is a registry of named pools. Pools are registered explicitly
// at startup, never created lazily, so a misconfigured name fails at
// boot instead of on first use.
type Manager struct {
	mu    sync.RWMutex
	pools map[string]ManagedPool
	order []string // registration order, for stable reports

	trk *tracker.Tracker
	log zerolog.Logger
}

// NewManager returns an empty registry. The tracker should be the same
// ledger the registered pools record into; it is consulted during
// ShutdownAll's force reclaim. Nil is allowed when no pool shares a
// ledger with the manager.
func NewManager(trk *tracker.Tracker, log zerolog.Logger) *Manager {
	return &Manager{
		pools: make(map[string]ManagedPool),
		trk:   trk,
		log:   log,
	}
}

// Register adds a pool under its name. Registering a duplicate name is
// a configuration error.
func (m *Manager) Register(p ManagedPool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	name := p.Name()
	if _, dup := m.pools[name]; dup {
		return fmt.Errorf("pool manager: %q already registered", name)
	}
	m.pools[name] = p
	m.order = append(m.order, name)
	return nil
}

// Get returns the pool registered under name, or ErrPoolNotFound.
func (m *Manager) Get(name string) (ManagedPool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.pools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrPoolNotFound, name)
	}
	return p, nil
}

// Typed retrieves a registered pool under its concrete element type.
func Typed[C any](m *Manager, name string) (*Pool[C], error) {
	mp, err := m.Get(name)
	if err != nil {
		return nil, err
	}
	p, ok := mp.(*Pool[C])
	if !ok {
		return nil, fmt.Errorf("pool %q holds %T, not the requested element type", name, mp)
	}
	return p, nil
}

// HealthCheckAll probes every registered pool concurrently and returns
// per-pool results. A pool that cannot be checked (draining, closed)
// reports status "unavailable" rather than failing the sweep.
func (m *Manager) HealthCheckAll(ctx context.Context) map[string]HealthResult {
	m.mu.RLock()
	pools := make([]ManagedPool, 0, len(m.pools))
	for _, name := range m.order {
		pools = append(pools, m.pools[name])
	}
	m.mu.RUnlock()

	var (
		resMu   sync.Mutex
		results = make(map[string]HealthResult, len(pools))
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, p := range pools {
		p := p
		g.Go(func() error {
			res, err := p.HealthCheck(gctx)
			if err != nil {
				m.log.Warn().Str("pool", p.Name()).Err(err).Msg("health check unavailable")
				res = HealthResult{Status: "unavailable"}
			}
			resMu.Lock()
			results[p.Name()] = res
			resMu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // goroutines never return an error; failures are per-pool results
	return results
}

// StatsAll returns every pool's Stats in registration order.
func (m *Manager) StatsAll() []Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Stats, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.pools[name].Stats())
	}
	return out
}

// ShutdownAll drains every pool concurrently, each bounded by the grace
// period. Handles still outstanding afterwards are force-released from
// the tracker ledger; their connections were already force-closed by
// the owning pool's drain.
func (m *Manager) ShutdownAll(grace time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	m.mu.RLock()
	pools := make([]ManagedPool, 0, len(m.pools))
	for _, name := range m.order {
		pools = append(pools, m.pools[name])
	}
	m.mu.RUnlock()

	var g errgroup.Group
	for _, p := range pools {
		p := p
		g.Go(func() error {
			if err := p.Shutdown(ctx); err != nil {
				return fmt.Errorf("shutdown %q: %w", p.Name(), err)
			}
			return nil
		})
	}
	err := g.Wait()

	if m.trk != nil {
		if reclaimed := m.trk.ForceReleaseAll(); reclaimed > 0 {
			m.log.Warn().Int("handles", reclaimed).Msg("outstanding handles force-released at shutdown")
		}
	}
	m.log.Info().Int("pools", len(pools)).Msg("pool manager shut down")
	return err
}
