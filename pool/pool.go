package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/schedwatch/resourcemgr/tracker"
)

// Pool is a bounded pool of homogeneous connections of type C.
// All methods are safe for concurrent use.
type Pool[C any] struct {
	name    string
	cfg     Config
	dial    Factory[C]
	probe   Probe[C]
	closeFn func(C) error
	trk     *tracker.Tracker
	met     Metrics
	log     zerolog.Logger
	clock   Clock

	probeLimit *rate.Limiter
	waits      *waitRing

	// mu guards the slot census and the waiter queue. It is scoped to
	// O(1) state flips; dialing, probing, and closing connections all
	// happen outside it.
	mu        sync.Mutex
	state     State
	slots     map[uint64]*slot[C]
	idle      []*slot[C] // FIFO of SlotIdle slots
	waiters   []*waiter[C]
	nextID    uint64
	dialing   int // slots currently being established (count toward MaxSize)
	drainDone chan struct{}
}

// waiter is one blocked Acquire. The channel is buffered so a hand-off
// never blocks the releaser; a waiter receives at most one slot.
type waiter[C any] struct {
	ch chan *slot[C]
}

// New constructs a pool, opens Config.MinSize connections, and enters
// Ready. A failed warm-up dial fails construction: misconfiguration and
// unreachable backends surface here, not at first Acquire.
func New[C any](opt Options[C]) (*Pool[C], error) {
	if opt.Name == "" {
		return nil, errors.New("pool: Name is required")
	}
	if opt.Factory == nil {
		return nil, fmt.Errorf("pool %q: Factory is required", opt.Name)
	}
	if err := opt.Config.Validate(); err != nil {
		return nil, fmt.Errorf("pool %q: %w", opt.Name, err)
	}

	cfg := opt.Config.withDefaults()
	trk := opt.Tracker
	if trk == nil {
		trk = tracker.New(nil)
	}
	met := opt.Metrics
	if met == nil {
		met = NoopMetrics{}
	}

	p := &Pool[C]{
		name:    opt.Name,
		cfg:     cfg,
		dial:    opt.Factory,
		probe:   opt.Probe,
		closeFn: opt.Close,
		trk:     trk,
		met:     met,
		log:     opt.Logger.With().Str("pool", opt.Name).Logger(),
		clock:   opt.Clock,
		waits:   newWaitRing(512),
		state:   StateInitializing,
		slots:   make(map[uint64]*slot[C]),
	}
	if cfg.ProbeRate > 0 {
		p.probeLimit = rate.NewLimiter(rate.Limit(cfg.ProbeRate), 1)
	}

	// Warm up to MinSize before anyone can acquire.
	for i := 0; i < cfg.MinSize; i++ {
		s, err := p.openSlot(context.Background())
		if err != nil {
			p.teardown()
			return nil, fmt.Errorf("pool %q: warm-up slot %d: %w", opt.Name, i, err)
		}
		p.mu.Lock()
		s.state = SlotIdle
		p.idle = append(p.idle, s)
		p.mu.Unlock()
	}

	p.mu.Lock()
	p.state = StateReady
	p.mu.Unlock()
	p.publishSize()
	p.log.Info().Int("min_size", cfg.MinSize).Int("max_size", cfg.MaxSize).Msg("pool ready")
	return p, nil
}

// Name identifies the pool in the manager, tracker, and reports.
func (p *Pool[C]) Name() string { return p.name }

// Acquire blocks until an idle slot frees, a new slot can be opened, or
// ctx expires. A deadline expiry maps to ErrPoolExhausted; plain
// cancellation returns ctx.Err(). The caller's owner tag, if set via
// WithOwner, lands in the tracker record.
func (p *Pool[C]) Acquire(ctx context.Context) (*Handle[C], error) {
	start := p.now()

	p.mu.Lock()
	if p.state != StateReady {
		p.mu.Unlock()
		return nil, fmt.Errorf("pool %q: %w", p.name, ErrPoolClosed)
	}

	// Reuse an idle slot, retiring any that outlived MaxLifetime on
	// the way. Queue jumping is not allowed: with waiters pending,
	// newcomers go to the back.
	if len(p.waiters) == 0 {
		var retired []*slot[C]
		now := p.now()
		for len(p.idle) > 0 {
			s := p.idle[0]
			p.idle = p.idle[1:]
			if p.cfg.MaxLifetime > 0 && now.Sub(s.createdAt) > p.cfg.MaxLifetime {
				s.state = SlotClosing
				delete(p.slots, s.id)
				retired = append(retired, s)
				continue
			}
			s.state = SlotAcquired
			p.mu.Unlock()
			p.destroySlots(retired, CloseLifetime)
			return p.grant(ctx, s, start), nil
		}

		// Nothing idle: grow if below MaxSize.
		if len(p.slots)+p.dialing < p.cfg.MaxSize {
			p.dialing++
			p.mu.Unlock()
			p.destroySlots(retired, CloseLifetime)

			s, err := p.openSlot(ctx)
			p.mu.Lock()
			p.dialing--
			p.mu.Unlock()
			if err != nil {
				// A failed dial is not an acquisition timeout; it is
				// visible through the error and the slot counters.
				return nil, fmt.Errorf("pool %q: grow: %w", p.name, err)
			}
			return p.grant(ctx, s, start), nil
		}
		if len(retired) > 0 {
			// Lifetime retirement freed capacity after all.
			p.mu.Unlock()
			p.destroySlots(retired, CloseLifetime)
			return p.Acquire(ctx)
		}
	}

	// Saturated: join the FIFO wait queue.
	w := &waiter[C]{ch: make(chan *slot[C], 1)}
	p.waiters = append(p.waiters, w)
	p.mu.Unlock()

	select {
	case s, ok := <-w.ch:
		if !ok || s == nil {
			return nil, fmt.Errorf("pool %q: %w", p.name, ErrPoolClosed)
		}
		return p.grant(ctx, s, start), nil
	case <-ctx.Done():
		p.abandon(w)
		p.met.Timeout()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("pool %q: %w: no slot before deadline", p.name, ErrPoolExhausted)
		}
		return nil, ctx.Err()
	}
}

// With acquires a connection, runs fn with it, and guarantees release
// on every exit path, including a panic inside fn.
func (p *Pool[C]) With(ctx context.Context, fn func(conn C) error) error {
	h, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer h.Release()
	return fn(h.Conn())
}

// grant finalizes a successful acquisition: tracker record, wait-time
// sample, metrics.
func (p *Pool[C]) grant(ctx context.Context, s *slot[C], start time.Time) *Handle[C] {
	wait := p.now().Sub(start)
	p.waits.add(wait)
	p.met.Acquire(wait)
	p.publishSize()
	return &Handle[C]{
		pool:    p,
		slot:    s,
		trackID: p.trk.Track(ownerFrom(ctx), p.name),
	}
}

// abandon removes a timed-out waiter from the queue. If a slot was
// handed over at the instant of cancellation, it is passed on to the
// next waiter (or parked idle), never dropped.
func (p *Pool[C]) abandon(w *waiter[C]) {
	p.mu.Lock()
	for i, x := range p.waiters {
		if x == w {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			break
		}
	}
	select {
	case s, ok := <-w.ch:
		if ok && s != nil {
			p.handoffLocked(s)
		}
	default:
	}
	p.mu.Unlock()
}

// handoffLocked routes a freed (still SlotAcquired) slot to the oldest
// waiter, or parks it idle when nobody is waiting. Callers hold p.mu.
func (p *Pool[C]) handoffLocked(s *slot[C]) {
	if len(p.waiters) > 0 {
		w := p.waiters[0]
		p.waiters = p.waiters[1:]
		w.ch <- s
		return
	}
	s.state = SlotIdle
	s.lastUsedAt = p.now()
	p.idle = append(p.idle, s)
}

// put returns a slot after its handle is released.
func (p *Pool[C]) put(s *slot[C], trackID tracker.HandleID) {
	p.trk.Release(trackID)
	now := p.now()

	p.mu.Lock()
	s.lastUsedAt = now
	if _, live := p.slots[s.id]; !live {
		// Already force-reclaimed during shutdown; nothing to return.
		p.checkDrainedLocked()
		p.mu.Unlock()
		return
	}

	switch {
	case p.state != StateReady:
		s.state = SlotClosing
		delete(p.slots, s.id)
		p.checkDrainedLocked()
		p.mu.Unlock()
		p.destroySlots([]*slot[C]{s}, CloseShutdown)
	case p.cfg.MaxLifetime > 0 && now.Sub(s.createdAt) > p.cfg.MaxLifetime:
		s.state = SlotClosing
		delete(p.slots, s.id)
		p.mu.Unlock()
		p.destroySlots([]*slot[C]{s}, CloseLifetime)
		p.replenish()
	default:
		p.handoffLocked(s)
		p.mu.Unlock()
	}
	p.publishSize()
}

// openSlot dials one connection (bounded by ConnectTimeout) and
// registers the slot as SlotAcquired. The caller routes it onward.
func (p *Pool[C]) openSlot(ctx context.Context) (*slot[C], error) {
	dctx, cancel := context.WithTimeout(ctx, p.cfg.ConnectTimeout)
	conn, err := p.dial(dctx)
	cancel()
	if err != nil {
		return nil, err
	}

	now := p.now()
	p.mu.Lock()
	if p.state == StateDraining || p.state == StateClosed {
		p.mu.Unlock()
		p.closeConn(conn)
		return nil, fmt.Errorf("pool %q: %w", p.name, ErrPoolClosed)
	}
	p.nextID++
	s := &slot[C]{
		id:         p.nextID,
		conn:       conn,
		state:      SlotAcquired,
		createdAt:  now,
		lastUsedAt: now,
	}
	p.slots[s.id] = s
	total := len(p.slots)
	p.mu.Unlock()

	p.met.SlotOpened()
	p.log.Debug().Uint64("slot", s.id).Int("size", total).Msg("slot opened")
	return s, nil
}

// replenish restores MinSize after evictions and keeps growing while
// waiters are queued and capacity remains.
func (p *Pool[C]) replenish() {
	for {
		p.mu.Lock()
		if p.state != StateReady {
			p.mu.Unlock()
			return
		}
		total := len(p.slots) + p.dialing
		needMin := total < p.cfg.MinSize
		needWaiter := len(p.waiters) > 0 && total < p.cfg.MaxSize
		if !needMin && !needWaiter {
			p.mu.Unlock()
			return
		}
		p.dialing++
		p.mu.Unlock()

		s, err := p.openSlot(context.Background())
		p.mu.Lock()
		p.dialing--
		if err != nil {
			p.mu.Unlock()
			p.log.Warn().Err(err).Msg("replenish dial failed; retrying on next health check")
			return
		}
		p.handoffLocked(s)
		p.mu.Unlock()
		p.publishSize()
	}
}

// Shutdown drains the pool: waiters fail immediately, idle slots close
// now, and acquired slots get until ctx's deadline to come home. Slots
// still outstanding after that are force-closed and ErrDrainTimeout is
// returned. Shutdown is idempotent.
func (p *Pool[C]) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.state == StateClosed {
		p.mu.Unlock()
		return nil
	}
	if p.state != StateDraining {
		p.state = StateDraining
		for _, w := range p.waiters {
			close(w.ch)
		}
		p.waiters = nil
	}

	idle := p.idle
	p.idle = nil
	for _, s := range idle {
		s.state = SlotClosing
		delete(p.slots, s.id)
	}

	var done chan struct{}
	if len(p.slots) == 0 {
		p.state = StateClosed
	} else {
		if p.drainDone == nil {
			p.drainDone = make(chan struct{})
		}
		done = p.drainDone
	}
	p.mu.Unlock()

	p.destroySlots(idle, CloseShutdown)
	if done == nil {
		p.publishSize()
		p.log.Info().Msg("pool closed")
		return nil
	}

	select {
	case <-done:
		p.mu.Lock()
		p.state = StateClosed
		p.mu.Unlock()
		p.publishSize()
		p.log.Info().Msg("pool drained and closed")
		return nil
	case <-ctx.Done():
		p.mu.Lock()
		var forced []*slot[C]
		for id, s := range p.slots {
			s.state = SlotClosing
			delete(p.slots, id)
			forced = append(forced, s)
		}
		p.state = StateClosed
		p.mu.Unlock()

		p.destroySlots(forced, CloseShutdown)
		p.publishSize()
		p.log.Warn().Int("forced", len(forced)).Msg("drain grace expired; connections force-closed")
		return fmt.Errorf("pool %q: %w: %d connection(s) force-closed", p.name, ErrDrainTimeout, len(forced))
	}
}

// checkDrainedLocked completes the drain once the census is empty.
func (p *Pool[C]) checkDrainedLocked() {
	if p.state == StateDraining && len(p.slots) == 0 && p.drainDone != nil {
		close(p.drainDone)
		p.drainDone = nil
	}
}

// Stats returns a point-in-time census plus wait-time percentiles over
// the most recent acquisitions.
func (p *Pool[C]) Stats() Stats {
	p.mu.Lock()
	size := len(p.slots)
	idle := len(p.idle)
	st := p.state
	p.mu.Unlock()

	inUse := size - idle
	util := 0.0
	if p.cfg.MaxSize > 0 {
		util = float64(inUse) / float64(p.cfg.MaxSize)
	}
	return Stats{
		Name:        p.name,
		State:       st.String(),
		Size:        size,
		InUse:       inUse,
		Idle:        idle,
		Utilization: util,
		WaitP50:     p.waits.quantile(0.50),
		WaitP95:     p.waits.quantile(0.95),
	}
}

// Stats is a point-in-time view of one pool.
type Stats struct {
	Name        string        `json:"name"`
	State       string        `json:"state"`
	Size        int           `json:"size"`
	InUse       int           `json:"in_use"`
	Idle        int           `json:"idle"`
	Utilization float64       `json:"utilization"`
	WaitP50     time.Duration `json:"wait_p50_ns"`
	WaitP95     time.Duration `json:"wait_p95_ns"`
}

// ---- handle ----

// Handle is a caller's loan of one pooled connection. Release it on
// every exit path; With does this automatically.
type Handle[C any] struct {
	pool     *Pool[C]
	slot     *slot[C]
	trackID  tracker.HandleID
	released atomic.Bool
}

// Conn returns the borrowed connection. It must not be used after
// Release.
func (h *Handle[C]) Conn() C { return h.slot.conn }

// TrackID returns the tracker record id for this loan.
func (h *Handle[C]) TrackID() tracker.HandleID { return h.trackID }

// Release returns the connection to the pool and clears the tracker
// record. Releasing twice is a no-op, not an error.
func (h *Handle[C]) Release() {
	if !h.released.CompareAndSwap(false, true) {
		return
	}
	h.pool.put(h.slot, h.trackID)
}

// ---- owner tags ----

type ownerKey struct{}

// WithOwner tags ctx with the identity recorded in tracker records for
// acquisitions made under it.
func WithOwner(ctx context.Context, tag string) context.Context {
	return context.WithValue(ctx, ownerKey{}, tag)
}

func ownerFrom(ctx context.Context) string {
	if tag, ok := ctx.Value(ownerKey{}).(string); ok && tag != "" {
		return tag
	}
	return "unknown"
}

// ---- internals ----

// destroySlots closes connections outside any lock.
func (p *Pool[C]) destroySlots(slots []*slot[C], reason CloseReason) {
	for _, s := range slots {
		p.closeConn(s.conn)
		p.met.SlotClosed(reason)
		p.log.Debug().Uint64("slot", s.id).Str("reason", reason.String()).Msg("slot closed")
	}
}

func (p *Pool[C]) closeConn(conn C) {
	if p.closeFn == nil {
		return
	}
	if err := p.closeFn(conn); err != nil {
		p.log.Warn().Err(err).Msg("connection close failed")
	}
}

// teardown closes everything during a failed construction.
func (p *Pool[C]) teardown() {
	p.mu.Lock()
	p.state = StateClosed
	var all []*slot[C]
	for id, s := range p.slots {
		delete(p.slots, id)
		all = append(all, s)
	}
	p.idle = nil
	p.mu.Unlock()
	p.destroySlots(all, CloseShutdown)
}

func (p *Pool[C]) publishSize() {
	p.mu.Lock()
	size := len(p.slots)
	idle := len(p.idle)
	p.mu.Unlock()
	p.met.Size(size, size-idle, idle)
}

func (p *Pool[C]) now() time.Time {
	if p.clock != nil {
		return p.clock.Now()
	}
	return time.Now()
}
