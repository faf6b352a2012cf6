package pool

import "time"

// State is the pool lifecycle: Initializing → Ready → Draining → Closed.
type State int32

const (
	StateInitializing State = iota
	StateReady
	StateDraining
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// SlotState is the per-slot lifecycle: Idle ↔ Acquired, or → Closing on
// idle timeout, lifetime expiry, failed probe, or shutdown.
type SlotState int

const (
	SlotIdle SlotState = iota
	SlotAcquired
	SlotClosing
)

// slot wraps one backing connection. All fields except conn are guarded
// by the pool mutex; conn itself is only touched outside the lock.
type slot[C any] struct {
	id         uint64
	conn       C
	state      SlotState
	createdAt  time.Time
	lastUsedAt time.Time
}
