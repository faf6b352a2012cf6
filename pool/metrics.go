package pool

import "time"

// CloseReason explains why a slot was retired.
type CloseReason int

const (
	// CloseIdle — idle past IdleTimeout with the pool above MinSize.
	CloseIdle CloseReason = iota
	// CloseLifetime — the connection outlived MaxLifetime.
	CloseLifetime
	// CloseUnhealthy — a health probe failed.
	CloseUnhealthy
	// CloseShutdown — the pool drained or was force-closed.
	CloseShutdown
)

func (r CloseReason) String() string {
	switch r {
	case CloseIdle:
		return "idle"
	case CloseLifetime:
		return "lifetime"
	case CloseUnhealthy:
		return "unhealthy"
	case CloseShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// Metrics exposes pool-level observability hooks, mirroring the cache
// package's Metrics design. NoopMetrics is the default. Implementations
// must be safe for concurrent use.
type Metrics interface {
	// Acquire is reported on every successful acquisition with the
	// time the caller waited.
	Acquire(wait time.Duration)
	// Timeout is reported when an Acquire gives up.
	Timeout()
	SlotOpened()
	SlotClosed(reason CloseReason)
	// Size reports the current slot census after it changes.
	Size(size, inUse, idle int)
}

// NoopMetrics is a drop-in Metrics implementation that does nothing.
type NoopMetrics struct{}

func (NoopMetrics) Acquire(time.Duration)  {}
func (NoopMetrics) Timeout()               {}
func (NoopMetrics) SlotOpened()            {}
func (NoopMetrics) SlotClosed(CloseReason) {}
func (NoopMetrics) Size(int, int, int)     {}

var _ Metrics = NoopMetrics{}
