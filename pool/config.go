package pool

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/schedwatch/resourcemgr/tracker"
)

// Config bounds one pool. It is immutable once the pool is constructed.
type Config struct {
	// MinSize slots are opened at construction and maintained while the
	// pool is Ready.
	MinSize int
	// MaxSize caps the total slot count; Acquire blocks once reached.
	MaxSize int
	// ConnectTimeout bounds each Factory call.
	ConnectTimeout time.Duration
	// IdleTimeout is how long an idle slot above MinSize may sit unused
	// before a health check retires it.
	IdleTimeout time.Duration
	// MaxLifetime retires a slot regardless of state once its
	// connection is this old. Zero disables the limit.
	MaxLifetime time.Duration
	// HealthCheckTimeout bounds each Probe call; a probe that runs past
	// it counts as a failure.
	HealthCheckTimeout time.Duration
	// ProbeRate limits health probes per second. Zero means unlimited.
	ProbeRate float64
}

// Validate reports configuration errors eagerly, so a bad pool fails at
// construction rather than at first Acquire.
func (c Config) Validate() error {
	if c.MinSize < 0 {
		return fmt.Errorf("pool config: MinSize %d must be >= 0", c.MinSize)
	}
	if c.MaxSize < 1 {
		return fmt.Errorf("pool config: MaxSize %d must be >= 1", c.MaxSize)
	}
	if c.MinSize > c.MaxSize {
		return fmt.Errorf("pool config: MinSize %d exceeds MaxSize %d", c.MinSize, c.MaxSize)
	}
	if c.ConnectTimeout < 0 || c.IdleTimeout < 0 || c.MaxLifetime < 0 || c.HealthCheckTimeout < 0 {
		return fmt.Errorf("pool config: timeouts must not be negative")
	}
	if c.ProbeRate < 0 {
		return fmt.Errorf("pool config: ProbeRate %v must be >= 0", c.ProbeRate)
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 5 * time.Minute
	}
	if c.HealthCheckTimeout == 0 {
		c.HealthCheckTimeout = 3 * time.Second
	}
	return c
}

// Factory establishes one new backing connection.
type Factory[C any] func(ctx context.Context) (C, error)

// Probe checks that an established connection is still usable.
// A nil error means healthy.
type Probe[C any] func(ctx context.Context, conn C) error

// Clock overrides the time source (tests). Nil => time.Now().
type Clock interface{ Now() time.Time }

// Options assembles everything a pool needs. Name, Config, and Factory
// are required; the rest default sensibly.
type Options[C any] struct {
	// Name identifies the pool in tracker records, logs, and reports.
	Name string

	Config Config

	// Factory/Probe/Close are the per-pool connection strategy.
	// Probe nil => every slot passes health checks.
	// Close nil => connections are dropped without a teardown call.
	Factory Factory[C]
	Probe   Probe[C]
	Close   func(conn C) error

	// Tracker records loans. Nil => the pool keeps a private ledger.
	Tracker *tracker.Tracker

	// Metrics receives pool observability signals. Nil => NoopMetrics.
	Metrics Metrics

	// Logger for slot churn and lifecycle events. The zero Logger is
	// silent.
	Logger zerolog.Logger

	// Clock overrides the time source (tests).
	Clock Clock
}
