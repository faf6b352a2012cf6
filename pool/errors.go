package pool

import "errors"

var (
	// ErrPoolExhausted means no slot became available before the
	// caller's deadline. Recoverable; retry with backoff.
	ErrPoolExhausted = errors.New("pool: exhausted")

	// ErrPoolNotFound means no pool is registered under the requested
	// name. A configuration or usage error; not retried.
	ErrPoolNotFound = errors.New("pool: not found")

	// ErrPoolClosed means the pool is draining or closed.
	ErrPoolClosed = errors.New("pool: closed")

	// ErrDrainTimeout means the shutdown grace period expired with
	// slots still acquired; their connections were force-closed.
	ErrDrainTimeout = errors.New("pool: drain grace period expired")
)
