// Package pool provides bounded, health-checked pools of homogeneous
// connections, plus a Manager that registers pools by name and
// aggregates health checks and shutdown across them.
//
// Design
//
//   - A Pool[C] owns a set of slots, each wrapping one backing
//     connection of type C. How a connection is established, probed,
//     and torn down is a construction-time strategy: the Factory,
//     Probe, and Close functions supplied in Options. The pool itself
//     never inspects C.
//
//   - Sizing: MinSize slots are opened during construction; the pool
//     enters Ready only once they exist. Growth above MinSize is lazy,
//     on demand, up to MaxSize. Shrink back toward MinSize happens
//     opportunistically during health checks when idle slots have sat
//     past IdleTimeout.
//
//   - Acquire blocks until an idle slot frees, a new slot can be
//     opened, or the context expires. Blocked callers are served
//     strictly first-in first-out: a freed slot is handed directly to
//     the oldest waiter, so sustained load cannot starve anyone. A
//     waiter that times out at the same instant a slot frees passes
//     that slot to the next waiter; it is never dropped.
//
//   - The pool-wide lock guards O(1) state flips only. Establishing,
//     probing, and closing connections all happen outside the lock.
//
//   - Every successful Acquire is recorded in a tracker.Tracker ledger
//     under the pool's name, and unrecorded again on Release. Leak
//     findings are advisory and surface through the perf package, never
//     as errors to callers.
//
//   - Shutdown drains: waiters fail fast, idle slots close immediately,
//     and in-flight slots get until the context's deadline to come
//     back. Whatever is still outstanding after that is force-closed.
package pool
