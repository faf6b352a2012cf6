// Package tracker keeps a ledger of resource handles currently on loan
// from connection pools. It records who borrowed what and when, and
// flags loans held past a lifetime threshold. The tracker never touches
// the underlying resource itself: closing or probing a connection is
// the owning pool's job, the tracker only answers "who is holding what".
package tracker

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// HandleID identifies one loan record.
type HandleID string

// Record describes a single outstanding loan.
type Record struct {
	ID         HandleID  `json:"id"`
	OwnerTag   string    `json:"owner_tag"`
	PoolName   string    `json:"pool_name"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// Age returns how long the loan has been outstanding at now.
func (r Record) Age(now time.Time) time.Duration {
	return now.Sub(r.AcquiredAt)
}

// Clock overrides the time source (tests). Nil => time.Now().
type Clock interface{ Now() time.Time }

// Tracker is a concurrent loan ledger. The zero value is not usable;
// construct with New.
type Tracker struct {
	mu      sync.Mutex
	records map[HandleID]Record
	clock   Clock
}

// New returns an empty tracker. Pass a nil clock for wall-clock time.
func New(clock Clock) *Tracker {
	return &Tracker{
		records: make(map[HandleID]Record),
		clock:   clock,
	}
}

// Track registers a new loan and returns its handle id.
func (t *Tracker) Track(ownerTag, poolName string) HandleID {
	id := HandleID(uuid.NewString())
	rec := Record{
		ID:         id,
		OwnerTag:   ownerTag,
		PoolName:   poolName,
		AcquiredAt: t.now(),
	}

	t.mu.Lock()
	t.records[id] = rec
	t.mu.Unlock()
	return id
}

// Release removes the loan record. Releasing an unknown or already
// released id is a no-op, which keeps cleanup paths idempotent.
func (t *Tracker) Release(id HandleID) {
	t.mu.Lock()
	delete(t.records, id)
	t.mu.Unlock()
}

// Active returns the number of outstanding loans.
func (t *Tracker) Active() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.records)
}

// DetectLeaks returns every loan held longer than maxLifetime, ordered
// oldest first. A loan at exactly maxLifetime is not a leak.
func (t *Tracker) DetectLeaks(maxLifetime time.Duration) []Record {
	now := t.now()

	t.mu.Lock()
	var leaks []Record
	for _, rec := range t.records {
		if now.Sub(rec.AcquiredAt) > maxLifetime {
			leaks = append(leaks, rec)
		}
	}
	t.mu.Unlock()

	sort.Slice(leaks, func(i, j int) bool {
		return leaks[i].AcquiredAt.Before(leaks[j].AcquiredAt)
	})
	return leaks
}

// Snapshot returns every outstanding loan, ordered oldest first.
func (t *Tracker) Snapshot() []Record {
	return t.DetectLeaks(-1)
}

// ForceReleaseAll drops every loan record and returns how many were
// dropped. It does not close the underlying connections; the caller is
// expected to have the owning pools reclaim those separately.
func (t *Tracker) ForceReleaseAll() int {
	t.mu.Lock()
	n := len(t.records)
	t.records = make(map[HandleID]Record)
	t.mu.Unlock()
	return n
}

func (t *Tracker) now() time.Time {
	if t.clock != nil {
		return t.clock.Now()
	}
	return time.Now()
}
