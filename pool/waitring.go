package pool

import (
	"sort"
	"sync"
	"time"
)

// waitRing keeps the most recent acquire wait times in a fixed-size
// ring so Stats can report percentiles without unbounded growth.
type waitRing struct {
	mu   sync.Mutex
	buf  []time.Duration
	next int
	full bool
}

func newWaitRing(n int) *waitRing {
	return &waitRing{buf: make([]time.Duration, n)}
}

func (r *waitRing) add(d time.Duration) {
	r.mu.Lock()
	r.buf[r.next] = d
	r.next++
	if r.next == len(r.buf) {
		r.next = 0
		r.full = true
	}
	r.mu.Unlock()
}

// quantile returns the q-th (0..1) percentile of the recorded samples,
// or zero when nothing has been recorded yet.
func (r *waitRing) quantile(q float64) time.Duration {
	r.mu.Lock()
	n := r.next
	if r.full {
		n = len(r.buf)
	}
	if n == 0 {
		r.mu.Unlock()
		return 0
	}
	samples := make([]time.Duration, n)
	copy(samples, r.buf[:n])
	r.mu.Unlock()

	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	idx := int(q * float64(n-1))
	return samples[idx]
}
