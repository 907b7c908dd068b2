// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package lfqueue

// SoFi ("safely overflowing FIFO") is a bounded lock-free queue that never
// rejects a push: when full, Push atomically evicts the oldest entry and
// hands it back to the caller, who is then responsible for releasing the
// now-orphaned chunk reference it held.
type SoFi struct {
	r *ring
}

// NewSoFi creates a SoFi with the given capacity, rounded up to the next
// power of two.
func NewSoFi(capacity int) *SoFi {
	return &SoFi{r: newRing(capacity)}
}

// Cap returns the queue's capacity.
func (q *SoFi) Cap() int { return q.r.Cap() }

// Push installs ref as the newest entry. If the queue was full, the
// then-oldest entry is evicted to make room and returned as evicted, with
// ok=true. Push always succeeds.
func (q *SoFi) Push(ref Ref) (evicted Ref, ok bool) {
	v := ref.pack()
	for {
		if q.r.tryPush(v) {
			return evicted, ok
		}
		if old, popped := q.r.tryPop(); popped {
			evicted, ok = unpackRef(old), true
			continue
		}
		// A concurrent consumer raced us and drained the slot we were
		// about to evict; the queue may no longer be full, retry tryPush.
	}
}

// TryPop pops the oldest ref from the queue, or ok=false if empty.
func (q *SoFi) TryPop() (ref Ref, ok bool) {
	v, ok := q.r.tryPop()
	if !ok {
		return Ref{}, false
	}
	return unpackRef(v), true
}
