// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package lfqueue

// FIFO is a bounded lock-free queue of chunk Refs. TryPush reports false
// when the queue is full instead of overwriting; FIFO order is preserved
// for any single producer, and globally for a single producer/single
// consumer pair.
type FIFO struct {
	r *ring
}

// NewFIFO creates a FIFO with the given capacity, rounded up to the next
// power of two.
func NewFIFO(capacity int) *FIFO {
	return &FIFO{r: newRing(capacity)}
}

// Cap returns the queue's capacity.
func (q *FIFO) Cap() int { return q.r.Cap() }

// TryPush pushes ref onto the queue. Returns false if the queue is full;
// the caller (popo.Queue) decides what to do about it.
func (q *FIFO) TryPush(ref Ref) bool {
	return q.r.tryPush(ref.pack())
}

// TryPop pops the oldest ref from the queue, or ok=false if empty.
func (q *FIFO) TryPop() (ref Ref, ok bool) {
	v, ok := q.r.tryPop()
	if !ok {
		return Ref{}, false
	}
	return unpackRef(v), true
}
