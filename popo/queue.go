// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package popo

import (
	"context"
	"sync/atomic"

	"code.hybscloud.com/iox"
	"code.hybscloud.com/shmipc/lfqueue"
)

// QueueFullPolicy selects what a Queue does when a push would overflow it.
// It is decided once, at queue construction, and determines which of the
// two lfqueue flavors backs the queue: DiscardOldestData rides a SoFi
// (push always succeeds, oldest entry evicted); BlockProducer rides a FIFO
// and backs off adaptively until a consumer frees a slot.
type QueueFullPolicy uint8

const (
	QueueFullPolicyDiscardOldestData QueueFullPolicy = iota
	QueueFullPolicyBlockProducer
)

// Queue is one consumer's attachment point: a distributor pushes chunk Refs
// into it, a receiver pops them out. Queue owns the overflow policy, the
// sticky "lost chunks" flag, and the condition notifier a blocking receive
// waits on.
type Queue struct {
	id     uint64
	policy QueueFullPolicy

	fifo *lfqueue.FIFO // non-nil under BlockProducer
	sofi *lfqueue.SoFi // non-nil under DiscardOldestData

	size       atomic.Int64 // approximate occupancy, for hasNewChunks
	lostChunks atomic.Bool
	notifier   atomic.Pointer[ConditionNotifier] // user-attached, via SetConditionVariable
	pushed     *ConditionNotifier                // always-present, for internal blocking receive
}

// NewQueue creates a Queue identified by id, with the given capacity and
// overflow policy.
func NewQueue(id uint64, capacity int, policy QueueFullPolicy) *Queue {
	q := &Queue{id: id, policy: policy, pushed: NewConditionNotifier()}
	switch policy {
	case QueueFullPolicyBlockProducer:
		q.fifo = lfqueue.NewFIFO(capacity)
	default:
		q.sofi = lfqueue.NewSoFi(capacity)
	}
	return q
}

// ID returns the queue's unique id, as used by sendToQueue's single-
// recipient routing.
func (q *Queue) ID() uint64 { return q.id }

// Policy returns the queue's overflow policy.
func (q *Queue) Policy() QueueFullPolicy { return q.policy }

// Cap returns the queue's capacity.
func (q *Queue) Cap() int {
	if q.fifo != nil {
		return q.fifo.Cap()
	}
	return q.sofi.Cap()
}

// push installs ref, applying the queue's overflow policy. Under
// DiscardOldestData it reports any evicted ref so the caller can release
// the chunk it referenced. Under BlockProducer it blocks the calling
// goroutine until a consumer frees a slot, backing off adaptively between
// attempts exactly as the teacher's BoundedPool.Put does while waiting for
// an external consumer to free capacity.
func (q *Queue) push(ref lfqueue.Ref) (evicted lfqueue.Ref, hadEviction bool) {
	switch q.policy {
	case QueueFullPolicyBlockProducer:
		var aw iox.Backoff
		for !q.fifo.TryPush(ref) {
			aw.Wait()
		}
	default:
		evicted, hadEviction = q.sofi.Push(ref)
		if hadEviction {
			q.lostChunks.Store(true)
		}
	}
	if !hadEviction {
		q.size.Add(1)
	}
	q.pushed.Signal()
	if n := q.notifier.Load(); n != nil {
		n.Signal()
	}
	return evicted, hadEviction
}

// tryPop removes the oldest ref, or ok=false if the queue is empty.
func (q *Queue) tryPop() (ref lfqueue.Ref, ok bool) {
	if q.fifo != nil {
		ref, ok = q.fifo.TryPop()
	} else {
		ref, ok = q.sofi.TryPop()
	}
	if ok {
		q.size.Add(-1)
	}
	return ref, ok
}

// Len returns the queue's approximate current occupancy.
func (q *Queue) Len() int64 { return q.size.Load() }

// hasLostChunks reports and clears the sticky eviction flag: true exactly
// once per eviction (or run of evictions) since the last call.
func (q *Queue) hasLostChunks() bool { return q.lostChunks.Swap(false) }

// SetConditionVariable attaches a notifier that push signals in addition
// to the queue's own internal one. UnsetConditionVariable detaches it.
func (q *Queue) SetConditionVariable(n *ConditionNotifier) { q.notifier.Store(n) }

// UnsetConditionVariable detaches any previously attached notifier.
func (q *Queue) UnsetConditionVariable() { q.notifier.Store(nil) }

// Wait blocks until the next push, or ctx is done. Used by a blocking
// receive flavor.
func (q *Queue) Wait(ctx context.Context) error {
	return q.pushed.Wait(ctx)
}
