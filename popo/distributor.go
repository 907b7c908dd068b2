// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package popo

import (
	"code.hybscloud.com/shmipc/chunk"
	"code.hybscloud.com/shmipc/lfqueue"
)

// Resolver converts between a chunk's in-process header and the compact
// Ref a queue cell carries, and returns chunks to their originating pool.
// mempool.Manager satisfies this without either package importing the
// other: popo only needs to move Refs through queues and reconstruct a
// SharedChunk on the way out.
type Resolver interface {
	chunk.Releaser
	RefOf(h *chunk.Header) lfqueue.Ref
	Resolve(ref lfqueue.Ref) *chunk.Header
}

// ChunkDistributor is the fan-out side of the data path: it owns a bounded
// set of consumer Queues and a bounded history ring, and delivers one
// chunk to every attached queue plus the ring on each Deliver call.
type ChunkDistributor struct {
	resolver  Resolver
	queues    []*Queue
	maxQueues int

	history         []chunk.SharedChunk
	historyCapacity int
}

// NewChunkDistributor creates a distributor that holds at most maxQueues
// consumer queues and retains at most historyCapacity previously sent
// chunks (0 disables history).
func NewChunkDistributor(resolver Resolver, maxQueues, historyCapacity int) *ChunkDistributor {
	return &ChunkDistributor{
		resolver:        resolver,
		queues:          make([]*Queue, 0, maxQueues),
		maxQueues:       maxQueues,
		history:         make([]chunk.SharedChunk, 0, historyCapacity),
		historyCapacity: historyCapacity,
	}
}

// AddQueue attaches q to the distributor. If the queue set is not full, the
// last min(requestedHistory, len(history)) chunks are immediately delivered
// to q, in send order, so a late subscriber can observe prior state.
// Returns ErrQueueSetFull if the queue set is already at capacity.
func (d *ChunkDistributor) AddQueue(q *Queue, requestedHistory int) error {
	if len(d.queues) >= d.maxQueues {
		return ErrQueueSetFull
	}
	d.queues = append(d.queues, q)

	n := requestedHistory
	if n > len(d.history) {
		n = len(d.history)
	}
	start := len(d.history) - n
	for _, c := range d.history[start:] {
		c.Clone()
		ref := d.resolver.RefOf(c.Header())
		if evicted, had := q.push(ref); had {
			d.releaseRef(evicted)
		}
	}
	return nil
}

// RemoveQueue detaches the queue with the given id, without delivering
// anything further to it. Reports false if no such queue is attached.
func (d *ChunkDistributor) RemoveQueue(id uint64) bool {
	for i, q := range d.queues {
		if q.ID() == id {
			last := len(d.queues) - 1
			d.queues[i] = d.queues[last]
			d.queues = d.queues[:last]
			return true
		}
	}
	return false
}

// RemoveAllQueues detaches every currently attached queue, returning their
// ids. Used by a publisher/server's stopOffer path, which must detach
// every consumer before the port can be re-offered cleanly.
func (d *ChunkDistributor) RemoveAllQueues() []uint64 {
	ids := make([]uint64, len(d.queues))
	for i, q := range d.queues {
		ids[i] = q.ID()
	}
	d.queues = d.queues[:0]
	return ids
}

// HasQueue reports whether a queue with the given id is attached.
func (d *ChunkDistributor) HasQueue(id uint64) bool {
	_, _, ok := d.QueueByID(id, -1)
	return ok
}

// QueueByID resolves a queue by its unique id. lastKnownIndex, when it
// still names that queue, makes the lookup O(1); otherwise it falls back
// to a linear scan. Returns the queue, its current index (for the caller
// to cache as a new hint), and whether it was found.
func (d *ChunkDistributor) QueueByID(id uint64, lastKnownIndex int) (*Queue, int, bool) {
	if lastKnownIndex >= 0 && lastKnownIndex < len(d.queues) && d.queues[lastKnownIndex].ID() == id {
		return d.queues[lastKnownIndex], lastKnownIndex, true
	}
	for i, q := range d.queues {
		if q.ID() == id {
			return q, i, true
		}
	}
	return nil, -1, false
}

// Deliver pushes a reference to c onto every attached queue (subject to
// each queue's overflow policy) and then onto the history ring (evicting
// the oldest entry if the ring is full). Returns the number of queues c
// was delivered to.
func (d *ChunkDistributor) Deliver(c chunk.SharedChunk) int {
	for _, q := range d.queues {
		c.Clone()
		ref := d.resolver.RefOf(c.Header())
		if evicted, had := q.push(ref); had {
			d.releaseRef(evicted)
		}
	}
	d.pushHistory(c)
	return len(d.queues)
}

// PushToHistory records c in the history ring without delivering it to any
// queue. Used by ChunkSender when a publisher sends while not currently
// offered, so a later offer can still serve the history to new subscribers.
func (d *ChunkDistributor) PushToHistory(c chunk.SharedChunk) { d.pushHistory(c) }

func (d *ChunkDistributor) pushHistory(c chunk.SharedChunk) {
	if d.historyCapacity == 0 {
		return
	}
	if len(d.history) == d.historyCapacity {
		oldest := d.history[0]
		copy(d.history, d.history[1:])
		d.history = d.history[:len(d.history)-1]
		oldest.Release()
	}
	d.history = append(d.history, c.Clone())
}

// ClearHistory releases and empties the history ring.
func (d *ChunkDistributor) ClearHistory() {
	for _, c := range d.history {
		c.Release()
	}
	d.history = d.history[:0]
}

func (d *ChunkDistributor) releaseRef(ref lfqueue.Ref) {
	h := d.resolver.Resolve(ref)
	chunk.NewSharedChunk(h, d.resolver).Release()
}
