// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package popo

import "code.hybscloud.com/shmipc/chunk"

// ChunkReceiver wraps a consumer Queue and a UsedChunkList into the
// consumer-side operations a subscriber or client/server inbound port
// exposes to user code.
type ChunkReceiver struct {
	queue    *Queue
	resolver Resolver
	used     *UsedChunkList
}

// NewChunkReceiver creates a receiver over the given queue.
func NewChunkReceiver(queue *Queue, resolver Resolver, usedCapacity int) *ChunkReceiver {
	return &ChunkReceiver{
		queue:    queue,
		resolver: resolver,
		used:     NewUsedChunkList(usedCapacity),
	}
}

// Queue returns the underlying consumer queue, for attaching a condition
// variable or inspecting occupancy.
func (r *ChunkReceiver) Queue() *Queue { return r.queue }

// TryGet pops the oldest available chunk and records it in the
// UsedChunkList. Returns ErrNoChunkAvailable if the queue is empty, or
// ErrTooManyChunksHeldInParallel if the list is already full — in which
// case the popped chunk is immediately released back rather than leaked.
func (r *ChunkReceiver) TryGet() (*chunk.Header, error) {
	ref, ok := r.queue.tryPop()
	if !ok {
		return nil, ErrNoChunkAvailable
	}
	h := r.resolver.Resolve(ref)
	c := chunk.NewSharedChunk(h, r.resolver)
	if !r.used.Insert(c) {
		c.Release()
		return nil, ErrTooManyChunksHeldInParallel
	}
	return h, nil
}

// Release returns a previously gotten chunk. h must currently be held in
// this receiver's UsedChunkList.
func (r *ChunkReceiver) Release(h *chunk.Header) {
	c, ok := r.used.Remove(h.UserPayloadPtr())
	if !ok {
		panic("popo: ChunkReceiver.Release of a header it does not hold")
	}
	c.Release()
}

// ReleaseAll drops every chunk currently held in the UsedChunkList and
// drains and releases anything still queued but not yet gotten.
func (r *ChunkReceiver) ReleaseAll() {
	for _, c := range r.used.Clear() {
		c.Release()
	}
	for {
		ref, ok := r.queue.tryPop()
		if !ok {
			break
		}
		h := r.resolver.Resolve(ref)
		chunk.NewSharedChunk(h, r.resolver).Release()
	}
}

// HasNewChunks reports whether the queue currently holds anything not yet
// gotten.
func (r *ChunkReceiver) HasNewChunks() bool { return r.queue.Len() > 0 }

// HasLostChunks reports and clears the sticky flag set whenever the
// queue's overflow policy caused an eviction since the last call.
func (r *ChunkReceiver) HasLostChunks() bool { return r.queue.hasLostChunks() }
