// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package popo

import "code.hybscloud.com/shmipc/chunk"

// Allocator is the subset of mempool.Manager a ChunkSender needs: request a
// chunk big enough for the given settings.
type Allocator interface {
	GetChunk(s chunk.Settings) (chunk.SharedChunk, error)
}

// ChunkSender wraps an Allocator, a UsedChunkList, and a ChunkDistributor
// into the producer-side operations a publisher or client/server outbound
// port exposes to user code.
//
// The "consumer too slow" policy named in spec terms at this layer
// (DISCARD_OLDEST_DATA / WAIT_FOR_CONSUMER) is the same knob as a Queue's
// QueueFullPolicy (DISCARD_OLDEST_DATA / BLOCK_PRODUCER) viewed from the
// other end of the pipe; ChunkSender does not duplicate it; the policy
// lives once, on each attached Queue.
type ChunkSender struct {
	allocator    Allocator
	resolver     Resolver
	used         *UsedChunkList
	distributor  *ChunkDistributor
	originPortID uint64

	sequence    uint64
	lastSent    chunk.SharedChunk
	hasLastSent bool
}

// NewChunkSender creates a sender over the given allocator and
// distributor, with originPortID stamped onto every chunk it allocates.
func NewChunkSender(allocator Allocator, resolver Resolver, usedCapacity int, distributor *ChunkDistributor, originPortID uint64) *ChunkSender {
	return &ChunkSender{
		allocator:    allocator,
		resolver:     resolver,
		used:         NewUsedChunkList(usedCapacity),
		distributor:  distributor,
		originPortID: originPortID,
	}
}

// TryAllocate returns a chunk sized to hold the requested payload and
// optional user header. It reuses the previously sent chunk when nothing
// else still references it and its capacity suffices; otherwise it
// requests a fresh chunk from the allocator. Either way the chunk is
// recorded in the sender's UsedChunkList before being returned.
func (s *ChunkSender) TryAllocate(payloadSize, payloadAlign, headerSize, headerAlign uint32) (*chunk.Header, error) {
	settings := chunk.Settings{
		UserPayloadSize:      payloadSize,
		UserPayloadAlignment: payloadAlign,
		UserHeaderSize:       headerSize,
		UserHeaderAlignment:  headerAlign,
	}
	required := settings.TotalRequiredSize()

	var c chunk.SharedChunk
	if s.hasLastSent && s.lastSent.Header().RefCount() == 1 && s.lastSent.Header().TotalSize() >= required {
		c = s.lastSent
		s.hasLastSent = false
		c.Header().Init(c.Header().MempoolIndex(), c.Header().TotalSize(), settings)
	} else {
		var err error
		c, err = s.allocator.GetChunk(settings)
		if err != nil {
			return nil, err
		}
	}

	c.Header().SetOriginPortID(s.originPortID)
	if !s.used.Insert(c) {
		c.Release()
		return nil, ErrTooManyChunksAllocatedInParallel
	}
	return c.Header(), nil
}

// Release returns a previously allocated, unsent chunk. h must be a header
// this sender currently holds in its UsedChunkList.
func (s *ChunkSender) Release(h *chunk.Header) {
	c, ok := s.used.Remove(h.UserPayloadPtr())
	if !ok {
		panic("popo: ChunkSender.Release of a header it does not hold")
	}
	c.Release()
}

// Send hands h to the distributor, fanning it out to every attached queue
// and the history ring, and remembers it as the "previous chunk". Returns
// the number of queues it was delivered to.
func (s *ChunkSender) Send(h *chunk.Header) int {
	c, ok := s.used.Remove(h.UserPayloadPtr())
	if !ok {
		panic("popo: ChunkSender.Send of a header it does not hold")
	}
	s.sequence++
	h.StampSequenceNumber(s.sequence)

	count := s.distributor.Deliver(c)
	s.replaceLastSent(c)
	return count
}

// SendUnoffered hands h to the history ring only, without delivering it to
// any queue. Used when a publisher sends while not currently offered, so a
// later offer can still replay history to new subscribers.
func (s *ChunkSender) SendUnoffered(h *chunk.Header) {
	c, ok := s.used.Remove(h.UserPayloadPtr())
	if !ok {
		panic("popo: ChunkSender.SendUnoffered of a header it does not hold")
	}
	s.sequence++
	h.StampSequenceNumber(s.sequence)

	s.distributor.PushToHistory(c)
	s.replaceLastSent(c)
}

func (s *ChunkSender) replaceLastSent(c chunk.SharedChunk) {
	if s.hasLastSent {
		s.lastSent.Release()
	}
	s.lastSent = c
	s.hasLastSent = true
}

// SendToQueue delivers h to exactly one consumer queue, identified by id,
// without touching history. lastKnownIndex is an O(1) hit hint; callers
// should cache the returned index for their next call. Reports false if
// the queue no longer exists (the response's originating client went
// away, in the client/server case).
func (s *ChunkSender) SendToQueue(h *chunk.Header, queueID uint64, lastKnownIndex int) (delivered bool, newIndex int) {
	c, ok := s.used.Remove(h.UserPayloadPtr())
	if !ok {
		panic("popo: ChunkSender.SendToQueue of a header it does not hold")
	}

	q, idx, found := s.distributor.QueueByID(queueID, lastKnownIndex)
	if !found {
		c.Release()
		return false, -1
	}

	ref := s.resolver.RefOf(c.Header())
	if evicted, had := q.push(ref); had {
		h2 := s.resolver.Resolve(evicted)
		chunk.NewSharedChunk(h2, s.resolver).Release()
	}
	return true, idx
}

// TryGetPreviousChunk returns the most recently sent chunk, if any.
func (s *ChunkSender) TryGetPreviousChunk() (*chunk.Header, bool) {
	if !s.hasLastSent {
		return nil, false
	}
	return s.lastSent.Header(), true
}

// ReleaseAll drops every chunk this sender holds: everything in its
// UsedChunkList, the "previous chunk" slot, and the distributor's history.
func (s *ChunkSender) ReleaseAll() {
	for _, c := range s.used.Clear() {
		c.Release()
	}
	if s.hasLastSent {
		s.lastSent.Release()
		s.hasLastSent = false
	}
	s.distributor.ClearHistory()
}
