// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package popo

import (
	"unsafe"

	"code.hybscloud.com/shmipc/chunk"
)

// UsedChunkList is the bounded set of chunks a port has handed to user code
// and not yet released, indexed by payload pointer. It is single-threaded:
// only the port's owning user thread ever calls Insert/Remove/Clear.
type UsedChunkList struct {
	ptrs   []unsafe.Pointer
	chunks []chunk.SharedChunk
}

// NewUsedChunkList creates a list that holds at most capacity chunks.
// Capacity is a per-port configuration knob (MAX_HELD_PER_PORT in spec
// terms), never a hardcoded constant.
func NewUsedChunkList(capacity int) *UsedChunkList {
	return &UsedChunkList{
		ptrs:   make([]unsafe.Pointer, 0, capacity),
		chunks: make([]chunk.SharedChunk, 0, capacity),
	}
}

// Cap returns the list's configured capacity.
func (l *UsedChunkList) Cap() int { return cap(l.ptrs) }

// Len returns the number of chunks currently held.
func (l *UsedChunkList) Len() int { return len(l.chunks) }

// Insert records c as held, keyed by its payload pointer. Reports false,
// without modifying the list, if it is already at capacity.
func (l *UsedChunkList) Insert(c chunk.SharedChunk) bool {
	if len(l.ptrs) >= cap(l.ptrs) {
		return false
	}
	l.ptrs = append(l.ptrs, c.Header().UserPayloadPtr())
	l.chunks = append(l.chunks, c)
	return true
}

// Remove finds and removes the chunk whose payload pointer is payloadPtr,
// returning it and ok=true. Returns ok=false if no such chunk is held.
func (l *UsedChunkList) Remove(payloadPtr unsafe.Pointer) (chunk.SharedChunk, bool) {
	for i, p := range l.ptrs {
		if p == payloadPtr {
			c := l.chunks[i]
			last := len(l.ptrs) - 1
			l.ptrs[i] = l.ptrs[last]
			l.chunks[i] = l.chunks[last]
			l.ptrs = l.ptrs[:last]
			l.chunks = l.chunks[:last]
			return c, true
		}
	}
	return chunk.SharedChunk{}, false
}

// Clear empties the list and returns every chunk it held, so the caller can
// release each one.
func (l *UsedChunkList) Clear() []chunk.SharedChunk {
	out := l.chunks
	l.chunks = make([]chunk.SharedChunk, 0, cap(l.ptrs))
	l.ptrs = l.ptrs[:0]
	return out
}
