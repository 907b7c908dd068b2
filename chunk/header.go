// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package chunk defines the on-the-wire layout of a shared-memory chunk:
// the header every allocation carries, and the reference-counted handle
// (SharedChunk) that user code and the building blocks in popo hold.
//
// A chunk is laid out as:
//
//	[ Header | optional UserHeader | padding | UserPayload ]
//
// with UserPayload aligned to the alignment requested at allocation time.
// All offsets are derivable from the Header, so no side table is needed to
// recover the layout of a chunk from its address alone.
package chunk

import (
	"sync/atomic"
	"unsafe"
)

// InvalidPortID marks a header whose origin port has not been stamped yet.
const InvalidPortID uint64 = 0

// Header precedes every chunk in shared memory. Once a chunk is returned
// from mempool.Manager.GetChunk, every field is immutable except RefCount
// and SequenceNumber.
type Header struct {
	totalSize            uint32
	userHeaderSize       uint32
	userPayloadSize      uint32
	userPayloadAlignment uint32
	mempoolIndex         uint32
	refCount             atomic.Int64
	originPortID         uint64
	sequenceNumber       atomic.Uint64
	hasSequenceNumber    bool
}

// Settings describes the size and alignment requirements of a single
// allocation request, as accepted by mempool.Manager.GetChunk.
type Settings struct {
	UserPayloadSize      uint32
	UserPayloadAlignment uint32
	UserHeaderSize       uint32
	UserHeaderAlignment  uint32
}

// TotalRequiredSize returns the number of bytes, including the Header and
// any padding needed to align UserPayload, that a chunk satisfying s must
// provide. MemoryManager dispatches allocation requests to the smallest
// pool whose chunkSize is at least this value.
func (s Settings) TotalRequiredSize() uint32 {
	headerEnd := uint32(unsafe.Sizeof(Header{})) + s.UserHeaderSize
	align := s.UserPayloadAlignment
	if align == 0 {
		align = 1
	}
	aligned := (headerEnd + align - 1) / align * align
	return aligned + s.UserPayloadSize
}

// Init stamps a freshly allocated chunk's header fields. It is called by
// the owning MemPool at allocation time, and again by popo.ChunkSender when
// it reuses its previously sent chunk for a new allocation.
func (h *Header) Init(mempoolIndex uint32, totalSize uint32, s Settings) {
	h.mempoolIndex = mempoolIndex
	h.totalSize = totalSize
	h.userHeaderSize = s.UserHeaderSize
	h.userPayloadSize = s.UserPayloadSize
	h.userPayloadAlignment = s.UserPayloadAlignment
	h.originPortID = InvalidPortID
	h.hasSequenceNumber = false
	h.sequenceNumber.Store(0)
	h.refCount.Store(1)
}

// MempoolIndex returns the index, within the owning MemoryManager, of the
// MemPool this chunk was allocated from. Combined with the chunk's address
// it lets the "drop to pool" path avoid any per-process lookup table.
func (h *Header) MempoolIndex() uint32 { return h.mempoolIndex }

// TotalSize returns the total chunk size, including this header.
func (h *Header) TotalSize() uint32 { return h.totalSize }

// UserPayloadSize returns the size in bytes of the user payload region.
func (h *Header) UserPayloadSize() uint32 { return h.userPayloadSize }

// UserHeaderSize returns the size in bytes of the optional user-header region.
func (h *Header) UserHeaderSize() uint32 { return h.userHeaderSize }

// OriginPortID returns the port id that allocated this chunk.
func (h *Header) OriginPortID() uint64 { return h.originPortID }

// SetOriginPortID stamps the port id that allocated this chunk. Called once,
// by the ChunkSender, immediately after allocation.
func (h *Header) SetOriginPortID(id uint64) { h.originPortID = id }

// SequenceNumber returns the monotonic sequence number stamped by send, and
// whether one has been stamped at all.
func (h *Header) SequenceNumber() (seq uint64, ok bool) {
	return h.sequenceNumber.Load(), h.hasSequenceNumber
}

// StampSequenceNumber sets the sequence number. Only ChunkSender.Send and
// ChunkSender.SendUnoffered call this, and only with a strictly increasing
// value per sender.
func (h *Header) StampSequenceNumber(seq uint64) {
	h.hasSequenceNumber = true
	h.sequenceNumber.Store(seq)
}

// RefCount returns the current reference count. It is never negative.
func (h *Header) RefCount() int64 { return h.refCount.Load() }

// IncRef atomically increments the reference count. Used by SharedChunk.Clone.
func (h *Header) IncRef() { h.refCount.Add(1) }

// DecRef atomically decrements the reference count and reports whether it
// reached zero, i.e. whether the caller is responsible for returning this
// chunk to its originating MemPool.
func (h *Header) DecRef() (reachedZero bool) {
	return h.refCount.Add(-1) == 0
}

// UserHeaderPtr returns a pointer to the user-header region, or nil if
// UserHeaderSize is zero.
func (h *Header) UserHeaderPtr() unsafe.Pointer {
	if h.userHeaderSize == 0 {
		return nil
	}
	return unsafe.Add(unsafe.Pointer(h), unsafe.Sizeof(*h))
}

// UserPayloadPtr returns a pointer to the (aligned) user payload region.
func (h *Header) UserPayloadPtr() unsafe.Pointer {
	headerEnd := uintptr(unsafe.Sizeof(*h)) + uintptr(h.userHeaderSize)
	align := uintptr(h.userPayloadAlignment)
	if align == 0 {
		align = 1
	}
	base := unsafe.Pointer(h)
	offset := (headerEnd + align - 1) / align * align
	return unsafe.Add(base, offset)
}

// UserPayload returns the user payload region as a byte slice.
func (h *Header) UserPayload() []byte {
	if h.userPayloadSize == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(h.UserPayloadPtr()), h.userPayloadSize)
}

// HeaderFromPayload recovers the chunk Header from a pointer previously
// returned by UserPayloadPtr. The caller must pass back exactly the pointer
// it was given; this is how UsedChunkList and release-by-payload-pointer
// APIs resolve a user-held pointer back to its owning chunk.
func HeaderFromPayload(payloadPtr unsafe.Pointer, userHeaderSize, userPayloadAlignment uint32) *Header {
	headerEnd := uintptr(unsafe.Sizeof(Header{})) + uintptr(userHeaderSize)
	align := uintptr(userPayloadAlignment)
	if align == 0 {
		align = 1
	}
	offset := (headerEnd + align - 1) / align * align
	return (*Header)(unsafe.Add(payloadPtr, -offset))
}
