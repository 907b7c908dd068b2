// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package mempool implements the fixed-size, lock-free chunk allocator that
// underlies every port in the system: Pool is a single size class, Manager
// dispatches an allocation request to the smallest Pool that fits it.
package mempool

import (
	"errors"
	"sync/atomic"
	"unsafe"

	"code.hybscloud.com/shmipc/chunk"
	"code.hybscloud.com/shmipc/internal"
	"code.hybscloud.com/spin"
)

// Errors returned by Pool and Manager. These are recoverable: callers must
// observe and handle them, per the AllocationError taxonomy in spec.md §7.
var (
	// ErrRunningOutOfChunks is returned when the chosen pool's free list is
	// empty.
	ErrRunningOutOfChunks = errors.New("mempool: running out of chunks")
	// ErrNoMempoolsAvailable is returned when no registered pool's chunkSize
	// is large enough to satisfy a request.
	ErrNoMempoolsAvailable = errors.New("mempool: no mempools available for requested size")
)

// slotEmpty/slotTurnMask mirror the turn-tagged CAS ring used by the
// teacher's BoundedPool: the free list is a ring of capacity slots, each
// holding either a free chunk's slot index or an "empty, turn N" sentinel.
// This gives the same ABA-safety the spec's "64-bit head: (index, aba
// counter)" prose asks for, without a separate intrusive linked list.
const (
	slotEmpty    = 1 << 62
	slotTurnMask = slotEmpty>>32 - 1
)

// Pool is a fixed-size, lock-free free-list allocator over a contiguous
// byte region. All chunks in a Pool share the same ChunkSize. Pool is safe
// for concurrent Allocate/Free from any number of goroutines.
type Pool struct {
	_ internal.NoCopy

	region    []byte
	chunkSize uint32
	capacity  uint32
	mask      uint32
	index     uint32 // this pool's index within its owning Manager

	freeList  []atomic.Uint64
	remapM    uint32
	remapN    uint32
	remapMask uint32
	head      atomic.Uint32
	tail      atomic.Uint32

	used atomic.Int64
}

// NewPool creates a Pool of numChunks slots, each chunkSize bytes, rounded
// up to the next power of two (as required by the turn-tagged free-list
// ring). Slots are cache-line aligned to avoid false sharing between
// adjacent chunks' reference counts.
func NewPool(index uint32, chunkSize uint32, numChunks uint32) *Pool {
	if numChunks == 0 {
		numChunks = 1
	}
	capacity := nextPowerOfTwo(numChunks)

	alignedChunkSize := alignUp(chunkSize, uint32(internal.CacheLineSize))

	p := &Pool{
		region:    pageAlignedMem(uint64(alignedChunkSize) * uint64(capacity)),
		chunkSize: alignedChunkSize,
		capacity:  capacity,
		mask:      capacity - 1,
		index:     index,
	}

	remapM := uint32(min(uintptr(internal.CacheLineSize)/unsafe.Sizeof(atomic.Uint64{}), uintptr(capacity)))
	if remapM == 0 {
		remapM = 1
	}
	remapN := max(1, capacity/remapM)

	p.remapM = remapM
	p.remapN = remapN
	p.remapMask = remapN - 1

	p.freeList = make([]atomic.Uint64, capacity)
	for i := range capacity {
		p.freeList[i].Store(uint64(i))
	}
	p.tail.Store(capacity)

	return p
}

// Index returns this pool's index within its owning Manager.
func (p *Pool) Index() uint32 { return p.index }

// ChunkSize returns the (cache-line aligned) per-chunk size.
func (p *Pool) ChunkSize() uint32 { return p.chunkSize }

// Capacity returns the number of chunks this pool holds.
func (p *Pool) Capacity() uint32 { return p.capacity }

// UsedChunks returns the number of chunks currently allocated. It is an
// approximation under concurrent allocate/free, suitable for introspection
// and tests, not for correctness-critical decisions.
func (p *Pool) UsedChunks() int64 { return p.used.Load() }

// Allocate returns a freshly initialized chunk header with refcount 1, or
// ErrRunningOutOfChunks if the pool is empty. Allocate never blocks.
func (p *Pool) Allocate(s chunk.Settings) (*chunk.Header, error) {
	slot, err := p.acquireSlot()
	if err != nil {
		return nil, err
	}
	h := p.headerAt(slot)
	h.Init(p.index, p.chunkSize, s)
	p.used.Add(1)
	return h, nil
}

// Free returns a chunk to this pool. h must have originated from this pool
// (callers resolve the owning pool via h.MempoolIndex() through a Manager).
func (p *Pool) Free(h *chunk.Header) {
	slot := p.slotOf(h)
	p.releaseSlot(slot)
	p.used.Add(-1)
}

// HeaderAt returns the chunk header occupying the given slot. Used by the
// distributor/receiver path to resolve a queued Ref back to its header
// without a process-wide lookup table.
func (p *Pool) HeaderAt(slot uint32) *chunk.Header { return p.headerAt(slot) }

func (p *Pool) headerAt(slot uint32) *chunk.Header {
	base := unsafe.Pointer(unsafe.SliceData(p.region))
	return (*chunk.Header)(unsafe.Add(base, uintptr(slot)*uintptr(p.chunkSize)))
}

// SlotOf returns the slot index of a header previously returned by this
// pool's Allocate/HeaderAt.
func (p *Pool) SlotOf(h *chunk.Header) uint32 { return p.slotOf(h) }

func (p *Pool) slotOf(h *chunk.Header) uint32 {
	base := uintptr(unsafe.Pointer(unsafe.SliceData(p.region)))
	off := uintptr(unsafe.Pointer(h)) - base
	return uint32(off / uintptr(p.chunkSize))
}

func (p *Pool) remap(cursor uint32) int {
	a, b := cursor/p.remapN, cursor&p.remapMask
	return int(b*p.remapM + a%p.remapM)
}

func (p *Pool) empty(turn uint32) uint64 {
	return slotEmpty | uint64(turn&slotTurnMask)
}

// acquireSlot and releaseSlot implement the same turn-tagged CAS ring as
// BoundedPool.tryGet/tryPut in the teacher repo, specialized to hand out
// chunk slot indices instead of generic pool items.
func (p *Pool) acquireSlot() (uint32, error) {
	sw := spin.Wait{}
	for {
		h, t := p.head.Load(), p.tail.Load()
		hi := p.remap(h & p.mask)
		e := p.freeList[hi].Load()

		if h != p.head.Load() {
			sw.Once()
			continue
		}
		if h == t {
			return 0, ErrRunningOutOfChunks
		}

		nextTurn := (h/p.capacity + 1) & slotTurnMask
		if e == p.empty(nextTurn) {
			p.head.CompareAndSwap(h, h+1)
			sw.Once()
			continue
		}
		ok := p.freeList[hi].CompareAndSwap(e, p.empty(nextTurn))
		p.head.CompareAndSwap(h, h+1)
		if ok {
			return uint32(e & uint64(p.mask)), nil
		}
		sw.Once()
	}
}

func (p *Pool) releaseSlot(slot uint32) {
	e := uint64(slot)
	sw := spin.Wait{}
	for {
		h, t := p.head.Load(), p.tail.Load()
		if t != p.tail.Load() {
			sw.Once()
			continue
		}
		if t == h+p.capacity {
			// Freeing into a full ring means the caller double-freed, a
			// contract violation elsewhere in the port layer, not a
			// condition this allocator can recover from.
			panic("mempool: free of slot into a full free list")
		}
		turn, ti := (t/p.capacity)&slotTurnMask, p.remap(t)
		ok := p.freeList[ti].CompareAndSwap(p.empty(turn), e)
		p.tail.CompareAndSwap(t, t+1)
		if ok {
			return
		}
		sw.Once()
	}
}

func nextPowerOfTwo(v uint32) uint32 {
	v--
	v |= v >> 1
	v |= v >> 2
	v |= v >> 4
	v |= v >> 8
	v |= v >> 16
	v++
	return v
}

func alignUp(v, align uint32) uint32 {
	if align == 0 {
		return v
	}
	return (v + align - 1) / align * align
}
