// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package lfqueue

import (
	"sync/atomic"

	"code.hybscloud.com/shmipc/internal"
	"code.hybscloud.com/spin"
)

const (
	cellEmpty    = 1 << 62
	cellTurnMask = cellEmpty>>32 - 1
)

// ring is the turn-tagged CAS ring shared by FIFO and SoFi. It is
// lock-free and safe for any number of concurrent producers and
// consumers; FIFO and SoFi differ only in what they do when the ring
// reports full.
type ring struct {
	_ internal.NoCopy

	cells     []atomic.Uint64
	capacity  uint32
	mask      uint32
	remapM    uint32
	remapN    uint32
	remapMask uint32
	head      atomic.Uint32
	tail      atomic.Uint32
}

func newRing(capacity int) *ring {
	if capacity < 1 {
		panic("lfqueue: capacity must be at least 1")
	}
	c := nextPowerOfTwo(uint32(capacity))

	remapM := min(uint32(internal.CacheLineSize)/8, c)
	if remapM == 0 {
		remapM = 1
	}
	remapN := max(1, c/remapM)

	r := &ring{
		capacity:  c,
		mask:      c - 1,
		remapM:    remapM,
		remapN:    remapN,
		remapMask: remapN - 1,
	}
	r.cells = make([]atomic.Uint64, c)
	for i := range c {
		r.cells[i].Store(r.empty(0))
	}
	return r
}

func (r *ring) Cap() int { return int(r.capacity) }

func (r *ring) remap(cursor uint32) int {
	a, b := cursor/r.remapN, cursor&r.remapMask
	return int(b*r.remapM + a%r.remapM)
}

func (r *ring) empty(turn uint32) uint64 { return cellEmpty | uint64(turn&cellTurnMask) }

// tryPop removes and returns the oldest entry, or ok=false if the ring is
// empty. Safe for any number of concurrent callers.
func (r *ring) tryPop() (v uint64, ok bool) {
	sw := spin.Wait{}
	for {
		h, t := r.head.Load(), r.tail.Load()
		hi := r.remap(h & r.mask)
		e := r.cells[hi].Load()

		if h != r.head.Load() {
			sw.Once()
			continue
		}
		if h == t {
			return 0, false
		}

		nextTurn := (h/r.capacity + 1) & cellTurnMask
		if e == r.empty(nextTurn) {
			r.head.CompareAndSwap(h, h+1)
			sw.Once()
			continue
		}
		cas := r.cells[hi].CompareAndSwap(e, r.empty(nextTurn))
		r.head.CompareAndSwap(h, h+1)
		if cas {
			return e, true
		}
		sw.Once()
	}
}

// tryPush installs v as the newest entry, or reports ok=false if the ring
// is full. Safe for any number of concurrent callers.
func (r *ring) tryPush(v uint64) (ok bool) {
	sw := spin.Wait{}
	for {
		h, t := r.head.Load(), r.tail.Load()
		if t != r.tail.Load() {
			sw.Once()
			continue
		}
		if t == h+r.capacity {
			return false
		}
		turn, ti := (t/r.capacity)&cellTurnMask, r.remap(t)
		cas := r.cells[ti].CompareAndSwap(r.empty(turn), v)
		r.tail.CompareAndSwap(t, t+1)
		if cas {
			return true
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
