// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package lfqueue implements the two bounded, lock-free queue flavors that
// carry chunk references between ports: FIFO (SPSC-oriented, push fails
// when full) and SoFi (MPSC-oriented "safely overflowing FIFO", push
// always succeeds and evicts the oldest entry on overflow).
//
// Both share the ring of cells used by the teacher's BoundedPool, adapted
// to store a packed chunk Ref instead of a pool item index: a queue slot
// is exactly the same turn-tagged CAS cell, just carrying a different
// 64-bit payload.
package lfqueue

// Ref is a compact reference to a chunk: which mempool it lives in, and
// which slot within that pool. This is the only thing ever pushed through
// a queue cell — the payload itself is never copied.
type Ref struct {
	MempoolIndex uint32
	SlotIndex    uint32
}

func (r Ref) pack() uint64 {
	return uint64(r.MempoolIndex)<<32 | uint64(r.SlotIndex)
}

func unpackRef(v uint64) Ref {
	return Ref{MempoolIndex: uint32(v >> 32), SlotIndex: uint32(v)}
}

// IsZero reports whether r is the zero Ref. The zero Ref is also a valid
// reference (slot 0 of mempool 0), so IsZero does not tell an empty Ref
// from that chunk.
func (r Ref) IsZero() bool { return r == Ref{} }
