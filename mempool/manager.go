// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package mempool

import (
	"sort"

	"code.hybscloud.com/shmipc/chunk"
	"code.hybscloud.com/shmipc/lfqueue"
)

// Config describes one size class to be created by a Manager.
type Config struct {
	ChunkSize uint32
	NumChunks uint32
}

// Manager owns a sorted set of Pools and dispatches chunk requests to the
// smallest pool whose ChunkSize can hold the request. Pool ChunkSizes are
// unique and monotonically increasing once built, matching the spec's
// MemoryManager invariant.
type Manager struct {
	pools []*Pool
}

// NewManager builds a Manager with one Pool per Config entry, sorted
// ascending by chunk size. Configs that collide after size-class sorting
// (same ChunkSize) are rejected by keeping only the first; callers should
// treat that as a configuration bug, not a runtime condition (mirrors the
// "pool chunkSizes are unique" invariant in spec.md §3).
func NewManager(configs []Config) *Manager {
	sorted := append([]Config(nil), configs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ChunkSize < sorted[j].ChunkSize })

	m := &Manager{}
	lastSize := uint32(0)
	idx := uint32(0)
	for i, c := range sorted {
		if i > 0 && c.ChunkSize == lastSize {
			continue
		}
		m.pools = append(m.pools, NewPool(idx, c.ChunkSize, c.NumChunks))
		lastSize = c.ChunkSize
		idx++
	}
	return m
}

// Pools returns the manager's pools, sorted ascending by chunk size. The
// returned slice must not be mutated.
func (m *Manager) Pools() []*Pool { return m.pools }

// PoolByIndex returns the pool with the given index, as stamped into a
// chunk's Header at allocation time. Used by the "drop to pool" path.
func (m *Manager) PoolByIndex(index uint32) *Pool {
	if int(index) >= len(m.pools) {
		return nil
	}
	return m.pools[index]
}

// GetChunk dispatches to the smallest pool whose ChunkSize can satisfy s,
// returning a SharedChunk with refcount 1. Returns ErrNoMempoolsAvailable
// if no pool is large enough, or ErrRunningOutOfChunks if the chosen pool
// is currently exhausted.
func (m *Manager) GetChunk(s chunk.Settings) (chunk.SharedChunk, error) {
	required := s.TotalRequiredSize()
	for _, p := range m.pools {
		if p.ChunkSize() >= required {
			h, err := p.Allocate(s)
			if err != nil {
				return chunk.SharedChunk{}, err
			}
			return chunk.NewSharedChunk(h, m), nil
		}
	}
	return chunk.SharedChunk{}, ErrNoMempoolsAvailable
}

// RefOf packs a header's owning pool index and slot into the compact
// queue-carriable lfqueue.Ref, the same (mempool index, chunk offset)
// addressing scheme the wire protocol uses for a relative pointer.
func (m *Manager) RefOf(h *chunk.Header) lfqueue.Ref {
	p := m.PoolByIndex(h.MempoolIndex())
	return lfqueue.Ref{MempoolIndex: h.MempoolIndex(), SlotIndex: p.SlotOf(h)}
}

// Resolve reverses RefOf, recovering the chunk header a Ref designates.
// Returns nil if ref names a pool index this Manager does not own.
func (m *Manager) Resolve(ref lfqueue.Ref) *chunk.Header {
	p := m.PoolByIndex(ref.MempoolIndex)
	if p == nil {
		return nil
	}
	return p.HeaderAt(ref.SlotIndex)
}

// Free implements chunk.Releaser by resolving a chunk's originating pool
// through its stamped MempoolIndex and returning it there. This is the
// "drop to pool" path referenced in spec.md §9: no per-process lookup
// table is needed, only the index already carried in the header.
func (m *Manager) Free(h *chunk.Header) {
	p := m.PoolByIndex(h.MempoolIndex())
	if p == nil {
		panic("mempool: chunk references an unknown pool index")
	}
	p.Free(h)
}
