// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package mempool_test

import (
	"testing"
	"unsafe"

	"code.hybscloud.com/shmipc/chunk"
	"code.hybscloud.com/shmipc/mempool"
)

func TestPool_AllocateFreeRoundTrip(t *testing.T) {
	p := mempool.NewPool(0, 64, 4)
	if got := p.UsedChunks(); got != 0 {
		t.Fatalf("UsedChunks = %d, want 0", got)
	}

	h, err := p.Allocate(chunk.Settings{UserPayloadSize: 8, UserPayloadAlignment: 8})
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if got := p.UsedChunks(); got != 1 {
		t.Fatalf("UsedChunks after Allocate = %d, want 1", got)
	}

	p.Free(h)
	if got := p.UsedChunks(); got != 0 {
		t.Fatalf("UsedChunks after Free = %d, want 0", got)
	}
}

func TestPool_ExhaustionReturnsErrRunningOutOfChunks(t *testing.T) {
	p := mempool.NewPool(0, 64, 2)
	var held []*chunk.Header
	for range 2 {
		h, err := p.Allocate(chunk.Settings{})
		if err != nil {
			t.Fatalf("Allocate: %v", err)
		}
		held = append(held, h)
	}

	if _, err := p.Allocate(chunk.Settings{}); err != mempool.ErrRunningOutOfChunks {
		t.Fatalf("Allocate on exhausted pool = %v, want ErrRunningOutOfChunks", err)
	}

	p.Free(held[0])
	if _, err := p.Allocate(chunk.Settings{}); err != nil {
		t.Fatalf("Allocate after Free: %v", err)
	}
}

// NewPool rounds its backing region up to a power-of-two capacity and
// aligns it to mempool.PageSize, since a pool's region stands in for a
// real shared-memory segment mapping.
func TestPool_RegionIsPageAligned(t *testing.T) {
	p := mempool.NewPool(0, 64, 3) // rounds up to capacity 4
	if got := p.Capacity(); got != 4 {
		t.Fatalf("Capacity = %d, want 4 (rounded up from 3)", got)
	}

	h, err := p.Allocate(chunk.Settings{})
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	addr := uintptr(unsafe.Pointer(p.HeaderAt(0)))
	if addr%mempool.PageSize != 0 {
		t.Fatalf("pool region base %#x is not page-aligned to %d", addr, mempool.PageSize)
	}
	p.Free(h)
}

func TestManager_DispatchesToSmallestFittingPool(t *testing.T) {
	m := mempool.NewManager([]mempool.Config{
		{ChunkSize: 64, NumChunks: 4},
		{ChunkSize: 1024, NumChunks: 4},
	})

	small, err := m.GetChunk(chunk.Settings{UserPayloadSize: 8, UserPayloadAlignment: 8})
	if err != nil {
		t.Fatalf("GetChunk(small): %v", err)
	}
	if got := small.Header().MempoolIndex(); got != 0 {
		t.Fatalf("small chunk mempool index = %d, want 0", got)
	}
	small.Release()

	big, err := m.GetChunk(chunk.Settings{UserPayloadSize: 512, UserPayloadAlignment: 8})
	if err != nil {
		t.Fatalf("GetChunk(big): %v", err)
	}
	if got := big.Header().MempoolIndex(); got != 1 {
		t.Fatalf("big chunk mempool index = %d, want 1", got)
	}
	big.Release()

	if _, err := m.GetChunk(chunk.Settings{UserPayloadSize: 100_000}); err != mempool.ErrNoMempoolsAvailable {
		t.Fatalf("GetChunk(oversized) = %v, want ErrNoMempoolsAvailable", err)
	}
}

func TestManager_RefOfResolveRoundTrip(t *testing.T) {
	m := mempool.NewManager([]mempool.Config{{ChunkSize: 64, NumChunks: 4}})
	c, err := m.GetChunk(chunk.Settings{UserPayloadSize: 8, UserPayloadAlignment: 8})
	if err != nil {
		t.Fatalf("GetChunk: %v", err)
	}

	ref := m.RefOf(c.Header())
	resolved := m.Resolve(ref)
	if resolved != c.Header() {
		t.Fatalf("Resolve(RefOf(h)) = %p, want %p", resolved, c.Header())
	}
	c.Release()
}
