// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package popo_test

import (
	"testing"

	"code.hybscloud.com/shmipc/chunk"
	"code.hybscloud.com/shmipc/mempool"
	"code.hybscloud.com/shmipc/popo"
)

func newTestManager(t *testing.T, chunkSize, numChunks uint32) *mempool.Manager {
	t.Helper()
	return mempool.NewManager([]mempool.Config{{ChunkSize: chunkSize, NumChunks: numChunks}})
}

func TestUsedChunkList_InsertRemoveClear(t *testing.T) {
	m := newTestManager(t, 128, 4)
	l := popo.NewUsedChunkList(2)

	c1, err := m.GetChunk(chunk.Settings{UserPayloadSize: 8})
	if err != nil {
		t.Fatal(err)
	}
	c2, err := m.GetChunk(chunk.Settings{UserPayloadSize: 8})
	if err != nil {
		t.Fatal(err)
	}
	c3, err := m.GetChunk(chunk.Settings{UserPayloadSize: 8})
	if err != nil {
		t.Fatal(err)
	}

	if !l.Insert(c1) {
		t.Fatal("insert 1 should succeed")
	}
	if !l.Insert(c2) {
		t.Fatal("insert 2 should succeed")
	}
	if l.Insert(c3) {
		t.Fatal("insert 3 should fail: list is at capacity 2")
	}
	c3.Release()

	if _, ok := l.Remove(c1.Header().UserPayloadPtr()); !ok {
		t.Fatal("remove of c1 should succeed")
	}
	if _, ok := l.Remove(c1.Header().UserPayloadPtr()); ok {
		t.Fatal("second remove of c1 should fail: already removed")
	}

	remaining := l.Clear()
	if len(remaining) != 1 {
		t.Fatalf("Clear() returned %d chunks, want 1", len(remaining))
	}
	remaining[0].Release()
	c1.Release()

	if m.Pools()[0].UsedChunks() != 0 {
		t.Fatalf("used chunks = %d, want 0", m.Pools()[0].UsedChunks())
	}
}
