// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package popo_test

import (
	"encoding/binary"
	"testing"

	"code.hybscloud.com/shmipc/chunk"
	"code.hybscloud.com/shmipc/mempool"
	"code.hybscloud.com/shmipc/popo"
)

func writeU64(h *chunk.Header, v uint64) {
	binary.LittleEndian.PutUint64(h.UserPayload(), v)
}

func readU64(h *chunk.Header) uint64 {
	return binary.LittleEndian.Uint64(h.UserPayload())
}

func sendValue(t *testing.T, s *popo.ChunkSender, v uint64) {
	t.Helper()
	h, err := s.TryAllocate(8, 8, 0, 0)
	if err != nil {
		t.Fatalf("TryAllocate(%d): %v", v, err)
	}
	writeU64(h, v)
	s.Send(h)
}

// Scenario A: single-producer single-subscriber happy path (spec.md §8.A).
func TestSenderReceiver_HappyPath(t *testing.T) {
	m := mempool.NewManager([]mempool.Config{{ChunkSize: 128, NumChunks: 8}})
	dist := popo.NewChunkDistributor(m, 4, 0)
	sender := popo.NewChunkSender(m, m, 8, dist, 1)

	q := popo.NewQueue(100, 4, popo.QueueFullPolicyDiscardOldestData)
	if err := dist.AddQueue(q, 0); err != nil {
		t.Fatal(err)
	}
	receiver := popo.NewChunkReceiver(q, m, 8)

	sendValue(t, sender, 42)

	h, err := receiver.TryGet()
	if err != nil {
		t.Fatalf("TryGet: %v", err)
	}
	if got := readU64(h); got != 42 {
		t.Fatalf("payload = %d, want 42", got)
	}
	receiver.Release(h)

	if m.Pools()[0].UsedChunks() != 0 {
		t.Fatalf("used chunks after release = %d, want 0", m.Pools()[0].UsedChunks())
	}
}

// Scenario B: history replay (spec.md §8.B).
func TestDistributor_HistoryReplay(t *testing.T) {
	m := mempool.NewManager([]mempool.Config{{ChunkSize: 128, NumChunks: 8}})
	dist := popo.NewChunkDistributor(m, 4, 3)
	sender := popo.NewChunkSender(m, m, 8, dist, 1)

	for _, v := range []uint64{1, 2, 3, 4} {
		sendValue(t, sender, v)
	}

	q := popo.NewQueue(200, 8, popo.QueueFullPolicyDiscardOldestData)
	if err := dist.AddQueue(q, 3); err != nil {
		t.Fatal(err)
	}
	receiver := popo.NewChunkReceiver(q, m, 8)

	for _, want := range []uint64{2, 3, 4} {
		h, err := receiver.TryGet()
		if err != nil {
			t.Fatalf("TryGet: %v", err)
		}
		if got := readU64(h); got != want {
			t.Fatalf("payload = %d, want %d", got, want)
		}
		receiver.Release(h)
	}

	if _, err := receiver.TryGet(); err != popo.ErrNoChunkAvailable {
		t.Fatalf("fourth TryGet = %v, want ErrNoChunkAvailable", err)
	}
}

// Scenario C: overflow with DISCARD_OLDEST_DATA (spec.md §8.C).
func TestQueue_OverflowDiscardOldest(t *testing.T) {
	m := mempool.NewManager([]mempool.Config{{ChunkSize: 128, NumChunks: 8}})
	dist := popo.NewChunkDistributor(m, 4, 0)
	sender := popo.NewChunkSender(m, m, 8, dist, 1)

	q := popo.NewQueue(300, 2, popo.QueueFullPolicyDiscardOldestData)
	if err := dist.AddQueue(q, 0); err != nil {
		t.Fatal(err)
	}
	receiver := popo.NewChunkReceiver(q, m, 8)

	for _, v := range []uint64{10, 20, 30, 40} {
		sendValue(t, sender, v)
	}

	for _, want := range []uint64{30, 40} {
		h, err := receiver.TryGet()
		if err != nil {
			t.Fatalf("TryGet: %v", err)
		}
		if got := readU64(h); got != want {
			t.Fatalf("payload = %d, want %d", got, want)
		}
		receiver.Release(h)
	}

	if !receiver.HasLostChunks() {
		t.Fatal("HasLostChunks should report true once after the eviction")
	}
	if receiver.HasLostChunks() {
		t.Fatal("HasLostChunks should report false on the second call")
	}
}

// Scenario D: too many chunks held in parallel (spec.md §8.D).
func TestReceiver_TooManyHeldInParallel(t *testing.T) {
	const maxHeld = 8
	m := mempool.NewManager([]mempool.Config{{ChunkSize: 128, NumChunks: 16}})
	dist := popo.NewChunkDistributor(m, 4, 0)
	sender := popo.NewChunkSender(m, m, 16, dist, 1)

	q := popo.NewQueue(400, 16, popo.QueueFullPolicyDiscardOldestData)
	if err := dist.AddQueue(q, 0); err != nil {
		t.Fatal(err)
	}
	receiver := popo.NewChunkReceiver(q, m, maxHeld)

	for v := range uint64(9) {
		sendValue(t, sender, v)
	}

	held := make([]*chunk.Header, 0, maxHeld)
	for range maxHeld {
		h, err := receiver.TryGet()
		if err != nil {
			t.Fatalf("TryGet: %v", err)
		}
		held = append(held, h)
	}

	if _, err := receiver.TryGet(); err != popo.ErrTooManyChunksHeldInParallel {
		t.Fatalf("9th TryGet = %v, want ErrTooManyChunksHeldInParallel", err)
	}

	usedBefore := m.Pools()[0].UsedChunks()
	for _, h := range held {
		receiver.Release(h)
	}
	if got := m.Pools()[0].UsedChunks(); got != usedBefore-maxHeld {
		t.Fatalf("used chunks after releasing held = %d, want %d", got, usedBefore-maxHeld)
	}
}
