// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package popo_test

import (
	"context"
	"testing"
	"time"

	"code.hybscloud.com/shmipc/mempool"
	"code.hybscloud.com/shmipc/popo"
)

// Under BLOCK_PRODUCER, pushing past capacity must block the producer
// until a consumer releases a slot (spec.md §8's "Under BLOCK_PRODUCER,
// pushing capacity + 1 blocks the producer until a consumer releases").
func TestQueue_BlockProducerWaitsForConsumer(t *testing.T) {
	m := mempool.NewManager([]mempool.Config{{ChunkSize: 128, NumChunks: 4}})
	dist := popo.NewChunkDistributor(m, 1, 0)
	sender := popo.NewChunkSender(m, m, 4, dist, 1)

	q := popo.NewQueue(1, 1, popo.QueueFullPolicyBlockProducer)
	if err := dist.AddQueue(q, 0); err != nil {
		t.Fatal(err)
	}
	receiver := popo.NewChunkReceiver(q, m, 4)

	sendValue(t, sender, 1)

	done := make(chan struct{})
	go func() {
		sendValue(t, sender, 2)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("second send should have blocked: queue is full")
	case <-time.After(50 * time.Millisecond):
	}

	h, err := receiver.TryGet()
	if err != nil {
		t.Fatalf("TryGet: %v", err)
	}
	receiver.Release(h)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second send did not unblock after a slot freed")
	}
}

func TestQueue_ConditionVariableSignaledOnPush(t *testing.T) {
	m := mempool.NewManager([]mempool.Config{{ChunkSize: 128, NumChunks: 4}})
	dist := popo.NewChunkDistributor(m, 1, 0)
	sender := popo.NewChunkSender(m, m, 4, dist, 1)

	q := popo.NewQueue(1, 4, popo.QueueFullPolicyDiscardOldestData)
	if err := dist.AddQueue(q, 0); err != nil {
		t.Fatal(err)
	}

	n := popo.NewConditionNotifier()
	q.SetConditionVariable(n)

	sendValue(t, sender, 1)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := n.Wait(ctx); err != nil {
		t.Fatalf("Wait should have observed the push: %v", err)
	}
}
