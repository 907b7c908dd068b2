// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package port_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"code.hybscloud.com/shmipc/capro"
	"code.hybscloud.com/shmipc/mempool"
	"code.hybscloud.com/shmipc/popo"
	"code.hybscloud.com/shmipc/port"
)

// subscribe drives the SUB/ACK handshake between sub and pub directly, in
// place of roudi's PortManager.
func subscribe(t *testing.T, pub *port.Publisher, sub *port.Subscriber) {
	t.Helper()
	msg, ok := sub.TryGetCaProMessage()
	require.True(t, ok)
	require.Equal(t, capro.Sub, msg.Type)
	reply := pub.DispatchCaProMessage(msg, sub.Queue())
	require.Equal(t, capro.Ack, reply.Type)
	sub.DispatchCaProMessage(reply)
	require.Equal(t, port.Subscribed, sub.GetSubscriptionState())
}

// Scenario A: single-producer subscriber discovers an offered publisher,
// then receives one published chunk (spec.md §8.A).
func TestPublisherSubscriber_RoundTrip(t *testing.T) {
	m := mempool.NewManager([]mempool.Config{{ChunkSize: 128, NumChunks: 8}})
	svc := testService()

	pub := port.NewPublisher(1, svc, m, m, port.PublisherOptions{MaxSubscribers: 4, MaxChunksAllocatedInParallel: 4})
	sub := port.NewSubscriber(2, svc, m, port.SubscriberOptions{
		Mode: port.SingleProducer, QueueCapacity: 4,
		QueueFullPolicy: popo.QueueFullPolicyDiscardOldestData, MaxChunksHeld: 4,
	})

	pub.Offer()
	offerMsg, ok := pub.TryGetCaProMessage()
	require.True(t, ok)
	require.Equal(t, capro.Offer, offerMsg.Type)

	sub.Subscribe()
	subscribe(t, pub, sub)
	require.True(t, pub.HasSubscribers())

	h, err := pub.TryAllocateChunk(8, 8)
	require.NoError(t, err)
	writeU64(h, 99)
	require.Equal(t, 1, pub.SendChunk(h))

	got, err := sub.TryGetChunk()
	require.NoError(t, err)
	require.Equal(t, uint64(99), readU64(got))
	sub.ReleaseChunk(got)

	require.Zero(t, m.Pools()[0].UsedChunks())
}

// A subscriber requesting history on subscribe receives chunks sent
// before it attached, up to the distributor's retained history.
func TestPublisherSubscriber_HistoryReplay(t *testing.T) {
	m := mempool.NewManager([]mempool.Config{{ChunkSize: 128, NumChunks: 8}})
	svc := testService()

	pub := port.NewPublisher(1, svc, m, m, port.PublisherOptions{
		HistoryCapacity: 4, MaxSubscribers: 4, MaxChunksAllocatedInParallel: 4,
	})
	pub.Offer()
	_, _ = pub.TryGetCaProMessage()

	for _, v := range []uint64{1, 2, 3} {
		h, err := pub.TryAllocateChunk(8, 8)
		require.NoError(t, err)
		writeU64(h, v)
		pub.SendChunk(h)
	}

	sub := port.NewSubscriber(2, svc, m, port.SubscriberOptions{
		Mode: port.SingleProducer, QueueCapacity: 4,
		QueueFullPolicy: popo.QueueFullPolicyDiscardOldestData,
		HistoryRequest:  2, MaxChunksHeld: 4,
	})
	sub.Subscribe()
	subscribe(t, pub, sub)

	require.True(t, sub.HasNewChunks())
	h1, err := sub.TryGetChunk()
	require.NoError(t, err)
	require.Equal(t, uint64(2), readU64(h1))
	sub.ReleaseChunk(h1)

	h2, err := sub.TryGetChunk()
	require.NoError(t, err)
	require.Equal(t, uint64(3), readU64(h2))
	sub.ReleaseChunk(h2)

	require.False(t, sub.HasNewChunks())
}

// A multi-producer subscriber never runs the SUB/ACK handshake: it is
// Subscribed immediately and is wired to publishers directly by the
// caller (normally roudi's PortManager).
func TestPublisherSubscriber_MultiProducerSkipsHandshake(t *testing.T) {
	m := mempool.NewManager([]mempool.Config{{ChunkSize: 128, NumChunks: 8}})
	svc := testService()

	sub := port.NewSubscriber(1, svc, m, port.SubscriberOptions{
		Mode: port.MultiProducer, QueueCapacity: 4,
		QueueFullPolicy: popo.QueueFullPolicyDiscardOldestData, MaxChunksHeld: 4,
	})
	sub.Subscribe()
	require.Equal(t, port.Subscribed, sub.GetSubscriptionState())

	_, ok := sub.TryGetCaProMessage()
	require.False(t, ok, "multi-producer subscriber must not emit a SUB message")
}
