// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package roudi_test

import (
	"testing"

	"github.com/rs/zerolog"

	"code.hybscloud.com/shmipc/capro"
	"code.hybscloud.com/shmipc/mempool"
	"code.hybscloud.com/shmipc/popo"
	"code.hybscloud.com/shmipc/port"
	"code.hybscloud.com/shmipc/roudi"
	"code.hybscloud.com/shmipc/shmlog"
)

func testService(event string) capro.ServiceDescription {
	return capro.ServiceDescription{Service: "svc", Instance: "inst", Event: event}
}

func newTestDaemon(t *testing.T) *roudi.DaemonContext {
	t.Helper()
	var fatalErr error
	log := shmlog.New("test", zerolog.Disabled, nil)
	ctx := roudi.NewDaemonContext(log, func(err error) { fatalErr = err })
	t.Cleanup(func() {
		if fatalErr != nil {
			t.Fatalf("unexpected fatal: %v", fatalErr)
		}
	})
	return ctx
}

// End-to-end: a single-producer subscriber discovers and binds to a
// publisher entirely through PortManager.RunOnce, with no direct wiring.
func TestPortManager_PublisherSubscriberDiscovery(t *testing.T) {
	m := mempool.NewManager([]mempool.Config{{ChunkSize: 128, NumChunks: 8}})
	pm := roudi.NewPortManager(newTestDaemon(t))
	svc := testService("discovery")

	pub := pm.CreatePublisher(svc, m, m, port.PublisherOptions{MaxSubscribers: 4, MaxChunksAllocatedInParallel: 4})
	sub := pm.CreateSubscriber(svc, m, port.SubscriberOptions{
		Mode: port.SingleProducer, QueueCapacity: 4,
		QueueFullPolicy: popo.QueueFullPolicyDiscardOldestData, MaxChunksHeld: 4,
	})

	pub.Offer()
	sub.Subscribe()

	for range 3 {
		pm.RunOnce()
	}

	if sub.GetSubscriptionState() != port.Subscribed {
		t.Fatalf("subscriber state = %v, want Subscribed", sub.GetSubscriptionState())
	}
	if !pub.HasSubscribers() {
		t.Fatal("publisher should have a subscriber attached")
	}

	h, err := pub.TryAllocateChunk(4, 4)
	if err != nil {
		t.Fatalf("TryAllocateChunk: %v", err)
	}
	if pub.SendChunk(h) != 1 {
		t.Fatal("SendChunk should reach exactly one subscriber")
	}

	got, err := sub.TryGetChunk()
	if err != nil {
		t.Fatalf("TryGetChunk: %v", err)
	}
	sub.ReleaseChunk(got)
}

// End-to-end: a client and server connect entirely through
// PortManager.RunOnce and exchange one request/response pair.
func TestPortManager_ClientServerDiscovery(t *testing.T) {
	m := mempool.NewManager([]mempool.Config{{ChunkSize: 128, NumChunks: 8}})
	pm := roudi.NewPortManager(newTestDaemon(t))
	svc := testService("rpc")

	srv := pm.CreateServer(svc, m, m, port.ServerOptions{
		OfferOnCreate: true, RequestQueueCapacity: 4, MaxClients: 4,
		MaxChunksHeld: 4, MaxChunksAllocatedInParallel: 4,
	})
	cli := pm.CreateClient(svc, m, m, port.ClientOptions{
		ResponseQueueCapacity: 4, MaxChunksHeld: 4, MaxChunksAllocatedInParallel: 4,
	})

	cli.Connect()
	for range 3 {
		pm.RunOnce()
	}
	if cli.ConnectionState() != port.Connected {
		t.Fatalf("client state = %v, want Connected", cli.ConnectionState())
	}

	reqH, err := cli.TryAllocateRequest(4, 4)
	if err != nil {
		t.Fatalf("TryAllocateRequest: %v", err)
	}
	if err := cli.SendRequest(reqH); err != nil {
		t.Fatalf("SendRequest: %v", err)
	}

	gotReq, err := srv.TryGetRequest()
	if err != nil {
		t.Fatalf("TryGetRequest: %v", err)
	}
	respH, err := srv.TryAllocateResponse(4, 4, gotReq)
	if err != nil {
		t.Fatalf("TryAllocateResponse: %v", err)
	}
	srv.ReleaseRequest(gotReq)
	if _, err := srv.SendResponse(respH, -1); err != nil {
		t.Fatalf("SendResponse: %v", err)
	}

	gotResp, err := cli.TryGetResponse()
	if err != nil {
		t.Fatalf("TryGetResponse: %v", err)
	}
	cli.ReleaseResponse(gotResp)
}

// A multi-producer subscriber attaches to every offered matching publisher
// without running the SUB/ACK handshake.
func TestPortManager_MultiProducerSubscriberAutoAttach(t *testing.T) {
	m := mempool.NewManager([]mempool.Config{{ChunkSize: 128, NumChunks: 8}})
	pm := roudi.NewPortManager(newTestDaemon(t))
	svc := testService("fanin")

	pub1 := pm.CreatePublisher(svc, m, m, port.PublisherOptions{MaxSubscribers: 4, MaxChunksAllocatedInParallel: 4})
	pub2 := pm.CreatePublisher(svc, m, m, port.PublisherOptions{MaxSubscribers: 4, MaxChunksAllocatedInParallel: 4})
	sub := pm.CreateSubscriber(svc, m, port.SubscriberOptions{
		Mode: port.MultiProducer, QueueCapacity: 8,
		QueueFullPolicy: popo.QueueFullPolicyDiscardOldestData, MaxChunksHeld: 8,
	})

	pub1.Offer()
	pub2.Offer()
	sub.Subscribe()
	if sub.GetSubscriptionState() != port.Subscribed {
		t.Fatal("multi-producer subscriber should subscribe immediately")
	}

	for range 3 {
		pm.RunOnce()
	}

	if !pub1.HasSubscriber(sub.ID()) || !pub2.HasSubscriber(sub.ID()) {
		t.Fatal("subscriber should be attached to both offered publishers")
	}
}
