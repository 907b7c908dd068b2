// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command runtime-example demonstrates a publisher and a subscriber
// exchanging chunks in one process: a single-segment mempool, a
// roudi.PortManager running the discovery dispatch in-process, and a
// publisher sending a handful of counter values a subscriber reads back.
package main

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"code.hybscloud.com/shmipc/capro"
	"code.hybscloud.com/shmipc/mempool"
	"code.hybscloud.com/shmipc/popo"
	"code.hybscloud.com/shmipc/port"
	"code.hybscloud.com/shmipc/roudi"
	"code.hybscloud.com/shmipc/shmlog"
)

func main() {
	log := shmlog.New("runtime-example", zerolog.InfoLevel, os.Stdout)

	m := mempool.NewManager([]mempool.Config{
		{ChunkSize: 64, NumChunks: 16},
		{ChunkSize: 1024, NumChunks: 4},
	})

	ctx := roudi.NewDaemonContext(log, func(err error) {
		log.Fatal(err, "runtime-example exiting on fatal contract violation")
		os.Exit(1)
	})
	pm := roudi.NewPortManager(ctx)

	service := capro.ServiceDescription{Service: "example", Instance: "counter", Event: "tick"}

	pub := pm.CreatePublisher(service, m, m, port.PublisherOptions{
		HistoryCapacity:              4,
		MaxSubscribers:               4,
		MaxChunksAllocatedInParallel: 4,
	})
	sub := pm.CreateSubscriber(service, m, port.SubscriberOptions{
		Mode:            port.SingleProducer,
		QueueCapacity:   8,
		QueueFullPolicy: popo.QueueFullPolicyDiscardOldestData,
		HistoryRequest:  2,
		MaxChunksHeld:   8,
	})

	pub.Offer()
	sub.Subscribe()

	// A handful of dispatch passes is enough for the SUB/ACK handshake to
	// complete (it settles within one pass once both ports are registered;
	// looping a few times keeps the example robust to reordering).
	for range 4 {
		pm.RunOnce()
	}
	if sub.GetSubscriptionState() != port.Subscribed {
		fmt.Fprintln(os.Stderr, "subscriber failed to bind to publisher")
		os.Exit(1)
	}

	for i := uint64(0); i < 5; i++ {
		h, err := pub.TryAllocateChunk(8, 8)
		if err != nil {
			log.Error(err, "allocate failed")
			os.Exit(1)
		}
		binary.LittleEndian.PutUint64(h.UserPayload(), i)
		pub.SendChunk(h)
	}

	for sub.HasNewChunks() {
		h, err := sub.TryGetChunk()
		if err != nil {
			break
		}
		v := binary.LittleEndian.Uint64(h.UserPayload())
		fmt.Printf("received tick %d\n", v)
		sub.ReleaseChunk(h)
	}

	pub.Destroy()
	sub.ReleaseQueuedChunks()
}
