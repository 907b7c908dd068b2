// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package port

import (
	"sync/atomic"

	"code.hybscloud.com/shmipc/capro"
	"code.hybscloud.com/shmipc/chunk"
	"code.hybscloud.com/shmipc/popo"
	"code.hybscloud.com/shmipc/shmlog"
)

// PublisherOptions configures a Publisher's underlying ChunkSender and
// ChunkDistributor.
type PublisherOptions struct {
	HistoryCapacity              int
	MaxSubscribers               int
	MaxChunksAllocatedInParallel int
	// Logger receives this publisher's OFFER/STOP_OFFER transitions, bound
	// to its port id and service via shmlog.Logger.WithPort. May be nil.
	Logger *shmlog.Logger
}

// Publisher is the producer-side port for the publish/subscribe data
// path. The user half (Offer, TryAllocateChunk, SendChunk, ...) is called
// from the publishing application; the router half (TryGetCaProMessage,
// DispatchCaProMessage) is called only by roudi's PortManager.
type Publisher struct {
	id      uint64
	service capro.ServiceDescription

	distributor *popo.ChunkDistributor
	sender      *popo.ChunkSender

	offeringRequested atomic.Bool
	offered           atomic.Bool
	subscriberCount   atomic.Int64

	log *shmlog.Logger
}

// NewPublisher creates a Publisher for the given service, backed by
// allocator for chunk allocation and resolver for the Ref<->Header
// bridge popo's building blocks need.
func NewPublisher(id uint64, service capro.ServiceDescription, allocator popo.Allocator, resolver popo.Resolver, opts PublisherOptions) *Publisher {
	dist := popo.NewChunkDistributor(resolver, opts.MaxSubscribers, opts.HistoryCapacity)
	return &Publisher{
		id:          id,
		service:     service,
		distributor: dist,
		sender:      popo.NewChunkSender(allocator, resolver, opts.MaxChunksAllocatedInParallel, dist, id),
		log:         opts.Logger,
	}
}

// SetLogger attaches or replaces the logger this publisher reports its
// OFFER/STOP_OFFER transitions to. May be called with nil to silence it.
func (p *Publisher) SetLogger(log *shmlog.Logger) { p.log = log }

func (p *Publisher) logTransition(from, to string) {
	if p.log == nil {
		return
	}
	p.log.WithPort(p.id, p.service.Service, p.service.Instance, p.service.Event).PortTransition(from, to)
}

// ID returns the publisher's unique port id.
func (p *Publisher) ID() uint64 { return p.id }

// Service returns the service description this publisher offers.
func (p *Publisher) Service() capro.ServiceDescription { return p.service }

// --- user operations ---

// Offer requests that this publisher become discoverable. Takes effect on
// the router's next polling pass.
func (p *Publisher) Offer() { p.offeringRequested.Store(true) }

// StopOffer requests withdrawal from discovery.
func (p *Publisher) StopOffer() { p.offeringRequested.Store(false) }

// IsOffered reports the router-confirmed offered state.
func (p *Publisher) IsOffered() bool { return p.offered.Load() }

// HasSubscribers reports whether at least one subscriber queue is
// currently attached.
func (p *Publisher) HasSubscribers() bool { return p.subscriberCount.Load() > 0 }

// HasSubscriber reports whether the subscriber queue with the given id is
// currently attached. Used by roudi's PortManager to avoid re-attaching a
// multi-producer subscriber's queue on every dispatch pass.
func (p *Publisher) HasSubscriber(id uint64) bool { return p.distributor.HasQueue(id) }

// TryAllocateChunk allocates a chunk sized for the given payload.
func (p *Publisher) TryAllocateChunk(payloadSize, payloadAlign uint32) (*chunk.Header, error) {
	return p.sender.TryAllocate(payloadSize, payloadAlign, 0, 0)
}

// ReleaseChunk returns an allocated-but-unsent chunk.
func (p *Publisher) ReleaseChunk(h *chunk.Header) { p.sender.Release(h) }

// SendChunk publishes h. While not offered, it is pushed to history only
// (so a later Offer can still replay it to new subscribers) and 0 is
// returned; while offered, it fans out to every attached subscriber and
// the return value is the number of subscribers it reached.
func (p *Publisher) SendChunk(h *chunk.Header) int {
	if !p.offered.Load() {
		p.sender.SendUnoffered(h)
		return 0
	}
	return p.sender.Send(h)
}

// TryGetPreviousChunk returns the most recently sent chunk, if any.
func (p *Publisher) TryGetPreviousChunk() (*chunk.Header, bool) { return p.sender.TryGetPreviousChunk() }

// Destroy releases every chunk this publisher holds, including history.
func (p *Publisher) Destroy() { p.sender.ReleaseAll() }

// --- router operations ---

// TryGetCaProMessage returns an OFFER when the user has requested offer
// and the port is not yet marked offered (marking it so), or a STOP_OFFER
// in the inverse case (detaching every subscriber queue first).
func (p *Publisher) TryGetCaProMessage() (capro.Message, bool) {
	requested := p.offeringRequested.Load()
	offered := p.offered.Load()
	switch {
	case requested && !offered:
		p.offered.Store(true)
		p.logTransition("NOT_OFFERED", "OFFERED")
		return capro.NewOffer(p.service, p.id), true
	case !requested && offered:
		p.distributor.RemoveAllQueues()
		p.subscriberCount.Store(0)
		p.offered.Store(false)
		p.logTransition("OFFERED", "NOT_OFFERED")
		return capro.NewStopOffer(p.service, p.id), true
	default:
		return capro.Message{}, false
	}
}

// DispatchCaProMessage handles a SUB or UNSUB addressed to this publisher.
// queue is the subscriber's consumer queue, resolved by roudi's
// PortManager from msg.SourcePortID; any other message type while offered
// is a protocol violation and is fatal.
func (p *Publisher) DispatchCaProMessage(msg capro.Message, queue *popo.Queue) capro.Message {
	switch msg.Type {
	case capro.Sub:
		if err := p.distributor.AddQueue(queue, msg.HistoryRequest); err != nil {
			return capro.NewNack(p.id)
		}
		p.subscriberCount.Add(1)
		return capro.NewAck(p.id, 0, false)
	case capro.Unsub:
		if p.distributor.RemoveQueue(msg.SourcePortID) {
			p.subscriberCount.Add(-1)
		}
		return capro.NewAck(p.id, 0, false)
	default:
		panic("port: publisher received unexpected message " + msg.Type.String())
	}
}
