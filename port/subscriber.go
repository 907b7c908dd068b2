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

// SubscriberOptions configures a Subscriber's queue and UsedChunkList.
type SubscriberOptions struct {
	Mode            SubscriberMode
	QueueCapacity   int
	QueueFullPolicy popo.QueueFullPolicy
	HistoryRequest  int
	MaxChunksHeld   int
	// Logger receives this subscriber's SubscriptionState transitions,
	// bound to its port id and service via shmlog.Logger.WithPort. May be
	// nil.
	Logger *shmlog.Logger
}

// Subscriber is the consumer-side port for the publish/subscribe data
// path, in either of the two flavors named in spec.md §4.8.
type Subscriber struct {
	id      uint64
	service capro.ServiceDescription
	mode    SubscriberMode

	queue    *popo.Queue
	receiver *popo.ChunkReceiver

	historyRequest int
	state          atomic.Uint32

	log *shmlog.Logger
}

// NewSubscriber creates a Subscriber for the given service.
func NewSubscriber(id uint64, service capro.ServiceDescription, resolver popo.Resolver, opts SubscriberOptions) *Subscriber {
	q := popo.NewQueue(id, opts.QueueCapacity, opts.QueueFullPolicy)
	s := &Subscriber{
		id:             id,
		service:        service,
		mode:           opts.Mode,
		queue:          q,
		receiver:       popo.NewChunkReceiver(q, resolver, opts.MaxChunksHeld),
		historyRequest: opts.HistoryRequest,
		log:            opts.Logger,
	}
	s.state.Store(uint32(NotSubscribed))
	return s
}

// SetLogger attaches or replaces the logger this subscriber reports its
// SubscriptionState transitions to. May be called with nil to silence it.
func (s *Subscriber) SetLogger(log *shmlog.Logger) { s.log = log }

func (s *Subscriber) logTransition(from, to SubscriptionState) {
	if s.log == nil {
		return
	}
	s.log.WithPort(s.id, s.service.Service, s.service.Instance, s.service.Event).PortTransition(from.String(), to.String())
}

// setState stores newState and logs the transition if it actually changed
// the state.
func (s *Subscriber) setState(newState SubscriptionState) {
	old := SubscriptionState(s.state.Swap(uint32(newState)))
	if old != newState {
		s.logTransition(old, newState)
	}
}

// casState CompareAndSwaps from oldState to newState and logs the
// transition on success.
func (s *Subscriber) casState(oldState, newState SubscriptionState) bool {
	if s.state.CompareAndSwap(uint32(oldState), uint32(newState)) {
		s.logTransition(oldState, newState)
		return true
	}
	return false
}

// ID returns the subscriber's unique port id.
func (s *Subscriber) ID() uint64 { return s.id }

// Service returns the service description this subscriber wants.
func (s *Subscriber) Service() capro.ServiceDescription { return s.service }

// Mode returns whether this is a single- or multi-producer subscriber.
func (s *Subscriber) Mode() SubscriberMode { return s.mode }

// Queue returns the subscriber's consumer queue, for roudi's PortManager
// to hand to a matching publisher's DispatchCaProMessage.
func (s *Subscriber) Queue() *popo.Queue { return s.queue }

// HistoryRequest returns the history depth this subscriber asks a newly
// matched publisher to replay.
func (s *Subscriber) HistoryRequest() int { return s.historyRequest }

// --- user operations ---

// Subscribe requests subscription. A multi-producer subscriber transitions
// to Subscribed immediately; a single-producer subscriber moves to
// SubscribeRequested and waits for the router to locate a match.
func (s *Subscriber) Subscribe() {
	if s.mode == MultiProducer {
		s.setState(Subscribed)
		return
	}
	s.casState(NotSubscribed, SubscribeRequested)
}

// Unsubscribe requests withdrawal.
func (s *Subscriber) Unsubscribe() {
	if s.mode == MultiProducer {
		s.setState(NotSubscribed)
		return
	}
	switch SubscriptionState(s.state.Load()) {
	case Subscribed:
		s.setState(UnsubscribeRequested)
	case SubscribeRequested, WaitForOffer:
		s.setState(NotSubscribed)
	}
}

// GetSubscriptionState returns the current subscription state.
func (s *Subscriber) GetSubscriptionState() SubscriptionState {
	return SubscriptionState(s.state.Load())
}

// TryGetChunk pops the next available chunk.
func (s *Subscriber) TryGetChunk() (*chunk.Header, error) { return s.receiver.TryGet() }

// ReleaseChunk returns a previously gotten chunk.
func (s *Subscriber) ReleaseChunk(h *chunk.Header) { s.receiver.Release(h) }

// ReleaseQueuedChunks drops everything held and still queued.
func (s *Subscriber) ReleaseQueuedChunks() { s.receiver.ReleaseAll() }

// HasNewChunks reports whether the queue holds anything not yet gotten.
func (s *Subscriber) HasNewChunks() bool { return s.receiver.HasNewChunks() }

// HasLostChunksSinceLastCall reports and clears the sticky overflow flag.
func (s *Subscriber) HasLostChunksSinceLastCall() bool { return s.receiver.HasLostChunks() }

// SetConditionVariable attaches a notifier the queue signals on push.
func (s *Subscriber) SetConditionVariable(n *popo.ConditionNotifier) { s.queue.SetConditionVariable(n) }

// UnsetConditionVariable detaches any attached notifier.
func (s *Subscriber) UnsetConditionVariable() { s.queue.UnsetConditionVariable() }

// --- router operations (single-producer only; multi-producer subscribers
// are wired directly by roudi's PortManager without a handshake) ---

// TryGetCaProMessage returns a SUB when subscription has been requested,
// or an UNSUB when unsubscription has been requested. No-op for a
// multi-producer subscriber, which never runs this handshake.
func (s *Subscriber) TryGetCaProMessage() (capro.Message, bool) {
	if s.mode == MultiProducer {
		return capro.Message{}, false
	}
	switch SubscriptionState(s.state.Load()) {
	case SubscribeRequested:
		return capro.NewSub(s.service, s.id, s.queue.ID(), s.historyRequest), true
	case UnsubscribeRequested:
		return capro.NewUnsub(s.service, s.id, s.queue.ID()), true
	default:
		return capro.Message{}, false
	}
}

// DispatchCaProMessage applies a router-forwarded OFFER, STOP_OFFER, ACK,
// or NACK to a single-producer subscriber's state machine. Any other
// message is a protocol violation.
func (s *Subscriber) DispatchCaProMessage(msg capro.Message) {
	if s.mode == MultiProducer {
		return
	}
	switch msg.Type {
	case capro.Offer:
		s.casState(WaitForOffer, SubscribeRequested)
	case capro.StopOffer:
		if SubscriptionState(s.state.Load()) == Subscribed {
			s.setState(WaitForOffer)
		}
	case capro.Ack:
		switch SubscriptionState(s.state.Load()) {
		case SubscribeRequested:
			s.setState(Subscribed)
		case UnsubscribeRequested:
			s.setState(NotSubscribed)
		default:
			panic("port: subscriber received ACK in state " + SubscriptionState(s.state.Load()).String())
		}
	case capro.Nack:
		switch SubscriptionState(s.state.Load()) {
		case SubscribeRequested:
			s.setState(WaitForOffer)
		case UnsubscribeRequested:
			s.setState(NotSubscribed)
		default:
			panic("port: subscriber received NACK in state " + SubscriptionState(s.state.Load()).String())
		}
	default:
		panic("port: subscriber received unexpected message " + msg.Type.String())
	}
}
