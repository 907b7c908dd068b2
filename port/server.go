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

// ServerOptions configures a Server's request queue and response sender.
// DefaultServerOptions sets OfferOnCreate to true; a zero ServerOptions
// leaves it false (server_port_roudi.cpp's default in the
// original: a server is discoverable the moment it is created, unlike a
// publisher which starts un-offered).
type ServerOptions struct {
	OfferOnCreate                bool
	RequestQueueCapacity         int
	RequestQueueFullPolicy       popo.QueueFullPolicy
	MaxClients                   int
	MaxChunksHeld                int
	MaxChunksAllocatedInParallel int
	// Logger receives this server's OFFER/STOP_OFFER transitions, bound to
	// its port id and service via shmlog.Logger.WithPort. May be nil.
	Logger *shmlog.Logger
}

// DefaultServerOptions returns ServerOptions with OfferOnCreate set, per
// the original's offer-on-create default.
func DefaultServerOptions() ServerOptions {
	return ServerOptions{OfferOnCreate: true}
}

// Server is the request-receiving, response-issuing side of a client/
// server pair. Its request queue is shared: every connected client's
// request distributor holds a reference to the same *popo.Queue, so
// multiple clients push requests the server pops from a single queue.
type Server struct {
	id      uint64
	service capro.ServiceDescription

	requestQueue    *popo.Queue
	requestReceiver *popo.ChunkReceiver

	responseDistributor *popo.ChunkDistributor
	responseSender      *popo.ChunkSender

	offeringRequested atomic.Bool
	offered           atomic.Bool
	clientCount       atomic.Int64

	log *shmlog.Logger
}

// NewServer creates a Server for the given service.
func NewServer(id uint64, service capro.ServiceDescription, allocator popo.Allocator, resolver popo.Resolver, opts ServerOptions) *Server {
	requestQueue := popo.NewQueue(id, opts.RequestQueueCapacity, opts.RequestQueueFullPolicy)
	responseDistributor := popo.NewChunkDistributor(resolver, opts.MaxClients, 0)
	s := &Server{
		id:                  id,
		service:             service,
		requestQueue:        requestQueue,
		requestReceiver:     popo.NewChunkReceiver(requestQueue, resolver, opts.MaxChunksHeld),
		responseDistributor: responseDistributor,
		responseSender:      popo.NewChunkSender(allocator, resolver, opts.MaxChunksAllocatedInParallel, responseDistributor, id),
		log:                 opts.Logger,
	}
	s.offeringRequested.Store(opts.OfferOnCreate)
	return s
}

// SetLogger attaches or replaces the logger this server reports its
// OFFER/STOP_OFFER transitions to. May be called with nil to silence it.
func (s *Server) SetLogger(log *shmlog.Logger) { s.log = log }

func (s *Server) logTransition(from, to string) {
	if s.log == nil {
		return
	}
	s.log.WithPort(s.id, s.service.Service, s.service.Instance, s.service.Event).PortTransition(from, to)
}

// ID returns the server's unique port id.
func (s *Server) ID() uint64 { return s.id }

// Service returns the service description this server offers.
func (s *Server) Service() capro.ServiceDescription { return s.service }

// RequestQueue returns the server's shared request queue, for roudi's
// PortManager to hand to a connecting client's DispatchCaProMessage.
func (s *Server) RequestQueue() *popo.Queue { return s.requestQueue }

// --- user operations ---

// Offer requests discoverability.
func (s *Server) Offer() { s.offeringRequested.Store(true) }

// StopOffer requests withdrawal from discovery.
func (s *Server) StopOffer() { s.offeringRequested.Store(false) }

// IsOffered reports the router-confirmed offered state.
func (s *Server) IsOffered() bool { return s.offered.Load() }

// HasClients reports whether at least one client is currently connected.
func (s *Server) HasClients() bool { return s.clientCount.Load() > 0 }

// TryGetRequest pops the next pending request. Returns
// ErrNoPendingRequestsAndServerDoesNotOffer if the queue is empty and the
// server is not currently offered (distinguishing "idle" from "nothing
// new since you last checked").
func (s *Server) TryGetRequest() (*chunk.Header, error) {
	h, err := s.requestReceiver.TryGet()
	if err != nil {
		if err == popo.ErrNoChunkAvailable && !s.offered.Load() {
			return nil, ErrNoPendingRequestsAndServerDoesNotOffer
		}
		return nil, err
	}
	return h, nil
}

// ReleaseRequest returns a previously gotten request chunk.
func (s *Server) ReleaseRequest(h *chunk.Header) { s.requestReceiver.Release(h) }

// TryAllocateResponse allocates a chunk sized for payloadSize and stamps
// its ResponseHeader from the request it answers, so SendResponse can
// route it back to the originating client.
func (s *Server) TryAllocateResponse(payloadSize, payloadAlign uint32, request *chunk.Header) (*chunk.Header, error) {
	h, err := s.responseSender.TryAllocate(payloadSize, payloadAlign, responseHeaderSize, responseHeaderAlign)
	if err != nil {
		return nil, err
	}
	req := requestHeaderPtr(request)
	*responseHeaderPtr(h) = ResponseHeader{UniqueClientQueueID: req.UniqueClientQueueID, SequenceID: req.SequenceID}
	return h, nil
}

// ReleaseResponse returns an allocated-but-unsent response chunk.
func (s *Server) ReleaseResponse(h *chunk.Header) { s.responseSender.Release(h) }

// SendResponse routes h to the client named in its ResponseHeader, using
// lastKnownClientQueueIndex as an O(1) lookup hint and returning an
// updated hint for the caller's next call. If that client is no longer
// connected, the response chunk is released and ErrClientNotAvailable is
// returned — mempool bookkeeping is left exactly as it was before this
// response was allocated.
func (s *Server) SendResponse(h *chunk.Header, lastKnownClientQueueIndex int) (newIndex int, err error) {
	resp := responseHeaderPtr(h)
	delivered, idx := s.responseSender.SendToQueue(h, resp.UniqueClientQueueID, lastKnownClientQueueIndex)
	if !delivered {
		return -1, ErrClientNotAvailable
	}
	return idx, nil
}

// --- router operations ---

// TryGetCaProMessage mirrors Publisher.TryGetCaProMessage: OFFER/STOP_OFFER
// driven by the offeringRequested/offered pair, detaching every connected
// client's response queue on stopOffer.
func (s *Server) TryGetCaProMessage() (capro.Message, bool) {
	requested := s.offeringRequested.Load()
	offered := s.offered.Load()
	switch {
	case requested && !offered:
		s.offered.Store(true)
		s.logTransition("NOT_OFFERED", "OFFERED")
		return capro.NewOffer(s.service, s.id), true
	case !requested && offered:
		s.responseDistributor.RemoveAllQueues()
		s.clientCount.Store(0)
		s.offered.Store(false)
		s.logTransition("OFFERED", "NOT_OFFERED")
		return capro.NewStopOffer(s.service, s.id), true
	default:
		return capro.Message{}, false
	}
}

// DispatchCaProMessage handles a CONNECT or DISCONNECT addressed to this
// server. clientResponseQueue is the connecting client's response queue,
// resolved by roudi's PortManager from msg.SourcePortID. On CONNECT, the
// client's queue is attached to the response distributor and the reply
// carries this server's own request-queue handle (per the original's
// client_port_roudi.cpp / server_port_user.cpp exchange).
func (s *Server) DispatchCaProMessage(msg capro.Message, clientResponseQueue *popo.Queue) capro.Message {
	switch msg.Type {
	case capro.Connect:
		if err := s.responseDistributor.AddQueue(clientResponseQueue, 0); err != nil {
			return capro.NewNack(s.id)
		}
		s.clientCount.Add(1)
		return capro.NewAck(s.id, s.requestQueue.ID(), true)
	case capro.Disconnect:
		if s.responseDistributor.RemoveQueue(msg.SourcePortID) {
			s.clientCount.Add(-1)
		}
		return capro.NewAck(s.id, 0, false)
	default:
		panic("port: server received unexpected message " + msg.Type.String())
	}
}
