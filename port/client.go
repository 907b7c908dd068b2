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

// ClientOptions configures a Client's response queue and request sender.
type ClientOptions struct {
	ResponseQueueCapacity        int
	ResponseQueueFullPolicy      popo.QueueFullPolicy
	MaxChunksHeld                int
	MaxChunksAllocatedInParallel int
	// Logger receives this client's ConnectionState transitions, bound to
	// its port id and service via shmlog.Logger.WithPort. May be nil.
	Logger *shmlog.Logger
}

// Client is the request-issuing, response-receiving side of a client/
// server pair. Its request path is a ChunkSender whose distributor holds
// exactly one queue once connected: the server's shared request queue.
type Client struct {
	id      uint64
	service capro.ServiceDescription

	responseQueue    *popo.Queue
	responseReceiver *popo.ChunkReceiver

	requestDistributor *popo.ChunkDistributor
	requestSender      *popo.ChunkSender

	sequence uint64
	state    atomic.Uint32

	log *shmlog.Logger
}

// NewClient creates a Client for the given service.
func NewClient(id uint64, service capro.ServiceDescription, allocator popo.Allocator, resolver popo.Resolver, opts ClientOptions) *Client {
	responseQueue := popo.NewQueue(id, opts.ResponseQueueCapacity, opts.ResponseQueueFullPolicy)
	requestDistributor := popo.NewChunkDistributor(resolver, 1, 0)
	c := &Client{
		id:                 id,
		service:            service,
		responseQueue:      responseQueue,
		responseReceiver:   popo.NewChunkReceiver(responseQueue, resolver, opts.MaxChunksHeld),
		requestDistributor: requestDistributor,
		requestSender:      popo.NewChunkSender(allocator, resolver, opts.MaxChunksAllocatedInParallel, requestDistributor, id),
		log:                opts.Logger,
	}
	c.state.Store(uint32(NotConnected))
	return c
}

// SetLogger attaches or replaces the logger this client reports its
// ConnectionState transitions to. May be called with nil to silence it.
func (c *Client) SetLogger(log *shmlog.Logger) { c.log = log }

func (c *Client) logTransition(from, to ConnectionState) {
	if c.log == nil {
		return
	}
	c.log.WithPort(c.id, c.service.Service, c.service.Instance, c.service.Event).PortTransition(from.String(), to.String())
}

// setState stores newState and logs the transition if it actually changed
// the state.
func (c *Client) setState(newState ConnectionState) {
	old := ConnectionState(c.state.Swap(uint32(newState)))
	if old != newState {
		c.logTransition(old, newState)
	}
}

// casState CompareAndSwaps from oldState to newState and logs the
// transition on success.
func (c *Client) casState(oldState, newState ConnectionState) bool {
	if c.state.CompareAndSwap(uint32(oldState), uint32(newState)) {
		c.logTransition(oldState, newState)
		return true
	}
	return false
}

// ID returns the client's unique port id.
func (c *Client) ID() uint64 { return c.id }

// Service returns the service description this client wants.
func (c *Client) Service() capro.ServiceDescription { return c.service }

// ResponseQueue returns the client's response queue, for roudi's
// PortManager to hand to the matched server's DispatchCaProMessage.
func (c *Client) ResponseQueue() *popo.Queue { return c.responseQueue }

// --- user operations ---

// Connect requests a connection to a matching server.
func (c *Client) Connect() {
	c.casState(NotConnected, ConnectRequested)
}

// Disconnect requests teardown of an established (or pending) connection.
func (c *Client) Disconnect() {
	switch ConnectionState(c.state.Load()) {
	case Connected:
		c.setState(DisconnectRequested)
	case ConnectRequested, ConnectionWaitForOffer:
		c.setState(NotConnected)
	}
}

// ConnectionState returns the client's current connection state.
func (c *Client) ConnectionState() ConnectionState { return ConnectionState(c.state.Load()) }

// TryAllocateRequest allocates a chunk sized for payloadSize and stamps
// its RequestHeader (client queue id, sequence number; LastKnownClientQueueIndex
// is always -1 here, since Server.SendResponse takes its queue-index hint
// as an argument and does not read this field).
func (c *Client) TryAllocateRequest(payloadSize, payloadAlign uint32) (*chunk.Header, error) {
	h, err := c.requestSender.TryAllocate(payloadSize, payloadAlign, requestHeaderSize, requestHeaderAlign)
	if err != nil {
		return nil, err
	}
	c.sequence++
	*requestHeaderPtr(h) = RequestHeader{
		UniqueClientQueueID:       c.responseQueue.ID(),
		LastKnownClientQueueIndex: -1,
		SequenceID:                c.sequence,
	}
	return h, nil
}

// ReleaseRequest returns an allocated-but-unsent request chunk.
func (c *Client) ReleaseRequest(h *chunk.Header) { c.requestSender.Release(h) }

// SendRequest sends h to the connected server. Returns ErrNotConnected if
// no server is currently connected.
func (c *Client) SendRequest(h *chunk.Header) error {
	if ConnectionState(c.state.Load()) != Connected {
		c.requestSender.Release(h)
		return ErrNotConnected
	}
	c.requestSender.Send(h)
	return nil
}

// TryGetResponse pops the next available response.
func (c *Client) TryGetResponse() (*chunk.Header, error) { return c.responseReceiver.TryGet() }

// ReleaseResponse returns a previously gotten response.
func (c *Client) ReleaseResponse(h *chunk.Header) { c.responseReceiver.Release(h) }

// --- router operations ---

// TryGetCaProMessage returns a CONNECT when connection has been
// requested, or a DISCONNECT when disconnection has been requested (which
// also immediately detaches the request queue and completes the
// transition to NOT_CONNECTED, since disconnect needs no acknowledgment).
func (c *Client) TryGetCaProMessage() (capro.Message, bool) {
	switch ConnectionState(c.state.Load()) {
	case ConnectRequested:
		return capro.NewConnect(c.service, c.id, c.responseQueue.ID()), true
	case DisconnectRequested:
		c.requestDistributor.RemoveAllQueues()
		c.setState(NotConnected)
		return capro.NewDisconnect(c.service, c.id), true
	default:
		return capro.Message{}, false
	}
}

// DispatchCaProMessage applies a router-forwarded OFFER, STOP_OFFER, ACK,
// or NACK. serverRequestQueue is the matched server's shared request
// queue, attached to this client's request distributor on ACK.
func (c *Client) DispatchCaProMessage(msg capro.Message, serverRequestQueue *popo.Queue) {
	switch msg.Type {
	case capro.Ack:
		if ConnectionState(c.state.Load()) != ConnectRequested {
			panic("port: client received ACK outside CONNECT_REQUESTED")
		}
		if err := c.requestDistributor.AddQueue(serverRequestQueue, 0); err != nil {
			panic("port: client's single-queue request distributor unexpectedly full")
		}
		c.setState(Connected)
	case capro.Nack:
		if ConnectionState(c.state.Load()) != ConnectRequested {
			panic("port: client received NACK outside CONNECT_REQUESTED")
		}
		c.setState(ConnectionWaitForOffer)
	case capro.StopOffer:
		if ConnectionState(c.state.Load()) == Connected {
			c.requestDistributor.RemoveAllQueues()
			c.setState(ConnectionWaitForOffer)
		}
	case capro.Offer:
		c.casState(ConnectionWaitForOffer, ConnectRequested)
	default:
		panic("port: client received unexpected message " + msg.Type.String())
	}
}
