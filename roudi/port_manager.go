// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package roudi

import (
	"fmt"
	"sync"

	"code.hybscloud.com/shmipc/capro"
	"code.hybscloud.com/shmipc/popo"
	"code.hybscloud.com/shmipc/port"
)

// PortManager is the discovery dispatcher: it owns every registered port
// and, on each RunOnce pass, drains each port's router half
// (TryGetCaProMessage) and routes the resulting message to the matching
// peer's DispatchCaProMessage, exactly as RouDi's PortManager does in the
// original. It never touches a port's user half.
type PortManager struct {
	ctx *DaemonContext

	mu          sync.Mutex
	publishers  []*port.Publisher
	subscribers []*port.Subscriber
	servers     []*port.Server
	clients     []*port.Client
}

// NewPortManager creates a PortManager allocating port ids through ctx.
func NewPortManager(ctx *DaemonContext) *PortManager {
	return &PortManager{ctx: ctx}
}

// CreatePublisher allocates a port id and registers a new Publisher. A nil
// opts.Logger is replaced by the daemon's own logger, so every port's
// OFFER/STOP_OFFER transitions are logged ambiently; there is no way to
// create a silent port through PortManager while the daemon has a logger.
func (pm *PortManager) CreatePublisher(service capro.ServiceDescription, allocator popo.Allocator, resolver popo.Resolver, opts port.PublisherOptions) *port.Publisher {
	if opts.Logger == nil {
		opts.Logger = pm.ctx.log
	}
	p := port.NewPublisher(pm.ctx.NextPortID(), service, allocator, resolver, opts)
	pm.mu.Lock()
	pm.publishers = append(pm.publishers, p)
	pm.mu.Unlock()
	return p
}

// CreateSubscriber allocates a port id and registers a new Subscriber,
// defaulting opts.Logger to the daemon's own logger as CreatePublisher
// does.
func (pm *PortManager) CreateSubscriber(service capro.ServiceDescription, resolver popo.Resolver, opts port.SubscriberOptions) *port.Subscriber {
	if opts.Logger == nil {
		opts.Logger = pm.ctx.log
	}
	s := port.NewSubscriber(pm.ctx.NextPortID(), service, resolver, opts)
	pm.mu.Lock()
	pm.subscribers = append(pm.subscribers, s)
	pm.mu.Unlock()
	return s
}

// CreateServer allocates a port id and registers a new Server, defaulting
// opts.Logger to the daemon's own logger as CreatePublisher does.
func (pm *PortManager) CreateServer(service capro.ServiceDescription, allocator popo.Allocator, resolver popo.Resolver, opts port.ServerOptions) *port.Server {
	if opts.Logger == nil {
		opts.Logger = pm.ctx.log
	}
	s := port.NewServer(pm.ctx.NextPortID(), service, allocator, resolver, opts)
	pm.mu.Lock()
	pm.servers = append(pm.servers, s)
	pm.mu.Unlock()
	return s
}

// CreateClient allocates a port id and registers a new Client, defaulting
// opts.Logger to the daemon's own logger as CreatePublisher does.
func (pm *PortManager) CreateClient(service capro.ServiceDescription, allocator popo.Allocator, resolver popo.Resolver, opts port.ClientOptions) *port.Client {
	if opts.Logger == nil {
		opts.Logger = pm.ctx.log
	}
	c := port.NewClient(pm.ctx.NextPortID(), service, allocator, resolver, opts)
	pm.mu.Lock()
	pm.clients = append(pm.clients, c)
	pm.mu.Unlock()
	return c
}

// RunOnce drains every registered port's router half exactly once and
// dispatches the resulting discovery messages to matching peers. The
// caller (cmd/router's daemon loop) calls this repeatedly, typically from
// a ticker.
func (pm *PortManager) RunOnce() {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	for _, p := range pm.publishers {
		if msg, ok := pm.safeTryGet("publisher", p.TryGetCaProMessage); ok {
			pm.logDispatch(msg.Type.String())
			for _, s := range pm.subscribers {
				if s.Mode() == port.SingleProducer && s.Service() == msg.Service {
					pm.safeDispatchSubscriber(s, msg)
				}
			}
		}
	}
	for _, s := range pm.servers {
		if msg, ok := pm.safeTryGet("server", s.TryGetCaProMessage); ok {
			pm.logDispatch(msg.Type.String())
			for _, c := range pm.clients {
				if c.Service() == msg.Service {
					pm.safeDispatchClient(c, msg, nil)
				}
			}
		}
	}

	for _, s := range pm.subscribers {
		if s.Mode() == port.MultiProducer {
			continue
		}
		msg, ok := pm.safeTryGet("subscriber", s.TryGetCaProMessage)
		if !ok {
			continue
		}
		switch msg.Type {
		case capro.Sub:
			pub := pm.findPublisher(msg.Service)
			if pub == nil {
				continue
			}
			reply := pm.safeDispatchPublisher(pub, msg, s.Queue())
			pm.safeDispatchSubscriber(s, reply)
		case capro.Unsub:
			pub := pm.findPublisher(msg.Service)
			if pub == nil {
				continue
			}
			reply := pm.safeDispatchPublisher(pub, msg, nil)
			pm.safeDispatchSubscriber(s, reply)
		}
	}

	for _, s := range pm.subscribers {
		if s.Mode() != port.MultiProducer {
			continue
		}
		for _, pub := range pm.publishers {
			if pub.Service() != s.Service() || !pub.IsOffered() || pub.HasSubscriber(s.ID()) {
				continue
			}
			msg := capro.NewSub(s.Service(), s.ID(), s.Queue().ID(), s.HistoryRequest())
			pm.safeDispatchPublisher(pub, msg, s.Queue())
		}
	}

	for _, c := range pm.clients {
		msg, ok := pm.safeTryGet("client", c.TryGetCaProMessage)
		if !ok {
			continue
		}
		switch msg.Type {
		case capro.Connect:
			srv := pm.findServer(msg.Service)
			if srv == nil {
				continue
			}
			reply := pm.safeDispatchServer(srv, msg, c.ResponseQueue())
			pm.safeDispatchClient(c, reply, srv.RequestQueue())
		case capro.Disconnect:
			srv := pm.findServer(msg.Service)
			if srv == nil {
				continue
			}
			pm.safeDispatchServer(srv, msg, nil)
		}
	}
}

func (pm *PortManager) logDispatch(messageType string) {
	if pm.ctx.log != nil {
		pm.ctx.log.Dispatch(messageType, true)
	}
}

func (pm *PortManager) findPublisher(service capro.ServiceDescription) *port.Publisher {
	for _, p := range pm.publishers {
		if p.Service() == service && p.IsOffered() {
			return p
		}
	}
	return nil
}

func (pm *PortManager) findServer(service capro.ServiceDescription) *port.Server {
	for _, s := range pm.servers {
		if s.Service() == service && s.IsOffered() {
			return s
		}
	}
	return nil
}

func (pm *PortManager) safeTryGet(kind string, fn func() (capro.Message, bool)) (msg capro.Message, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			pm.ctx.Fatal(fmt.Errorf("roudi: %s TryGetCaProMessage panicked: %v", kind, r))
			ok = false
		}
	}()
	return fn()
}

func (pm *PortManager) safeDispatchPublisher(p *port.Publisher, msg capro.Message, q *popo.Queue) (reply capro.Message) {
	defer func() {
		if r := recover(); r != nil {
			pm.ctx.Fatal(fmt.Errorf("roudi: publisher DispatchCaProMessage panicked: %v", r))
		}
	}()
	return p.DispatchCaProMessage(msg, q)
}

func (pm *PortManager) safeDispatchSubscriber(s *port.Subscriber, msg capro.Message) {
	defer func() {
		if r := recover(); r != nil {
			pm.ctx.Fatal(fmt.Errorf("roudi: subscriber DispatchCaProMessage panicked: %v", r))
		}
	}()
	s.DispatchCaProMessage(msg)
}

func (pm *PortManager) safeDispatchServer(srv *port.Server, msg capro.Message, q *popo.Queue) (reply capro.Message) {
	defer func() {
		if r := recover(); r != nil {
			pm.ctx.Fatal(fmt.Errorf("roudi: server DispatchCaProMessage panicked: %v", r))
		}
	}()
	return srv.DispatchCaProMessage(msg, q)
}

func (pm *PortManager) safeDispatchClient(c *port.Client, msg capro.Message, q *popo.Queue) {
	defer func() {
		if r := recover(); r != nil {
			pm.ctx.Fatal(fmt.Errorf("roudi: client DispatchCaProMessage panicked: %v", r))
		}
	}()
	c.DispatchCaProMessage(msg, q)
}
