// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package capro defines the discovery message protocol exchanged between a
// port and the router's PortManager: OFFER/STOP_OFFER to announce and
// retract a publisher or server, SUB/UNSUB and CONNECT/DISCONNECT to
// request and tear down a connection, and ACK/NACK as the router's reply.
package capro

import "fmt"

// MessageType enumerates the discovery protocol's message kinds.
type MessageType uint8

const (
	Offer MessageType = iota
	StopOffer
	Sub
	Unsub
	Connect
	Disconnect
	Ack
	Nack
)

func (t MessageType) String() string {
	switch t {
	case Offer:
		return "OFFER"
	case StopOffer:
		return "STOP_OFFER"
	case Sub:
		return "SUB"
	case Unsub:
		return "UNSUB"
	case Connect:
		return "CONNECT"
	case Disconnect:
		return "DISCONNECT"
	case Ack:
		return "ACK"
	case Nack:
		return "NACK"
	default:
		return fmt.Sprintf("MessageType(%d)", uint8(t))
	}
}

// ServiceDescription is the 3-tuple identifying a publisher/subscriber or
// server/client pairing. Each field is capped the way the original
// protocol caps them, to bound the size of a discovery message.
const maxIdentifierLength = 100

type ServiceDescription struct {
	Service  string
	Instance string
	Event    string
}

// Valid reports whether every field is non-empty and within the length cap.
func (d ServiceDescription) Valid() bool {
	return len(d.Service) > 0 && len(d.Service) <= maxIdentifierLength &&
		len(d.Instance) > 0 && len(d.Instance) <= maxIdentifierLength &&
		len(d.Event) > 0 && len(d.Event) <= maxIdentifierLength
}

func (d ServiceDescription) String() string {
	return fmt.Sprintf("%s/%s/%s", d.Service, d.Instance, d.Event)
}

// Message is one discovery-protocol exchange. The optional fields
// (QueueHandle/HistoryRequest) are carried directly on the message struct, not
// computed out-of-band from its type, mirroring the original protocol's
// capro_message shape.
type Message struct {
	Type    MessageType
	Service ServiceDescription

	// QueueHandle is set on SUB and UNSUB (the subscriber's consumer queue
	// id), on CONNECT (the client's response-queue id), and on the ACK
	// replying to CONNECT (the server's request-queue id).
	QueueHandle    uint64
	HasQueue       bool
	HistoryRequest int

	// SourcePortID identifies the port that sent this message, so the
	// receiving side's dispatch can attribute protocol violations.
	SourcePortID uint64
}

// NewOffer builds an OFFER message for the given service and port id.
func NewOffer(service ServiceDescription, portID uint64) Message {
	return Message{Type: Offer, Service: service, SourcePortID: portID}
}

// NewStopOffer builds a STOP_OFFER message.
func NewStopOffer(service ServiceDescription, portID uint64) Message {
	return Message{Type: StopOffer, Service: service, SourcePortID: portID}
}

// NewSub builds a SUB message carrying the subscriber's queue handle and
// requested history depth.
func NewSub(service ServiceDescription, portID uint64, queueHandle uint64, historyRequest int) Message {
	return Message{
		Type: Sub, Service: service, SourcePortID: portID,
		QueueHandle: queueHandle, HasQueue: true, HistoryRequest: historyRequest,
	}
}

// NewUnsub builds an UNSUB message.
func NewUnsub(service ServiceDescription, portID uint64, queueHandle uint64) Message {
	return Message{Type: Unsub, Service: service, SourcePortID: portID, QueueHandle: queueHandle, HasQueue: true}
}

// NewConnect builds a CONNECT message carrying the client's response-queue
// handle.
func NewConnect(service ServiceDescription, portID uint64, responseQueueHandle uint64) Message {
	return Message{
		Type: Connect, Service: service, SourcePortID: portID,
		QueueHandle: responseQueueHandle, HasQueue: true,
	}
}

// NewDisconnect builds a DISCONNECT message.
func NewDisconnect(service ServiceDescription, portID uint64) Message {
	return Message{Type: Disconnect, Service: service, SourcePortID: portID}
}

// NewAck builds an ACK reply, optionally carrying a queue handle (used by
// the server's CONNECT reply to hand back its request-queue id).
func NewAck(portID uint64, queueHandle uint64, hasQueue bool) Message {
	return Message{Type: Ack, SourcePortID: portID, QueueHandle: queueHandle, HasQueue: hasQueue}
}

// NewNack builds a NACK reply.
func NewNack(portID uint64) Message {
	return Message{Type: Nack, SourcePortID: portID}
}
