// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package port

import (
	"unsafe"

	"code.hybscloud.com/shmipc/chunk"
)

// SubscriptionState is a subscriber port's current state, as observed by
// the user. Only meaningful for a single-producer subscriber; a
// multi-producer subscriber is either NotSubscribed or Subscribed.
type SubscriptionState uint32

const (
	NotSubscribed SubscriptionState = iota
	SubscribeRequested
	Subscribed
	WaitForOffer
	UnsubscribeRequested
)

func (s SubscriptionState) String() string {
	switch s {
	case NotSubscribed:
		return "NOT_SUBSCRIBED"
	case SubscribeRequested:
		return "SUBSCRIBE_REQUESTED"
	case Subscribed:
		return "SUBSCRIBED"
	case WaitForOffer:
		return "WAIT_FOR_OFFER"
	case UnsubscribeRequested:
		return "UNSUBSCRIBE_REQUESTED"
	default:
		return "UNKNOWN"
	}
}

// SubscriberMode selects between the two subscriber flavors named in
// spec.md §4.8.
type SubscriberMode uint8

const (
	// SingleProducer subscribers run the full request/ack state machine
	// against exactly one matching publisher.
	SingleProducer SubscriberMode = iota
	// MultiProducer subscribers subscribe immediately on request; the
	// router silently attaches their queue to every matching publisher.
	MultiProducer
)

// ConnectionState is a client port's current state.
type ConnectionState uint32

const (
	NotConnected ConnectionState = iota
	ConnectRequested
	Connected
	ConnectionWaitForOffer
	DisconnectRequested
)

func (s ConnectionState) String() string {
	switch s {
	case NotConnected:
		return "NOT_CONNECTED"
	case ConnectRequested:
		return "CONNECT_REQUESTED"
	case Connected:
		return "CONNECTED"
	case ConnectionWaitForOffer:
		return "WAIT_FOR_OFFER"
	case DisconnectRequested:
		return "DISCONNECT_REQUESTED"
	default:
		return "UNKNOWN"
	}
}

// RequestHeader prefixes every request chunk's user-header region. It
// carries enough information for the server to route its response back to
// the originating client without a process-wide lookup.
type RequestHeader struct {
	UniqueClientQueueID       uint64
	LastKnownClientQueueIndex int
	SequenceID                uint64
}

// ResponseHeader prefixes every response chunk's user-header region,
// mirroring the client queue id so the client's response receiver (and any
// future multiplexed client) can tell which request a response answers.
type ResponseHeader struct {
	UniqueClientQueueID uint64
	SequenceID          uint64
}

func requestHeaderPtr(h *chunk.Header) *RequestHeader {
	return (*RequestHeader)(h.UserHeaderPtr())
}

func responseHeaderPtr(h *chunk.Header) *ResponseHeader {
	return (*ResponseHeader)(h.UserHeaderPtr())
}

var (
	requestHeaderSize   = uint32(unsafe.Sizeof(RequestHeader{}))
	requestHeaderAlign  = uint32(unsafe.Alignof(RequestHeader{}))
	responseHeaderSize  = uint32(unsafe.Sizeof(ResponseHeader{}))
	responseHeaderAlign = uint32(unsafe.Alignof(ResponseHeader{}))
)
