// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package port implements the four port state machines — Publisher,
// Subscriber, Client, Server — that compose the popo building blocks with
// the capro discovery protocol. Each port exposes a "user" half (the API
// application code calls) and a "router" half (tryGetCaProMessage /
// dispatchCaProMessage, called only by roudi's PortManager).
package port

import "errors"

// ServerRequestResult / ServerSendError values (spec.md §7), beyond the
// AllocationError/ChunkReceiveResult values already defined in popo.
var (
	ErrNoPendingRequestsAndServerDoesNotOffer = errors.New("port: no pending requests and server does not offer")
	ErrClientNotAvailable                     = errors.New("port: client not available")
	ErrNotOffered                             = errors.New("port: not offered")
	ErrNotConnected                           = errors.New("port: not connected")
)
