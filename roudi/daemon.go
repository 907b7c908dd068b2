// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package roudi implements the router daemon: PortManager dispatches the
// capro discovery protocol between registered ports, DaemonContext
// allocates process-wide unique port ids and funnels fatal contract
// violations through a single callback, and CompatibilityLevel implements
// the runtime version handshake.
package roudi

import (
	"sync/atomic"

	"github.com/google/uuid"

	"code.hybscloud.com/shmipc/shmlog"
)

// FatalHandler is called once per fatal contract violation (a port
// receiving a CaPro message its state machine does not expect, a
// distributor's queue set overflowing its configured capacity, and similar
// "this should never happen" conditions). Set once at daemon startup; the
// spec leaves what it does (log and exit, restart the runtime, ...) to the
// embedding application.
type FatalHandler func(err error)

// DaemonContext holds the process-wide state every port and the
// PortManager need: the monotonic port-id allocator (spec.md §9), a
// globally unique instance id for log correlation across daemon restarts,
// and the fatal-error callback.
type DaemonContext struct {
	nextPortID atomic.Uint64
	instanceID string
	fatal      FatalHandler
	log        *shmlog.Logger
}

// NewDaemonContext creates a DaemonContext. fatal may be nil, in which case
// fatal conditions are logged but otherwise ignored.
func NewDaemonContext(log *shmlog.Logger, fatal FatalHandler) *DaemonContext {
	return &DaemonContext{
		instanceID: uuid.NewString(),
		fatal:      fatal,
		log:        log,
	}
}

// NextPortID allocates the next process-wide unique port id. Ids start at 1;
// 0 is reserved by chunk.InvalidPortID.
func (d *DaemonContext) NextPortID() uint64 { return d.nextPortID.Add(1) }

// InstanceID returns this daemon run's unique correlation id.
func (d *DaemonContext) InstanceID() string { return d.instanceID }

// Fatal logs err as a fatal contract violation and invokes the configured
// FatalHandler, if any. Called by PortManager when a port's dispatch panics.
func (d *DaemonContext) Fatal(err error) {
	if d.log != nil {
		d.log.Fatal(err, "fatal contract violation")
	}
	if d.fatal != nil {
		d.fatal(err)
	}
}
