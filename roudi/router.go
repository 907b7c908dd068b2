// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package roudi

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// RouterOptions configures Router.Run's two background loops.
type RouterOptions struct {
	// DispatchInterval paces PortManager.RunOnce. Defaults to 1ms.
	DispatchInterval time.Duration
	// KeepaliveInterval paces the keepalive sweep. Defaults to 1s.
	KeepaliveInterval time.Duration
	// Keepalive is called on every KeepaliveInterval tick, in its own
	// goroutine. Typically used to prune ports whose owning process has
	// died without a clean Destroy. May be nil.
	Keepalive func()
}

func (o RouterOptions) withDefaults() RouterOptions {
	if o.DispatchInterval <= 0 {
		o.DispatchInterval = time.Millisecond
	}
	if o.KeepaliveInterval <= 0 {
		o.KeepaliveInterval = time.Second
	}
	return o
}

// Router owns a PortManager and runs its dispatch loop alongside a
// keepalive loop, both under one errgroup so that the caller's context
// cancellation stops both. Neither loop returns an error of its own.
type Router struct {
	pm   *PortManager
	opts RouterOptions
}

// NewRouter creates a Router driving pm according to opts.
func NewRouter(pm *PortManager, opts RouterOptions) *Router {
	return &Router{pm: pm, opts: opts.withDefaults()}
}

// Run fans the discovery-dispatch loop and the keepalive loop out under one
// errgroup.Group with shared cancellation: ctx.Done(), either loop
// returning, or the group's Wait completing stops both. Run blocks until
// ctx is cancelled, then returns ctx.Err().
func (r *Router) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		ticker := time.NewTicker(r.opts.DispatchInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				r.pm.RunOnce()
			}
		}
	})

	if r.opts.Keepalive != nil {
		g.Go(func() error {
			ticker := time.NewTicker(r.opts.KeepaliveInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-ticker.C:
					r.opts.Keepalive()
				}
			}
		})
	}

	return g.Wait()
}
