// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package popo

import "context"

// ConditionNotifier is the semaphore-like primitive a Queue signals after
// every successful push, and that a blocking receive (or a WaitSet-style
// caller) waits on. It coalesces signals: any number of pushes between two
// waits wake the waiter exactly once.
type ConditionNotifier struct {
	ch chan struct{}
}

// NewConditionNotifier creates a notifier ready to attach to a Queue via
// SetConditionVariable.
func NewConditionNotifier() *ConditionNotifier {
	return &ConditionNotifier{ch: make(chan struct{}, 1)}
}

// Signal wakes a pending Wait, or leaves a pending signal for the next one.
// Never blocks.
func (n *ConditionNotifier) Signal() {
	select {
	case n.ch <- struct{}{}:
	default:
	}
}

// Wait blocks until Signal has been called at least once since the last
// Wait, or ctx is done.
func (n *ConditionNotifier) Wait(ctx context.Context) error {
	select {
	case <-n.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
