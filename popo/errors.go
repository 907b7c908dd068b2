// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package popo ("port pieces") provides the building blocks every port type
// composes: UsedChunkList, ChunkDistributor, ChunkSender, ChunkReceiver, and
// the queue-flavor-agnostic pusher/popper facades that sit between a
// distributor and the lfqueue ring a subscriber owns.
package popo

import "errors"

// AllocationError values. ChunkSender.TryAllocate returns
// ErrTooManyChunksAllocatedInParallel itself; any allocator failure is
// returned as the Allocator's own error (mempool.Manager's sentinels), so
// popo's ErrNoMempoolsAvailable and ErrRunningOutOfChunks are not returned
// by anything in this package.
var (
	ErrNoMempoolsAvailable              = errors.New("popo: no mempools available for requested size")
	ErrRunningOutOfChunks               = errors.New("popo: running out of chunks")
	ErrTooManyChunksAllocatedInParallel = errors.New("popo: too many chunks allocated in parallel")
)

// ChunkReceiveResult values, returned by ChunkReceiver.TryGet.
var (
	ErrNoChunkAvailable            = errors.New("popo: no chunk available")
	ErrTooManyChunksHeldInParallel = errors.New("popo: too many chunks held in parallel")
)

// ErrQueueSetFull is returned by ChunkDistributor.AddQueue when the
// distributor already holds its configured maximum number of consumer
// queues.
var ErrQueueSetFull = errors.New("popo: distributor queue set is full")

// ErrUnknownQueue names the case of a queue id the distributor does not
// currently hold. ChunkDistributor.RemoveQueue and ChunkSender.SendToQueue
// report that case with a false result instead of returning this error.
var ErrUnknownQueue = errors.New("popo: unknown queue id")
