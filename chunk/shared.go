// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package chunk

// Releaser returns a chunk to its originating MemPool. mempool.Pool
// implements this; chunk does not import mempool to avoid a cycle, so the
// releaser is threaded through at construction time instead.
type Releaser interface {
	Free(h *Header)
}

// SharedChunk is an owning, reference-counted handle to a chunk: the
// shared-memory equivalent of an intrusive smart pointer. Cloning
// increments the header's refcount; dropping (Release) decrements it, and
// frees the chunk to its originating MemPool on the last drop.
//
// Two SharedChunks to the same chunk compare equal once dereferenced to
// their Header pointer; SharedChunk itself is a value type safe to pass by
// value within one process, but must never be copied across a process
// boundary without going through the shared-memory representation (the
// MempoolIndex, not the pointer).
type SharedChunk struct {
	header   *Header
	releaser Releaser
}

// NewSharedChunk wraps h, which must already carry refcount==1 from
// MemPool.Allocate, as an owning handle.
func NewSharedChunk(h *Header, releaser Releaser) SharedChunk {
	return SharedChunk{header: h, releaser: releaser}
}

// Valid reports whether this handle refers to a chunk.
func (c SharedChunk) Valid() bool { return c.header != nil }

// Header returns the underlying chunk header. The returned pointer is only
// valid for as long as the SharedChunk (or a clone of it) is alive.
func (c SharedChunk) Header() *Header { return c.header }

// Clone returns a new owning handle to the same chunk, atomically
// incrementing the reference count.
func (c SharedChunk) Clone() SharedChunk {
	if c.header != nil {
		c.header.IncRef()
	}
	return c
}

// Release drops this handle's ownership. If the reference count reaches
// zero, the chunk is returned to its originating MemPool. Release must be
// called exactly once per SharedChunk value (including each Clone); it is
// a caller bug, not a recoverable error, to call it twice on the same
// value or to leak it.
func (c SharedChunk) Release() {
	if c.header == nil {
		return
	}
	if c.header.DecRef() {
		c.releaser.Free(c.header)
	}
}

// Equal reports whether two handles refer to the same chunk.
func (c SharedChunk) Equal(other SharedChunk) bool {
	return c.header == other.header
}
