// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package mempool

import "unsafe"

// PageSize is the memory page size a Pool's backing region is aligned to.
// Page-aligned regions let a segment be registered with DMA/io_uring or
// mapped as huge pages without a realigning copy; a single process's
// in-memory pools gain nothing from it beyond cheap insurance, but a
// segment later backed by a real shared-memory mapping needs it.
var PageSize uintptr = 4096

// pageAlignedMem returns a byte slice of the given size whose starting
// address is aligned to PageSize. The returned slice shares underlying
// storage with a larger allocation, so len(result) can be less than
// cap(result).
func pageAlignedMem(size uint64) []byte {
	p := make([]byte, size+uint64(PageSize)-1)
	base := unsafe.Pointer(unsafe.SliceData(p))
	offset := ((uintptr(base)+PageSize-1)/PageSize)*PageSize - uintptr(base)
	return unsafe.Slice((*byte)(unsafe.Add(base, offset)), size)
}
