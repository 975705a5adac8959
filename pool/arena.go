// File: pool/arena.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// First-fit allocator over one fixed region. Free extents are kept sorted by
// offset and coalesced on release. The arena never reads or writes the region,
// so it can manage device memory as well as host memory. Not thread-safe.

package pool

import (
	"slices"
	"unsafe"
)

type extent struct {
	off, size int
}

type arena struct {
	region []byte
	align  int
	free   []extent
	blocks map[int]int // offset -> reserved size
	used   int
}

func newArena(region []byte, align int) *arena {
	a := &arena{
		region: region,
		align:  align,
		blocks: make(map[int]int),
	}
	if len(region) > 0 {
		a.free = []extent{{off: 0, size: len(region)}}
	}
	return a
}

func alignUp(n, align int) int {
	return (n + align - 1) &^ (align - 1)
}

// alloc returns a span of exactly size bytes, or nil if no extent fits.
func (a *arena) alloc(size int) []byte {
	if size <= 0 || size > len(a.region) {
		return nil
	}
	need := alignUp(size, a.align)
	for i, e := range a.free {
		if e.size < need {
			continue
		}
		if e.size == need {
			a.free = slices.Delete(a.free, i, i+1)
		} else {
			a.free[i] = extent{off: e.off + need, size: e.size - need}
		}
		a.blocks[e.off] = need
		a.used += need
		return a.region[e.off : e.off+size : e.off+size]
	}
	return nil
}

// offsetOf returns the offset of buf inside the region or -1.
func (a *arena) offsetOf(buf []byte) int {
	if cap(buf) == 0 || len(a.region) == 0 {
		return -1
	}
	p := uintptr(unsafe.Pointer(unsafe.SliceData(buf)))
	base := uintptr(unsafe.Pointer(unsafe.SliceData(a.region)))
	if p < base || p >= base+uintptr(len(a.region)) {
		return -1
	}
	return int(p - base)
}

// release returns buf to the free list. It reports false when buf is not a
// live block of this arena.
func (a *arena) release(buf []byte) bool {
	off := a.offsetOf(buf)
	size, ok := a.blocks[off]
	if off < 0 || !ok {
		return false
	}
	delete(a.blocks, off)
	a.used -= size

	i, _ := slices.BinarySearchFunc(a.free, off, func(e extent, off int) int { return e.off - off })
	a.free = slices.Insert(a.free, i, extent{off: off, size: size})
	if i+1 < len(a.free) && a.free[i].off+a.free[i].size == a.free[i+1].off {
		a.free[i].size += a.free[i+1].size
		a.free = slices.Delete(a.free, i+1, i+2)
	}
	if i > 0 && a.free[i-1].off+a.free[i-1].size == a.free[i].off {
		a.free[i-1].size += a.free[i].size
		a.free = slices.Delete(a.free, i, i+1)
	}
	return true
}

func (a *arena) capacity() int { return len(a.region) }

func (a *arena) inUse() int { return a.used }

func (a *arena) liveBlocks() int { return len(a.blocks) }

// largestFree returns the largest contiguous free extent.
func (a *arena) largestFree() int {
	largest := 0
	for _, e := range a.free {
		largest = max(largest, e.size)
	}
	return largest
}
