// File: memory/allocated.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Allocated owns one span obtained through an ordered cascade of tiers:
// device pool, then pinned pool, then the heap. The recorded attributes name
// the tier that actually served the request, and Release hands the span
// back to that tier.

package memory

import (
	"sync"

	"k8s.io/klog/v2"

	"github.com/momentics/hioload-mem/api"
	"github.com/momentics/hioload-mem/pool"
)

// TierAllocator supplies the backends of the allocation cascade.
type TierAllocator interface {
	DeviceAlloc(size int, id int) ([]byte, error)
	DeviceFree(buf []byte, id int) error
	PinnedAlloc(size int, allowFallback bool) ([]byte, api.MemoryType, error)
	PinnedFree(buf []byte) error
	HeapAlloc(size int) ([]byte, error)
}

type processTiers struct{}

func (processTiers) DeviceAlloc(size int, id int) ([]byte, error) {
	return pool.DeviceAlloc(size, id)
}

func (processTiers) DeviceFree(buf []byte, id int) error {
	return pool.DeviceFree(buf, id)
}

func (processTiers) PinnedAlloc(size int, fallback bool) ([]byte, api.MemoryType, error) {
	return pool.PinnedAlloc(size, fallback)
}

func (processTiers) PinnedFree(buf []byte) error {
	return pool.PinnedFree(buf)
}

func (processTiers) HeapAlloc(size int) ([]byte, error) {
	return pool.HeapAlloc(size)
}

// ProcessTiers returns the TierAllocator backed by the pool singletons.
func ProcessTiers() TierAllocator { return processTiers{} }

// allocation is the outcome of one successful strategy.
type allocation struct {
	data    []byte
	memType api.MemoryType
	release func() error
}

// strategy tries one tier. An error means the cascade moves on.
type strategy func(tiers TierAllocator, size int, id int64) (allocation, error)

var deviceFallbackWarning sync.Once

func deviceStrategy(tiers TierAllocator, size int, id int64) (allocation, error) {
	buf, err := tiers.DeviceAlloc(size, int(id))
	if err != nil {
		deviceFallbackWarning.Do(func() {
			klog.Warningf("[memory] %v, falling back to pinned system memory", err)
		})
		return allocation{}, err
	}
	return allocation{
		data:    buf,
		memType: api.MemoryGPU,
		release: func() error { return tiers.DeviceFree(buf, int(id)) },
	}, nil
}

func pinnedStrategy(tiers TierAllocator, size int, _ int64) (allocation, error) {
	buf, memType, err := tiers.PinnedAlloc(size, true)
	if err != nil {
		return allocation{}, err
	}
	return allocation{
		data:    buf,
		memType: memType,
		release: func() error { return tiers.PinnedFree(buf) },
	}, nil
}

func heapStrategy(tiers TierAllocator, size int, _ int64) (allocation, error) {
	buf, err := tiers.HeapAlloc(size)
	if err != nil {
		return allocation{}, err
	}
	return allocation{data: buf, memType: api.MemoryCPU, release: func() error { return nil }}, nil
}

// cascadeFor returns the strategies tried for a requested tier, fastest first.
func cascadeFor(memType api.MemoryType) []strategy {
	if memType == api.MemoryGPU {
		return []strategy{deviceStrategy, pinnedStrategy, heapStrategy}
	}
	return []strategy{pinnedStrategy, heapStrategy}
}

// Allocated is an owned buffer.
type Allocated struct {
	Mutable

	release func() error
	err     error
	once    sync.Once
}

var (
	_ api.Memory   = (*Allocated)(nil)
	_ api.Releaser = (*Allocated)(nil)
)

// NewAllocated allocates size bytes preferring memType on device memTypeID,
// using the process pools.
func NewAllocated(size int, memType api.MemoryType, memTypeID int64) *Allocated {
	return NewAllocatedWith(ProcessTiers(), size, memType, memTypeID)
}

// NewAllocatedWith is NewAllocated over explicit tiers. When every tier fails
// the result is empty: TotalByteSize is 0 and Err holds the last failure.
func NewAllocatedWith(tiers TierAllocator, size int, memType api.MemoryType, memTypeID int64) *Allocated {
	a := &Allocated{Mutable: Mutable{attr: api.NewBufferAttributes(0, memType, memTypeID)}}
	if size <= 0 {
		return a
	}
	for _, try := range cascadeFor(memType) {
		res, err := try(tiers, size, memTypeID)
		if err != nil {
			a.err = err
			continue
		}
		a.data = res.data
		a.attr.ByteSize = size
		a.attr.MemoryType = res.memType
		a.release = res.release
		a.err = nil
		return a
	}
	klog.Errorf("[memory] failed to allocate %d bytes of %s memory: %v", size, memType, a.err)
	return a
}

// Err returns why the allocation is empty, or nil.
func (a *Allocated) Err() error { return a.err }

// Release returns the span to the tier that served it. Later calls are no-ops.
func (a *Allocated) Release() {
	a.once.Do(func() {
		if a.release == nil {
			return
		}
		if err := a.release(); err != nil {
			klog.Errorf("[memory] failed to release %s buffer: %v", a.attr.MemoryType, err)
		}
		a.data = nil
		a.attr.ByteSize = 0
	})
}
