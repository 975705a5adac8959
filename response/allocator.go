// File: response/allocator.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Allocators supply output buffers on behalf of a response.

package response

import (
	"github.com/momentics/hioload-mem/api"
	"github.com/momentics/hioload-mem/memory"
)

// AllocRequest asks for one output buffer. The preferred tier is a hint.
type AllocRequest struct {
	Name          string
	ByteSize      int
	PreferredType api.MemoryType
	PreferredID   int64
}

// Allocation is a buffer handed out by an Allocator. Userp is returned
// untouched to Release.
type Allocation struct {
	Data       []byte
	Attributes api.BufferAttributes
	Userp      any
}

// Allocator obtains and returns output buffers.
type Allocator interface {
	Alloc(req AllocRequest) (Allocation, error)
	Release(a Allocation) error
}

// AttributesSetter is optionally implemented by allocators that decorate
// the attributes of a fresh buffer, for example with an IPC handle.
type AttributesSetter interface {
	BufferAttributes(name string, attr *api.BufferAttributes) error
}

// TieredAllocator serves outputs from the tier cascade of memory.Allocated.
type TieredAllocator struct {
	tiers memory.TierAllocator
}

var _ Allocator = (*TieredAllocator)(nil)

// NewTieredAllocator uses tiers, or the process pools when tiers is nil.
func NewTieredAllocator(tiers memory.TierAllocator) *TieredAllocator {
	if tiers == nil {
		tiers = memory.ProcessTiers()
	}
	return &TieredAllocator{tiers: tiers}
}

func (t *TieredAllocator) Alloc(req AllocRequest) (Allocation, error) {
	a := memory.NewAllocatedWith(t.tiers, req.ByteSize, req.PreferredType, req.PreferredID)
	if req.ByteSize > 0 && a.TotalByteSize() == 0 {
		return Allocation{}, api.Errorf(api.ErrCodeInternal,
			"failed to allocate %d bytes for output '%s': %v", req.ByteSize, req.Name, a.Err())
	}
	data, attr := a.BufferAt(0)
	if a.BufferCount() == 0 {
		attr = api.NewBufferAttributes(0, req.PreferredType, req.PreferredID)
	}
	return Allocation{Data: data, Attributes: attr, Userp: a}, nil
}

func (t *TieredAllocator) Release(a Allocation) error {
	if owned, ok := a.Userp.(*memory.Allocated); ok {
		owned.Release()
	}
	return nil
}
