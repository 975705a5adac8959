// File: response/output.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Output holds at most one data buffer for a named response tensor.

package response

import (
	"sync"

	"github.com/momentics/hioload-mem/api"
)

// Output is one named response tensor.
type Output struct {
	name  string
	alloc Allocator

	mu     sync.Mutex
	buffer *Allocation
}

// NewOutput returns an Output drawing buffers from alloc.
func NewOutput(name string, alloc Allocator) *Output {
	return &Output{name: name, alloc: alloc}
}

// Name returns the tensor name.
func (o *Output) Name() string { return o.name }

// AllocateDataBuffer obtains the data buffer. The returned tier and device
// are the ones actually used, which may differ from the preferred ones. A
// second call before ReleaseDataBuffer fails with AlreadyExists.
func (o *Output) AllocateDataBuffer(byteSize int, preferredType api.MemoryType, preferredID int64) ([]byte, api.MemoryType, int64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.buffer != nil {
		return nil, preferredType, preferredID, api.Errorf(api.ErrCodeAlreadyExists,
			"allocated buffer for output '%s' already exists", o.name)
	}
	a, err := o.alloc.Alloc(AllocRequest{
		Name: o.name, ByteSize: byteSize, PreferredType: preferredType, PreferredID: preferredID,
	})
	if err != nil {
		return nil, preferredType, preferredID, err
	}
	if setter, ok := o.alloc.(AttributesSetter); ok {
		if err := setter.BufferAttributes(o.name, &a.Attributes); err != nil {
			_ = o.alloc.Release(a)
			return nil, preferredType, preferredID, err
		}
	}
	o.buffer = &a
	return a.Data, a.Attributes.MemoryType, a.Attributes.MemoryTypeID, nil
}

// DataBuffer returns the current buffer and its attributes.
func (o *Output) DataBuffer() ([]byte, api.BufferAttributes, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.buffer == nil {
		return nil, api.BufferAttributes{}, false
	}
	return o.buffer.Data, o.buffer.Attributes, true
}

// ReleaseDataBuffer returns the buffer to its allocator. Releasing twice is
// a no-op.
func (o *Output) ReleaseDataBuffer() error {
	o.mu.Lock()
	a := o.buffer
	o.buffer = nil
	o.mu.Unlock()
	if a == nil {
		return nil
	}
	return o.alloc.Release(*a)
}
