// File: memory/mutable.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package memory

import "github.com/momentics/hioload-mem/api"

// Mutable is one contiguous writable span it does not own.
type Mutable struct {
	data []byte
	attr api.BufferAttributes
}

var _ api.Memory = (*Mutable)(nil)

// NewMutable wraps data.
func NewMutable(data []byte, memType api.MemoryType, memTypeID int64) *Mutable {
	return &Mutable{data: data, attr: api.NewBufferAttributes(len(data), memType, memTypeID)}
}

// MutableBuffer returns the span with its tier and device.
func (m *Mutable) MutableBuffer() ([]byte, api.MemoryType, int64) {
	return m.data, m.attr.MemoryType, m.attr.MemoryTypeID
}

func (m *Mutable) BufferCount() int {
	if len(m.data) == 0 {
		return 0
	}
	return 1
}

func (m *Mutable) TotalByteSize() int { return m.attr.ByteSize }

func (m *Mutable) BufferAt(idx int) ([]byte, api.BufferAttributes) {
	if idx != 0 || len(m.data) == 0 {
		return nil, api.BufferAttributes{}
	}
	return m.data, m.attr
}

func (m *Mutable) AttributesAt(idx int) *api.BufferAttributes {
	if idx != 0 || len(m.data) == 0 {
		return nil
	}
	return &m.attr
}
