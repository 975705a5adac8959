// File: memory/reference.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package memory

import "github.com/momentics/hioload-mem/api"

type span struct {
	data []byte
	attr api.BufferAttributes
}

// Reference is an ordered list of spans it does not own.
type Reference struct {
	spans []span
	total int
}

var _ api.Memory = (*Reference)(nil)

// NewReference returns an empty Reference.
func NewReference() *Reference {
	return &Reference{}
}

// AddBuffer appends data as one span and returns its index.
func (r *Reference) AddBuffer(data []byte, memType api.MemoryType, memTypeID int64) int {
	return r.AddBufferAttributes(data, api.NewBufferAttributes(len(data), memType, memTypeID))
}

// AddBufferAttributes appends data described by attr and returns its index.
func (r *Reference) AddBufferAttributes(data []byte, attr api.BufferAttributes) int {
	r.spans = append(r.spans, span{data: data, attr: attr})
	r.total += attr.ByteSize
	return len(r.spans) - 1
}

// AddBufferFront prepends data as the first span.
func (r *Reference) AddBufferFront(data []byte, memType api.MemoryType, memTypeID int64) {
	attr := api.NewBufferAttributes(len(data), memType, memTypeID)
	r.spans = append([]span{{data: data, attr: attr}}, r.spans...)
	r.total += attr.ByteSize
}

func (r *Reference) BufferCount() int { return len(r.spans) }

func (r *Reference) TotalByteSize() int { return r.total }

func (r *Reference) BufferAt(idx int) ([]byte, api.BufferAttributes) {
	if idx < 0 || idx >= len(r.spans) {
		return nil, api.BufferAttributes{}
	}
	return r.spans[idx].data, r.spans[idx].attr
}

func (r *Reference) AttributesAt(idx int) *api.BufferAttributes {
	if idx < 0 || idx >= len(r.spans) {
		return nil
	}
	return &r.spans[idx].attr
}
