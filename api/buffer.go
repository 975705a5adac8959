// File: api/buffer.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Buffer-provider contract. A provider exposes an ordered list of spans with
// attributes; GPU spans are opaque handles and must not be read on the host.

package api

// Memory is implemented by every buffer provider.
type Memory interface {
	// BufferCount returns the number of spans.
	BufferCount() int

	// TotalByteSize returns the sum of all span sizes.
	TotalByteSize() int

	// BufferAt returns span idx with a copy of its attributes. Out-of-range
	// idx yields a nil span and zero attributes.
	BufferAt(idx int) ([]byte, BufferAttributes)

	// AttributesAt returns the live attributes of span idx or nil.
	AttributesAt(idx int) *BufferAttributes
}

// Releaser is implemented by providers that own their memory.
type Releaser interface {
	Release()
}
