// File: api/attributes.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Per-buffer metadata: size, tier, device and optional cross-process handle.

package api

// CUDAIPCHandleSize is the fixed length of an opaque cross-process device
// memory handle.
const CUDAIPCHandleSize = 64

// BufferAttributes describes one buffer. MemoryTypeID is the device ordinal
// for GPU buffers and is ignored for host tiers.
type BufferAttributes struct {
	ByteSize     int
	MemoryType   MemoryType
	MemoryTypeID int64

	ipcHandle []byte
}

// NewBufferAttributes builds attributes without an IPC handle.
func NewBufferAttributes(byteSize int, memType MemoryType, memTypeID int64) BufferAttributes {
	return BufferAttributes{ByteSize: byteSize, MemoryType: memType, MemoryTypeID: memTypeID}
}

// SetCUDAIPCHandle stores exactly CUDAIPCHandleSize bytes of h. Shorter input
// is zero padded, longer input is truncated. The bytes are never interpreted.
func (a *BufferAttributes) SetCUDAIPCHandle(h []byte) {
	a.ipcHandle = make([]byte, CUDAIPCHandleSize)
	copy(a.ipcHandle, h)
}

// CUDAIPCHandle returns the stored handle or nil when none was set.
func (a *BufferAttributes) CUDAIPCHandle() []byte {
	return a.ipcHandle
}
