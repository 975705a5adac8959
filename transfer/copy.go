// File: transfer/copy.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Copier moves bytes between any two tiers. Host to host copies run inline
// or, on request, as a host function ordered on a stream; anything touching
// device memory is issued to the device runtime, which infers the direction.

package transfer

import (
	"github.com/pkg/errors"

	"github.com/momentics/hioload-mem/api"
	"github.com/momentics/hioload-mem/device"
)

// Copier issues copies through one device runtime, which may be nil.
type Copier struct {
	rt device.Runtime
}

// NewCopier returns a Copier bound to rt.
func NewCopier(rt device.Runtime) *Copier {
	return &Copier{rt: rt}
}

// Default returns a Copier bound to device.Default().
func Default() *Copier {
	return NewCopier(device.Default())
}

// CopyRequest describes one copy of Size bytes from Src to Dst.
type CopyRequest struct {
	Msg          string
	SrcType      api.MemoryType
	SrcID        int64
	DstType      api.MemoryType
	DstID        int64
	Size         int
	Src, Dst     []byte
	Stream       device.Stream
	CopyOnStream bool
}

// CopyBuffer copies size bytes from src to dst. deviceUsed reports that the
// copy was queued on the device runtime; the caller must synchronize the
// stream before reading dst.
func (c *Copier) CopyBuffer(msg string, srcType api.MemoryType, srcID int64,
	dstType api.MemoryType, dstID int64, size int, src, dst []byte,
	stream device.Stream, copyOnStream bool) (deviceUsed bool, err error) {
	return c.Copy(CopyRequest{
		Msg: msg, SrcType: srcType, SrcID: srcID, DstType: dstType, DstID: dstID,
		Size: size, Src: src, Dst: dst, Stream: stream, CopyOnStream: copyOnStream,
	})
}

// Copy is CopyBuffer taking a CopyRequest.
func (c *Copier) Copy(req CopyRequest) (bool, error) {
	if req.Size < 0 || req.Size > len(req.Src) || req.Size > len(req.Dst) {
		return false, api.Errorf(api.ErrCodeInvalidArgument,
			"%s: copy of %d bytes exceeds source (%d) or destination (%d)",
			req.Msg, req.Size, len(req.Src), len(req.Dst))
	}
	src, dst := req.Src[:req.Size], req.Dst[:req.Size]

	if req.SrcType != api.MemoryGPU && req.DstType != api.MemoryGPU {
		if req.CopyOnStream && c.rt != nil {
			if err := c.rt.LaunchHostFunc(req.Stream, func() { copy(dst, src) }); err != nil {
				return false, api.Errorf(api.ErrCodeInternal,
					"%s: failed to add host memory copy to stream: %s", req.Msg, diagnostic(err))
			}
			return true, nil
		}
		copy(dst, src)
		return false, nil
	}

	if c.rt == nil {
		return false, api.Errorf(api.ErrCodeInternal,
			"%s: try to use CUDA copy while GPU is not supported", req.Msg)
	}
	if err := c.rt.MemcpyAsync(dst, src, req.Stream); err != nil {
		return false, api.Errorf(api.ErrCodeInternal,
			"%s: failed to use CUDA copy: %s", req.Msg, diagnostic(err))
	}
	return true, nil
}

// diagnostic returns the runtime's own description of err.
func diagnostic(err error) string {
	var rerr *device.Error
	if errors.As(err, &rerr) {
		return rerr.Diagnostic()
	}
	return err.Error()
}

// CopyBuffer copies through Default().
func CopyBuffer(msg string, srcType api.MemoryType, srcID int64,
	dstType api.MemoryType, dstID int64, size int, src, dst []byte,
	stream device.Stream, copyOnStream bool) (bool, error) {
	return Default().CopyBuffer(msg, srcType, srcID, dstType, dstID, size, src, dst, stream, copyOnStream)
}
