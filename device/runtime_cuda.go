//go:build cuda

// File: device/runtime_cuda.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// CUDA runtime binding through cgo. Build with -tags cuda and a cudart
// installation reachable by the linker.

package device

/*
#cgo LDFLAGS: -lcudart
#include <stdint.h>
#include <cuda_runtime.h>

extern void goHostFuncCallback(void* userData);
*/
import "C"

import (
	"runtime/cgo"
	"sync"
	"unsafe"
)

type cudaRuntime struct{}

var (
	cudaOnce sync.Once
	cudaRT   Runtime
)

func platformRuntime() Runtime {
	cudaOnce.Do(func() {
		var n C.int
		if C.cudaGetDeviceCount(&n) == C.cudaSuccess {
			cudaRT = cudaRuntime{}
		} else {
			C.cudaGetLastError()
		}
	})
	return cudaRT
}

func cudaErr(op string, rc C.cudaError_t) error {
	if rc == C.cudaSuccess {
		return nil
	}
	C.cudaGetLastError()
	return &Error{Op: op, Code: int(rc), Msg: C.GoString(C.cudaGetErrorString(rc))}
}

func ptr(buf []byte) unsafe.Pointer {
	return unsafe.Pointer(unsafe.SliceData(buf))
}

func (cudaRuntime) Name() string { return "cuda" }

func (cudaRuntime) DeviceCount() (int, error) {
	var n C.int
	if err := cudaErr("cudaGetDeviceCount", C.cudaGetDeviceCount(&n)); err != nil {
		return 0, err
	}
	return int(n), nil
}

func (cudaRuntime) Properties(device int) (Properties, error) {
	var p C.struct_cudaDeviceProp
	if err := cudaErr("cudaGetDeviceProperties", C.cudaGetDeviceProperties(&p, C.int(device))); err != nil {
		return Properties{}, err
	}
	return Properties{
		Name:             C.GoString(&p.name[0]),
		Major:            int(p.major),
		Minor:            int(p.minor),
		Integrated:       p.integrated != 0,
		CanMapHostMemory: p.canMapHostMemory != 0,
		TotalMemory:      uint64(p.totalGlobalMem),
	}, nil
}

func (cudaRuntime) GetDevice() (int, error) {
	var d C.int
	if err := cudaErr("cudaGetDevice", C.cudaGetDevice(&d)); err != nil {
		return 0, err
	}
	return int(d), nil
}

func (cudaRuntime) SetDevice(device int) error {
	return cudaErr("cudaSetDevice", C.cudaSetDevice(C.int(device)))
}

func (cudaRuntime) Malloc(size int) ([]byte, error) {
	if size == 0 {
		return nil, nil
	}
	var p unsafe.Pointer
	if err := cudaErr("cudaMalloc", C.cudaMalloc(&p, C.size_t(size))); err != nil {
		return nil, err
	}
	return unsafe.Slice((*byte)(p), size), nil
}

func (cudaRuntime) Free(buf []byte) error {
	if cap(buf) == 0 {
		return nil
	}
	return cudaErr("cudaFree", C.cudaFree(ptr(buf)))
}

func (cudaRuntime) HostAlloc(size int) ([]byte, error) {
	if size == 0 {
		return nil, nil
	}
	var p unsafe.Pointer
	if err := cudaErr("cudaHostAlloc", C.cudaHostAlloc(&p, C.size_t(size), C.cudaHostAllocPortable)); err != nil {
		return nil, err
	}
	return unsafe.Slice((*byte)(p), size), nil
}

func (cudaRuntime) FreeHost(buf []byte) error {
	if cap(buf) == 0 {
		return nil
	}
	return cudaErr("cudaFreeHost", C.cudaFreeHost(ptr(buf)))
}

func (cudaRuntime) MemGetInfo() (uint64, uint64, error) {
	var free, total C.size_t
	if err := cudaErr("cudaMemGetInfo", C.cudaMemGetInfo(&free, &total)); err != nil {
		return 0, 0, err
	}
	return uint64(free), uint64(total), nil
}

func (cudaRuntime) CanAccessPeer(device, peer int) (bool, error) {
	var can C.int
	if err := cudaErr("cudaDeviceCanAccessPeer", C.cudaDeviceCanAccessPeer(&can, C.int(device), C.int(peer))); err != nil {
		return false, err
	}
	return can != 0, nil
}

func (cudaRuntime) EnablePeerAccess(peer int) error {
	return cudaErr("cudaDeviceEnablePeerAccess", C.cudaDeviceEnablePeerAccess(C.int(peer), 0))
}

type cudaStream struct {
	s C.cudaStream_t
}

func (st *cudaStream) Synchronize() error {
	return cudaErr("cudaStreamSynchronize", C.cudaStreamSynchronize(st.s))
}

func (st *cudaStream) Destroy() error {
	return cudaErr("cudaStreamDestroy", C.cudaStreamDestroy(st.s))
}

func (cudaRuntime) NewStream() (Stream, error) {
	st := &cudaStream{}
	if err := cudaErr("cudaStreamCreate", C.cudaStreamCreate(&st.s)); err != nil {
		return nil, err
	}
	return st, nil
}

func rawStream(stream Stream) C.cudaStream_t {
	if st, ok := stream.(*cudaStream); ok && st != nil {
		return st.s
	}
	return nil
}

func (cudaRuntime) MemcpyAsync(dst, src []byte, stream Stream) error {
	if len(src) == 0 {
		return nil
	}
	return cudaErr("cudaMemcpyAsync", C.cudaMemcpyAsync(ptr(dst), ptr(src),
		C.size_t(len(src)), C.cudaMemcpyDefault, rawStream(stream)))
}

//export goHostFuncCallback
func goHostFuncCallback(userData unsafe.Pointer) {
	h := cgo.Handle(uintptr(userData))
	fn := h.Value().(func())
	h.Delete()
	fn()
}

func (cudaRuntime) LaunchHostFunc(stream Stream, fn func()) error {
	h := cgo.NewHandle(fn)
	rc := C.cudaLaunchHostFunc(rawStream(stream), C.cudaHostFn_t(C.goHostFuncCallback), unsafe.Pointer(uintptr(h)))
	if err := cudaErr("cudaLaunchHostFunc", rc); err != nil {
		h.Delete()
		return err
	}
	return nil
}
