// File: fake/runtime.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Runtime wraps a device.Runtime and injects failures per operation so
// error paths of pools and copies can be exercised deterministically.

package fake

import (
	"sync"

	"github.com/momentics/hioload-mem/device"
)

// Op names an interceptable runtime operation.
type Op string

const (
	OpGetDevice     Op = "GetDevice"
	OpSetDevice     Op = "SetDevice"
	OpProperties    Op = "Properties"
	OpMalloc        Op = "Malloc"
	OpFree          Op = "Free"
	OpHostAlloc     Op = "HostAlloc"
	OpFreeHost      Op = "FreeHost"
	OpMemGetInfo    Op = "MemGetInfo"
	OpCanAccessPeer Op = "CanAccessPeer"
	OpEnablePeer    Op = "EnablePeerAccess"
	OpMemcpy        Op = "MemcpyAsync"
	OpHostFunc      Op = "LaunchHostFunc"
)

type fault struct {
	err       error
	remaining int // negative: forever
}

// Runtime is a fault-injecting device.Runtime.
type Runtime struct {
	device.Runtime

	mu     sync.Mutex
	faults map[Op]*fault
	peers  map[[2]int]error
	calls  map[Op]int
}

var _ device.Runtime = (*Runtime)(nil)

// Wrap returns a Runtime delegating to rt.
func Wrap(rt device.Runtime) *Runtime {
	return &Runtime{
		Runtime: rt,
		faults:  make(map[Op]*fault),
		peers:   make(map[[2]int]error),
		calls:   make(map[Op]int),
	}
}

// Failure builds a runtime error as the real runtime would report it.
func Failure(op Op, msg string) error {
	return &device.Error{Op: string(op), Code: device.CodeInvalidValue, Msg: msg}
}

// FailOn makes every call of op fail with err.
func (r *Runtime) FailOn(op Op, err error) {
	r.FailTimes(op, -1, err)
}

// FailTimes makes the next n calls of op fail with err.
func (r *Runtime) FailTimes(op Op, n int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.faults[op] = &fault{err: err, remaining: n}
}

// FailPeer makes EnablePeerAccess from device to peer fail with err.
func (r *Runtime) FailPeer(device, peer int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.peers[[2]int{device, peer}] = err
}

// Clear removes every injected failure.
func (r *Runtime) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.faults = make(map[Op]*fault)
	r.peers = make(map[[2]int]error)
}

// Calls returns how many times op was invoked.
func (r *Runtime) Calls(op Op) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[op]
}

func (r *Runtime) check(op Op) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[op]++
	f, ok := r.faults[op]
	if !ok || f.remaining == 0 {
		return nil
	}
	if f.remaining > 0 {
		f.remaining--
	}
	return f.err
}

func (r *Runtime) GetDevice() (int, error) {
	if err := r.check(OpGetDevice); err != nil {
		return 0, err
	}
	return r.Runtime.GetDevice()
}

func (r *Runtime) SetDevice(id int) error {
	if err := r.check(OpSetDevice); err != nil {
		return err
	}
	return r.Runtime.SetDevice(id)
}

func (r *Runtime) Properties(id int) (device.Properties, error) {
	if err := r.check(OpProperties); err != nil {
		return device.Properties{}, err
	}
	return r.Runtime.Properties(id)
}

func (r *Runtime) Malloc(size int) ([]byte, error) {
	if err := r.check(OpMalloc); err != nil {
		return nil, err
	}
	return r.Runtime.Malloc(size)
}

func (r *Runtime) Free(buf []byte) error {
	if err := r.check(OpFree); err != nil {
		return err
	}
	return r.Runtime.Free(buf)
}

func (r *Runtime) HostAlloc(size int) ([]byte, error) {
	if err := r.check(OpHostAlloc); err != nil {
		return nil, err
	}
	return r.Runtime.HostAlloc(size)
}

func (r *Runtime) FreeHost(buf []byte) error {
	if err := r.check(OpFreeHost); err != nil {
		return err
	}
	return r.Runtime.FreeHost(buf)
}

func (r *Runtime) MemGetInfo() (uint64, uint64, error) {
	if err := r.check(OpMemGetInfo); err != nil {
		return 0, 0, err
	}
	return r.Runtime.MemGetInfo()
}

func (r *Runtime) CanAccessPeer(id, peer int) (bool, error) {
	if err := r.check(OpCanAccessPeer); err != nil {
		return false, err
	}
	return r.Runtime.CanAccessPeer(id, peer)
}

func (r *Runtime) EnablePeerAccess(peer int) error {
	if err := r.check(OpEnablePeer); err != nil {
		return err
	}
	cur, err := r.Runtime.GetDevice()
	if err != nil {
		return err
	}
	r.mu.Lock()
	perr := r.peers[[2]int{cur, peer}]
	r.mu.Unlock()
	if perr != nil {
		return perr
	}
	return r.Runtime.EnablePeerAccess(peer)
}

func (r *Runtime) MemcpyAsync(dst, src []byte, stream device.Stream) error {
	if err := r.check(OpMemcpy); err != nil {
		return err
	}
	return r.Runtime.MemcpyAsync(dst, src, stream)
}

func (r *Runtime) LaunchHostFunc(stream device.Stream, fn func()) error {
	if err := r.check(OpHostFunc); err != nil {
		return err
	}
	return r.Runtime.LaunchHostFunc(stream, fn)
}
