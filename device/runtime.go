// File: device/runtime.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Runtime abstracts the accelerator runtime. Device allocations are returned
// as []byte views over device addresses; such a view is a handle and must
// never be read or written on the host. The device context (current device)
// is per OS thread, so callers switching it must hold runtime.LockOSThread.

package device

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"
)

// Properties describes one device.
type Properties struct {
	Name             string
	Major            int
	Minor            int
	Integrated       bool
	CanMapHostMemory bool
	TotalMemory      uint64
}

// ComputeCapability returns major.minor as a float.
func (p Properties) ComputeCapability() float64 {
	return float64(p.Major) + float64(p.Minor)/10
}

// Stream is an ordered queue of asynchronous device work.
type Stream interface {
	// Synchronize blocks until all previously queued work has completed.
	Synchronize() error
	// Destroy releases the stream after pending work completes.
	Destroy() error
}

// Runtime is the subset of the accelerator runtime used by hioload-mem.
// A nil Stream argument designates the default stream.
type Runtime interface {
	Name() string
	DeviceCount() (int, error)
	Properties(device int) (Properties, error)

	// GetDevice and SetDevice read and switch the calling thread's device.
	GetDevice() (int, error)
	SetDevice(device int) error

	// Malloc reserves size bytes on the current device.
	Malloc(size int) ([]byte, error)
	Free(buf []byte) error
	// HostAlloc returns page-locked host memory visible to all devices.
	HostAlloc(size int) ([]byte, error)
	FreeHost(buf []byte) error
	// MemGetInfo reports free and total bytes of the current device.
	MemGetInfo() (free, total uint64, err error)

	CanAccessPeer(device, peer int) (bool, error)
	// EnablePeerAccess lets the current device access peer memory.
	EnablePeerAccess(peer int) error

	NewStream() (Stream, error)
	// MemcpyAsync queues copy(dst, src) on stream; the direction is inferred
	// from the addresses.
	MemcpyAsync(dst, src []byte, stream Stream) error
	// LaunchHostFunc queues fn on stream; it runs after prior stream work.
	LaunchHostFunc(stream Stream, fn func()) error
}

// Error is a failure reported by the runtime.
type Error struct {
	Op   string
	Code int
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Msg)
}

// Diagnostic returns the runtime's own description of the failure.
func (e *Error) Diagnostic() string { return e.Msg }

// Runtime error codes shared by every implementation.
const (
	CodeInvalidValue             = 1
	CodeMemoryAllocation         = 2
	CodeInvalidDevice            = 101
	CodeInvalidResourceHandle    = 400
	CodePeerAccessUnsupported    = 217
	CodePeerAccessAlreadyEnabled = 704
)

// IsPeerAccessAlreadyEnabled reports whether err is the benign "already
// enabled" peer-access failure.
func IsPeerAccessAlreadyEnabled(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == CodePeerAccessAlreadyEnabled
}

var (
	defaultMu  sync.RWMutex
	defaultRT  Runtime
	defaultSet bool
)

// Default returns the process runtime: the one installed by SetDefault, or
// the compiled-in platform runtime. nil means no device runtime is present.
func Default() Runtime {
	defaultMu.RLock()
	if defaultSet {
		rt := defaultRT
		defaultMu.RUnlock()
		return rt
	}
	defaultMu.RUnlock()
	return platformRuntime()
}

// SetDefault installs rt as the process runtime and returns a function
// restoring the previous one. Passing nil disables device support.
func SetDefault(rt Runtime) (restore func()) {
	defaultMu.Lock()
	prev, prevSet := defaultRT, defaultSet
	defaultRT, defaultSet = rt, true
	defaultMu.Unlock()
	return func() {
		defaultMu.Lock()
		defaultRT, defaultSet = prev, prevSet
		defaultMu.Unlock()
	}
}
