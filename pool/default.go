// File: pool/default.go
// Author: momentics <momentics@gmail.com>
//
// Process-wide pool managers. Each is created once by an explicit Create call
// against device.Default() and destroyed only by Reset, which exists for tests.

package pool

import (
	"sync"

	"github.com/dustin/go-humanize"
	"k8s.io/klog/v2"

	"github.com/momentics/hioload-mem/api"
	"github.com/momentics/hioload-mem/device"
)

var (
	pinnedMu  sync.RWMutex
	pinnedMgr *PinnedMemoryManager

	deviceMu  sync.RWMutex
	deviceMgr *DeviceMemoryManager
)

// CreatePinned creates the process pinned memory manager. A second call
// leaves the existing manager untouched, logs a warning and succeeds.
func CreatePinned(opts PinnedOptions) error {
	pinnedMu.Lock()
	defer pinnedMu.Unlock()
	if pinnedMgr != nil {
		klog.Warningf("[pinned] New pinned memory pool of size %s could not be created since one already exists of size %s",
			humanize.IBytes(opts.ByteSize), humanize.IBytes(pinnedMgr.ByteSize()))
		return nil
	}
	m, err := NewPinnedMemoryManager(device.Default(), opts)
	if err != nil {
		return err
	}
	pinnedMgr = m
	return nil
}

// PinnedManager returns the process pinned memory manager or nil.
func PinnedManager() *PinnedMemoryManager {
	pinnedMu.RLock()
	defer pinnedMu.RUnlock()
	return pinnedMgr
}

// PinnedAlloc allocates from the process pinned memory manager.
func PinnedAlloc(size int, allowFallback bool) ([]byte, api.MemoryType, error) {
	m := PinnedManager()
	if m == nil {
		return nil, api.MemoryCPU, api.NewError(api.ErrCodeUnavailable, "pinned memory manager has not been created")
	}
	return m.Alloc(size, allowFallback)
}

// PinnedFree frees through the process pinned memory manager.
func PinnedFree(buf []byte) error {
	m := PinnedManager()
	if m == nil {
		return api.NewError(api.ErrCodeUnavailable, "pinned memory manager has not been created")
	}
	return m.Free(buf)
}

// ResetPinned destroys the process pinned memory manager.
func ResetPinned() {
	pinnedMu.Lock()
	m := pinnedMgr
	pinnedMgr = nil
	pinnedMu.Unlock()
	if m != nil {
		m.Close()
	}
}

// CreateDevice creates the process device memory manager. A second call
// leaves the existing manager untouched, logs a warning and succeeds.
func CreateDevice(opts DeviceOptions) error {
	deviceMu.Lock()
	defer deviceMu.Unlock()
	if deviceMgr != nil {
		klog.Warningf("[device-pool] New CUDA memory pools could not be created since they already exist")
		return nil
	}
	m, err := NewDeviceMemoryManager(device.Default(), opts)
	if err != nil {
		return err
	}
	deviceMgr = m
	return nil
}

// DeviceManager returns the process device memory manager or nil.
func DeviceManager() *DeviceMemoryManager {
	deviceMu.RLock()
	defer deviceMu.RUnlock()
	return deviceMgr
}

// DeviceAlloc allocates from the process device memory manager.
func DeviceAlloc(size int, id int) ([]byte, error) {
	return DeviceManager().Alloc(size, id)
}

// DeviceFree frees through the process device memory manager.
func DeviceFree(buf []byte, id int) error {
	return DeviceManager().Free(buf, id)
}

// ResetDevice destroys the process device memory manager.
func ResetDevice() {
	deviceMu.Lock()
	m := deviceMgr
	deviceMgr = nil
	deviceMu.Unlock()
	if m != nil {
		m.Close()
	}
}
