// File: pool/device_pool.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// DeviceMemoryManager reserves one fixed region per configured accelerator at
// creation and sub-allocates from it. Pools never grow. Every operation runs
// with the target device as the thread's current device and restores the
// previous one afterwards.

package pool

import (
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/dustin/go-humanize"
	"k8s.io/klog/v2"

	"github.com/momentics/hioload-mem/api"
	"github.com/momentics/hioload-mem/device"
)

const deviceAlignment = 256

// DeviceOptions configures a DeviceMemoryManager.
type DeviceOptions struct {
	MinComputeCapability float64
	// MemoryPoolByteSize maps device ordinal to pool size. Devices absent or
	// mapped to 0 get no pool.
	MemoryPoolByteSize map[int]uint64
}

type devicePool struct {
	mu     sync.Mutex
	id     int
	region []byte
	arena  *arena
}

// DeviceMemoryManager owns the per-device pools.
type DeviceMemoryManager struct {
	rt    device.Runtime
	pools map[int]*devicePool
	ids   []int
}

// NewDeviceMemoryManager reserves the configured pools on every device
// meeting opts.MinComputeCapability. A failed reservation releases what was
// already reserved. rt may be nil, yielding a manager without pools.
func NewDeviceMemoryManager(rt device.Runtime, opts DeviceOptions) (*DeviceMemoryManager, error) {
	m := &DeviceMemoryManager{rt: rt, pools: make(map[int]*devicePool)}
	if rt == nil {
		klog.V(1).Infof("[device-pool] no device runtime, CUDA memory pool disabled")
		return m, nil
	}
	ids, err := device.SupportedGPUs(rt, opts.MinComputeCapability)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		size := opts.MemoryPoolByteSize[id]
		if size == 0 {
			continue
		}
		if size > math.MaxInt {
			m.Close()
			return nil, api.Errorf(api.ErrCodeInvalidArgument,
				"CUDA memory pool byte size %d for GPU %d exceeds the addressable maximum", size, id)
		}
		var region []byte
		err := device.WithDevice(rt, id, func() error {
			var merr error
			if region, merr = rt.Malloc(int(size)); merr != nil {
				return api.Errorf(api.ErrCodeInternal,
					"failed to create CUDA memory pool on device %d: %v", id, merr)
			}
			return nil
		})
		if err != nil {
			m.Close()
			return nil, err
		}
		m.pools[id] = &devicePool{id: id, region: region, arena: newArena(region, deviceAlignment)}
		m.ids = append(m.ids, id)
		klog.Infof("[device-pool] CUDA memory pool is created on device %d with size %s",
			id, humanize.IBytes(size))
	}
	if len(m.pools) == 0 {
		klog.Infof("[device-pool] CUDA memory pool disabled")
	}
	return m, nil
}

func (m *DeviceMemoryManager) available() error {
	if m == nil || len(m.pools) == 0 {
		return api.NewError(api.ErrCodeUnavailable, "CUDA memory pool is not available")
	}
	return nil
}

// currentPool returns the pool of the thread's current device.
func (m *DeviceMemoryManager) currentPool() (*devicePool, error) {
	cur, err := m.rt.GetDevice()
	if err != nil {
		return nil, api.Errorf(api.ErrCodeInternal, "failed to get current device: %v", err)
	}
	p, ok := m.pools[cur]
	if !ok {
		return nil, api.Errorf(api.ErrCodeUnavailable, "CUDA memory pool is not created for GPU %d", cur)
	}
	return p, nil
}

// Alloc returns size bytes from the pool of device id.
func (m *DeviceMemoryManager) Alloc(size int, id int) ([]byte, error) {
	if err := m.available(); err != nil {
		return nil, err
	}
	if size <= 0 {
		return nil, api.Errorf(api.ErrCodeInvalidArgument, "invalid device allocation size %d", size)
	}
	var buf []byte
	err := device.WithDevice(m.rt, id, func() error {
		p, err := m.currentPool()
		if err != nil {
			return err
		}
		p.mu.Lock()
		buf = p.arena.alloc(size)
		p.mu.Unlock()
		if buf == nil {
			return api.Errorf(api.ErrCodeInternal,
				"failed to allocate CUDA memory with byte size %d on GPU %d", size, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	klog.V(2).Infof("[device-pool] CUDA allocation: size %d, GPU %d", size, id)
	return buf, nil
}

// Free returns buf to the pool of device id. A span that is not live in
// that pool fails with NotFound.
func (m *DeviceMemoryManager) Free(buf []byte, id int) error {
	if err := m.available(); err != nil {
		return err
	}
	return device.WithDevice(m.rt, id, func() error {
		p, err := m.currentPool()
		if err != nil {
			return err
		}
		p.mu.Lock()
		ok := p.arena.release(buf)
		p.mu.Unlock()
		if !ok {
			return api.Errorf(api.ErrCodeNotFound,
				"CUDA memory at '%#x' is not being managed by GPU %d", address(buf), id)
		}
		klog.V(2).Infof("[device-pool] CUDA deallocation: addr %#x, GPU %d", address(buf), id)
		return nil
	})
}

// Devices returns the ordinals owning a pool in ascending order.
func (m *DeviceMemoryManager) Devices() []int {
	return slices.Clone(m.ids)
}

// Stats returns one snapshot per device pool.
func (m *DeviceMemoryManager) Stats() []PoolStats {
	out := make([]PoolStats, 0, len(m.ids))
	for _, id := range m.ids {
		p := m.pools[id]
		p.mu.Lock()
		out = append(out, PoolStats{
			Tier:            api.MemoryGPU.String(),
			Pool:            fmt.Sprintf("gpu-%d", id),
			CapacityBytes:   uint64(p.arena.capacity()),
			UsedBytes:       uint64(p.arena.inUse()),
			LargestFree:     uint64(p.arena.largestFree()),
			LiveAllocations: p.arena.liveBlocks(),
		})
		p.mu.Unlock()
	}
	return out
}

// Close releases every reserved region.
func (m *DeviceMemoryManager) Close() {
	for _, id := range m.ids {
		p := m.pools[id]
		err := device.WithDevice(m.rt, id, func() error { return m.rt.Free(p.region) })
		if err != nil {
			klog.Errorf("[device-pool] failed to release CUDA memory pool on GPU %d: %v", id, err)
		}
	}
	m.pools = make(map[int]*devicePool)
	m.ids = nil
}
