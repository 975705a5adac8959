// File: device/probe.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Stateless device discovery helpers.

package device

import (
	"k8s.io/klog/v2"

	"github.com/momentics/hioload-mem/api"
)

// capabilityTolerance absorbs float rounding of major.minor comparisons.
const capabilityTolerance = 0.01

// ComputeCapability returns major.minor of device id.
func ComputeCapability(rt Runtime, id int) (float64, error) {
	if rt == nil {
		return 0, errNoRuntime()
	}
	p, err := rt.Properties(id)
	if err != nil {
		return 0, api.Errorf(api.ErrCodeInternal, "unable to get CUDA device properties for GPU %d: %v", id, err)
	}
	return p.ComputeCapability(), nil
}

// CheckGPUCompatibility fails with Unsupported when device id is below the
// minimum compute capability.
func CheckGPUCompatibility(rt Runtime, id int, minCapability float64) error {
	cc, err := ComputeCapability(rt, id)
	if err != nil {
		return err
	}
	if cc+capabilityTolerance < minCapability {
		return api.Errorf(api.ErrCodeUnsupported,
			"gpu %d has compute capability '%.1f' which is less than the minimum supported of '%.1f'",
			id, cc, minCapability)
	}
	return nil
}

// SupportedGPUs returns the ordinals of all devices meeting minCapability in
// ascending order. Without a runtime the result is empty.
func SupportedGPUs(rt Runtime, minCapability float64) ([]int, error) {
	if rt == nil {
		return nil, nil
	}
	n, err := rt.DeviceCount()
	if err != nil {
		return nil, api.Errorf(api.ErrCodeInternal, "unable to get number of CUDA devices: %v", err)
	}
	var ids []int
	for id := 0; id < n; id++ {
		if err := CheckGPUCompatibility(rt, id, minCapability); err != nil {
			klog.V(1).Infof("[device] skipping GPU %d: %v", id, err)
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// EnablePeerAccess enables access between every ordered pair of supported
// devices that can reach each other. Pairs that succeed stay enabled; if any
// pair fails the result is Unsupported.
func EnablePeerAccess(rt Runtime, minCapability float64) error {
	ids, err := SupportedGPUs(rt, minCapability)
	if err != nil {
		return err
	}
	allEnabled := true
	for _, dev := range ids {
		err := WithDevice(rt, dev, func() error {
			for _, peer := range ids {
				if peer == dev {
					continue
				}
				can, err := rt.CanAccessPeer(dev, peer)
				if err != nil || !can {
					allEnabled = false
					continue
				}
				if err := rt.EnablePeerAccess(peer); err != nil && !IsPeerAccessAlreadyEnabled(err) {
					klog.V(1).Infof("[device] peer access %d -> %d: %v", dev, peer, err)
					allEnabled = false
				}
			}
			return nil
		})
		if err != nil {
			allEnabled = false
		}
	}
	if !allEnabled {
		return api.NewError(api.ErrCodeUnsupported, "failed to enable peer access for some device pairs")
	}
	return nil
}

// SupportsIntegratedZeroCopy reports whether device id is an integrated GPU
// able to map host memory, so host buffers need no copy.
func SupportsIntegratedZeroCopy(rt Runtime, id int) (bool, error) {
	if rt == nil {
		return false, nil
	}
	p, err := rt.Properties(id)
	if err != nil {
		return false, api.Errorf(api.ErrCodeInternal, "unable to get CUDA device properties for GPU %d: %v", id, err)
	}
	return p.Integrated && p.CanMapHostMemory, nil
}

// DeviceMemoryInfo returns free and total bytes of device id.
func DeviceMemoryInfo(rt Runtime, id int) (free, total uint64, err error) {
	if rt == nil {
		return 0, 0, errNoRuntime()
	}
	err = WithDevice(rt, id, func() error {
		var merr error
		free, total, merr = rt.MemGetInfo()
		if merr != nil {
			return api.Errorf(api.ErrCodeInternal, "unable to get memory info for GPU %d: %v", id, merr)
		}
		return nil
	})
	return free, total, err
}

func errNoRuntime() error {
	return api.NewError(api.ErrCodeInternal, "GPU is not supported")
}
