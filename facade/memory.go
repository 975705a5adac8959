// File: facade/memory.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Unified facade for hioload-mem. New brings up every process-wide subsystem
// from one control.Config: the async work queue, the pinned and device
// memory pools and peer access between devices. Shutdown tears them down in
// reverse order. The facade also hands out response outputs and copiers bound
// to the same device runtime and exposes debug probes and a metrics
// collector.

package facade

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	"github.com/momentics/hioload-mem/api"
	"github.com/momentics/hioload-mem/control"
	"github.com/momentics/hioload-mem/core/concurrency"
	"github.com/momentics/hioload-mem/device"
	"github.com/momentics/hioload-mem/pool"
	"github.com/momentics/hioload-mem/response"
	"github.com/momentics/hioload-mem/transfer"
)

// DeviceInfo summarizes one supported device.
type DeviceInfo struct {
	ID                int     `json:"id"`
	Name              string  `json:"name"`
	ComputeCapability float64 `json:"computeCapability"`
	FreeBytes         uint64  `json:"freeBytes"`
	TotalBytes        uint64  `json:"totalBytes"`
	ZeroCopy          bool    `json:"integratedZeroCopy"`
}

// Memory is the main facade type.
// It implements api.GracefulShutdown.
type Memory struct {
	rt        device.Runtime
	store     *control.ConfigStore
	probes    *control.DebugProbes
	collector *control.PoolCollector
	copier    *transfer.Copier
	allocator *response.TieredAllocator

	mu      sync.Mutex
	stopped bool
}

var _ api.GracefulShutdown = (*Memory)(nil)

// New validates cfg and initializes the process-wide subsystems against
// device.Default(). A nil cfg uses control.DefaultConfig. When any step
// fails, the steps already taken are undone.
func New(cfg *control.Config) (*Memory, error) {
	if cfg == nil {
		cfg = control.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m := &Memory{
		rt:        device.Default(),
		store:     control.NewConfigStore(cfg),
		probes:    control.NewDebugProbes(),
		collector: control.NewPoolCollector(),
	}
	m.copier = transfer.NewCopier(m.rt)
	m.allocator = response.NewTieredAllocator(nil)

	if err := concurrency.InitAsyncWorkQueue(cfg.AsyncWorkers, concurrency.WithName("async")); err != nil {
		return nil, errors.Wrap(err, "async work queue")
	}
	if err := pool.CreatePinned(cfg.PinnedOptions()); err != nil {
		concurrency.ResetAsyncWorkQueue()
		return nil, errors.Wrap(err, "pinned memory pool")
	}
	if err := pool.CreateDevice(cfg.DeviceOptions()); err != nil {
		pool.ResetPinned()
		concurrency.ResetAsyncWorkQueue()
		return nil, errors.Wrap(err, "device memory pool")
	}
	if cfg.EnablePeerAccess && m.rt != nil {
		if err := device.EnablePeerAccess(m.rt, cfg.MinComputeCapability); err != nil {
			klog.Warningf("[facade] peer access: %v", err)
		}
	}

	control.RegisterMemoryProbes(m.probes, m.store)
	m.probes.RegisterProbe("devices", func() any {
		infos, err := m.Devices(context.Background())
		if err != nil {
			return err.Error()
		}
		return infos
	})
	klog.V(1).Infof("[facade] memory layer started with runtime %q", runtimeName(m.rt))
	return m, nil
}

func runtimeName(rt device.Runtime) string {
	if rt == nil {
		return "none"
	}
	return rt.Name()
}

// Config returns a copy of the effective configuration.
func (m *Memory) Config() *control.Config { return m.store.Snapshot() }

// Runtime returns the device runtime the facade was built on, or nil.
func (m *Memory) Runtime() device.Runtime { return m.rt }

// Debug returns the probe registry.
func (m *Memory) Debug() api.Debug { return m.probes }

// Collector returns the pool metrics collector for registration.
func (m *Memory) Collector() prometheus.Collector { return m.collector }

// Copier returns a copier over the facade runtime.
func (m *Memory) Copier() *transfer.Copier { return m.copier }

// NewOutput returns a response output served by the tier cascade.
func (m *Memory) NewOutput(name string) *response.Output {
	return response.NewOutput(name, m.allocator)
}

// Stats returns snapshots of every pool.
func (m *Memory) Stats() []pool.PoolStats { return pool.Stats() }

// Devices queries every supported device concurrently.
func (m *Memory) Devices(ctx context.Context) ([]DeviceInfo, error) {
	if m.rt == nil {
		return nil, nil
	}
	ids, err := device.SupportedGPUs(m.rt, m.store.Snapshot().MinComputeCapability)
	if err != nil {
		return nil, err
	}
	infos := make([]DeviceInfo, len(ids))
	g, ctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			props, err := m.rt.Properties(id)
			if err != nil {
				return errors.Wrapf(err, "device %d properties", id)
			}
			free, total, err := device.DeviceMemoryInfo(m.rt, id)
			if err != nil {
				return err
			}
			zc, err := device.SupportsIntegratedZeroCopy(m.rt, id)
			if err != nil {
				return err
			}
			infos[i] = DeviceInfo{
				ID:                id,
				Name:              props.Name,
				ComputeCapability: props.ComputeCapability(),
				FreeBytes:         free,
				TotalBytes:        total,
				ZeroCopy:          zc,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return infos, nil
}

// Shutdown stops the async work queue and releases every pool. Later calls
// are no-ops.
func (m *Memory) Shutdown() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return nil
	}
	m.stopped = true
	concurrency.ResetAsyncWorkQueue()
	pool.ResetDevice()
	pool.ResetPinned()
	klog.V(1).Infof("[facade] memory layer stopped")
	return nil
}
