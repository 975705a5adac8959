// File: control/debug.go
// Author: momentics <momentics@gmail.com>
//
// Probe registry for live inspection of pools and queues.

package control

import (
	"sync"

	"github.com/momentics/hioload-mem/api"
	"github.com/momentics/hioload-mem/core/concurrency"
	"github.com/momentics/hioload-mem/pool"
)

// DebugProbes holds registered probe functions.
type DebugProbes struct {
	mu     sync.RWMutex
	probes map[string]func() any
}

var _ api.Debug = (*DebugProbes)(nil)

// NewDebugProbes creates an empty probe registry.
func NewDebugProbes() *DebugProbes {
	return &DebugProbes{
		probes: make(map[string]func() any),
	}
}

// RegisterProbe inserts or replaces a named probe.
func (dp *DebugProbes) RegisterProbe(name string, fn func() any) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.probes[name] = fn
}

// DumpState evaluates every probe.
func (dp *DebugProbes) DumpState() map[string]any {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	out := make(map[string]any, len(dp.probes))
	for k, fn := range dp.probes {
		out[k] = fn()
	}
	return out
}

// RegisterMemoryProbes adds the pool, async queue and config probes.
func RegisterMemoryProbes(dp *DebugProbes, store *ConfigStore) {
	dp.RegisterProbe("pools", func() any { return pool.Stats() })
	dp.RegisterProbe("async.workers", func() any { return concurrency.AsyncWorkerCount() })
	if store != nil {
		dp.RegisterProbe("config", func() any { return store.Snapshot() })
	}
	RegisterPlatformProbes(dp)
}
