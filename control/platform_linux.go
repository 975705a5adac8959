//go:build linux

// File: control/platform_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux probes: CPU count and the calling thread's NUMA memory policy.

package control

import (
	"runtime"

	"github.com/momentics/hioload-mem/affinity"
)

// RegisterPlatformProbes sets Linux-specific debug probes.
func RegisterPlatformProbes(dp *DebugProbes) {
	dp.RegisterProbe("platform.cpus", func() any {
		return runtime.NumCPU()
	})
	dp.RegisterProbe("platform.numa.policyMask", func() any {
		mask, err := affinity.GetNUMAMemoryPolicyNodeMask()
		if err != nil {
			return err.Error()
		}
		return mask
	})
}
