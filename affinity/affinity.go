// File: affinity/affinity.go
// Author: momentics <momentics@gmail.com>
//
// Platform-neutral API for CPU affinity and NUMA memory policy. Platform
// specific implementations are located in affinity_linux.go and
// affinity_stub.go, guarded by build tags.
//
// Every setter acts on the calling OS thread only. Callers that need the
// effect to persist across statements must hold runtime.LockOSThread.

package affinity

import (
	"strconv"
	"strings"

	"k8s.io/utils/cpuset"

	"github.com/momentics/hioload-mem/api"
)

// SetAffinity pins the current OS thread to a given logical CPU.
func SetAffinity(cpuID int) error {
	return setAffinityPlatform(cpuset.New(cpuID), 0)
}

// SetNUMAMemoryPolicy binds future allocations of the calling thread to the
// node named by the "numa-node" key. A policy without the key is a no-op.
func SetNUMAMemoryPolicy(policy api.HostPolicy) error {
	v, ok := policy[api.HostPolicyNUMANode]
	if !ok {
		return nil
	}
	node, err := ParseNUMANode(v)
	if err != nil {
		return err
	}
	return setMemPolicyPlatform(node)
}

// SetNUMAThreadAffinity restricts thread tid to the cores named by the
// "cpu-cores" key. tid 0 is the calling thread.
func SetNUMAThreadAffinity(tid int, policy api.HostPolicy) error {
	v, ok := policy[api.HostPolicyCPUCores]
	if !ok {
		return nil
	}
	cores, err := ParseCPUCores(v)
	if err != nil {
		return err
	}
	return setAffinityPlatform(cores, tid)
}

// SetNUMAConfigOnThread applies thread affinity, then the memory policy, to
// the calling thread.
func SetNUMAConfigOnThread(policy api.HostPolicy) error {
	if err := SetNUMAThreadAffinity(0, policy); err != nil {
		return err
	}
	return SetNUMAMemoryPolicy(policy)
}

// GetNUMAMemoryPolicyNodeMask returns the node mask of the calling thread's
// memory policy. 0 means the default policy.
func GetNUMAMemoryPolicyNodeMask() (uint64, error) {
	return getMemPolicyNodeMaskPlatform()
}

// ResetNUMAMemoryPolicy restores the default memory policy on the calling thread.
func ResetNUMAMemoryPolicy() error {
	return resetMemPolicyPlatform()
}

// ParseNUMANode parses a "numa-node" value.
func ParseNUMANode(s string) (int, error) {
	node, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || node < 0 || node >= maxNUMANodes {
		return 0, api.Errorf(api.ErrCodeInvalidArgument,
			"failed to parse 'numa-node' setting %q: expected a node id in [0, %d)", s, maxNUMANodes)
	}
	return node, nil
}

// ParseCPUCores parses a "cpu-cores" value such as "0-2,5". Every comma
// separated part must be a core id or an inclusive "low-high" range.
func ParseCPUCores(s string) (cpuset.CPUSet, error) {
	result := cpuset.New()
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		set, err := cpuset.Parse(part)
		if part == "" || err != nil {
			return cpuset.New(), api.Errorf(api.ErrCodeInvalidArgument,
				"failed to parse 'cpu-cores' setting %q: %q is not a core id or core range", s, part)
		}
		result = result.Union(set)
	}
	return result, nil
}

// NodeMask converts node ids into a single-word node mask.
func NodeMask(nodes ...int) uint64 {
	var mask uint64
	for _, n := range nodes {
		if n >= 0 && n < 64 {
			mask |= 1 << uint(n)
		}
	}
	return mask
}

const maxNUMANodes = 1024
