// File: api/affinity.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// NUMA host-policy definitions shared by the affinity helpers, the worker pool
// and the pinned memory pools.

package api

// Host policy keys.
const (
	HostPolicyNUMANode = "numa-node"
	HostPolicyCPUCores = "cpu-cores"
)

// HostPolicy maps policy keys to their textual values.
type HostPolicy map[string]string

// HostPolicyMap maps a policy name to its settings.
type HostPolicyMap map[string]HostPolicy
