// File: pool/numa.go
// Author: momentics <momentics@gmail.com>
//
// NUMA hooks used while building and selecting pinned pools.

package pool

import (
	"github.com/momentics/hioload-mem/affinity"
	"github.com/momentics/hioload-mem/api"
)

// NUMAController applies and inspects thread-scoped NUMA state.
type NUMAController interface {
	SetNUMAConfigOnThread(policy api.HostPolicy) error
	GetNUMAMemoryPolicyNodeMask() (uint64, error)
	ResetNUMAMemoryPolicy() error
}

type affinityNUMA struct{}

func (affinityNUMA) SetNUMAConfigOnThread(policy api.HostPolicy) error {
	return affinity.SetNUMAConfigOnThread(policy)
}

func (affinityNUMA) GetNUMAMemoryPolicyNodeMask() (uint64, error) {
	return affinity.GetNUMAMemoryPolicyNodeMask()
}

func (affinityNUMA) ResetNUMAMemoryPolicy() error {
	return affinity.ResetNUMAMemoryPolicy()
}

// SystemNUMA returns the controller backed by the affinity package.
func SystemNUMA() NUMAController { return affinityNUMA{} }
