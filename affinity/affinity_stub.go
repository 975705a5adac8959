//go:build !linux

// File: affinity/affinity_stub.go
// Author: momentics <momentics@gmail.com>
//
// Stub implementation for platforms without NUMA controls. Every operation
// succeeds without effect so pools and workers behave as on a single node.

package affinity

import "k8s.io/utils/cpuset"

func setAffinityPlatform(cpuset.CPUSet, int) error { return nil }

func setMemPolicyPlatform(int) error { return nil }

func getMemPolicyNodeMaskPlatform() (uint64, error) { return 0, nil }

func resetMemPolicyPlatform() error { return nil }
