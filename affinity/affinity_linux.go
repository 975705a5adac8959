//go:build linux

// File: affinity/affinity_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux implementation: sched_setaffinity plus the set_mempolicy and
// get_mempolicy system calls.

package affinity

import (
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
	"k8s.io/klog/v2"
	"k8s.io/utils/cpuset"

	"github.com/momentics/hioload-mem/api"
)

const (
	mpolDefault = 0
	mpolBind    = 2
)

// maxCPUs is the number of cpus a unix.CPUSet can describe.
const maxCPUs = int(unsafe.Sizeof(unix.CPUSet{})) * 8

func setAffinityPlatform(cores cpuset.CPUSet, tid int) error {
	var set unix.CPUSet
	set.Zero()
	for _, cpu := range cores.List() {
		if cpu >= maxCPUs {
			return api.Errorf(api.ErrCodeInvalidArgument, "cpu %d exceeds the supported maximum of %d", cpu, maxCPUs-1)
		}
		set.Set(cpu)
	}
	if err := unix.SchedSetaffinity(tid, &set); err != nil {
		return api.Errorf(api.ErrCodeInternal, "sched_setaffinity(%d, %s): %v", tid, cores.String(), err)
	}
	klog.V(3).Infof("[affinity] thread %d bound to cpus %s", tid, cores.String())
	return nil
}

func setMemPolicyPlatform(node int) error {
	mask := make([]uint64, maxNUMANodes/64)
	mask[node/64] |= 1 << uint(node%64)
	_, _, errno := unix.Syscall(unix.SYS_SET_MEMPOLICY, uintptr(mpolBind),
		uintptr(unsafe.Pointer(&mask[0])), uintptr(maxNUMANodes))
	if errno != 0 {
		return api.Errorf(api.ErrCodeInternal, "unable to set NUMA memory policy to node %d: %v", node, errno)
	}
	return nil
}

func getMemPolicyNodeMaskPlatform() (uint64, error) {
	var mode int32
	mask := make([]uint64, maxNUMANodes/64)
	_, _, errno := unix.Syscall6(unix.SYS_GET_MEMPOLICY, uintptr(unsafe.Pointer(&mode)),
		uintptr(unsafe.Pointer(&mask[0])), uintptr(maxNUMANodes), 0, 0, 0)
	if errno != 0 {
		return 0, api.NewError(api.ErrCodeInternal,
			errors.Wrap(errno, "unable to get NUMA memory policy").Error())
	}
	return mask[0], nil
}

func resetMemPolicyPlatform() error {
	_, _, errno := unix.Syscall(unix.SYS_SET_MEMPOLICY, uintptr(mpolDefault), 0, 0)
	if errno != 0 {
		return api.Errorf(api.ErrCodeInternal, "unable to reset NUMA memory policy: %v", errno)
	}
	return nil
}
