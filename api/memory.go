// File: api/memory.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Memory tiers a buffer can live in.

package api

import "strings"

// MemoryType identifies the physical tier backing a buffer.
type MemoryType int

const (
	// MemoryCPU is ordinary pageable host memory.
	MemoryCPU MemoryType = iota
	// MemoryCPUPinned is page-locked host memory registered with the device runtime.
	MemoryCPUPinned
	// MemoryGPU is accelerator memory; it must never be dereferenced on the host.
	MemoryGPU
)

func (t MemoryType) String() string {
	switch t {
	case MemoryCPU:
		return "CPU"
	case MemoryCPUPinned:
		return "CPU_PINNED"
	case MemoryGPU:
		return "GPU"
	}
	return "<invalid>"
}

// IsHost reports whether the tier is host addressable.
func (t MemoryType) IsHost() bool {
	return t == MemoryCPU || t == MemoryCPUPinned
}

// ParseMemoryType converts a tier name as printed by String.
func ParseMemoryType(s string) (MemoryType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CPU":
		return MemoryCPU, nil
	case "CPU_PINNED":
		return MemoryCPUPinned, nil
	case "GPU":
		return MemoryGPU, nil
	}
	return MemoryCPU, Errorf(ErrCodeInvalidArgument, "unknown memory type %q", s)
}
