// File: pool/stats.go
// Author: momentics <momentics@gmail.com>
//
// Pool usage snapshots for metrics and debug probes.

package pool

// PoolStats describes one pool at a point in time.
type PoolStats struct {
	Tier            string `json:"tier"`
	Pool            string `json:"pool"`
	CapacityBytes   uint64 `json:"capacityBytes"`
	UsedBytes       uint64 `json:"usedBytes"`
	LargestFree     uint64 `json:"largestFreeBytes"`
	LiveAllocations int    `json:"liveAllocations"`
	// Fallbacks counts allocations served by the heap instead of this pool.
	Fallbacks uint64 `json:"fallbacks"`
}

// Stats returns snapshots of every pool owned by the process singletons.
func Stats() []PoolStats {
	var out []PoolStats
	if m := PinnedManager(); m != nil {
		out = append(out, m.Stats()...)
	}
	if m := DeviceManager(); m != nil {
		out = append(out, m.Stats()...)
	}
	return out
}
