package control

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-mem/pool"
)

func TestPoolCollector(t *testing.T) {
	src := func() []pool.PoolStats {
		return []pool.PoolStats{
			{Tier: "CPU_PINNED", Pool: "node-mask-1", CapacityBytes: 4096, UsedBytes: 128, LargestFree: 3968, LiveAllocations: 2, Fallbacks: 3},
			{Tier: "GPU", Pool: "device-0", CapacityBytes: 1024, UsedBytes: 0, LargestFree: 1024},
		}
	}
	c := NewPoolCollector(src)
	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(c))

	assert.Equal(t, 10, testutil.CollectAndCount(c))

	expected := `
# HELP hioload_mem_pool_used_bytes Bytes currently handed out by the pool.
# TYPE hioload_mem_pool_used_bytes gauge
hioload_mem_pool_used_bytes{pool="device-0",tier="GPU"} 0
hioload_mem_pool_used_bytes{pool="node-mask-1",tier="CPU_PINNED"} 128
# HELP hioload_mem_pool_fallback_total Allocations served by the heap instead of the pool.
# TYPE hioload_mem_pool_fallback_total counter
hioload_mem_pool_fallback_total{pool="device-0",tier="GPU"} 0
hioload_mem_pool_fallback_total{pool="node-mask-1",tier="CPU_PINNED"} 3
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"hioload_mem_pool_used_bytes", "hioload_mem_pool_fallback_total"))
}

func TestPoolCollectorDefaultsToProcessPools(t *testing.T) {
	pool.ResetPinned()
	pool.ResetDevice()
	c := NewPoolCollector()
	assert.Equal(t, 0, testutil.CollectAndCount(c))

	require.NoError(t, pool.CreatePinned(pool.PinnedOptions{ByteSize: 1 << 16}))
	defer pool.ResetPinned()
	assert.Equal(t, 5, testutil.CollectAndCount(c))
	assert.Equal(t, 1, testutil.CollectAndCount(c, "hioload_mem_pool_capacity_bytes"))
}
