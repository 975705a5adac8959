package facade

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-mem/api"
	"github.com/momentics/hioload-mem/control"
	"github.com/momentics/hioload-mem/core/concurrency"
	"github.com/momentics/hioload-mem/device"
	"github.com/momentics/hioload-mem/pool"
)

func simConfig() *control.Config {
	cfg := control.DefaultConfig()
	cfg.PinnedMemoryPoolByteSize = 1 << 20
	cfg.CUDAMemoryPoolByteSize = map[int]control.ByteSize{0: 1 << 20, 1: 1 << 20}
	cfg.AsyncWorkers = 2
	return cfg
}

func withSim(t *testing.T, n int) *device.SimRuntime {
	t.Helper()
	pool.ResetPinned()
	pool.ResetDevice()
	concurrency.ResetAsyncWorkQueue()
	sim := device.NewSimRuntime(device.DefaultSimConfig(n))
	restore := device.SetDefault(sim)
	t.Cleanup(restore)
	return sim
}

func TestNewAndShutdown(t *testing.T) {
	sim := withSim(t, 2)
	m, err := New(simConfig())
	require.NoError(t, err)

	assert.Equal(t, 2, concurrency.AsyncWorkerCount())
	assert.Equal(t, []int{0, 1}, pool.DeviceManager().Devices())
	assert.True(t, sim.PeerAccessEnabled(0, 1))
	assert.True(t, sim.PeerAccessEnabled(1, 0))
	assert.Len(t, m.Stats(), 3, "one pinned pool and two device pools")
	assert.Equal(t, 15, testutil.CollectAndCount(m.Collector()))
	assert.Same(t, sim, m.Runtime())

	require.NoError(t, m.Shutdown())
	require.NoError(t, m.Shutdown())
	assert.Nil(t, pool.PinnedManager())
	assert.Nil(t, pool.DeviceManager())
	assert.Equal(t, 0, concurrency.AsyncWorkerCount())
	assert.Equal(t, 0, sim.LiveAllocations())
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	withSim(t, 1)
	cfg := simConfig()
	cfg.AsyncWorkers = 0
	_, err := New(cfg)
	require.ErrorIs(t, err, api.ErrInvalidArgument)
	assert.Nil(t, pool.PinnedManager())
}

func TestNewTwiceFails(t *testing.T) {
	withSim(t, 1)
	m, err := New(simConfig())
	require.NoError(t, err)
	defer m.Shutdown()

	_, err = New(simConfig())
	require.ErrorIs(t, err, api.ErrAlreadyExists)
	assert.NotNil(t, pool.PinnedManager(), "the first facade keeps its pools")
}

func TestOutputsAndCopies(t *testing.T) {
	withSim(t, 1)
	m, err := New(simConfig())
	require.NoError(t, err)
	defer m.Shutdown()

	out := m.NewOutput("tokens")
	dst, mt, id, err := out.AllocateDataBuffer(512, api.MemoryGPU, 0)
	require.NoError(t, err)
	assert.Equal(t, api.MemoryGPU, mt)
	assert.Equal(t, int64(0), id)

	src := make([]byte, 512)
	for i := range src {
		src[i] = byte(i)
	}
	used, err := m.Copier().CopyBuffer("tokens", api.MemoryCPU, 0, api.MemoryGPU, 0, len(src), src, dst, nil, false)
	require.NoError(t, err)
	assert.True(t, used)
	assert.Equal(t, src, dst)
	require.NoError(t, out.ReleaseDataBuffer())
}

func TestDevicesAndProbes(t *testing.T) {
	withSim(t, 2)
	m, err := New(simConfig())
	require.NoError(t, err)
	defer m.Shutdown()

	infos, err := m.Devices(context.Background())
	require.NoError(t, err)
	require.Len(t, infos, 2)
	for i, info := range infos {
		assert.Equal(t, i, info.ID)
		assert.Equal(t, 8.0, info.ComputeCapability)
		assert.Equal(t, uint64(1<<30), info.TotalBytes)
		assert.Equal(t, uint64(1<<30-1<<20), info.FreeBytes, "device pool reserved")
		assert.False(t, info.ZeroCopy)
	}

	state := m.Debug().DumpState()
	assert.Len(t, state["devices"], 2)
	assert.Len(t, state["pools"], 3)
	assert.Equal(t, 2, m.Config().AsyncWorkers)
}

func TestNoRuntime(t *testing.T) {
	pool.ResetPinned()
	pool.ResetDevice()
	concurrency.ResetAsyncWorkQueue()
	t.Cleanup(device.SetDefault(nil))

	m, err := New(nil)
	require.NoError(t, err)
	defer m.Shutdown()
	infos, err := m.Devices(context.Background())
	require.NoError(t, err)
	assert.Empty(t, infos)
	assert.Empty(t, pool.DeviceManager().Devices())
}
