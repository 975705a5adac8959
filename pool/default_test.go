package pool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-mem/api"
	"github.com/momentics/hioload-mem/device"
)

func TestPinnedSingletonLifecycle(t *testing.T) {
	restore := device.SetDefault(device.NewSimRuntime(device.DefaultSimConfig(1)))
	defer restore()
	ResetPinned()
	t.Cleanup(ResetPinned)

	_, _, err := PinnedAlloc(8, true)
	assert.ErrorIs(t, err, api.ErrUnavailable)
	assert.ErrorIs(t, PinnedFree([]byte{1}), api.ErrUnavailable)

	require.NoError(t, CreatePinned(PinnedOptions{ByteSize: 2048}))
	first := PinnedManager()
	require.NoError(t, CreatePinned(PinnedOptions{ByteSize: 1 << 20}))
	assert.Same(t, first, PinnedManager())
	assert.Equal(t, uint64(2048), PinnedManager().ByteSize())
	assert.Equal(t, []uint64{0}, PinnedManager().NodeMasks())

	buf, mt, err := PinnedAlloc(100, false)
	require.NoError(t, err)
	assert.Equal(t, api.MemoryCPUPinned, mt)
	require.Len(t, Stats(), 1)
	require.NoError(t, PinnedFree(buf))
	assert.ErrorIs(t, PinnedFree(buf), api.ErrNotFound)
}

func TestDeviceSingletonLifecycle(t *testing.T) {
	sim := device.NewSimRuntime(device.DefaultSimConfig(2))
	restore := device.SetDefault(sim)
	defer restore()
	ResetDevice()
	t.Cleanup(ResetDevice)

	_, err := DeviceAlloc(8, 0)
	assert.ErrorIs(t, err, api.ErrUnavailable)

	opts := DeviceOptions{MinComputeCapability: 6.0, MemoryPoolByteSize: map[int]uint64{1: 4096}}
	require.NoError(t, CreateDevice(opts))
	require.NoError(t, CreateDevice(DeviceOptions{MemoryPoolByteSize: map[int]uint64{0: 4096}}))
	assert.Equal(t, []int{1}, DeviceManager().Devices())

	buf, err := DeviceAlloc(64, 1)
	require.NoError(t, err)
	require.NoError(t, DeviceFree(buf, 1))
	assert.ErrorIs(t, DeviceFree(buf, 1), api.ErrNotFound)

	ResetDevice()
	assert.Equal(t, 0, sim.LiveAllocations())
	assert.Nil(t, DeviceManager())
}
