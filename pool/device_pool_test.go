package pool

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-mem/api"
	"github.com/momentics/hioload-mem/device"
	"github.com/momentics/hioload-mem/fake"
)

func threeGPUs() *device.SimRuntime {
	return device.NewSimRuntime(device.SimConfig{Devices: []device.SimDevice{
		{Major: 8, TotalMemory: 1 << 20},
		{Major: 5, TotalMemory: 1 << 20},
		{Major: 8, TotalMemory: 1 << 20},
	}})
}

func TestDeviceManagerCreatesConfiguredPools(t *testing.T) {
	sim := threeGPUs()
	m, err := NewDeviceMemoryManager(sim, DeviceOptions{
		MinComputeCapability: 6.0,
		MemoryPoolByteSize:   map[int]uint64{0: 4096, 1: 4096, 2: 0},
	})
	require.NoError(t, err)
	assert.Equal(t, []int{0}, m.Devices(), "device 1 is below capability and device 2 has size 0")
	assert.Equal(t, []uint64{4096, 0, 0}, sim.Stats().DeviceBytesInUse)

	buf, err := m.Alloc(1000, 0)
	require.NoError(t, err)
	assert.Len(t, buf, 1000)

	_, err = m.Alloc(1000, 2)
	assert.ErrorIs(t, err, api.ErrUnavailable)

	_, err = m.Alloc(8192, 0)
	require.ErrorIs(t, err, api.ErrInternal)
	assert.Contains(t, err.Error(), "byte size 8192 on GPU 0")

	require.NoError(t, m.Free(buf, 0))
	assert.ErrorIs(t, m.Free(buf, 0), api.ErrNotFound)

	m.Close()
	assert.Equal(t, 0, sim.LiveAllocations())
}

func TestDeviceManagerRestoresContext(t *testing.T) {
	sim := threeGPUs()
	m, err := NewDeviceMemoryManager(sim, DeviceOptions{MemoryPoolByteSize: map[int]uint64{0: 1024, 2: 1024}})
	require.NoError(t, err)
	defer m.Close()

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	require.NoError(t, sim.SetDevice(1))

	buf, err := m.Alloc(10, 2)
	require.NoError(t, err)
	cur, _ := sim.GetDevice()
	assert.Equal(t, 1, cur)

	_, err = m.Alloc(4096, 2)
	require.Error(t, err)
	cur, _ = sim.GetDevice()
	assert.Equal(t, 1, cur, "context restored after a failed allocation")

	require.NoError(t, m.Free(buf, 2))
	cur, _ = sim.GetDevice()
	assert.Equal(t, 1, cur)
}

func TestDeviceManagerWithoutPools(t *testing.T) {
	m, err := NewDeviceMemoryManager(threeGPUs(), DeviceOptions{})
	require.NoError(t, err)
	_, err = m.Alloc(10, 0)
	assert.ErrorIs(t, err, api.ErrUnavailable)
	assert.ErrorIs(t, m.Free([]byte{1}, 0), api.ErrUnavailable)

	m, err = NewDeviceMemoryManager(nil, DeviceOptions{MemoryPoolByteSize: map[int]uint64{0: 1024}})
	require.NoError(t, err)
	assert.Empty(t, m.Devices())

	var absent *DeviceMemoryManager
	_, err = absent.Alloc(1, 0)
	assert.ErrorIs(t, err, api.ErrUnavailable)
}

func TestDeviceManagerReservationFailureReleasesPools(t *testing.T) {
	sim := threeGPUs()
	rt := fake.Wrap(sim)
	rt.FailOn(fake.OpMalloc, fake.Failure(fake.OpMalloc, "out of memory"))
	m, err := NewDeviceMemoryManager(rt, DeviceOptions{MemoryPoolByteSize: map[int]uint64{0: 1024}})
	require.ErrorIs(t, err, api.ErrInternal)
	assert.Contains(t, err.Error(), "out of memory")
	assert.Nil(t, m)

	rt.Clear()

	m, err = NewDeviceMemoryManager(rt, DeviceOptions{MemoryPoolByteSize: map[int]uint64{0: 1024, 2: 1 << 30}})
	require.ErrorIs(t, err, api.ErrInternal)
	assert.Nil(t, m)
	assert.Equal(t, 0, sim.LiveAllocations(), "pool of device 0 released after device 2 failed")
}
