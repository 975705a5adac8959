package device_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-mem/api"
	"github.com/momentics/hioload-mem/device"
	"github.com/momentics/hioload-mem/fake"
)

func mixedSim() *device.SimRuntime {
	return device.NewSimRuntime(device.SimConfig{Devices: []device.SimDevice{
		{Name: "old", Major: 5, Minor: 2, TotalMemory: 1 << 20},
		{Name: "new", Major: 8, Minor: 6, TotalMemory: 1 << 20},
		{Name: "edge", Major: 6, Minor: 0, TotalMemory: 1 << 20, Integrated: true, CanMapHostMemory: true},
	}})
}

func TestComputeCapabilityAndCompatibility(t *testing.T) {
	rt := mixedSim()
	cc, err := device.ComputeCapability(rt, 1)
	require.NoError(t, err)
	assert.InDelta(t, 8.6, cc, 1e-9)

	assert.ErrorIs(t, device.CheckGPUCompatibility(rt, 0, 6.0), api.ErrUnsupported)
	assert.NoError(t, device.CheckGPUCompatibility(rt, 2, 6.0))
	assert.ErrorIs(t, device.CheckGPUCompatibility(rt, 9, 6.0), api.ErrInternal)

	_, err = device.ComputeCapability(nil, 0)
	assert.ErrorIs(t, err, api.ErrInternal)
}

func TestSupportedGPUs(t *testing.T) {
	ids, err := device.SupportedGPUs(mixedSim(), 6.0)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, ids)

	ids, err = device.SupportedGPUs(nil, 6.0)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestEnablePeerAccess(t *testing.T) {
	sim := device.NewSimRuntime(device.DefaultSimConfig(3))
	require.NoError(t, device.EnablePeerAccess(sim, 6.0))
	for a := 0; a < 3; a++ {
		for b := 0; b < 3; b++ {
			if a != b {
				assert.True(t, sim.PeerAccessEnabled(a, b))
			}
		}
	}
	// already enabled pairs are not failures
	require.NoError(t, device.EnablePeerAccess(sim, 6.0))
}

func TestEnablePeerAccessPartialFailure(t *testing.T) {
	sim := device.NewSimRuntime(device.DefaultSimConfig(3))
	rt := fake.Wrap(sim)
	rt.FailPeer(0, 2, fake.Failure(fake.OpEnablePeer, "peer mapping resources exhausted"))

	err := device.EnablePeerAccess(rt, 6.0)
	require.ErrorIs(t, err, api.ErrUnsupported)
	assert.Equal(t, "failed to enable peer access for some device pairs", err.Error())
	assert.True(t, sim.PeerAccessEnabled(0, 1))
	assert.True(t, sim.PeerAccessEnabled(2, 0))
	assert.False(t, sim.PeerAccessEnabled(0, 2))
}

func TestEnablePeerAccessWithoutPeers(t *testing.T) {
	cfg := device.DefaultSimConfig(2)
	cfg.NoPeerAccess = true
	assert.ErrorIs(t, device.EnablePeerAccess(device.NewSimRuntime(cfg), 6.0), api.ErrUnsupported)
	assert.NoError(t, device.EnablePeerAccess(nil, 6.0))
}

func TestSupportsIntegratedZeroCopy(t *testing.T) {
	rt := mixedSim()
	ok, err := device.SupportsIntegratedZeroCopy(rt, 2)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = device.SupportsIntegratedZeroCopy(rt, 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeviceMemoryInfo(t *testing.T) {
	rt := mixedSim()
	free, total, err := device.DeviceMemoryInfo(rt, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(1<<20), total)
	assert.Equal(t, total, free)
}

func TestDefaultRuntimeOverride(t *testing.T) {
	sim := device.NewSimRuntime(device.DefaultSimConfig(1))
	restore := device.SetDefault(sim)
	assert.Same(t, sim, device.Default())
	restore()

	restore = device.SetDefault(nil)
	defer restore()
	assert.Nil(t, device.Default())
}
