package device

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimMallocAccountsCapacity(t *testing.T) {
	rt := NewSimRuntime(SimConfig{Devices: []SimDevice{{Major: 7, TotalMemory: 1024}}})

	buf, err := rt.Malloc(1000)
	require.NoError(t, err)
	require.Len(t, buf, 1000)

	_, err = rt.Malloc(100)
	require.Error(t, err)
	var rerr *Error
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, CodeMemoryAllocation, rerr.Code)
	assert.Equal(t, "out of memory", rerr.Diagnostic())

	free, total, err := rt.MemGetInfo()
	require.NoError(t, err)
	assert.Equal(t, uint64(24), free)
	assert.Equal(t, uint64(1024), total)

	require.NoError(t, rt.Free(buf))
	assert.Error(t, rt.Free(buf), "double free must be rejected")
	assert.Equal(t, 0, rt.LiveAllocations())
}

func TestSimHostAllocIsNotDeviceMemory(t *testing.T) {
	rt := NewSimRuntime(SimConfig{Devices: []SimDevice{{TotalMemory: 1 << 20}}, HostMemoryLimit: 64})
	h, err := rt.HostAlloc(64)
	require.NoError(t, err)
	_, err = rt.HostAlloc(1)
	assert.Error(t, err)

	assert.Error(t, rt.Free(h), "host memory freed as device memory")
	require.NoError(t, rt.FreeHost(h))
	assert.Equal(t, uint64(0), rt.Stats().PinnedHostBytesInUse)
}

func TestSimCurrentDeviceIsPerThread(t *testing.T) {
	rt := NewSimRuntime(DefaultSimConfig(2))

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	require.NoError(t, rt.SetDevice(1))
	cur, err := rt.GetDevice()
	require.NoError(t, err)
	assert.Equal(t, 1, cur)

	other := make(chan int)
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		d, _ := rt.GetDevice()
		other <- d
	}()
	if threadID() != 0 {
		assert.Equal(t, 0, <-other)
	} else {
		<-other
	}
	assert.Error(t, rt.SetDevice(2))
}

func TestSimStreamRunsWorkInOrder(t *testing.T) {
	rt := NewSimRuntime(DefaultSimConfig(1))
	st, err := rt.NewStream()
	require.NoError(t, err)

	src := []byte("ordered")
	dst := make([]byte, len(src))
	var seen []byte
	require.NoError(t, rt.MemcpyAsync(dst, src, st))
	require.NoError(t, rt.LaunchHostFunc(st, func() { seen = append([]byte(nil), dst...) }))
	require.NoError(t, st.Synchronize())
	assert.Equal(t, src, seen)

	require.NoError(t, st.Destroy())
	assert.Error(t, rt.MemcpyAsync(dst, src, st))
	assert.Error(t, rt.MemcpyAsync(make([]byte, 1), src, nil))
}

func TestSimPeerAccess(t *testing.T) {
	rt := NewSimRuntime(DefaultSimConfig(2))
	can, err := rt.CanAccessPeer(0, 1)
	require.NoError(t, err)
	assert.True(t, can)

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	require.NoError(t, rt.SetDevice(0))
	require.NoError(t, rt.EnablePeerAccess(1))
	assert.True(t, IsPeerAccessAlreadyEnabled(rt.EnablePeerAccess(1)))
	assert.True(t, rt.PeerAccessEnabled(0, 1))
	assert.False(t, rt.PeerAccessEnabled(1, 0))
}
