package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-mem/api"
)

// scriptedTiers serves or refuses each tier and records frees.
type scriptedTiers struct {
	deviceErr, pinnedErr, heapErr error
	pinnedType                    api.MemoryType
	freed                         []string
}

func (s *scriptedTiers) DeviceAlloc(size int, id int) ([]byte, error) {
	if s.deviceErr != nil {
		return nil, s.deviceErr
	}
	return make([]byte, size), nil
}

func (s *scriptedTiers) DeviceFree([]byte, int) error {
	s.freed = append(s.freed, "device")
	return nil
}

func (s *scriptedTiers) PinnedAlloc(size int, fallback bool) ([]byte, api.MemoryType, error) {
	if s.pinnedErr != nil {
		return nil, api.MemoryCPU, s.pinnedErr
	}
	return make([]byte, size), s.pinnedType, nil
}

func (s *scriptedTiers) PinnedFree([]byte) error {
	s.freed = append(s.freed, "pinned")
	return nil
}

func (s *scriptedTiers) HeapAlloc(size int) ([]byte, error) {
	if s.heapErr != nil {
		return nil, s.heapErr
	}
	return make([]byte, size), nil
}

var errUnavailable = api.NewError(api.ErrCodeUnavailable, "tier unavailable")

func TestAllocatedCascade(t *testing.T) {
	cases := []struct {
		name      string
		tiers     *scriptedTiers
		requested api.MemoryType
		want      api.MemoryType
		freed     []string
	}{
		{"gpu served by device", &scriptedTiers{pinnedType: api.MemoryCPUPinned}, api.MemoryGPU, api.MemoryGPU, []string{"device"}},
		{"gpu falls back to pinned", &scriptedTiers{deviceErr: errUnavailable, pinnedType: api.MemoryCPUPinned}, api.MemoryGPU, api.MemoryCPUPinned, []string{"pinned"}},
		{"gpu falls back to pinned heap", &scriptedTiers{deviceErr: errUnavailable, pinnedType: api.MemoryCPU}, api.MemoryGPU, api.MemoryCPU, []string{"pinned"}},
		{"gpu falls back to heap", &scriptedTiers{deviceErr: errUnavailable, pinnedErr: errUnavailable}, api.MemoryGPU, api.MemoryCPU, nil},
		{"pinned request", &scriptedTiers{pinnedType: api.MemoryCPUPinned}, api.MemoryCPUPinned, api.MemoryCPUPinned, []string{"pinned"}},
		{"cpu request goes through pinned manager", &scriptedTiers{pinnedType: api.MemoryCPU}, api.MemoryCPU, api.MemoryCPU, []string{"pinned"}},
		{"cpu request without pinned manager", &scriptedTiers{pinnedErr: errUnavailable}, api.MemoryCPU, api.MemoryCPU, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := NewAllocatedWith(tc.tiers, 256, tc.requested, 1)
			require.NoError(t, a.Err())
			assert.Equal(t, 256, a.TotalByteSize())
			assert.Equal(t, 1, a.BufferCount())

			buf, attr := a.BufferAt(0)
			assert.Len(t, buf, 256)
			assert.Equal(t, tc.want, attr.MemoryType)
			assert.Equal(t, int64(1), attr.MemoryTypeID)

			a.Release()
			a.Release()
			assert.Equal(t, tc.freed, tc.tiers.freed)
			assert.Equal(t, 0, a.TotalByteSize())
		})
	}
}

func TestAllocatedAllTiersFail(t *testing.T) {
	heapErr := api.NewError(api.ErrCodeInternal, "heap exhausted")
	tiers := &scriptedTiers{deviceErr: errUnavailable, pinnedErr: errUnavailable, heapErr: heapErr}
	a := NewAllocatedWith(tiers, 64, api.MemoryGPU, 0)
	assert.Equal(t, 0, a.TotalByteSize())
	assert.Equal(t, 0, a.BufferCount())
	buf, _ := a.BufferAt(0)
	assert.Nil(t, buf)
	assert.Same(t, heapErr, a.Err())
	a.Release()
	assert.Empty(t, tiers.freed)
}

func TestAllocatedZeroSize(t *testing.T) {
	tiers := &scriptedTiers{}
	a := NewAllocatedWith(tiers, 0, api.MemoryCPUPinned, 0)
	assert.Equal(t, 0, a.TotalByteSize())
	assert.NoError(t, a.Err())
	a.Release()
	assert.Empty(t, tiers.freed)
}

func TestReferenceProvider(t *testing.T) {
	r := NewReference()
	assert.Equal(t, 0, r.BufferCount())

	idx := r.AddBuffer([]byte("abc"), api.MemoryCPU, 0)
	assert.Equal(t, 0, idx)
	gpu := api.NewBufferAttributes(10, api.MemoryGPU, 2)
	gpu.SetCUDAIPCHandle([]byte{7})
	assert.Equal(t, 1, r.AddBufferAttributes(make([]byte, 10), gpu))
	r.AddBufferFront([]byte("zz"), api.MemoryCPUPinned, 0)

	assert.Equal(t, 3, r.BufferCount())
	assert.Equal(t, 15, r.TotalByteSize())

	buf, attr := r.BufferAt(0)
	assert.Equal(t, []byte("zz"), buf)
	assert.Equal(t, api.MemoryCPUPinned, attr.MemoryType)
	_, attr = r.BufferAt(2)
	assert.Equal(t, api.MemoryGPU, attr.MemoryType)
	assert.Equal(t, byte(7), attr.CUDAIPCHandle()[0])

	for _, bad := range []int{-1, 3} {
		buf, attr := r.BufferAt(bad)
		assert.Nil(t, buf)
		assert.Equal(t, api.BufferAttributes{}, attr)
		assert.Nil(t, r.AttributesAt(bad))
	}

	r.AttributesAt(1).MemoryTypeID = 9
	_, attr = r.BufferAt(1)
	assert.Equal(t, int64(9), attr.MemoryTypeID)
}

func TestMutableProvider(t *testing.T) {
	data := []byte("payload")
	m := NewMutable(data, api.MemoryCPU, 0)
	assert.Equal(t, 1, m.BufferCount())
	assert.Equal(t, 7, m.TotalByteSize())

	buf, mt, id := m.MutableBuffer()
	buf[0] = 'P'
	assert.Equal(t, byte('P'), data[0])
	assert.Equal(t, api.MemoryCPU, mt)
	assert.Equal(t, int64(0), id)

	got, _ := m.BufferAt(1)
	assert.Nil(t, got)
	assert.Equal(t, 0, NewMutable(nil, api.MemoryGPU, 0).BufferCount())
}
