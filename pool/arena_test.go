package pool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArenaFirstFitAndCoalesce(t *testing.T) {
	a := newArena(make([]byte, 1024), 64)

	b1 := a.alloc(10)
	b2 := a.alloc(100)
	b3 := a.alloc(64)
	require.NotNil(t, b1)
	require.NotNil(t, b2)
	require.NotNil(t, b3)
	assert.Len(t, b1, 10)
	assert.Equal(t, 10, cap(b1), "spans must not expose neighbouring blocks")
	assert.Equal(t, 0, a.offsetOf(b1))
	assert.Equal(t, 64, a.offsetOf(b2))
	assert.Equal(t, 192, a.offsetOf(b3))
	assert.Equal(t, 256, a.inUse())
	assert.Equal(t, 3, a.liveBlocks())

	require.True(t, a.release(b2))
	assert.False(t, a.release(b2), "double release")
	// freed hole is reused first
	b4 := a.alloc(128)
	assert.Equal(t, 64, a.offsetOf(b4))

	require.True(t, a.release(b1))
	require.True(t, a.release(b4))
	require.True(t, a.release(b3))
	assert.Equal(t, 0, a.inUse())
	assert.Equal(t, []extent{{off: 0, size: 1024}}, a.free)
}

func TestArenaExhaustionAndForeignSpans(t *testing.T) {
	a := newArena(make([]byte, 256), 64)
	assert.Nil(t, a.alloc(0))
	assert.Nil(t, a.alloc(257))

	full := a.alloc(256)
	require.NotNil(t, full)
	assert.Nil(t, a.alloc(1))
	assert.Equal(t, 0, a.largestFree())

	assert.False(t, a.release(make([]byte, 8)))
	assert.False(t, a.release(full[1:2]), "interior pointers are not blocks")
	assert.False(t, a.release(nil))
	assert.True(t, a.release(full))
	assert.Equal(t, 256, a.largestFree())
}

func TestArenaWithoutRegion(t *testing.T) {
	a := newArena(nil, 64)
	assert.Nil(t, a.alloc(1))
	assert.False(t, a.release([]byte{1}))
	assert.Equal(t, 0, a.capacity())
}
