package affinity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-mem/api"
)

func TestParseCPUCores(t *testing.T) {
	set, err := ParseCPUCores("0-2,5")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 5}, set.List())

	set, err = ParseCPUCores(" 3 ")
	require.NoError(t, err)
	assert.Equal(t, []int{3}, set.List())

	for _, bad := range []string{"0-", "a", "1,,2", "4-2", ""} {
		_, err := ParseCPUCores(bad)
		require.Error(t, err, bad)
		assert.ErrorIs(t, err, api.ErrInvalidArgument, bad)
	}

	_, err = ParseCPUCores("1,0-")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"0-"`)
}

func TestParseNUMANode(t *testing.T) {
	n, err := ParseNUMANode("1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = ParseNUMANode("node0")
	assert.ErrorIs(t, err, api.ErrInvalidArgument)
	_, err = ParseNUMANode("-1")
	assert.ErrorIs(t, err, api.ErrInvalidArgument)
}

func TestSetNUMAMemoryPolicyRejectsBadNode(t *testing.T) {
	err := SetNUMAMemoryPolicy(api.HostPolicy{api.HostPolicyNUMANode: "x"})
	assert.ErrorIs(t, err, api.ErrInvalidArgument)
	assert.NoError(t, SetNUMAMemoryPolicy(api.HostPolicy{}))
}

func TestSetNUMAThreadAffinityRejectsBadCores(t *testing.T) {
	err := SetNUMAThreadAffinity(0, api.HostPolicy{api.HostPolicyCPUCores: "0-"})
	assert.ErrorIs(t, err, api.ErrInvalidArgument)
	assert.NoError(t, SetNUMAThreadAffinity(0, nil))
}

func TestNodeMask(t *testing.T) {
	assert.Equal(t, uint64(0), NodeMask())
	assert.Equal(t, uint64(0b101), NodeMask(0, 2))
}
