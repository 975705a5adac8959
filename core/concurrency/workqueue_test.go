package concurrency

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-mem/api"
)

func TestAsyncWorkQueueLifecycle(t *testing.T) {
	ResetAsyncWorkQueue()
	t.Cleanup(ResetAsyncWorkQueue)

	assert.Equal(t, 0, AsyncWorkerCount())
	err := AddAsyncTask(func() {})
	assert.ErrorIs(t, err, api.ErrUnavailable)

	assert.ErrorIs(t, InitAsyncWorkQueue(0), api.ErrInvalidArgument)

	require.NoError(t, InitAsyncWorkQueue(2))
	assert.Equal(t, 2, AsyncWorkerCount())

	err = InitAsyncWorkQueue(3)
	require.ErrorIs(t, err, api.ErrAlreadyExists)
	assert.Contains(t, err.Error(), "2 'worker_count'")
	assert.Equal(t, 2, AsyncWorkerCount())

	results := NewSyncQueue[int]()
	for i := 0; i < 10; i++ {
		require.NoError(t, AddAsyncTask(func() { results.Put(i) }))
	}
	sum := 0
	for i := 0; i < 10; i++ {
		sum += results.Get()
	}
	assert.Equal(t, 45, sum)
}
