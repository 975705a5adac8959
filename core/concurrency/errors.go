// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Error definitions for concurrency module.

package concurrency

import "github.com/momentics/hioload-mem/api"

var (
	// ErrExecutorClosed indicates the pool has been shut down.
	ErrExecutorClosed = api.NewError(api.ErrCodeUnavailable, "thread pool is closed")

	// ErrInvalidWorkerCount indicates invalid worker count configuration.
	ErrInvalidWorkerCount = api.NewError(api.ErrCodeInvalidArgument, "Thread pool must have at least one thread")

	// ErrWorkQueueNotInitialized is returned by AddAsyncTask before InitAsyncWorkQueue.
	ErrWorkQueueNotInitialized = api.NewError(api.ErrCodeUnavailable, "Async work queue must be initialized before adding task")
)
