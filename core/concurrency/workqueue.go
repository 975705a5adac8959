// File: core/concurrency/workqueue.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Process-wide asynchronous work queue. It is a ThreadPool created once by
// InitAsyncWorkQueue and torn down only by ResetAsyncWorkQueue.

package concurrency

import (
	"sync"

	"k8s.io/klog/v2"

	"github.com/momentics/hioload-mem/api"
)

var (
	asyncMu   sync.RWMutex
	asyncPool *ThreadPool
)

// InitAsyncWorkQueue creates the process work queue with workers goroutines.
// A second call fails with AlreadyExists and reports the current size.
func InitAsyncWorkQueue(workers int, opts ...Option) error {
	if workers < 1 {
		return api.NewError(api.ErrCodeInvalidArgument,
			"Async work queue must be initialized with positive 'worker_count'")
	}
	asyncMu.Lock()
	defer asyncMu.Unlock()
	if asyncPool != nil {
		return api.Errorf(api.ErrCodeAlreadyExists,
			"Async work queue has been initialized with %d 'worker_count'", asyncPool.NumWorkers())
	}
	p, err := NewThreadPool(workers, append([]Option{WithName("async-work-queue")}, opts...)...)
	if err != nil {
		return err
	}
	asyncPool = p
	klog.V(1).Infof("[async-work-queue] started with %d workers", workers)
	return nil
}

// AsyncWorkerCount returns the worker count, or 0 before initialization.
func AsyncWorkerCount() int {
	asyncMu.RLock()
	defer asyncMu.RUnlock()
	if asyncPool == nil {
		return 0
	}
	return asyncPool.NumWorkers()
}

// AddAsyncTask enqueues task on the process work queue.
func AddAsyncTask(task func()) error {
	asyncMu.RLock()
	defer asyncMu.RUnlock()
	if asyncPool == nil {
		return ErrWorkQueueNotInitialized
	}
	return asyncPool.Submit(task)
}

// ResetAsyncWorkQueue drains and stops the process work queue. Tests only.
func ResetAsyncWorkQueue() {
	asyncMu.Lock()
	p := asyncPool
	asyncPool = nil
	asyncMu.Unlock()
	if p != nil {
		p.Close()
	}
}
