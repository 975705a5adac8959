// File: api/executor.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Executor contract for background task dispatch.

package api

// Executor abstracts a pool of workers running fire-and-forget tasks.
type Executor interface {
	// Submit schedules task for execution.
	Submit(task func()) error

	// NumWorkers returns the number of worker routines.
	NumWorkers() int

	// Close stops accepting work, drains queued tasks and joins workers.
	Close()
}
