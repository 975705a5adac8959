// File: core/concurrency/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Concurrency primitives backing the asynchronous copy path: a fixed-size
// worker pool with optional NUMA host-policy pinning, a blocking FIFO
// SyncQueue and the process-wide asynchronous work queue.
package concurrency
