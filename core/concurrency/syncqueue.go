// File: core/concurrency/syncqueue.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// SyncQueue is an unbounded FIFO safe for many producers and consumers.
// Get blocks until an element is available.

package concurrency

import (
	"context"
	"sync"

	"github.com/eapache/queue"
)

// SyncQueue is a blocking FIFO of T.
type SyncQueue[T any] struct {
	mu    sync.Mutex
	cond  *sync.Cond
	items *queue.Queue
}

// NewSyncQueue returns an empty queue.
func NewSyncQueue[T any]() *SyncQueue[T] {
	q := &SyncQueue[T]{items: queue.New()}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Put appends v and wakes one waiting consumer.
func (q *SyncQueue[T]) Put(v T) {
	q.mu.Lock()
	q.items.Add(v)
	q.mu.Unlock()
	q.cond.Signal()
}

// Get removes the head element, blocking while the queue is empty.
func (q *SyncQueue[T]) Get() T {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.items.Length() == 0 {
		q.cond.Wait()
	}
	return q.remove()
}

// GetContext is Get returning ctx.Err() if ctx ends first.
func (q *SyncQueue[T]) GetContext(ctx context.Context) (T, error) {
	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		q.mu.Unlock()
		q.cond.Broadcast()
	})
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()
	for q.items.Length() == 0 {
		if err := ctx.Err(); err != nil {
			var zero T
			return zero, err
		}
		q.cond.Wait()
	}
	return q.remove(), nil
}

// TryGet removes the head element if any.
func (q *SyncQueue[T]) TryGet() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.items.Length() == 0 {
		var zero T
		return zero, false
	}
	return q.remove(), true
}

// remove pops the head. A nil interface value stored for an interface T
// comes back as the zero T. Callers hold q.mu.
func (q *SyncQueue[T]) remove() T {
	v, _ := q.items.Remove().(T)
	return v
}

// Empty reports whether the queue holds no elements.
func (q *SyncQueue[T]) Empty() bool {
	return q.Len() == 0
}

// Len returns the number of queued elements.
func (q *SyncQueue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Length()
}
