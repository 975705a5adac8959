// File: core/concurrency/threadpool.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// ThreadPool runs fire-and-forget tasks on a fixed set of worker goroutines.
// Tasks wait in one FIFO guarded by a mutex; enqueue wakes exactly one idle
// worker. Close drains the queue before workers exit.

package concurrency

import (
	"runtime"
	"sync"

	"github.com/eapache/queue"
	"k8s.io/klog/v2"

	"github.com/momentics/hioload-mem/affinity"
	"github.com/momentics/hioload-mem/api"
)

type TaskFunc func()

// Option configures a ThreadPool.
type Option func(*ThreadPool)

// WithHostPolicy locks every worker to its OS thread and applies the NUMA
// host policy to that thread before it runs any task.
func WithHostPolicy(policy api.HostPolicy) Option {
	return func(p *ThreadPool) {
		p.policy = policy
	}
}

// WithName sets the name used in log lines.
func WithName(name string) Option {
	return func(p *ThreadPool) {
		p.name = name
	}
}

// ThreadPool is a fixed-size worker pool.
type ThreadPool struct {
	mu    sync.Mutex
	cond  *sync.Cond
	tasks *queue.Queue
	stop  bool

	workers int
	wg      sync.WaitGroup
	name    string
	policy  api.HostPolicy
}

var _ api.Executor = (*ThreadPool)(nil)

// NewThreadPool starts n workers. n must be positive.
func NewThreadPool(n int, opts ...Option) (*ThreadPool, error) {
	if n <= 0 {
		return nil, ErrInvalidWorkerCount
	}
	p := &ThreadPool{
		tasks:   queue.New(),
		workers: n,
		name:    "threadpool",
	}
	p.cond = sync.NewCond(&p.mu)
	for _, opt := range opts {
		opt(p)
	}
	p.wg.Add(n)
	for i := 0; i < n; i++ {
		go p.run(i)
	}
	return p, nil
}

// Enqueue appends task and wakes one worker. Tasks enqueued after Close has
// begun are dropped.
func (p *ThreadPool) Enqueue(task TaskFunc) {
	_ = p.Submit(task)
}

// Submit is Enqueue reporting ErrExecutorClosed for dropped tasks.
func (p *ThreadPool) Submit(task func()) error {
	p.mu.Lock()
	if p.stop {
		p.mu.Unlock()
		return ErrExecutorClosed
	}
	p.tasks.Add(TaskFunc(task))
	p.mu.Unlock()
	p.cond.Signal()
	return nil
}

// NumWorkers returns the fixed worker count.
func (p *ThreadPool) NumWorkers() int {
	return p.workers
}

// Pending returns the number of queued tasks not yet picked up.
func (p *ThreadPool) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tasks.Length()
}

// Close stops the pool after every queued task has run. Safe to call twice.
func (p *ThreadPool) Close() {
	p.mu.Lock()
	p.stop = true
	p.mu.Unlock()
	p.cond.Broadcast()
	p.wg.Wait()
}

func (p *ThreadPool) run(id int) {
	defer p.wg.Done()
	if p.policy != nil {
		runtime.LockOSThread()
		if err := affinity.SetNUMAConfigOnThread(p.policy); err != nil {
			klog.Warningf("[%s] worker %d: unable to apply host policy: %v", p.name, id, err)
		}
	}
	for {
		p.mu.Lock()
		for !p.stop && p.tasks.Length() == 0 {
			p.cond.Wait()
		}
		if p.tasks.Length() == 0 {
			// stopped and drained
			p.mu.Unlock()
			return
		}
		task := p.tasks.Remove().(TaskFunc)
		p.mu.Unlock()
		p.safeExecute(id, task)
	}
}

func (p *ThreadPool) safeExecute(id int, task TaskFunc) {
	defer func() {
		if r := recover(); r != nil {
			klog.Errorf("[%s] worker %d: task panicked: %v", p.name, id, r)
		}
	}()
	task()
}
