// ============================================================================
// Beaver-Chat Worker Pool - Bounded Concurrent Job Executor
// ============================================================================
//
// Package: internal/worker
// File: worker_pool.go
// Function: Owns a fixed number of Worker goroutines and one unbounded FIFO
// of submitted jobs.
//
// Architecture:
//   ┌─────────────┐
//   │ accept loop │ --Submit()--> submitCh
//   └─────────────┘                  │
//                               ┌────▼────┐
//                               │  feed() │  pending []Job (unbounded)
//                               └────┬────┘
//   ┌─────────────┐                  │
//   │   Pool      │                  ▼
//   │  ┌────────┐ │               taskCh
//   │  │Worker 0│←──────────────────┤
//   │  │Worker 1│←──────────────────┤
//   │  │Worker N│←──────────────────┘
//   │  └────────┘ │
//   └─────────────┘
//
// Lifecycle:
//   1. NewPool(n) - validate n, start the feeder and n Worker goroutines
//   2. Submit(job) - hand the job to the feeder; never waits for a free worker
//   3. Stop() - close submitCh; the feeder drains pending into taskCh and
//      closes it; workers finish every queued job and exit; Stop waits for all
//
// Concurrency Control:
//   - submitCh: unbuffered, always serviced by feed() so Submit returns as
//     soon as the job is queued
//   - mu: RLock held by Submit across the send, Lock held by Stop while
//     closing submitCh, so a send never races a close
//   - wg: tracks the feeder and every Worker for Stop()
//
// Error Handling:
//   - ErrInvalidPoolSize: NewPool called with fewer than one worker
//   - ErrPoolClosed: Submit after Stop
//   - Job panics are contained by Worker.execute
//
// ============================================================================

package worker

import (
	"errors"
	"log/slog"
	"sync"
)

var log = slog.Default()

var (
	// ErrPoolClosed is returned by Submit once Stop has been called
	ErrPoolClosed = errors.New("worker pool is closed")
	// ErrInvalidPoolSize is returned by NewPool when size < 1
	ErrInvalidPoolSize = errors.New("worker pool size must be at least 1")
)

// Pool represents a fixed set of workers sharing one job queue
type Pool struct {
	workers  []*Worker
	submitCh chan Job // Submit -> feeder
	taskCh   chan Job // feeder -> workers
	wg       sync.WaitGroup
	observer Observer

	mu      sync.RWMutex // guards stopped and the close of submitCh
	stopped bool

	pendingMu sync.Mutex
	pending   int // jobs queued but not yet handed to a worker
}

// NewPool creates a pool of size workers and starts them.
func NewPool(size int, opts ...Option) (*Pool, error) {
	if size < 1 {
		return nil, ErrInvalidPoolSize
	}

	p := &Pool{
		workers:  make([]*Worker, 0, size),
		submitCh: make(chan Job),
		taskCh:   make(chan Job),
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(p)
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.feed()
	}()

	for i := 0; i < size; i++ {
		w := newWorker(i, p.taskCh, p.observer)
		p.workers = append(p.workers, w)

		p.wg.Add(1)
		go func(w *Worker) {
			defer p.wg.Done()
			w.Run()
		}(w)
	}

	log.Debug("Starting worker pool", "workers", size)
	return p, nil
}

// Submit enqueues job for execution by whichever worker becomes idle next.
// Safe for concurrent use.
func (p *Pool) Submit(job Job) error {
	if job == nil {
		return errors.New("nil job")
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.stopped {
		return ErrPoolClosed
	}

	p.submitCh <- job
	return nil
}

// Go submits fn as a job.
func (p *Pool) Go(fn func()) error {
	if fn == nil {
		return errors.New("nil job")
	}
	return p.Submit(JobFunc(fn))
}

// feed moves jobs from submitCh into an unbounded FIFO and hands them to
// workers in order. It closes taskCh once submitCh is closed and the FIFO
// is empty.
func (p *Pool) feed() {
	defer close(p.taskCh)

	var queue []Job
	in := p.submitCh

	for in != nil || len(queue) > 0 {
		var out chan<- Job
		var next Job
		if len(queue) > 0 {
			out = p.taskCh
			next = queue[0]
		}

		select {
		case job, ok := <-in:
			if !ok {
				in = nil
				continue
			}
			queue = append(queue, job)
		case out <- next:
			queue[0] = nil
			queue = queue[1:]
		}

		p.setPending(len(queue))
	}
}

func (p *Pool) setPending(n int) {
	p.pendingMu.Lock()
	p.pending = n
	p.pendingMu.Unlock()
	p.observer.QueueDepth(n)
}

// Stop closes the pool to new jobs, waits for every queued job to run, and
// returns once every worker goroutine has exited. Calling Stop more than
// once is a no-op.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.submitCh)
	p.mu.Unlock()

	for _, w := range p.workers {
		log.Debug("Shutting down worker", "worker", w.id)
	}
	p.wg.Wait()
}

// WorkerCount returns the number of workers owned by the pool
func (p *Pool) WorkerCount() int {
	return len(p.workers)
}

// Pending returns the number of jobs waiting for a free worker
func (p *Pool) Pending() int {
	p.pendingMu.Lock()
	defer p.pendingMu.Unlock()
	return p.pending
}

// IsStopped reports whether Stop has been called
func (p *Pool) IsStopped() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.stopped
}
