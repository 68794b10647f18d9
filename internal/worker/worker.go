// ============================================================================
// Beaver-Chat Worker - Job Execution Unit
// ============================================================================
//
// Package: internal/worker
// File: worker.go
// Function: Each Worker owns one goroutine and runs jobs pulled from the
// pool's shared task channel until that channel is closed and drained.
//
// Execution Model:
//   ┌─────────────────────────────────────┐
//   │  Worker Goroutine                   │
//   │  ┌──────────────────────────────┐   │
//   │  │ for job := range taskCh      │   │
//   │  │   ├─ observer.JobStarted     │   │
//   │  │   ├─ execute(job) + recover  │   │
//   │  │   └─ observer.JobFinished    │   │
//   │  └──────────────────────────────┘   │
//   └─────────────────────────────────────┘
//
// Fault Isolation:
//   A panic raised by a job is recovered inside execute(), logged with the
//   worker id and stack trace, and reported as panicked. The worker then
//   continues with the next job, so pool capacity never shrinks.
//
// ============================================================================

package worker

import (
	"runtime/debug"
	"time"
)

// Worker represents a work execution unit
type Worker struct {
	id       int        // Worker ordinal, used for logging and metrics
	taskCh   <-chan Job // Shared task channel (read-only)
	observer Observer
}

// newWorker creates a new Worker instance
func newWorker(id int, taskCh <-chan Job, observer Observer) *Worker {
	return &Worker{
		id:       id,
		taskCh:   taskCh,
		observer: observer,
	}
}

// Run is the main loop of Worker. It returns once taskCh is closed and empty.
func (w *Worker) Run() {
	log.Debug("Worker started", "worker", w.id)

	for job := range w.taskCh {
		w.observer.JobStarted(w.id)

		start := time.Now()
		panicked := w.execute(job)

		w.observer.JobFinished(w.id, time.Since(start), panicked)
	}

	log.Debug("Worker shutting down", "worker", w.id)
}

// execute runs a single job and reports whether it panicked.
func (w *Worker) execute(job Job) (panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			log.Error("Recovered from panic in job",
				"worker", w.id,
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
	}()

	job.Execute()
	return false
}
