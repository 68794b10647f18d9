package worker

import "time"

// Job is a unit of deferred work. Once submitted, the pool owns it and runs it
// exactly once on some worker.
type Job interface {
	Execute()
}

// JobFunc adapts an ordinary function to the Job interface.
type JobFunc func()

// Execute calls f().
func (f JobFunc) Execute() { f() }

// Observer receives pool lifecycle events. Implementations must be safe for
// concurrent use since every worker reports through the same Observer.
type Observer interface {
	JobStarted(workerID int)
	JobFinished(workerID int, duration time.Duration, panicked bool)
	QueueDepth(n int)
}

type nopObserver struct{}

func (nopObserver) JobStarted(int)                       {}
func (nopObserver) JobFinished(int, time.Duration, bool) {}
func (nopObserver) QueueDepth(int)                       {}

// Option configures a Pool.
type Option func(*Pool)

// WithObserver attaches an Observer to the pool.
func WithObserver(o Observer) Option {
	return func(p *Pool) {
		if o != nil {
			p.observer = o
		}
	}
}
