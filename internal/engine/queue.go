package engine

import (
	"sync"

	"github.com/roach88/tierfold/internal/ir"
)

// compileJob is a queued background tier-up request.
type compileJob struct {
	Function string
	Version  int64
	Feedback []ir.Type // snapshot taken when the request was made
	Trigger  Trigger
}

// jobQueue is a thread-safe FIFO queue of compile jobs.
//
// Calls enqueue from any goroutine while the Run loop dequeues. The queue
// uses a channel for signaling so the Run loop can wait on it alongside
// context cancellation.
type jobQueue struct {
	mu     sync.Mutex
	jobs   []compileJob
	closed bool
	signal chan struct{} // buffered, size 1
}

func newJobQueue() *jobQueue {
	return &jobQueue{
		jobs:   make([]compileJob, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds a job to the back of the queue.
// Returns false if the queue is closed.
func (q *jobQueue) Enqueue(j compileJob) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.jobs = append(q.jobs, j)

	// Non-blocking: the buffer of 1 coalesces multiple signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue attempts to dequeue without blocking.
// Returns (compileJob{}, false) if the queue is empty.
func (q *jobQueue) TryDequeue() (compileJob, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.jobs) == 0 {
		return compileJob{}, false
	}

	j := q.jobs[0]
	q.jobs[0] = compileJob{}
	if len(q.jobs) == 1 {
		q.jobs = q.jobs[:0]
	} else {
		q.jobs = q.jobs[1:]
	}

	return j, true
}

// Wait returns a channel that signals when jobs may be available.
// The channel is closed once the queue is closed.
func (q *jobQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *jobQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// Close signals that no more jobs will be enqueued and wakes waiters.
func (q *jobQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
