// Package queue provides the in-process scheduler queue feeding the drift
// driver. Jobs carry a not-before time so retries with backoff reuse the
// same queue. Above the high-water mark Enqueue refuses with ErrBusy and
// the webhook layer answers retry-after upstream.
package queue

import (
	"container/heap"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrBusy signals backpressure: the queue is above its high-water mark.
var ErrBusy = errors.New("queue above high-water mark")

// Job is one unit of scheduled work.
type Job struct {
	ID      string
	Kind    string // drift_step, evaluate, notify
	Key     string // dedup/ordering key, e.g. the drift id
	Payload []byte
	RunAt   time.Time
	Attempt int
}

// Queue is a bounded min-heap on RunAt.
type Queue struct {
	mu        sync.Mutex
	cond      *sync.Cond
	jobs      jobHeap
	highWater int
	closed    bool
	clock     func() time.Time
}

// New creates a queue that refuses new work above highWater pending jobs.
func New(highWater int) *Queue {
	q := &Queue{highWater: highWater, clock: time.Now}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// WithClock overrides the clock for deterministic testing.
func (q *Queue) WithClock(clock func() time.Time) *Queue {
	q.clock = clock
	return q
}

// Enqueue schedules a job. A zero RunAt means immediately.
func (q *Queue) Enqueue(job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return errors.New("queue closed")
	}
	if q.highWater > 0 && q.jobs.Len() >= q.highWater {
		return ErrBusy
	}
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.RunAt.IsZero() {
		job.RunAt = q.clock()
	}
	heap.Push(&q.jobs, job)
	q.cond.Broadcast()
	return nil
}

// Dequeue blocks until a due job is available or ctx is done. Jobs become
// due when RunAt passes; the earliest due job wins.
func (q *Queue) Dequeue(ctx context.Context) (Job, error) {
	// Wake the waiter when the context ends; Cond has no native context
	// support.
	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		q.cond.Broadcast()
		q.mu.Unlock()
	})
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		if err := ctx.Err(); err != nil {
			return Job{}, err
		}
		if q.closed {
			return Job{}, errors.New("queue closed")
		}
		if q.jobs.Len() > 0 {
			next := q.jobs[0]
			now := q.clock()
			if !next.RunAt.After(now) {
				return heap.Pop(&q.jobs).(Job), nil
			}
			// Sleep until the head is due, releasing the lock meanwhile.
			wait := next.RunAt.Sub(now)
			timer := time.AfterFunc(wait, func() {
				q.mu.Lock()
				q.cond.Broadcast()
				q.mu.Unlock()
			})
			q.cond.Wait()
			timer.Stop()
			continue
		}
		q.cond.Wait()
	}
}

// Len returns the number of pending jobs.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.jobs.Len()
}

// Close wakes all waiters and refuses further work.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}

type jobHeap []Job

func (h jobHeap) Len() int            { return len(h) }
func (h jobHeap) Less(i, j int) bool  { return h[i].RunAt.Before(h[j].RunAt) }
func (h jobHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *jobHeap) Push(x interface{}) { *h = append(*h, x.(Job)) }
func (h *jobHeap) Pop() interface{} {
	old := *h
	n := len(old)
	job := old[n-1]
	*h = old[:n-1]
	return job
}
