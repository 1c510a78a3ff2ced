// Package queue holds the bounded in-memory queue of guild fetch jobs.
package queue

import (
	"context"
	"fmt"
	"sync"

	"github.com/GungHo1205/manarion-guild-stats/internal/domain/model"
	"github.com/GungHo1205/manarion-guild-stats/pkg/metrics"
)

const defaultQueueCapacity = 1000

// Job is the payload flowing through the queue.
type Job = model.FetchJob

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a job. It fails with ErrQueueFull or ErrQueueClosed
	// instead of blocking.
	Enqueue(ctx context.Context, j Job) error

	// Dequeue returns the shared job channel. Consumers range over it
	// directly, so a job leaves the queue only when a consumer is ready to
	// process it. The channel is closed once the queue is closed and
	// drained; consumers watch their own ctx.
	Dequeue(ctx context.Context) <-chan Job

	// Taken records that a consumer received a job.
	Taken()

	// Len returns the current number of queued jobs.
	Len() int

	// Close stops accepting jobs. Queued jobs remain readable.
	Close() error
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	jobs     chan Job
	capacity int

	mu     sync.RWMutex
	closed bool
}

var _ Queue = (*InMemoryQueue)(nil)

// NewInMemoryQueue creates a new in-memory queue.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultQueueCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.jobs = make(chan Job, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	return q
}

// Enqueue adds a job to the queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, j Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordErrorByComponent("queue", "closed")
		return ErrQueueClosed
	}

	select {
	case q.jobs <- j:
		metrics.RecordQueueEnqueue()
		metrics.UpdateQueueSize(len(q.jobs))
		return nil
	case <-ctx.Done():
		metrics.RecordErrorByComponent("queue", "context_cancelled")
		return fmt.Errorf("enqueue guild %d: %w", j.Guild.ID, ctx.Err())
	default:
		metrics.RecordErrorByComponent("queue", "queue_full")
		return fmt.Errorf("%w: guild %d", ErrQueueFull, j.Guild.ID)
	}
}

// Dequeue returns the queue's job channel. Every call returns the same
// channel.
func (q *InMemoryQueue) Dequeue(_ context.Context) <-chan Job {
	return q.jobs
}

// Taken records that a consumer received a job from Dequeue.
func (q *InMemoryQueue) Taken() {
	metrics.RecordQueueDequeue()
	metrics.UpdateQueueSize(len(q.jobs))
}

// Len returns the current number of queued jobs.
func (q *InMemoryQueue) Len() int {
	return len(q.jobs)
}

// Close stops the queue from accepting jobs.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.jobs)
	q.closed = true
	return nil
}

// IsClosed reports whether Close has been called.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
