// Package worker provides the serial background queues used for object
// population and download submission.
package worker

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// DefaultQueueSize is the buffer used when NewQueue gets a non-positive size.
const DefaultQueueSize = 1024

// Task is a unit of background work.
type Task func(ctx context.Context)

// Queue runs submitted tasks one at a time, in submission order.
type Queue struct {
	name   string
	logger *zap.Logger
	tasks  chan Task
	wg     sync.WaitGroup

	mu      sync.Mutex
	started bool
	closed  bool
	cancel  context.CancelFunc
}

// NewQueue creates a queue with a buffer of size tasks.
func NewQueue(name string, size int, logger *zap.Logger) *Queue {
	if size < 1 {
		size = DefaultQueueSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{
		name:   name,
		logger: logger.With(zap.String("queue", name)),
		tasks:  make(chan Task, size),
	}
}

// Start launches the single worker goroutine. Tasks receive a context
// derived from ctx that is cancelled by Stop. Calling Start twice is a no-op.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.closed {
		return
	}
	q.started = true

	ctx, q.cancel = context.WithCancel(ctx)
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		for task := range q.tasks {
			q.run(ctx, task)
		}
	}()
}

// Submit queues a task without blocking. It reports false when the task
// was dropped because the queue is full or stopped.
func (q *Queue) Submit(task Task) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.logger.Warn("queue stopped, dropping task")
		return false
	}

	select {
	case q.tasks <- task:
		return true
	default:
		q.logger.Warn("queue full, dropping task")
		return false
	}
}

// Stop drains the queued tasks and waits for the worker to exit.
func (q *Queue) Stop() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.tasks)
	started := q.started
	q.mu.Unlock()

	if started {
		q.wg.Wait()
		q.cancel()
	}
}

// Len returns the number of tasks waiting to run.
func (q *Queue) Len() int {
	return len(q.tasks)
}

func (q *Queue) run(ctx context.Context, task Task) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("task panicked", zap.Any("panic", r))
		}
	}()
	task(ctx)
}
