package queue

import (
	"context"
	"sync"
	"time"

	"github.com/xhad/ragd/internal/models"
	"github.com/xhad/ragd/pkg/errs"
	"go.uber.org/zap"
)

type QueueConfig struct {
	Size         int
	MaxAttempts  int
	RetryBackoff time.Duration
}

// Queue is the in-process task channel between submission and the worker.
// Delivery is at-least-once: a task nacked by the worker is redelivered
// with capped exponential backoff until MaxAttempts, then dead-lettered
// to the log and dropped.
type Queue struct {
	config QueueConfig
	tasks  chan models.Task
	logger *zap.Logger

	mu     sync.Mutex
	closed bool
}

func NewWithConfig(config QueueConfig, logger *zap.Logger) *Queue {
	if config.Size == 0 {
		config.Size = 256
	}
	if config.MaxAttempts == 0 {
		config.MaxAttempts = 3
	}
	if config.RetryBackoff == 0 {
		config.RetryBackoff = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Queue{
		config: config,
		tasks:  make(chan models.Task, config.Size),
		logger: logger,
	}
}

// Enqueue offers a task without blocking; a saturated queue is an error
// the caller must surface rather than a silent stall.
func (q *Queue) Enqueue(ctx context.Context, task models.Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return errs.ErrQueueFull
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case q.tasks <- task:
		return nil
	default:
		return errs.ErrQueueFull
	}
}

// Dequeue blocks until a task is available, the context is cancelled, or
// the queue is closed and drained.
func (q *Queue) Dequeue(ctx context.Context) (models.Task, bool) {
	select {
	case <-ctx.Done():
		return models.Task{}, false
	case task, ok := <-q.tasks:
		return task, ok
	}
}

// Nack reports a failed delivery. The task is redelivered after a backoff
// that doubles per attempt, or dead-lettered once attempts are exhausted.
func (q *Queue) Nack(task models.Task) {
	task.Attempt++
	if task.Attempt >= q.config.MaxAttempts {
		q.logger.Error("task dead-lettered",
			zap.String("kind", string(task.Kind)),
			zap.String("job_id", task.JobID.String()),
			zap.String("url", task.URL),
			zap.Int("attempts", task.Attempt))
		return
	}

	delay := q.config.RetryBackoff << (task.Attempt - 1)
	q.logger.Warn("task redelivery scheduled",
		zap.String("job_id", task.JobID.String()),
		zap.Int("attempt", task.Attempt),
		zap.Duration("delay", delay))

	time.AfterFunc(delay, func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		if q.closed {
			return
		}
		select {
		case q.tasks <- task:
		default:
			q.logger.Error("redelivery dropped, queue full",
				zap.String("job_id", task.JobID.String()))
		}
	})
}

// Close stops accepting tasks; Dequeue drains what remains.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.tasks)
}
