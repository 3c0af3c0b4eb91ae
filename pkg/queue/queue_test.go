package queue_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/ragd/internal/models"
	"github.com/xhad/ragd/pkg/errs"
	"github.com/xhad/ragd/pkg/queue"
)

func newTask() models.Task {
	return models.Task{
		Kind:  models.TaskProcessURL,
		JobID: uuid.New(),
		URL:   "https://example.com/a",
	}
}

func TestQueue_EnqueueDequeue(t *testing.T) {
	q := queue.NewWithConfig(queue.QueueConfig{Size: 4}, nil)
	defer q.Close()

	task := newTask()
	require.NoError(t, q.Enqueue(context.Background(), task))

	got, ok := q.Dequeue(context.Background())
	require.True(t, ok)
	assert.Equal(t, task.JobID, got.JobID)
	assert.Equal(t, models.TaskProcessURL, got.Kind)
}

func TestQueue_EnqueueFull(t *testing.T) {
	q := queue.NewWithConfig(queue.QueueConfig{Size: 1}, nil)
	defer q.Close()

	require.NoError(t, q.Enqueue(context.Background(), newTask()))
	err := q.Enqueue(context.Background(), newTask())
	assert.ErrorIs(t, err, errs.ErrQueueFull)
}

func TestQueue_DequeueCancelled(t *testing.T) {
	q := queue.NewWithConfig(queue.QueueConfig{Size: 1}, nil)
	defer q.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok := q.Dequeue(ctx)
	assert.False(t, ok)
}

func TestQueue_NackRedelivers(t *testing.T) {
	q := queue.NewWithConfig(queue.QueueConfig{
		Size:         4,
		MaxAttempts:  3,
		RetryBackoff: 10 * time.Millisecond,
	}, nil)
	defer q.Close()

	task := newTask()
	q.Nack(task)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	got, ok := q.Dequeue(ctx)
	require.True(t, ok)
	assert.Equal(t, task.JobID, got.JobID)
	assert.Equal(t, 1, got.Attempt)
}

func TestQueue_NackDeadLetters(t *testing.T) {
	q := queue.NewWithConfig(queue.QueueConfig{
		Size:         4,
		MaxAttempts:  2,
		RetryBackoff: time.Millisecond,
	}, nil)
	defer q.Close()

	task := newTask()
	task.Attempt = 1 // one redelivery already consumed
	q.Nack(task)

	// Exhausted tasks are dropped, not redelivered
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, ok := q.Dequeue(ctx)
	assert.False(t, ok)
}

func TestQueue_CloseRejectsEnqueue(t *testing.T) {
	q := queue.NewWithConfig(queue.QueueConfig{Size: 1}, nil)
	q.Close()

	err := q.Enqueue(context.Background(), newTask())
	assert.Error(t, err)
}
