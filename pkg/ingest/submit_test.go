package ingest_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/ragd/internal/models"
	"github.com/xhad/ragd/pkg/errs"
	"github.com/xhad/ragd/pkg/ingest"
)

type fakeJobStore struct {
	mu   sync.Mutex
	jobs map[string]models.IngestionJob
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{jobs: make(map[string]models.IngestionJob)}
}

func (f *fakeJobStore) Create(ctx context.Context, url string) (models.IngestionJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.jobs[url]; ok {
		return models.IngestionJob{}, &errs.Conflict{JobID: existing.ID, Status: string(existing.Status)}
	}
	job := models.IngestionJob{
		ID:     uuid.New(),
		URL:    url,
		Status: models.StatusPending,
	}
	f.jobs[url] = job
	return job, nil
}

func (f *fakeJobStore) Get(ctx context.Context, id uuid.UUID) (models.IngestionJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, job := range f.jobs {
		if job.ID == id {
			return job, nil
		}
	}
	return models.IngestionJob{}, fmt.Errorf("%w: job %s", errs.ErrNotFound, id)
}

func (f *fakeJobStore) SetStatus(ctx context.Context, id uuid.UUID, status models.JobStatus) error {
	return nil
}

func (f *fakeJobStore) StalePending(ctx context.Context, olderThan time.Duration) ([]models.IngestionJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var pending []models.IngestionJob
	for _, job := range f.jobs {
		if job.Status == models.StatusPending {
			pending = append(pending, job)
		}
	}
	return pending, nil
}

type fakeQueue struct {
	mu      sync.Mutex
	tasks   []models.Task
	failing bool
}

func (f *fakeQueue) Enqueue(ctx context.Context, task models.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return errs.ErrQueueFull
	}
	f.tasks = append(f.tasks, task)
	return nil
}

func TestSubmit(t *testing.T) {
	jobs := newFakeJobStore()
	q := &fakeQueue{}
	svc := ingest.NewService(jobs, q, nil)

	jobID, err := svc.Submit(context.Background(), "https://example.com/a")

	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, jobID)

	require.Len(t, q.tasks, 1)
	assert.Equal(t, models.TaskProcessURL, q.tasks[0].Kind)
	assert.Equal(t, jobID, q.tasks[0].JobID)
	assert.Equal(t, "https://example.com/a", q.tasks[0].URL)

	job, err := svc.Job(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, job.Status)
}

func TestSubmit_InvalidURL(t *testing.T) {
	svc := ingest.NewService(newFakeJobStore(), &fakeQueue{}, nil)

	for _, bad := range []string{
		"",
		"   ",
		"not a url",
		"/relative/path",
		"ftp://example.com/file",
		"example.com/no-scheme",
	} {
		_, err := svc.Submit(context.Background(), bad)
		assert.ErrorIs(t, err, errs.ErrValidation, "input %q", bad)
	}
}

func TestSubmit_Duplicate(t *testing.T) {
	jobs := newFakeJobStore()
	q := &fakeQueue{}
	svc := ingest.NewService(jobs, q, nil)

	first, err := svc.Submit(context.Background(), "https://example.com/a")
	require.NoError(t, err)

	_, err = svc.Submit(context.Background(), "https://example.com/a")
	conflict, ok := errs.AsConflict(err)
	require.True(t, ok)
	assert.Equal(t, first, conflict.JobID)
	assert.Equal(t, string(models.StatusPending), conflict.Status)

	// Still exactly one scheduled task
	assert.Len(t, q.tasks, 1)
}

func TestSubmit_EnqueueFailureLeavesPendingJob(t *testing.T) {
	jobs := newFakeJobStore()
	q := &fakeQueue{failing: true}
	svc := ingest.NewService(jobs, q, nil)

	_, err := svc.Submit(context.Background(), "https://example.com/a")
	require.Error(t, err)

	// The orphaned job exists and is PENDING; a later sweep can find it.
	pending, err := jobs.StalePending(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "https://example.com/a", pending[0].URL)
}

func TestSweeper_Reenqueue(t *testing.T) {
	jobs := newFakeJobStore()
	q := &fakeQueue{failing: true}
	svc := ingest.NewService(jobs, q, nil)

	_, err := svc.Submit(context.Background(), "https://example.com/a")
	require.Error(t, err)

	q.mu.Lock()
	q.failing = false
	q.mu.Unlock()

	sweeper, err := ingest.NewSweeper(jobs, q, time.Nanosecond, "@every 10ms", nil)
	require.NoError(t, err)
	sweeper.Start()
	defer sweeper.Stop()

	require.Eventually(t, func() bool {
		q.mu.Lock()
		defer q.mu.Unlock()
		return len(q.tasks) >= 1
	}, 2*time.Second, 10*time.Millisecond)

	q.mu.Lock()
	defer q.mu.Unlock()
	assert.Equal(t, models.TaskProcessURL, q.tasks[0].Kind)
	assert.Equal(t, "https://example.com/a", q.tasks[0].URL)
}
