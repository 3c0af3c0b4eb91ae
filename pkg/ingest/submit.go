package ingest

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/xhad/ragd/internal/models"
	"github.com/xhad/ragd/internal/types"
	"github.com/xhad/ragd/pkg/errs"
	"go.uber.org/zap"
)

// Service accepts URL submissions: it validates, dedups against the job
// store's unique URL constraint, persists a PENDING job, and enqueues a
// processing task for the worker.
type Service struct {
	jobs   types.JobStore
	queue  types.TaskQueue
	logger *zap.Logger
}

func NewService(jobs types.JobStore, queue types.TaskQueue, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		jobs:   jobs,
		queue:  queue,
		logger: logger,
	}
}

// Submit registers rawURL for ingestion and returns the new job id.
// A duplicate URL fails with *errs.Conflict carrying the existing job.
// If the enqueue fails after the insert, the job is left PENDING; the
// sweeper may pick it up later.
func (s *Service) Submit(ctx context.Context, rawURL string) (uuid.UUID, error) {
	normalized, err := validateURL(rawURL)
	if err != nil {
		return uuid.Nil, err
	}

	job, err := s.jobs.Create(ctx, normalized)
	if err != nil {
		return uuid.Nil, err
	}

	task := models.Task{
		Kind:  models.TaskProcessURL,
		JobID: job.ID,
		URL:   job.URL,
	}
	if err := s.queue.Enqueue(ctx, task); err != nil {
		s.logger.Warn("enqueue failed, job left pending",
			zap.String("job_id", job.ID.String()),
			zap.String("url", job.URL),
			zap.Error(err))
		return uuid.Nil, fmt.Errorf("failed to schedule job %s: %w", job.ID, err)
	}

	s.logger.Info("job submitted",
		zap.String("job_id", job.ID.String()),
		zap.String("url", job.URL))

	return job.ID, nil
}

// Job returns the current state of one job for status polling.
func (s *Service) Job(ctx context.Context, id uuid.UUID) (models.IngestionJob, error) {
	return s.jobs.Get(ctx, id)
}

func validateURL(rawURL string) (string, error) {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return "", fmt.Errorf("%w: url is required", errs.ErrValidation)
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errs.ErrValidation, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return "", fmt.Errorf("%w: url must be absolute", errs.ErrValidation)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: unsupported scheme %q", errs.ErrValidation, u.Scheme)
	}

	return u.String(), nil
}
