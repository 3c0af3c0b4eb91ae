package ingest

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/xhad/ragd/internal/models"
	"github.com/xhad/ragd/internal/types"
	"go.uber.org/zap"
)

// Sweeper re-enqueues PENDING jobs whose task was lost, e.g. when the
// enqueue after a successful insert failed. Safe to run repeatedly: the
// pipeline is idempotent and a job picked up twice settles identically.
type Sweeper struct {
	jobs   types.JobStore
	queue  types.TaskQueue
	maxAge time.Duration
	logger *zap.Logger
	cron   *cron.Cron
}

func NewSweeper(jobs types.JobStore, queue types.TaskQueue, maxAge time.Duration, schedule string, logger *zap.Logger) (*Sweeper, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Sweeper{
		jobs:   jobs,
		queue:  queue,
		maxAge: maxAge,
		logger: logger,
		cron:   cron.New(),
	}

	if _, err := s.cron.AddFunc(schedule, s.sweep); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Sweeper) Start() {
	s.cron.Start()
}

func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Sweeper) sweep() {
	ctx := context.Background()

	stale, err := s.jobs.StalePending(ctx, s.maxAge)
	if err != nil {
		s.logger.Error("pending sweep failed", zap.Error(err))
		return
	}

	for _, job := range stale {
		task := models.Task{
			Kind:  models.TaskProcessURL,
			JobID: job.ID,
			URL:   job.URL,
		}
		if err := s.queue.Enqueue(ctx, task); err != nil {
			s.logger.Warn("sweep enqueue failed",
				zap.String("job_id", job.ID.String()), zap.Error(err))
			continue
		}
		s.logger.Info("re-enqueued stale pending job",
			zap.String("job_id", job.ID.String()),
			zap.String("url", job.URL))
	}
}
