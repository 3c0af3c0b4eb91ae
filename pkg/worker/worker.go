package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/xhad/ragd/internal/models"
	"github.com/xhad/ragd/internal/types"
	"github.com/xhad/ragd/pkg/errs"
	"github.com/xhad/ragd/pkg/queue"
	"go.uber.org/zap"
)

type WorkerConfig struct {
	Concurrency int
	BatchSize   int // chunks embedded and upserted per round trip
}

type handlerFunc func(ctx context.Context, task models.Task) error

// Worker consumes tasks from the queue and drives each job through the
// fetch, clean, chunk, and index stages, recording progress on the job
// row. Every stage is a pure recomputation and indexing is an upsert by
// fingerprint, so re-running a delivered task is safe.
type Worker struct {
	config   WorkerConfig
	jobs     types.JobStore
	store    types.KnowledgeStore
	fetcher  types.Fetcher
	splitter types.Splitter
	embedder types.Embedder
	queue    *queue.Queue
	pool     *ants.Pool
	handlers map[models.TaskKind]handlerFunc
	logger   *zap.Logger
}

func New(
	config WorkerConfig,
	jobs types.JobStore,
	store types.KnowledgeStore,
	fetcher types.Fetcher,
	splitter types.Splitter,
	embedder types.Embedder,
	q *queue.Queue,
	logger *zap.Logger,
) (*Worker, error) {
	if config.Concurrency == 0 {
		config.Concurrency = 4
	}
	if config.BatchSize == 0 {
		config.BatchSize = 16
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	pool, err := ants.NewPool(config.Concurrency)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}

	w := &Worker{
		config:   config,
		jobs:     jobs,
		store:    store,
		fetcher:  fetcher,
		splitter: splitter,
		embedder: embedder,
		queue:    q,
		pool:     pool,
		logger:   logger,
	}

	w.handlers = map[models.TaskKind]handlerFunc{
		models.TaskProcessURL: w.processURL,
	}

	return w, nil
}

// Run pulls tasks until the context is cancelled or the queue closes.
// Each task runs end-to-end on one pool worker; failures are nacked back
// to the queue for its redelivery policy.
func (w *Worker) Run(ctx context.Context) {
	var wg sync.WaitGroup

	for {
		task, ok := w.queue.Dequeue(ctx)
		if !ok {
			break
		}

		wg.Add(1)
		submitErr := w.pool.Submit(func() {
			defer wg.Done()
			if err := w.Handle(ctx, task); err != nil {
				w.queue.Nack(task)
			}
		})
		if submitErr != nil {
			wg.Done()
			w.logger.Error("pool submit failed", zap.Error(submitErr))
			w.queue.Nack(task)
		}
	}

	wg.Wait()
}

// Handle dispatches a task to its registered handler.
func (w *Worker) Handle(ctx context.Context, task models.Task) error {
	handler, ok := w.handlers[task.Kind]
	if !ok {
		// Unknown kinds are not retryable; drop with a trace.
		w.logger.Error("unknown task kind", zap.String("kind", string(task.Kind)))
		return nil
	}
	return handler(ctx, task)
}

func (w *Worker) processURL(ctx context.Context, task models.Task) error {
	log := w.logger.With(
		zap.String("job_id", task.JobID.String()),
		zap.String("url", task.URL))

	job, err := w.jobs.Get(ctx, task.JobID)
	if errs.IsNotFound(err) {
		// Job deleted or never existed; nothing actionable, do not retry.
		log.Warn("job not found, dropping task")
		return nil
	}
	if err != nil {
		return err
	}

	switch job.Status {
	case models.StatusCompleted:
		// Redelivery of settled work is a no-op.
		log.Info("job already completed, dropping task")
		return nil
	case models.StatusPending:
		if err := w.jobs.SetStatus(ctx, job.ID, models.StatusProcessing); err != nil {
			if errs.IsNotFound(err) {
				log.Warn("job vanished before processing")
				return nil
			}
			return err
		}
	case models.StatusProcessing, models.StatusFailed:
		// PROCESSING: a redelivered in-flight task; FAILED: a retry that can
		// still converge the knowledge store. Terminal status is never
		// rewritten, the pipeline just re-runs idempotently.
		log.Info("re-running pipeline", zap.String("status", string(job.Status)))
	}

	if err := w.runPipeline(ctx, task.URL); err != nil {
		log.Error("pipeline failed", zap.Error(err))
		w.markFailed(ctx, job)
		return err
	}

	if !job.Status.Terminal() {
		if err := w.jobs.SetStatus(ctx, job.ID, models.StatusCompleted); err != nil && !errs.IsNotFound(err) {
			return err
		}
	}

	log.Info("job completed")
	return nil
}

// runPipeline executes fetch, clean, chunk, and index for one URL.
func (w *Worker) runPipeline(ctx context.Context, url string) error {
	doc, err := w.fetcher.Fetch(ctx, url)
	if err != nil {
		return err
	}

	chunks, err := w.splitter.Split(doc)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrExtraction, err)
	}
	if len(chunks) == 0 {
		return fmt.Errorf("%w: %s", errs.ErrEmptyContent, url)
	}

	// Index in batches. A batch that lands before a later failure stays
	// in the store; fingerprint upserts make the eventual retry converge.
	for start := 0; start < len(chunks); start += w.config.BatchSize {
		end := start + w.config.BatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, chunk := range batch {
			texts[i] = chunk.Text
		}

		embeddings, err := w.embedder.CreateEmbedding(ctx, texts)
		if err != nil {
			return err
		}
		for i := range batch {
			batch[i].Embedding = embeddings[i]
		}

		if err := w.store.Upsert(ctx, batch); err != nil {
			return err
		}
	}

	return nil
}

func (w *Worker) markFailed(ctx context.Context, job models.IngestionJob) {
	if job.Status.Terminal() {
		return
	}
	if err := w.jobs.SetStatus(ctx, job.ID, models.StatusFailed); err != nil && !errs.IsNotFound(err) {
		w.logger.Error("failed to mark job FAILED",
			zap.String("job_id", job.ID.String()), zap.Error(err))
	}
}

// Release tears down the pool after Run has returned.
func (w *Worker) Release() {
	w.pool.Release()
}
