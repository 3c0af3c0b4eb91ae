package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/xhad/ragd/internal/models"
	"github.com/xhad/ragd/pkg/errs"
)

type JobStoreConfig struct {
	TableName string
}

// JobStore persists ingestion jobs. The unique constraint on url is the
// dedup authority: concurrent submissions of the same URL race on the
// insert, not on an application-level check.
type JobStore struct {
	config JobStoreConfig
	pool   *pgxpool.Pool
}

func NewJobStore(pool *pgxpool.Pool, config JobStoreConfig) (*JobStore, error) {
	if config.TableName == "" {
		config.TableName = "ingestion_jobs"
	}

	js := &JobStore{
		config: config,
		pool:   pool,
	}

	if err := js.initialize(); err != nil {
		return nil, err
	}

	return js, nil
}

func (js *JobStore) initialize() error {
	ctx := context.Background()

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id UUID PRIMARY KEY,
			url TEXT NOT NULL UNIQUE,
			status TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, js.config.TableName)

	if _, err := js.pool.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("failed to create jobs table: %w", err)
	}

	return nil
}

// Create inserts a new PENDING job for url. If any job already exists for
// the URL it returns a *errs.Conflict carrying that job's id and status.
func (js *JobStore) Create(ctx context.Context, url string) (models.IngestionJob, error) {
	insert := fmt.Sprintf(`
		INSERT INTO %s (id, url, status)
		VALUES ($1, $2, $3)
		ON CONFLICT (url) DO NOTHING
		RETURNING id, url, status, created_at, updated_at`,
		js.config.TableName)

	var job models.IngestionJob
	err := js.pool.QueryRow(ctx, insert, uuid.New(), url, models.StatusPending).Scan(
		&job.ID, &job.URL, &job.Status, &job.CreatedAt, &job.UpdatedAt)
	if err == nil {
		return job, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return models.IngestionJob{}, fmt.Errorf("%w: insert job: %v", errs.ErrStorage, err)
	}

	// Insert lost to an existing row; report whose.
	existing, err := js.getByURL(ctx, url)
	if err != nil {
		return models.IngestionJob{}, err
	}
	return models.IngestionJob{}, &errs.Conflict{JobID: existing.ID, Status: string(existing.Status)}
}

func (js *JobStore) Get(ctx context.Context, id uuid.UUID) (models.IngestionJob, error) {
	query := fmt.Sprintf(`
		SELECT id, url, status, created_at, updated_at
		FROM %s WHERE id = $1`,
		js.config.TableName)

	var job models.IngestionJob
	err := js.pool.QueryRow(ctx, query, id).Scan(
		&job.ID, &job.URL, &job.Status, &job.CreatedAt, &job.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.IngestionJob{}, fmt.Errorf("%w: job %s", errs.ErrNotFound, id)
	}
	if err != nil {
		return models.IngestionJob{}, fmt.Errorf("%w: get job: %v", errs.ErrStorage, err)
	}

	return job, nil
}

func (js *JobStore) getByURL(ctx context.Context, url string) (models.IngestionJob, error) {
	query := fmt.Sprintf(`
		SELECT id, url, status, created_at, updated_at
		FROM %s WHERE url = $1`,
		js.config.TableName)

	var job models.IngestionJob
	err := js.pool.QueryRow(ctx, query, url).Scan(
		&job.ID, &job.URL, &job.Status, &job.CreatedAt, &job.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.IngestionJob{}, fmt.Errorf("%w: url %s", errs.ErrNotFound, url)
	}
	if err != nil {
		return models.IngestionJob{}, fmt.Errorf("%w: get job by url: %v", errs.ErrStorage, err)
	}

	return job, nil
}

// SetStatus applies one state-machine transition as a single guarded
// update, so racing workers cannot interleave writes or resurrect a
// terminal job.
func (js *JobStore) SetStatus(ctx context.Context, id uuid.UUID, status models.JobStatus) error {
	from := legalFrom(status)
	if len(from) == 0 {
		return fmt.Errorf("%w: no edge into %s", errs.ErrTransition, status)
	}

	update := fmt.Sprintf(`
		UPDATE %s SET status = $2, updated_at = now()
		WHERE id = $1 AND status = ANY($3)`,
		js.config.TableName)

	tag, err := js.pool.Exec(ctx, update, id, status, from)
	if err != nil {
		return fmt.Errorf("%w: update status: %v", errs.ErrStorage, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// Nothing matched: either the row is gone or the transition is illegal.
	job, err := js.Get(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s -> %s", errs.ErrTransition, job.Status, status)
}

// StalePending returns PENDING jobs whose last update is older than the
// given age; used to re-enqueue jobs orphaned by an enqueue failure.
func (js *JobStore) StalePending(ctx context.Context, olderThan time.Duration) ([]models.IngestionJob, error) {
	query := fmt.Sprintf(`
		SELECT id, url, status, created_at, updated_at
		FROM %s
		WHERE status = $1 AND updated_at < now() - $2::interval
		ORDER BY updated_at`,
		js.config.TableName)

	rows, err := js.pool.Query(ctx, query, models.StatusPending, olderThan.String())
	if err != nil {
		return nil, fmt.Errorf("%w: stale pending: %v", errs.ErrStorage, err)
	}
	defer rows.Close()

	var jobs []models.IngestionJob
	for rows.Next() {
		var job models.IngestionJob
		if err := rows.Scan(&job.ID, &job.URL, &job.Status, &job.CreatedAt, &job.UpdatedAt); err != nil {
			return nil, fmt.Errorf("%w: scan job: %v", errs.ErrStorage, err)
		}
		jobs = append(jobs, job)
	}

	return jobs, rows.Err()
}

func legalFrom(next models.JobStatus) []string {
	switch next {
	case models.StatusProcessing:
		return []string{string(models.StatusPending)}
	case models.StatusCompleted, models.StatusFailed:
		return []string{string(models.StatusProcessing)}
	default:
		return nil
	}
}
