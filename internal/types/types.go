package types

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/xhad/ragd/internal/models"
)

// Core interfaces. Components receive these rather than concrete types so
// the worker and services can be wired with injected handles.

type Fetcher interface {
	Fetch(ctx context.Context, url string) (models.Document, error)
}

type Splitter interface {
	Split(doc models.Document) ([]models.Chunk, error)
}

type Embedder interface {
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
}

// Composer turns a query plus its retrieved grounding into prose.
type Composer interface {
	Compose(ctx context.Context, query string, chunks []models.ScoredChunk) (string, error)
}

// JobStore is the source of truth for dedup and job status.
type JobStore interface {
	Create(ctx context.Context, url string) (models.IngestionJob, error)
	Get(ctx context.Context, id uuid.UUID) (models.IngestionJob, error)
	SetStatus(ctx context.Context, id uuid.UUID, status models.JobStatus) error
	StalePending(ctx context.Context, olderThan time.Duration) ([]models.IngestionJob, error)
}

// KnowledgeStore holds chunks and their embeddings, keyed by fingerprint.
type KnowledgeStore interface {
	Upsert(ctx context.Context, chunks []models.Chunk) error
	Search(ctx context.Context, embedding []float32, limit int, minScore float32) ([]models.ScoredChunk, error)
}

// TaskQueue is the at-least-once channel between submission and the worker.
type TaskQueue interface {
	Enqueue(ctx context.Context, task models.Task) error
}
