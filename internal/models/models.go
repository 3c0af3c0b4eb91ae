package models

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of an ingestion job.
type JobStatus string

const (
	StatusPending    JobStatus = "PENDING"
	StatusProcessing JobStatus = "PROCESSING"
	StatusCompleted  JobStatus = "COMPLETED"
	StatusFailed     JobStatus = "FAILED"
)

// Terminal reports whether no further transitions may leave this status.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransitionTo reports whether next is a legal successor of s.
// Legal edges: PENDING→PROCESSING, PROCESSING→COMPLETED, PROCESSING→FAILED.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusProcessing
	case StatusProcessing:
		return next == StatusCompleted || next == StatusFailed
	default:
		return false
	}
}

// Valid reports whether s is a known status value.
func (s JobStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// IngestionJob tracks the processing lifecycle of one submitted URL.
// Rows are created only by the submission service and mutated only by
// the ingestion worker.
type IngestionJob struct {
	ID        uuid.UUID `json:"id"`
	URL       string    `json:"url"`
	Status    JobStatus `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Document is the cleaned text pulled from one URL.
type Document struct {
	URL     string
	Title   string
	Content string
}

// Chunk is a bounded segment of cleaned document text. The fingerprint
// is stable for identical text from the same source, so writing the same
// chunk twice is an upsert, not a duplicate.
type Chunk struct {
	Fingerprint string
	SourceURL   string
	Text        string
	Ordinal     int
	Embedding   []float32
}

// ScoredChunk is a chunk returned from similarity search.
type ScoredChunk struct {
	Chunk
	Score float32
}

// TaskKind names a worker operation. Kinds are matched against the
// worker's handler table at dispatch, not by reflective name lookup.
type TaskKind string

const TaskProcessURL TaskKind = "process_url_task"

// Task is the message handed from the submission service to the worker.
// Delivery is at-least-once, so handlers must tolerate re-execution.
type Task struct {
	Kind    TaskKind  `json:"kind"`
	JobID   uuid.UUID `json:"job_id"`
	URL     string    `json:"url"`
	Attempt int       `json:"-"`
}

// Answer is the query service response: a grounded answer plus the
// deduplicated source URLs it was grounded in. Sources may be empty,
// the pair is always present.
type Answer struct {
	Answer  string   `json:"answer"`
	Sources []string `json:"sources"`
}
