package server_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/ragd/internal/models"
	"github.com/xhad/ragd/pkg/errs"
	"github.com/xhad/ragd/pkg/ingest"
	"github.com/xhad/ragd/pkg/query"
	"github.com/xhad/ragd/server"
)

type fakeJobStore struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]models.IngestionJob
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{jobs: make(map[uuid.UUID]models.IngestionJob)}
}

func (f *fakeJobStore) Create(ctx context.Context, url string) (models.IngestionJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, job := range f.jobs {
		if job.URL == url {
			return models.IngestionJob{}, &errs.Conflict{JobID: job.ID, Status: string(job.Status)}
		}
	}
	job := models.IngestionJob{ID: uuid.New(), URL: url, Status: models.StatusPending}
	f.jobs[job.ID] = job
	return job, nil
}

func (f *fakeJobStore) Get(ctx context.Context, id uuid.UUID) (models.IngestionJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return models.IngestionJob{}, fmt.Errorf("%w: job %s", errs.ErrNotFound, id)
	}
	return job, nil
}

func (f *fakeJobStore) SetStatus(ctx context.Context, id uuid.UUID, status models.JobStatus) error {
	return nil
}

func (f *fakeJobStore) StalePending(ctx context.Context, olderThan time.Duration) ([]models.IngestionJob, error) {
	return nil, nil
}

type fakeQueue struct{}

func (fakeQueue) Enqueue(ctx context.Context, task models.Task) error { return nil }

type fakeEmbedder struct{}

func (fakeEmbedder) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{1, 0, 0}
	}
	return vectors, nil
}

type fakeKnowledgeStore struct {
	results []models.ScoredChunk
}

func (f *fakeKnowledgeStore) Upsert(ctx context.Context, chunks []models.Chunk) error { return nil }

func (f *fakeKnowledgeStore) Search(ctx context.Context, embedding []float32, limit int, minScore float32) ([]models.ScoredChunk, error) {
	return f.results, nil
}

type fakeComposer struct{}

func (fakeComposer) Compose(ctx context.Context, queryText string, chunks []models.ScoredChunk) (string, error) {
	return "Sensors publish signed readings every second.", nil
}

type fixture struct {
	router *gin.Engine
	jobs   *fakeJobStore
	store  *fakeKnowledgeStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	jobs := newFakeJobStore()
	store := &fakeKnowledgeStore{}
	ingestSvc := ingest.NewService(jobs, fakeQueue{}, nil)
	querySvc := query.NewService(query.ServiceConfig{TopK: 5}, fakeEmbedder{}, store, fakeComposer{}, nil)

	srv := server.New(server.Config{}, ingestSvc, querySvc, nil, nil)
	return &fixture{router: srv.Router(), jobs: jobs, store: store}
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "running")
}

func TestIngestURL_Accepted(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/ingest-url", `{"url":"https://example.com/a"}`)

	require.Equal(t, http.StatusAccepted, rec.Code)
	body := decode(t, rec)
	jobID, err := uuid.Parse(body["job_id"].(string))
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, jobID)
}

func TestIngestURL_Conflict(t *testing.T) {
	f := newFixture(t)

	first := f.do(http.MethodPost, "/ingest-url", `{"url":"https://example.com/a"}`)
	require.Equal(t, http.StatusAccepted, first.Code)
	firstID := decode(t, first)["job_id"].(string)

	second := f.do(http.MethodPost, "/ingest-url", `{"url":"https://example.com/a"}`)
	require.Equal(t, http.StatusConflict, second.Code)

	body := decode(t, second)
	assert.Equal(t, firstID, body["job_id"])
	assert.Equal(t, string(models.StatusPending), body["status"])
}

func TestIngestURL_BadRequest(t *testing.T) {
	f := newFixture(t)

	for name, body := range map[string]string{
		"malformed json":  `{`,
		"missing url":     `{}`,
		"relative url":    `{"url":"/docs"}`,
		"bad scheme":      `{"url":"ftp://example.com"}`,
		"whitespace only": `{"url":"  "}`,
	} {
		rec := f.do(http.MethodPost, "/ingest-url", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, name)
	}
}

func TestQuery_NoGrounding(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/query", `{"query":"what do sensors publish?"}`)

	require.Equal(t, http.StatusOK, rec.Code)

	var answer models.Answer
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &answer))
	assert.Equal(t, query.NoGroundingAnswer, answer.Answer)
	assert.Empty(t, answer.Sources)
}

func TestQuery_Grounded(t *testing.T) {
	f := newFixture(t)
	f.store.results = []models.ScoredChunk{
		{Chunk: models.Chunk{SourceURL: "https://example.com/a", Text: "Readings are signed."}, Score: 0.9},
	}

	rec := f.do(http.MethodPost, "/query", `{"query":"what do sensors publish?"}`)

	require.Equal(t, http.StatusOK, rec.Code)

	var answer models.Answer
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &answer))
	assert.Equal(t, "Sensors publish signed readings every second.", answer.Answer)
	assert.Equal(t, []string{"https://example.com/a"}, answer.Sources)
}

func TestQuery_BadRequest(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/query", `{"query":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/query", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetJob(t *testing.T) {
	f := newFixture(t)

	created := f.do(http.MethodPost, "/ingest-url", `{"url":"https://example.com/a"}`)
	require.Equal(t, http.StatusAccepted, created.Code)
	jobID := decode(t, created)["job_id"].(string)

	rec := f.do(http.MethodGet, "/jobs/"+jobID, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var job models.IngestionJob
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, jobID, job.ID.String())
	assert.Equal(t, models.StatusPending, job.Status)
	assert.Equal(t, "https://example.com/a", job.URL)
}

func TestGetJob_NotFound(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/jobs/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetJob_InvalidID(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/jobs/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodOptions, "/query", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
