package store

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/xhad/ragd/internal/models"
	"github.com/xhad/ragd/pkg/errs"
)

type KnowledgeStoreConfig struct {
	TableName string
	VectorDim int
}

// KnowledgeStore holds chunk text and embeddings in pgvector, keyed by
// fingerprint. Writes are upserts, so redelivered tasks converge on one
// row per fingerprint instead of duplicating.
type KnowledgeStore struct {
	config KnowledgeStoreConfig
	pool   *pgxpool.Pool
}

func NewKnowledgeStore(pool *pgxpool.Pool, config KnowledgeStoreConfig) (*KnowledgeStore, error) {
	if config.TableName == "" {
		config.TableName = "chunks"
	}
	if config.VectorDim == 0 {
		config.VectorDim = 768
	}

	ks := &KnowledgeStore{
		config: config,
		pool:   pool,
	}

	if err := ks.initialize(); err != nil {
		return nil, err
	}

	return ks, nil
}

func (ks *KnowledgeStore) initialize() error {
	ctx := context.Background()

	// Enable pgvector extension
	if _, err := ks.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			fingerprint TEXT PRIMARY KEY,
			source_url TEXT NOT NULL,
			content TEXT NOT NULL,
			ordinal INTEGER NOT NULL,
			embedding vector(%d)
		)`, ks.config.TableName, ks.config.VectorDim)

	if _, err := ks.pool.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("failed to create chunks table: %w", err)
	}

	createIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s_embedding_idx
		ON %s
		USING ivfflat (embedding vector_cosine_ops)
		WITH (lists = 100)`,
		ks.config.TableName, ks.config.TableName)

	if _, err := ks.pool.Exec(ctx, createIndex); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	return nil
}

// Upsert writes chunks keyed by fingerprint. Writing the same fingerprint
// twice overwrites rather than duplicates.
func (ks *KnowledgeStore) Upsert(ctx context.Context, chunks []models.Chunk) error {
	tx, err := ks.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", errs.ErrStorage, err)
	}
	defer tx.Rollback(ctx)

	stmt := fmt.Sprintf(`
		INSERT INTO %s (fingerprint, source_url, content, ordinal, embedding)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (fingerprint) DO UPDATE SET
			source_url = EXCLUDED.source_url,
			content = EXCLUDED.content,
			ordinal = EXCLUDED.ordinal,
			embedding = EXCLUDED.embedding`,
		ks.config.TableName)

	for _, chunk := range chunks {
		_, err := tx.Exec(ctx, stmt,
			chunk.Fingerprint,
			chunk.SourceURL,
			sanitizeUTF8(chunk.Text),
			chunk.Ordinal,
			pgvector.NewVector(chunk.Embedding),
		)
		if err != nil {
			return fmt.Errorf("%w: upsert chunk: %v", errs.ErrStorage, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit: %v", errs.ErrStorage, err)
	}

	return nil
}

// Search returns up to limit chunks by cosine similarity, dropping any
// below minScore. Scores are 1 - cosine distance, so 1 is identical.
func (ks *KnowledgeStore) Search(ctx context.Context, embedding []float32, limit int, minScore float32) ([]models.ScoredChunk, error) {
	if limit <= 0 {
		limit = 5
	}

	query := fmt.Sprintf(`
		SELECT fingerprint, source_url, content, ordinal, 1 - (embedding <=> $1) AS score
		FROM %s
		WHERE 1 - (embedding <=> $1) >= $3
		ORDER BY embedding <=> $1
		LIMIT $2`,
		ks.config.TableName)

	rows, err := ks.pool.Query(ctx, query, pgvector.NewVector(embedding), limit, minScore)
	if err != nil {
		return nil, fmt.Errorf("%w: search: %v", errs.ErrStorage, err)
	}
	defer rows.Close()

	var chunks []models.ScoredChunk
	for rows.Next() {
		var chunk models.ScoredChunk
		err := rows.Scan(
			&chunk.Fingerprint,
			&chunk.SourceURL,
			&chunk.Text,
			&chunk.Ordinal,
			&chunk.Score,
		)
		if err != nil {
			return nil, fmt.Errorf("%w: scan chunk: %v", errs.ErrStorage, err)
		}
		chunks = append(chunks, chunk)
	}

	return chunks, rows.Err()
}

func sanitizeUTF8(s string) string {
	if !utf8.ValidString(s) {
		v := make([]rune, 0, len(s))
		for i, r := range s {
			if r == utf8.RuneError {
				_, size := utf8.DecodeRuneInString(s[i:])
				if size == 1 {
					continue
				}
			}
			v = append(v, r)
		}
		return string(v)
	}
	return s
}
