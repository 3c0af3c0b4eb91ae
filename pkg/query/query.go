package query

import (
	"context"
	"fmt"
	"strings"

	"github.com/xhad/ragd/internal/models"
	"github.com/xhad/ragd/internal/types"
	"github.com/xhad/ragd/pkg/errs"
	"go.uber.org/zap"
)

// NoGroundingAnswer is returned whenever retrieval produces nothing to
// ground an answer in. It is deterministic so an empty knowledge store
// never yields an unconstrained answer.
const NoGroundingAnswer = "I don't have any indexed content that answers this question."

type ServiceConfig struct {
	TopK     int
	MinScore float32
}

// Service answers natural-language queries grounded in indexed chunks.
type Service struct {
	config   ServiceConfig
	embedder types.Embedder
	store    types.KnowledgeStore
	composer types.Composer
	logger   *zap.Logger
}

func NewService(config ServiceConfig, embedder types.Embedder, store types.KnowledgeStore, composer types.Composer, logger *zap.Logger) *Service {
	if config.TopK == 0 {
		config.TopK = 5
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		config:   config,
		embedder: embedder,
		store:    store,
		composer: composer,
		logger:   logger,
	}
}

// Retrieve embeds the query and returns the most similar chunks.
func (s *Service) Retrieve(ctx context.Context, queryText string) ([]models.ScoredChunk, error) {
	if strings.TrimSpace(queryText) == "" {
		return nil, fmt.Errorf("%w: query is required", errs.ErrValidation)
	}

	embeddings, err := s.embedder.CreateEmbedding(ctx, []string{queryText})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	chunks, err := s.store.Search(ctx, embeddings[0], s.config.TopK, s.config.MinScore)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}

	return chunks, nil
}

// Answer returns a grounded answer and the deduplicated source URLs of
// the chunks that grounded it. Sources may be empty, the pair never is.
func (s *Service) Answer(ctx context.Context, queryText string) (models.Answer, error) {
	chunks, err := s.Retrieve(ctx, queryText)
	if err != nil {
		return models.Answer{}, err
	}

	if len(chunks) == 0 {
		return models.Answer{
			Answer:  NoGroundingAnswer,
			Sources: []string{},
		}, nil
	}

	text, err := s.composer.Compose(ctx, queryText, chunks)
	if err != nil {
		return models.Answer{}, err
	}

	return models.Answer{
		Answer:  text,
		Sources: Sources(chunks),
	}, nil
}

// Sources extracts the deduplicated source URLs from retrieved chunks,
// preserving retrieval order.
func Sources(chunks []models.ScoredChunk) []string {
	sources := make([]string, 0, len(chunks))
	seen := make(map[string]bool)

	for _, chunk := range chunks {
		if !seen[chunk.SourceURL] {
			sources = append(sources, chunk.SourceURL)
			seen[chunk.SourceURL] = true
		}
	}

	return sources
}
