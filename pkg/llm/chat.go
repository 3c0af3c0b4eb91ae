package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/xhad/ragd/internal/models"
)

// ChatConfig represents the configuration for the answer composer.
type ChatConfig struct {
	Model           string
	Temperature     float64
	MaxTokens       int
	SystemTemplate  string
	ContextTemplate string
	BaseURL         string // Ollama server URL
}

// ChatEngine composes grounded answers from retrieved chunks.
type ChatEngine struct {
	config ChatConfig
	llm    llms.Model
}

// NewWithConfig creates a new ChatEngine with the given configuration.
func NewWithConfig(config ChatConfig) (*ChatEngine, error) {
	if config.Model == "" {
		config.Model = "mistral"
	}
	if config.Temperature < 0 || config.Temperature > 2 {
		return nil, fmt.Errorf("temperature must be between 0 and 2")
	}
	if config.MaxTokens < 0 {
		return nil, fmt.Errorf("max tokens cannot be negative")
	} else if config.MaxTokens == 0 {
		config.MaxTokens = 2000
	}
	if config.SystemTemplate == "" {
		config.SystemTemplate = "You are a helpful assistant. Answer the question using only the provided context. If the context does not contain the answer, say so plainly."
	}
	if config.ContextTemplate == "" {
		config.ContextTemplate = "Context:\n%s\nQuestion: %s"
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434"
	}

	llm, err := ollama.New(
		ollama.WithModel(config.Model),
		ollama.WithServerURL(config.BaseURL),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM: %w", err)
	}

	return &ChatEngine{
		config: config,
		llm:    llm,
	}, nil
}

// Compose generates an answer to the query grounded in the given chunks.
func (ce *ChatEngine) Compose(ctx context.Context, query string, chunks []models.ScoredChunk) (string, error) {
	response, err := ce.llm.GenerateContent(ctx, ce.buildMessages(query, chunks),
		llms.WithMaxTokens(ce.config.MaxTokens),
		llms.WithTemperature(ce.config.Temperature),
	)
	if err != nil {
		return "", fmt.Errorf("chat error: %w", err)
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("chat error: no response from LLM")
	}

	return response.Choices[0].Content, nil
}

// ComposeStream is Compose with incremental delivery: fn receives each
// response fragment as it arrives.
func (ce *ChatEngine) ComposeStream(ctx context.Context, query string, chunks []models.ScoredChunk, fn func(chunk string)) error {
	_, err := ce.llm.GenerateContent(ctx, ce.buildMessages(query, chunks),
		llms.WithMaxTokens(ce.config.MaxTokens),
		llms.WithTemperature(ce.config.Temperature),
		llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
			fn(string(chunk))
			return nil
		}),
	)
	if err != nil {
		return fmt.Errorf("chat error: %w", err)
	}
	return nil
}

func (ce *ChatEngine) buildMessages(query string, chunks []models.ScoredChunk) []llms.MessageContent {
	var contextBuilder strings.Builder
	for _, chunk := range chunks {
		contextBuilder.WriteString(fmt.Sprintf("Source: %s\n%s\n\n", chunk.SourceURL, chunk.Text))
	}

	return []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, ce.config.SystemTemplate),
		llms.TextParts(llms.ChatMessageTypeHuman,
			fmt.Sprintf(ce.config.ContextTemplate, contextBuilder.String(), query)),
	}
}
