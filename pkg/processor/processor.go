package processor

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/xhad/ragd/internal/models"
)

type ProcessorConfig struct {
	ChunkSize      int
	ChunkOverlap   int
	MinChunkLength int
}

// Processor splits cleaned document text into bounded, overlapping chunks.
// Splitting is deterministic: the same input always yields the same chunk
// sequence and fingerprints, so a redelivered task reproduces identical
// writes.
type Processor struct {
	config ProcessorConfig
}

func NewWithConfig(config ProcessorConfig) Processor {
	if config.ChunkSize == 0 {
		config.ChunkSize = 1000
	}
	if config.ChunkOverlap == 0 {
		config.ChunkOverlap = 200
	}
	if config.MinChunkLength == 0 {
		config.MinChunkLength = 100
	}

	return Processor{
		config: config,
	}
}

func (p *Processor) Split(doc models.Document) ([]models.Chunk, error) {
	text := normalize(doc.Content)
	segments := p.splitIntoChunks(text)

	chunks := make([]models.Chunk, 0, len(segments))
	for i, segment := range segments {
		chunks = append(chunks, models.Chunk{
			Fingerprint: Fingerprint(segment, doc.URL),
			SourceURL:   doc.URL,
			Text:        segment,
			Ordinal:     i,
		})
	}

	return chunks, nil
}

// Fingerprint derives the stable chunk key from normalized text and its
// source URL. Identical segments from the same page collapse to one entry.
func Fingerprint(text, sourceURL string) string {
	h := sha256.New()
	h.Write([]byte(normalize(text)))
	h.Write([]byte{'\n'})
	h.Write([]byte(sourceURL))
	return hex.EncodeToString(h.Sum(nil))
}

func normalize(text string) string {
	return strings.TrimSpace(strings.Join(strings.Fields(text), " "))
}

func (p *Processor) splitIntoChunks(text string) []string {
	var chunks []string

	// Split by sentences first
	sentences := splitIntoSentences(text)

	currentChunk := strings.Builder{}

	for _, sentence := range sentences {
		// If adding this sentence would exceed chunk size
		if currentChunk.Len()+len(sentence) > p.config.ChunkSize {
			// Save current chunk if it meets minimum length
			if currentChunk.Len() >= p.config.MinChunkLength {
				chunks = append(chunks, strings.TrimSpace(currentChunk.String()))
			}

			// Start new chunk with overlap from the previous one
			if p.config.ChunkOverlap > 0 && currentChunk.Len() > p.config.ChunkOverlap {
				tail := currentChunk.String()
				lastPart := tail[len(tail)-p.config.ChunkOverlap:]
				currentChunk.Reset()
				currentChunk.WriteString(lastPart)
			} else {
				currentChunk.Reset()
			}
		}

		currentChunk.WriteString(sentence)
		currentChunk.WriteString(" ")
	}

	// Add the last chunk if it meets minimum length
	if currentChunk.Len() >= p.config.MinChunkLength {
		chunks = append(chunks, strings.TrimSpace(currentChunk.String()))
	}

	return chunks
}

func splitIntoSentences(text string) []string {
	sentenceEnders := []string{". ", "! ", "? ", ".\n", "!\n", "?\n"}
	var sentences []string

	current := strings.Builder{}

	for i := 0; i < len(text); i++ {
		current.WriteByte(text[i])

		for _, ender := range sentenceEnders {
			if strings.HasSuffix(current.String(), ender) {
				sentences = append(sentences, strings.TrimSpace(current.String()))
				current.Reset()
				break
			}
		}
	}

	if current.Len() > 0 {
		sentences = append(sentences, strings.TrimSpace(current.String()))
	}

	return sentences
}
