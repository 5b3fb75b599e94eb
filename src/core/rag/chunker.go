package rag

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/tmc/langchaingo/textsplitter"
)

const (
	DefaultChunkSize    = 800
	DefaultChunkOverlap = 50
)

// Chunker splits document text into overlapping passages. Lengths are
// measured in runes.
type Chunker struct {
	chunkSize    int
	chunkOverlap int
}

// NewChunker creates a chunker producing chunks of at most chunkSize runes
// that share about chunkOverlap runes with their neighbour.
func NewChunker(chunkSize, chunkOverlap int) (*Chunker, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidInput, chunkSize)
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		return nil, fmt.Errorf("%w: chunk overlap %d must be in [0, %d)", ErrInvalidInput, chunkOverlap, chunkSize)
	}
	return &Chunker{chunkSize: chunkSize, chunkOverlap: chunkOverlap}, nil
}

// Chunk splits text on paragraph, line and word boundaries before falling
// back to character cuts. Whitespace-only text yields no chunks.
func (c *Chunker) Chunk(text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithSeparators([]string{"\n\n", "\n", " ", ""}),
		textsplitter.WithChunkSize(c.chunkSize),
		textsplitter.WithChunkOverlap(c.chunkOverlap),
		textsplitter.WithLenFunc(utf8.RuneCountInString),
	)

	splits, err := splitter.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("failed to split text: %w", err)
	}

	chunks := make([]string, 0, len(splits))
	for _, split := range splits {
		if strings.TrimSpace(split) == "" {
			continue
		}
		chunks = append(chunks, c.enforceLimit(split)...)
	}
	return chunks, nil
}

// enforceLimit hard-cuts a chunk that is still longer than the chunk size.
func (c *Chunker) enforceLimit(chunk string) []string {
	if utf8.RuneCountInString(chunk) <= c.chunkSize {
		return []string{chunk}
	}

	runes := []rune(chunk)
	step := c.chunkSize - c.chunkOverlap
	var parts []string
	for start := 0; start < len(runes); start += step {
		end := start + c.chunkSize
		if end >= len(runes) {
			parts = append(parts, string(runes[start:]))
			break
		}
		parts = append(parts, string(runes[start:end]))
	}
	return parts
}
