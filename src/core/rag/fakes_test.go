package rag_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"unicode"

	"pdfrag/src/core/rag"
)

// keywordEmbedder maps each known word to its own dimension so similarity
// scores in tests are exact.
type keywordEmbedder struct {
	vocab []string
}

func (e keywordEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, len(e.vocab))
		words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
			return !unicode.IsLetter(r)
		})
		for _, w := range words {
			for dim, known := range e.vocab {
				if w == known {
					vec[dim]++
				}
			}
		}
		vectors[i] = vec
	}
	return vectors, nil
}

// fakeGenerator streams a fixed list of fragments, optionally failing after
// all of them were emitted.
type fakeGenerator struct {
	fragments []string
	streamErr error
	startErr  error
	reply     string

	mu      sync.Mutex
	prompts []string
	systems []string
}

func (g *fakeGenerator) GenerateStream(ctx context.Context, system, prompt string) (rag.Stream, error) {
	if g.startErr != nil {
		return nil, g.startErr
	}
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	g.systems = append(g.systems, system)
	g.mu.Unlock()

	return rag.NewPipeStream(ctx, func(ctx context.Context, emit func(string) error) error {
		for _, f := range g.fragments {
			if err := emit(f); err != nil {
				return err
			}
		}
		return g.streamErr
	}), nil
}

func (g *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	g.mu.Unlock()
	if g.startErr != nil {
		return "", g.startErr
	}
	return g.reply, nil
}

func (g *fakeGenerator) lastPrompt() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.prompts) == 0 {
		return ""
	}
	return g.prompts[len(g.prompts)-1]
}

// recordingStore captures every call the indexer and retriever make.
type recordingStore struct {
	ensureCalls int
	ensureErr   error
	batches     [][]rag.Record
	failOnBatch int
	upsertErr   error

	results   []rag.RetrievedPassage
	searchErr error
	searchK   int
}

func (s *recordingStore) EnsureIndex(ctx context.Context, tenant string) error {
	s.ensureCalls++
	return s.ensureErr
}

func (s *recordingStore) Upsert(ctx context.Context, tenant, namespace string, records []rag.Record) error {
	if s.upsertErr != nil && len(s.batches) == s.failOnBatch {
		return s.upsertErr
	}
	s.batches = append(s.batches, records)
	return nil
}

func (s *recordingStore) Search(ctx context.Context, tenant, namespace, query string, k int) ([]rag.RetrievedPassage, error) {
	s.searchK = k
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	out := make([]rag.RetrievedPassage, len(s.results))
	copy(out, s.results)
	return out, nil
}

func (s *recordingStore) DeleteNamespace(ctx context.Context, tenant, namespace string) error {
	return nil
}

var errBoom = errors.New("boom")
