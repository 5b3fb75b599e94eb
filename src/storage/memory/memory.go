// Package memory provides an in-process vector store for tests and local
// development when no Weaviate instance is available.
package memory

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"pdfrag/src/core/rag"
)

// ErrIndexNotFound is returned when writing to a tenant that was never
// provisioned with EnsureIndex.
var ErrIndexNotFound = errors.New("index not found")

// Embedder turns texts into vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

type entry struct {
	text   string
	vector []float32
}

// Store keeps one index per tenant and one record map per namespace.
// Scores are cosine similarities clamped to [0, 1].
type Store struct {
	embedder Embedder

	mu      sync.RWMutex
	indexes map[string]map[string]map[string]entry
}

// NewStore creates an empty store.
func NewStore(embedder Embedder) *Store {
	return &Store{
		embedder: embedder,
		indexes:  make(map[string]map[string]map[string]entry),
	}
}

func (s *Store) EnsureIndex(ctx context.Context, tenant string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.indexes[tenant]; !ok {
		s.indexes[tenant] = make(map[string]map[string]entry)
	}
	return nil
}

// IndexCount returns the number of provisioned tenant indexes.
func (s *Store) IndexCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.indexes)
}

// RecordCount returns the number of records stored under a namespace.
func (s *Store) RecordCount(tenant, namespace string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.indexes[tenant][namespace])
}

func (s *Store) Upsert(ctx context.Context, tenant, namespace string, records []rag.Record) error {
	texts := make([]string, len(records))
	for i, r := range records {
		texts[i] = r.Text
	}
	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to embed records: %w", err)
	}
	if len(vectors) != len(records) {
		return fmt.Errorf("embedder returned %d vectors for %d records", len(vectors), len(records))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	index, ok := s.indexes[tenant]
	if !ok {
		return fmt.Errorf("%w: tenant %s", ErrIndexNotFound, tenant)
	}
	ns, ok := index[namespace]
	if !ok {
		ns = make(map[string]entry)
		index[namespace] = ns
	}
	for i, r := range records {
		ns[r.ID] = entry{text: r.Text, vector: vectors[i]}
	}
	return nil
}

func (s *Store) Search(ctx context.Context, tenant, namespace, query string, k int) ([]rag.RetrievedPassage, error) {
	if k <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	ns := s.indexes[tenant][namespace]
	candidates := make(map[string]entry, len(ns))
	for id, e := range ns {
		candidates[id] = e
	}
	s.mu.RUnlock()

	if len(candidates) == 0 {
		return nil, nil
	}

	vectors, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	results := make([]rag.RetrievedPassage, 0, len(candidates))
	for id, e := range candidates {
		results = append(results, rag.RetrievedPassage{
			ID:    id,
			Text:  e.text,
			Score: cosine(vectors[0], e.vector),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score == results[j].Score {
			return results[i].ID < results[j].ID
		}
		return results[i].Score > results[j].Score
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func (s *Store) DeleteNamespace(ctx context.Context, tenant, namespace string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index, ok := s.indexes[tenant]; ok {
		delete(index, namespace)
	}
	return nil
}

// Ping always succeeds.
func (s *Store) Ping(ctx context.Context) error {
	return nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	return math.Max(0, math.Min(1, sim))
}
