package rag

import (
	"context"
)

// Record is a chunk prepared for the vector store.
type Record struct {
	ID   string
	Text string
}

// RetrievedPassage is a chunk returned by a search together with the
// relevance score reported by the vector store.
type RetrievedPassage struct {
	ID    string
	Text  string
	Score float64
}

// VectorStore is the embedding/search collaborator. Every operation is
// scoped to a single tenant index; namespaces partition that index.
type VectorStore interface {
	// EnsureIndex provisions the tenant index if needed. Calling it again
	// for an existing index is a no-op.
	EnsureIndex(ctx context.Context, tenant string) error
	// Upsert writes records under namespace, replacing records with the same ID.
	Upsert(ctx context.Context, tenant, namespace string, records []Record) error
	// Search returns at most k passages ordered by descending score. A missing
	// index or namespace yields an empty result, not an error.
	Search(ctx context.Context, tenant, namespace, query string, k int) ([]RetrievedPassage, error)
	// DeleteNamespace removes every record of the namespace.
	DeleteNamespace(ctx context.Context, tenant, namespace string) error
}

// Generator is the text-generation collaborator.
type Generator interface {
	// GenerateStream starts a streamed generation.
	GenerateStream(ctx context.Context, system, prompt string) (Stream, error)
	// Generate returns the full completion for prompt in one call.
	Generate(ctx context.Context, prompt string) (string, error)
}

// Stream is a pull-based sequence of generated text fragments.
//
// Next blocks until a fragment is available or the sequence ends. After Next
// returns false, Err reports the failure that ended it, if any. Close releases
// the underlying connection and may be called at any time, more than once.
type Stream interface {
	Next() bool
	Fragment() string
	Err() error
	Close() error
}
