package rag

import (
	"context"
	"fmt"
	"sort"
	"time"
)

const DefaultTopK = 4

// Retriever runs semantic searches inside one tenant namespace.
type Retriever struct {
	store   VectorStore
	topK    int
	timeout time.Duration
}

// NewRetriever creates a retriever returning at most topK passages per
// query. A positive timeout bounds every search call.
func NewRetriever(store VectorStore, topK int, timeout time.Duration) *Retriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Retriever{
		store:   store,
		topK:    topK,
		timeout: timeout,
	}
}

// Retrieve returns the most relevant passages for query, highest score
// first. A namespace without content yields an empty slice.
func (r *Retriever) Retrieve(ctx context.Context, tenant, namespace, query string) ([]RetrievedPassage, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	passages, err := r.store.Search(ctx, tenant, namespace, query, r.topK)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to search %s/%s: %w", ErrCollaboratorUnavailable, tenant, namespace, err)
	}

	sort.SliceStable(passages, func(i, j int) bool {
		return passages[i].Score > passages[j].Score
	})
	if len(passages) > r.topK {
		passages = passages[:r.topK]
	}
	return passages, nil
}
