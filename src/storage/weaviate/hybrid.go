package weaviate

import (
	"context"
	"fmt"
	"strconv"

	"github.com/weaviate/weaviate-go-client/v4/weaviate/graphql"

	"pdfrag/src/core/rag"
)

// HybridConfig contains configuration for hybrid search
type HybridConfig struct {
	Alpha float32 // Weight for vector search, the rest goes to BM25
}

// DefaultHybridConfig returns default configuration for hybrid search
func DefaultHybridConfig() HybridConfig {
	return HybridConfig{
		Alpha: 0.75, // 75% vector search, 25% BM25
	}
}

// searchHybrid combines vector similarity and BM25 over the passage text.
// Relative score fusion keeps scores in [0, 1].
func (s *Store) searchHybrid(ctx context.Context, className, namespace, query string, vector []float32, k int) ([]rag.RetrievedPassage, error) {
	hybrid := s.client.GraphQL().HybridArgumentBuilder().
		WithQuery(query).
		WithVector(vector).
		WithAlpha(s.hybrid.Alpha).
		WithProperties([]string{propertyText}).
		WithFusionType(graphql.RelativeScore)

	result, err := s.client.GraphQL().Get().
		WithClassName(className).
		WithFields(
			graphql.Field{Name: propertyRecordID},
			graphql.Field{Name: propertyText},
			graphql.Field{Name: "_additional { id score }"},
		).
		WithHybrid(hybrid).
		WithWhere(namespaceFilter(namespace)).
		WithLimit(k).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run hybrid query: %w", err)
	}
	if err := graphQLError(result); err != nil {
		return nil, err
	}

	return parsePassages(result, className, "score"), nil
}

// toScore accepts both numeric scores and the string encoded hybrid score.
func toScore(v interface{}) float64 {
	switch s := v.(type) {
	case float64:
		return s
	case string:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}
