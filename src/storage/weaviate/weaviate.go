package weaviate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v4/weaviate"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"pdfrag/src/core/rag"
)

const (
	propertyNamespace = "namespace"
	propertyRecordID  = "recordId"
	propertyText      = "text"

	classPrefix = "Tenant_"
)

// Embedder turns texts into vectors. Weaviate classes are created without a
// vectorizer, so every vector is computed client side.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Store keeps one Weaviate class per tenant. Namespaces are a filterable
// property inside the class.
type Store struct {
	client   *weaviate.Client
	embedder Embedder
	hybrid   *HybridConfig
}

type Option func(*Store)

// WithHybrid switches Search from pure vector search to hybrid search.
func WithHybrid(config HybridConfig) Option {
	return func(s *Store) {
		s.hybrid = &config
	}
}

// NewStore creates a Weaviate backed vector store
func NewStore(client *weaviate.Client, embedder Embedder, opts ...Option) *Store {
	s := &Store{
		client:   client,
		embedder: embedder,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ClassName maps a tenant to its Weaviate class.
func ClassName(tenant string) string {
	return classPrefix + strings.ReplaceAll(tenant, "-", "_")
}

// ObjectID derives a stable object id so that writing the same record twice
// overwrites it.
func ObjectID(tenant, namespace, recordID string) strfmt.UUID {
	return strfmt.UUID(uuid.NewSHA1(uuid.NameSpaceURL, []byte(tenant+"/"+namespace+"/"+recordID)).String())
}

func (s *Store) classExists(ctx context.Context, className string) (bool, error) {
	exists, err := s.client.Schema().ClassExistenceChecker().WithClassName(className).Do(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to check if class exists: %w", err)
	}
	return exists, nil
}

func (s *Store) EnsureIndex(ctx context.Context, tenant string) error {
	className := ClassName(tenant)
	exists, err := s.classExists(ctx, className)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	class := &models.Class{
		Class:      className,
		Vectorizer: "none",
		Properties: []*models.Property{
			{
				Name:         propertyNamespace,
				DataType:     []string{"text"},
				Tokenization: models.PropertyTokenizationField,
			},
			{
				Name:         propertyRecordID,
				DataType:     []string{"text"},
				Tokenization: models.PropertyTokenizationField,
			},
			{
				Name:     propertyText,
				DataType: []string{"text"},
			},
		},
	}

	if err := s.client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
		// A concurrent caller may have created the class in the meantime.
		if exists, checkErr := s.classExists(ctx, className); checkErr == nil && exists {
			return nil
		}
		return fmt.Errorf("failed to create Weaviate class %s: %w", className, err)
	}
	return nil
}

func (s *Store) Upsert(ctx context.Context, tenant, namespace string, records []rag.Record) error {
	if len(records) == 0 {
		return nil
	}

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

	className := ClassName(tenant)
	objs := make([]*models.Object, len(records))
	for i, r := range records {
		objs[i] = &models.Object{
			Class: className,
			ID:    ObjectID(tenant, namespace, r.ID),
			Properties: map[string]interface{}{
				propertyNamespace: namespace,
				propertyRecordID:  r.ID,
				propertyText:      r.Text,
			},
			Vector: vectors[i],
		}
	}

	resp, err := s.client.Batch().ObjectsBatcher().WithObjects(objs...).Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to batch upsert objects: %w", err)
	}
	if len(resp) == 0 {
		return errors.New("batch operation returned no results")
	}

	var errs []error
	for _, r := range resp {
		if r.Result == nil || r.Result.Errors == nil {
			continue
		}
		for _, item := range r.Result.Errors.Error {
			errs = append(errs, fmt.Errorf("object %s: %s", r.ID, item.Message))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("failed to upsert %d objects: %w", len(errs), errors.Join(errs...))
	}
	return nil
}

func namespaceFilter(namespace string) *filters.WhereBuilder {
	return filters.Where().
		WithPath([]string{propertyNamespace}).
		WithOperator(filters.Equal).
		WithValueText(namespace)
}

func (s *Store) Search(ctx context.Context, tenant, namespace, query string, k int) ([]rag.RetrievedPassage, error) {
	if k <= 0 {
		return nil, nil
	}

	className := ClassName(tenant)
	exists, err := s.classExists(ctx, className)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}

	vectors, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for one query", len(vectors))
	}

	if s.hybrid != nil {
		return s.searchHybrid(ctx, className, namespace, query, vectors[0], k)
	}

	nearVector := s.client.GraphQL().NearVectorArgBuilder().WithVector(vectors[0])

	result, err := s.client.GraphQL().Get().
		WithClassName(className).
		WithFields(
			graphql.Field{Name: propertyRecordID},
			graphql.Field{Name: propertyText},
			graphql.Field{Name: "_additional { id certainty }"},
		).
		WithNearVector(nearVector).
		WithWhere(namespaceFilter(namespace)).
		WithLimit(k).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query vectors: %w", err)
	}
	if err := graphQLError(result); err != nil {
		return nil, err
	}

	return parsePassages(result, className, "certainty"), nil
}

func (s *Store) DeleteNamespace(ctx context.Context, tenant, namespace string) error {
	className := ClassName(tenant)
	exists, err := s.classExists(ctx, className)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}

	// One batch delete removes at most QUERY_MAXIMUM_RESULTS objects.
	for {
		resp, err := s.client.Batch().ObjectsBatchDeleter().
			WithClassName(className).
			WithOutput("minimal").
			WithWhere(namespaceFilter(namespace)).
			Do(ctx)
		if err != nil {
			return fmt.Errorf("failed to delete namespace %s: %w", namespace, err)
		}
		if resp == nil || resp.Results == nil || resp.Results.Matches == 0 {
			return nil
		}
		res := resp.Results
		if res.Failed > 0 {
			return fmt.Errorf("failed to delete %d of %d objects in namespace %s", res.Failed, res.Matches, namespace)
		}
		if res.Limit > 0 && res.Matches < res.Limit {
			return nil
		}
	}
}

// Ping reports whether the Weaviate node is ready.
func (s *Store) Ping(ctx context.Context) error {
	ready, err := s.client.Misc().ReadyChecker().Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to reach weaviate: %w", err)
	}
	if !ready {
		return errors.New("weaviate is not ready")
	}
	return nil
}

func graphQLError(result *models.GraphQLResponse) error {
	if result == nil || len(result.Errors) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors))
	for _, e := range result.Errors {
		msgs = append(msgs, e.Message)
	}
	return fmt.Errorf("graphql query failed: %s", strings.Join(msgs, "; "))
}

func parsePassages(result *models.GraphQLResponse, className, scoreField string) []rag.RetrievedPassage {
	var passages []rag.RetrievedPassage
	data, ok := result.Data["Get"].(map[string]interface{})
	if !ok {
		return nil
	}
	objects, ok := data[className].([]interface{})
	if !ok {
		return nil
	}
	for _, obj := range objects {
		objMap, ok := obj.(map[string]interface{})
		if !ok {
			continue
		}
		additional, _ := objMap["_additional"].(map[string]interface{})
		recordID, _ := objMap[propertyRecordID].(string)
		text, _ := objMap[propertyText].(string)
		passages = append(passages, rag.RetrievedPassage{
			ID:    recordID,
			Text:  text,
			Score: toScore(additional[scoreField]),
		})
	}
	return passages
}
