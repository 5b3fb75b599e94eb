package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdfrag/src/core/rag"
	"pdfrag/src/storage/memory"
)

func TestEnsureIndexIsIdempotent(t *testing.T) {
	store := memory.NewStore(memory.NewHashEmbedder(64))
	ctx := context.Background()

	require.NoError(t, store.EnsureIndex(ctx, "acme"))
	require.NoError(t, store.EnsureIndex(ctx, "acme"))
	assert.Equal(t, 1, store.IndexCount())
}

func TestUpsertRequiresIndex(t *testing.T) {
	store := memory.NewStore(memory.NewHashEmbedder(64))

	err := store.Upsert(context.Background(), "acme", "report", []rag.Record{{ID: "rec1", Text: "hello"}})
	assert.ErrorIs(t, err, memory.ErrIndexNotFound)
}

func TestSearch(t *testing.T) {
	store := memory.NewStore(memory.NewHashEmbedder(0))
	ctx := context.Background()

	require.NoError(t, store.EnsureIndex(ctx, "acme"))
	require.NoError(t, store.Upsert(ctx, "acme", "report", []rag.Record{
		{ID: "rec1", Text: "quarterly revenue report"},
		{ID: "rec2", Text: "quarterly revenue report"},
		{ID: "rec3", Text: "quarterly revenue report"},
	}))

	got, err := store.Search(ctx, "acme", "report", "Quarterly revenue report", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "rec1", got[0].ID)
	assert.Equal(t, "rec2", got[1].ID)
	assert.InDelta(t, 1.0, got[0].Score, 1e-6)

	got, err = store.Search(ctx, "acme", "report", "anything", 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSearchMissingIndexOrNamespace(t *testing.T) {
	store := memory.NewStore(memory.NewHashEmbedder(64))
	ctx := context.Background()

	got, err := store.Search(ctx, "nobody", "report", "query", 4)
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, store.EnsureIndex(ctx, "acme"))
	got, err = store.Search(ctx, "acme", "missing", "query", 4)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDeleteNamespace(t *testing.T) {
	store := memory.NewStore(memory.NewHashEmbedder(64))
	ctx := context.Background()

	require.NoError(t, store.EnsureIndex(ctx, "acme"))
	require.NoError(t, store.Upsert(ctx, "acme", "a", []rag.Record{{ID: "rec1", Text: "one"}}))
	require.NoError(t, store.Upsert(ctx, "acme", "b", []rag.Record{{ID: "rec1", Text: "one"}}))

	require.NoError(t, store.DeleteNamespace(ctx, "acme", "a"))
	assert.Zero(t, store.RecordCount("acme", "a"))
	assert.Equal(t, 1, store.RecordCount("acme", "b"))

	assert.NoError(t, store.DeleteNamespace(ctx, "nobody", "a"))
}

func TestHashEmbedder(t *testing.T) {
	e := memory.NewHashEmbedder(32)

	vectors, err := e.Embed(context.Background(), []string{"Hello, world", "hello world!", ""})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	assert.Len(t, vectors[0], 32)
	assert.Equal(t, vectors[0], vectors[1])

	var sum float32
	for _, v := range vectors[2] {
		sum += v
	}
	assert.Zero(t, sum)
}
