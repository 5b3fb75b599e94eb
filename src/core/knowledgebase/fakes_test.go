package knowledgebase_test

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"

	"pdfrag/src/core/knowledgebase"
	"pdfrag/src/core/rag"
	"pdfrag/src/storage/memory"
)

var errBoom = errors.New("boom")

type fakeSource struct {
	pages []string
	err   error
}

func (s *fakeSource) Extract(ctx context.Context, filename string, content []byte) ([]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.pages, nil
}

type fakeBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{objects: make(map[string][]byte)}
}

func (b *fakeBlobs) Put(ctx context.Context, key string, data []byte) error {
	if b.putErr != nil {
		return b.putErr
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = data
	return nil
}

func (b *fakeBlobs) Get(ctx context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %s not found", key)
	}
	return data, nil
}

func (b *fakeBlobs) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, key)
	return nil
}

func (b *fakeBlobs) has(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.objects[key]
	return ok
}

type fakeCatalog struct {
	docs    map[string]knowledgebase.Document
	saveErr error
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{docs: make(map[string]knowledgebase.Document)}
}

func (c *fakeCatalog) Save(ctx context.Context, doc *knowledgebase.Document) error {
	if c.saveErr != nil {
		return c.saveErr
	}
	c.docs[doc.Tenant+"/"+doc.Namespace] = *doc
	return nil
}

func (c *fakeCatalog) Get(ctx context.Context, tenant, namespace string) (*knowledgebase.Document, error) {
	doc, ok := c.docs[tenant+"/"+namespace]
	if !ok {
		return nil, nil
	}
	return &doc, nil
}

func (c *fakeCatalog) List(ctx context.Context, tenant string, offset, limit int) ([]knowledgebase.Document, error) {
	var docs []knowledgebase.Document
	for _, d := range c.docs {
		if d.Tenant == tenant {
			docs = append(docs, d)
		}
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Namespace < docs[j].Namespace })
	if offset >= len(docs) {
		return nil, nil
	}
	docs = docs[offset:]
	if len(docs) > limit {
		docs = docs[:limit]
	}
	return docs, nil
}

func (c *fakeCatalog) Delete(ctx context.Context, tenant, namespace string) error {
	delete(c.docs, tenant+"/"+namespace)
	return nil
}

type fakeHistory struct {
	msgs []knowledgebase.ChatMessage
}

func (h *fakeHistory) Append(ctx context.Context, msgs ...knowledgebase.ChatMessage) error {
	h.msgs = append(h.msgs, msgs...)
	return nil
}

func (h *fakeHistory) List(ctx context.Context, tenant, sessionID string, limit int) ([]knowledgebase.ChatMessage, error) {
	var out []knowledgebase.ChatMessage
	for _, m := range h.msgs {
		if m.Tenant == tenant && m.SessionID == sessionID {
			out = append(out, m)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

type fakeGenerator struct {
	fragments []string
	streamErr error
}

func (g *fakeGenerator) GenerateStream(ctx context.Context, system, prompt string) (rag.Stream, error) {
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
	return "", nil
}

// flakyStore fails every upsert after the first failAfter batches.
type flakyStore struct {
	*memory.Store
	failAfter int
	upserts   int
}

func (s *flakyStore) Upsert(ctx context.Context, tenant, namespace string, records []rag.Record) error {
	if s.upserts >= s.failAfter {
		return errBoom
	}
	s.upserts++
	return s.Store.Upsert(ctx, tenant, namespace, records)
}

func newStore() *memory.Store {
	return memory.NewStore(memory.NewHashEmbedder(0))
}

func newPipeline(t *testing.T, store rag.VectorStore, gen rag.Generator) *rag.Pipeline {
	t.Helper()
	cfg := rag.DefaultConfig()
	cfg.ChunkSize = 100
	cfg.ChunkOverlap = 10
	cfg.BatchSize = 1
	p, err := rag.NewPipeline(store, gen, cfg)
	require.NoError(t, err)
	return p
}

func newNode(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return node
}
