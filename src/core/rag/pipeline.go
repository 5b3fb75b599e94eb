package rag

import (
	"context"
	"fmt"
	"time"

	"pdfrag/src/log"
)

// Outcome describes how an ingestion ended.
type Outcome string

const (
	OutcomeIndexed           Outcome = "indexed"
	OutcomeNoExtractableText Outcome = "no_extractable_text"
)

const noTextMessage = "No valid text found in the document."

// IngestResult is reported back to the uploader.
type IngestResult struct {
	Indexed int
	Message string
	Outcome Outcome
}

// Config holds the tunables of the pipeline.
type Config struct {
	ChunkSize          int
	ChunkOverlap       int
	BatchSize          int
	TopK               int
	RelevanceThreshold float64
	SearchTimeout      time.Duration
	GenerationTimeout  time.Duration
	UpsertRate         float64
	SystemPrompt       string
}

// DefaultConfig returns the values the service ships with.
func DefaultConfig() Config {
	return Config{
		ChunkSize:          DefaultChunkSize,
		ChunkOverlap:       DefaultChunkOverlap,
		BatchSize:          DefaultBatchSize,
		TopK:               DefaultTopK,
		RelevanceThreshold: DefaultRelevanceThreshold,
		SearchTimeout:      10 * time.Second,
		GenerationTimeout:  2 * time.Minute,
		SystemPrompt:       DefaultSystemPrompt,
	}
}

// Pipeline wires the chunker, indexer, retriever, relevance gate, prompt
// composer and answer streamer around injected collaborators.
type Pipeline struct {
	store     VectorStore
	generator Generator
	chunker   *Chunker
	indexer   *Indexer
	retriever *Retriever
	gate      RelevanceGate
	streamer  *AnswerStreamer
}

// NewPipeline validates cfg and builds the pipeline.
func NewPipeline(store VectorStore, generator Generator, cfg Config) (*Pipeline, error) {
	if store == nil {
		return nil, fmt.Errorf("vector store is required")
	}
	if generator == nil {
		return nil, fmt.Errorf("generator is required")
	}

	chunker, err := NewChunker(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("failed to create chunker: %w", err)
	}

	return &Pipeline{
		store:     store,
		generator: generator,
		chunker:   chunker,
		indexer:   NewIndexer(store, WithBatchSize(cfg.BatchSize), WithUpsertRate(cfg.UpsertRate)),
		retriever: NewRetriever(store, cfg.TopK, cfg.SearchTimeout),
		gate:      NewRelevanceGate(cfg.RelevanceThreshold),
		streamer:  NewAnswerStreamer(generator, cfg.SystemPrompt, cfg.GenerationTimeout),
	}, nil
}

type ingestOptions struct {
	replace  bool
	progress ProgressFunc
}

type IngestOption func(o *ingestOptions)

// WithReplace deletes the namespace before the new records are written. The
// delete only happens when the text produced at least one chunk.
func WithReplace() IngestOption {
	return func(o *ingestOptions) {
		o.replace = true
	}
}

// WithProgress reports indexing progress after each batch.
func WithProgress(fn ProgressFunc) IngestOption {
	return func(o *ingestOptions) {
		o.progress = fn
	}
}

// Ingest chunks text and indexes it under the tenant namespace.
func (p *Pipeline) Ingest(ctx context.Context, tenant, namespace, text string, opts ...IngestOption) (*IngestResult, error) {
	if err := ValidateTenant(tenant); err != nil {
		return nil, err
	}
	if err := ValidateNamespace(namespace); err != nil {
		return nil, err
	}

	var o ingestOptions
	for _, opt := range opts {
		opt(&o)
	}

	chunks, err := p.chunker.Chunk(text)
	if err != nil {
		return nil, fmt.Errorf("failed to chunk document: %w", err)
	}
	if len(chunks) == 0 {
		log.Info("document has no extractable text", "tenant", tenant, "namespace", namespace)
		return &IngestResult{
			Message: noTextMessage,
			Outcome: OutcomeNoExtractableText,
		}, nil
	}

	if o.replace {
		if err := p.Remove(ctx, tenant, namespace); err != nil {
			return nil, fmt.Errorf("failed to clear namespace before re-index: %w", err)
		}
	}

	indexed, err := p.indexer.Index(ctx, tenant, namespace, chunks, o.progress)
	if err != nil {
		return nil, err
	}

	log.Info("document indexed", "tenant", tenant, "namespace", namespace, "chunks", indexed)
	return &IngestResult{
		Indexed: indexed,
		Message: fmt.Sprintf("Index updated with %d chunks.", indexed),
		Outcome: OutcomeIndexed,
	}, nil
}

type askOptions struct {
	onComplete CompleteFunc
}

type AskOption func(o *askOptions)

// OnComplete registers the hook run once the answer has been fully consumed.
func OnComplete(fn CompleteFunc) AskOption {
	return func(o *askOptions) {
		o.onComplete = fn
	}
}

// Ask answers query. With a namespace the answer is grounded on retrieved
// passages that pass the relevance gate; without one, or when nothing passes,
// the raw query goes to the generator.
func (p *Pipeline) Ask(ctx context.Context, tenant, namespace, query string, opts ...AskOption) (*Answer, error) {
	var o askOptions
	for _, opt := range opts {
		opt(&o)
	}

	prompt, grounded, err := p.Prepare(ctx, tenant, namespace, query)
	if err != nil {
		return nil, err
	}

	answer, err := p.streamer.StreamAnswer(ctx, prompt, o.onComplete)
	if err != nil {
		return nil, err
	}
	answer.grounded = len(grounded) > 0
	answer.sources = grounded
	return answer, nil
}

// AnswerOnce answers query without streaming.
func (p *Pipeline) AnswerOnce(ctx context.Context, tenant, namespace, query string) (string, error) {
	prompt, _, err := p.Prepare(ctx, tenant, namespace, query)
	if err != nil {
		return "", err
	}

	if p.streamer.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.streamer.timeout)
		defer cancel()
	}

	answer, err := p.generator.Generate(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("%w: generation failed: %w", ErrCollaboratorUnavailable, err)
	}
	return answer, nil
}

// Prepare runs retrieval, the relevance gate and the prompt composer and
// returns the prompt with the passages it was grounded on.
func (p *Pipeline) Prepare(ctx context.Context, tenant, namespace, query string) (string, []RetrievedPassage, error) {
	if err := ValidateTenant(tenant); err != nil {
		return "", nil, err
	}
	if query == "" {
		return "", nil, fmt.Errorf("%w: query is required", ErrInvalidInput)
	}

	var grounded []RetrievedPassage
	if namespace != "" {
		if err := ValidateNamespace(namespace); err != nil {
			return "", nil, err
		}

		passages, err := p.retriever.Retrieve(ctx, tenant, namespace, query)
		if err != nil {
			return "", nil, err
		}

		var hasContext bool
		hasContext, grounded = p.gate.Filter(passages)
		log.Debug("retrieval finished", "tenant", tenant, "namespace", namespace,
			"retrieved", len(passages), "grounded", len(grounded), "has_context", hasContext)
	}

	prompt := Compose(query, grounded)
	log.Debug("prompt composed", "tenant", tenant, "grounded", len(grounded) > 0,
		"estimated_tokens", EstimateTokens(prompt))
	return prompt, grounded, nil
}

// Retrieve exposes the retriever and the relevance gate, used by evaluation.
func (p *Pipeline) Retrieve(ctx context.Context, tenant, namespace, query string) ([]RetrievedPassage, []RetrievedPassage, error) {
	if err := ValidateTenant(tenant); err != nil {
		return nil, nil, err
	}
	if err := ValidateNamespace(namespace); err != nil {
		return nil, nil, err
	}
	passages, err := p.retriever.Retrieve(ctx, tenant, namespace, query)
	if err != nil {
		return nil, nil, err
	}
	_, grounded := p.gate.Filter(passages)
	return passages, grounded, nil
}

// Remove deletes every record of the namespace.
func (p *Pipeline) Remove(ctx context.Context, tenant, namespace string) error {
	if err := ValidateTenant(tenant); err != nil {
		return err
	}
	if err := ValidateNamespace(namespace); err != nil {
		return err
	}
	if err := p.store.DeleteNamespace(ctx, tenant, namespace); err != nil {
		return fmt.Errorf("%w: failed to delete namespace %s/%s: %w", ErrCollaboratorUnavailable, tenant, namespace, err)
	}
	log.Info("namespace removed", "tenant", tenant, "namespace", namespace)
	return nil
}
