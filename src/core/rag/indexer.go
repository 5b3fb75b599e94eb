package rag

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"pdfrag/src/log"
)

const DefaultBatchSize = 96

// ProgressFunc is called after every committed batch.
type ProgressFunc func(indexed, total int)

// Indexer pushes chunks into a tenant's vector index.
type Indexer struct {
	store     VectorStore
	batchSize int
	limiter   *rate.Limiter
}

type IndexerOption func(ix *Indexer)

// WithBatchSize overrides the number of records per upsert call.
func WithBatchSize(size int) IndexerOption {
	return func(ix *Indexer) {
		if size > 0 {
			ix.batchSize = size
		}
	}
}

// WithUpsertRate limits the number of upsert calls per second. Zero or a
// negative rate disables throttling.
func WithUpsertRate(perSecond float64) IndexerOption {
	return func(ix *Indexer) {
		if perSecond > 0 {
			ix.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

func NewIndexer(store VectorStore, opts ...IndexerOption) *Indexer {
	ix := &Indexer{
		store:     store,
		batchSize: DefaultBatchSize,
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// ToRecords assigns per-call ids rec1..recN to chunks.
func ToRecords(chunks []string) []Record {
	records := make([]Record, len(chunks))
	for i, chunk := range chunks {
		records[i] = Record{
			ID:   fmt.Sprintf("rec%d", i+1),
			Text: chunk,
		}
	}
	return records
}

// EnsureIndex provisions the tenant index. Failures are reported as
// provisioning failures so they can be told apart from write failures.
func (ix *Indexer) EnsureIndex(ctx context.Context, tenant string) error {
	if err := ix.store.EnsureIndex(ctx, tenant); err != nil {
		return fmt.Errorf("%w: %w: tenant %s: %w", ErrProvisioning, ErrCollaboratorUnavailable, tenant, err)
	}
	return nil
}

// Index converts chunks to records and upserts them in sequential batches.
// It returns the number of records written. An empty chunk slice returns 0
// without touching the store.
func (ix *Indexer) Index(ctx context.Context, tenant, namespace string, chunks []string, progress ProgressFunc) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}

	if err := ix.EnsureIndex(ctx, tenant); err != nil {
		return 0, err
	}

	records := ToRecords(chunks)
	indexed := 0
	for start := 0; start < len(records); start += ix.batchSize {
		end := min(start+ix.batchSize, len(records))

		if ix.limiter != nil {
			if err := ix.limiter.Wait(ctx); err != nil {
				return indexed, ix.partial(tenant, namespace, indexed, len(records), err)
			}
		}

		if err := ix.store.Upsert(ctx, tenant, namespace, records[start:end]); err != nil {
			log.Error(err, "failed to upsert batch",
				"tenant", tenant, "namespace", namespace, "batch_start", start, "batch_end", end)
			return indexed, ix.partial(tenant, namespace, indexed, len(records), err)
		}

		indexed = end
		log.Debug("upserted batch", "tenant", tenant, "namespace", namespace, "indexed", indexed, "total", len(records))
		if progress != nil {
			progress(indexed, len(records))
		}
	}

	return indexed, nil
}

func (ix *Indexer) partial(tenant, namespace string, indexed, total int, err error) error {
	return &PartialIndexError{
		Tenant:    tenant,
		Namespace: namespace,
		Indexed:   indexed,
		Total:     total,
		Err:       err,
	}
}
