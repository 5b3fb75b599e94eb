package job

import (
	"context"
	"encoding/json"
	"fmt"

	"pdfrag/src/core/knowledgebase"
	"pdfrag/src/core/rag"
)

const TaskTypeIngest = "ingest"

// Ingester indexes a staged document.
type Ingester interface {
	IngestStored(ctx context.Context, staged knowledgebase.StagedUpload, opts ...rag.IngestOption) (*knowledgebase.UploadResult, error)
}

// NewIngestHandler returns the handler for TaskTypeIngest jobs. The payload
// is a knowledgebase.StagedUpload. Only collaborator failures are retried.
func NewIngestHandler(ingester Ingester) TaskHandler {
	return func(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
		var staged knowledgebase.StagedUpload
		if err := json.Unmarshal(payload, &staged); err != nil {
			return nil, Permanent(fmt.Errorf("failed to unmarshal ingest payload: %w", err))
		}

		result, err := ingester.IngestStored(ctx, staged)
		if err != nil {
			err = fmt.Errorf("failed to ingest %s/%s: %w", staged.Tenant, staged.Namespace, err)
			if !rag.IsRetryable(err) {
				return nil, Permanent(err)
			}
			return nil, err
		}

		out, err := json.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal ingest result: %w", err)
		}
		return out, nil
	}
}

// EnqueueIngest publishes an ingest job for an already staged upload.
func (s *JobService) EnqueueIngest(ctx context.Context, staged *knowledgebase.StagedUpload) (*Job, error) {
	payload, err := json.Marshal(staged)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ingest payload: %w", err)
	}
	return s.EnqueueJob(ctx, staged.Tenant, TaskTypeIngest, payload)
}
