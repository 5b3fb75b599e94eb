package knowledgebase

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"

	"pdfrag/src/core/rag"
	"pdfrag/src/log"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// UploadRequest carries one uploaded file.
type UploadRequest struct {
	Tenant   string
	Filename string
	Content  []byte
}

// StagedUpload is an upload whose artifact is stored and waiting to be
// indexed by a worker.
type StagedUpload struct {
	Tenant    string `json:"tenant"`
	Namespace string `json:"namespace"`
	Filename  string `json:"filename"`
	ObjectKey string `json:"object_key"`
}

// UploadResult reports the outcome of an ingestion.
type UploadResult struct {
	Document *Document   `json:"document,omitempty"`
	Indexed  int         `json:"indexed"`
	Message  string      `json:"message"`
	Outcome  rag.Outcome `json:"outcome"`
}

// DocumentService ingests, lists and removes documents.
type DocumentService struct {
	pipeline *rag.Pipeline
	source   DocumentSource
	ids      *snowflake.Node
	blobs    BlobStore
	catalog  DocumentRepository
}

type DocumentOption func(*DocumentService)

// WithBlobStore keeps uploaded artifacts for indexed documents.
func WithBlobStore(blobs BlobStore) DocumentOption {
	return func(s *DocumentService) {
		s.blobs = blobs
	}
}

// WithCatalog records indexed documents.
func WithCatalog(catalog DocumentRepository) DocumentOption {
	return func(s *DocumentService) {
		s.catalog = catalog
	}
}

func NewDocumentService(pipeline *rag.Pipeline, source DocumentSource, ids *snowflake.Node, opts ...DocumentOption) *DocumentService {
	s := &DocumentService{
		pipeline: pipeline,
		source:   source,
		ids:      ids,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NamespaceFromFilename derives the namespace of a document from its file
// name without directory and extension.
func NamespaceFromFilename(filename string) string {
	base := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ObjectKey is where one revision of a document artifact is stored. Each
// upload gets its own revision so a replacement never overwrites the artifact
// of the document it replaces.
func ObjectKey(tenant, namespace string, revision int64, filename string) string {
	return path.Join(tenant, namespace, strconv.FormatInt(revision, 10), filepath.Base(filename))
}

func (s *DocumentService) validate(req UploadRequest) (string, error) {
	if err := rag.ValidateTenant(req.Tenant); err != nil {
		return "", err
	}
	if strings.TrimSpace(req.Filename) == "" {
		return "", fmt.Errorf("%w: filename is required", rag.ErrInvalidInput)
	}
	if !strings.EqualFold(filepath.Ext(req.Filename), ".pdf") {
		return "", fmt.Errorf("%w: %w", rag.ErrInvalidInput, ErrUnsupportedDocument)
	}
	if len(req.Content) == 0 {
		return "", fmt.Errorf("%w: file is empty", rag.ErrInvalidInput)
	}
	namespace := NamespaceFromFilename(req.Filename)
	if err := rag.ValidateNamespace(namespace); err != nil {
		return "", err
	}
	return namespace, nil
}

func (s *DocumentService) stage(req UploadRequest, namespace string) StagedUpload {
	filename := filepath.Base(req.Filename)
	return StagedUpload{
		Tenant:    req.Tenant,
		Namespace: namespace,
		Filename:  filename,
		ObjectKey: ObjectKey(req.Tenant, namespace, s.ids.Generate().Int64(), filename),
	}
}

// Upload validates, extracts and indexes a document synchronously. Re-uploading
// a file with the same namespace replaces the previous records.
func (s *DocumentService) Upload(ctx context.Context, req UploadRequest, opts ...rag.IngestOption) (*UploadResult, error) {
	namespace, err := s.validate(req)
	if err != nil {
		return nil, err
	}
	return s.ingest(ctx, s.stage(req, namespace), req.Content, false, opts...)
}

// Stage validates a document and stores its artifact so a worker can index it
// later with IngestStored.
func (s *DocumentService) Stage(ctx context.Context, req UploadRequest) (*StagedUpload, error) {
	namespace, err := s.validate(req)
	if err != nil {
		return nil, err
	}
	if s.blobs == nil {
		return nil, errors.New("asynchronous ingestion requires a blob store")
	}
	staged := s.stage(req, namespace)
	if err := s.blobs.Put(ctx, staged.ObjectKey, req.Content); err != nil {
		return nil, fmt.Errorf("%w: failed to store document: %w", rag.ErrCollaboratorUnavailable, err)
	}
	return &staged, nil
}

// Unstage deletes the artifact of a staged upload that will not be ingested.
func (s *DocumentService) Unstage(ctx context.Context, staged StagedUpload) error {
	if s.blobs == nil {
		return nil
	}
	if err := s.blobs.Delete(ctx, staged.ObjectKey); err != nil {
		return fmt.Errorf("%w: failed to delete staged document: %w", rag.ErrCollaboratorUnavailable, err)
	}
	return nil
}

// IngestStored indexes a previously staged document. The staged artifact is
// deleted when the upload turns out to be unusable and kept when the failure
// is retryable.
func (s *DocumentService) IngestStored(ctx context.Context, staged StagedUpload, opts ...rag.IngestOption) (*UploadResult, error) {
	if s.blobs == nil {
		return nil, errors.New("asynchronous ingestion requires a blob store")
	}
	if err := rag.ValidateTenant(staged.Tenant); err != nil {
		return nil, err
	}
	if err := rag.ValidateNamespace(staged.Namespace); err != nil {
		return nil, err
	}
	content, err := s.blobs.Get(ctx, staged.ObjectKey)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load staged document: %w", rag.ErrCollaboratorUnavailable, err)
	}
	return s.ingest(ctx, staged, content, true, opts...)
}

func (s *DocumentService) ingest(ctx context.Context, staged StagedUpload, content []byte, stored bool, opts ...rag.IngestOption) (*UploadResult, error) {
	logger := log.WithValues("tenant", staged.Tenant, "namespace", staged.Namespace, "filename", staged.Filename)

	previous, err := s.lookup(ctx, staged.Tenant, staged.Namespace)
	if err != nil {
		return nil, err
	}

	pages, err := s.source.Extract(ctx, staged.Filename, content)
	if err != nil {
		if errors.Is(err, rag.ErrInvalidInput) {
			if stored {
				s.deleteArtifact(ctx, staged.ObjectKey)
			}
			return nil, err
		}
		return nil, fmt.Errorf("%w: failed to extract text: %w", rag.ErrCollaboratorUnavailable, err)
	}

	opts = append([]rag.IngestOption{rag.WithReplace()}, opts...)
	result, err := s.pipeline.Ingest(ctx, staged.Tenant, staged.Namespace, strings.Join(pages, "\n\n"), opts...)
	if err != nil {
		// Validation fails before the namespace is touched.
		if !errors.Is(err, rag.ErrInvalidInput) {
			s.rollback(ctx, staged, previous)
		}
		if stored && !rag.IsRetryable(err) {
			s.deleteArtifact(ctx, staged.ObjectKey)
		}
		return nil, err
	}

	if result.Outcome == rag.OutcomeNoExtractableText {
		if stored {
			s.deleteArtifact(ctx, staged.ObjectKey)
		}
		return &UploadResult{Message: result.Message, Outcome: result.Outcome}, nil
	}

	if s.blobs != nil && !stored {
		if err := s.blobs.Put(ctx, staged.ObjectKey, content); err != nil {
			s.rollback(ctx, staged, previous)
			return nil, fmt.Errorf("%w: failed to store document: %w", rag.ErrCollaboratorUnavailable, err)
		}
	}

	doc, err := s.record(ctx, staged, previous, result.Indexed)
	if err != nil {
		s.rollback(ctx, staged, previous)
		if !stored {
			s.deleteArtifact(ctx, staged.ObjectKey)
		}
		return nil, err
	}

	if previous != nil && previous.ObjectKey != doc.ObjectKey {
		s.deleteArtifact(ctx, previous.ObjectKey)
	}

	logger.Info("document ingested", "chunks", result.Indexed)
	return &UploadResult{
		Document: doc,
		Indexed:  result.Indexed,
		Message:  result.Message,
		Outcome:  result.Outcome,
	}, nil
}

func (s *DocumentService) lookup(ctx context.Context, tenant, namespace string) (*Document, error) {
	if s.catalog == nil {
		return nil, nil
	}
	doc, err := s.catalog.Get(ctx, tenant, namespace)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to look up document: %w", rag.ErrCollaboratorUnavailable, err)
	}
	return doc, nil
}

func (s *DocumentService) record(ctx context.Context, staged StagedUpload, previous *Document, chunks int) (*Document, error) {
	doc := &Document{
		Tenant:    staged.Tenant,
		Namespace: staged.Namespace,
		Filename:  staged.Filename,
		ObjectKey: staged.ObjectKey,
		Chunks:    chunks,
	}
	if s.catalog == nil {
		return doc, nil
	}

	if previous != nil {
		doc.ID = previous.ID
		doc.CreatedAt = previous.CreatedAt
	} else {
		doc.ID = s.ids.Generate().Int64()
	}

	if err := s.catalog.Save(ctx, doc); err != nil {
		return nil, fmt.Errorf("%w: failed to save document: %w", rag.ErrCollaboratorUnavailable, err)
	}
	return doc, nil
}

// rollback clears a namespace left incomplete so it can be re-indexed. The
// replace step has already dropped the records of previous, so its catalog
// entry and artifact go with them.
func (s *DocumentService) rollback(ctx context.Context, staged StagedUpload, previous *Document) {
	logger := log.WithValues("tenant", staged.Tenant, "namespace", staged.Namespace)
	if err := s.pipeline.Remove(ctx, staged.Tenant, staged.Namespace); err != nil {
		logger.Error(err, "failed to roll back incomplete namespace")
	}
	if previous == nil {
		return
	}
	if previous.ObjectKey != staged.ObjectKey {
		s.deleteArtifact(ctx, previous.ObjectKey)
	}
	if err := s.catalog.Delete(ctx, previous.Tenant, previous.Namespace); err != nil {
		logger.Error(err, "failed to delete superseded document")
	}
}

func (s *DocumentService) deleteArtifact(ctx context.Context, key string) {
	if s.blobs == nil || key == "" {
		return
	}
	if err := s.blobs.Delete(ctx, key); err != nil {
		log.Error(err, "failed to delete document artifact", "key", key)
	}
}

// List returns the indexed documents of a tenant, newest first.
func (s *DocumentService) List(ctx context.Context, tenant string, offset, limit int) ([]Document, error) {
	if err := rag.ValidateTenant(tenant); err != nil {
		return nil, err
	}
	if s.catalog == nil {
		return nil, ErrCatalogDisabled
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	docs, err := s.catalog.List(ctx, tenant, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return docs, nil
}

// Remove deletes the namespace records, the artifact and the catalog entry.
// The records are always deleted; ErrDocumentNotFound is returned afterwards
// when the catalog has no entry for the namespace.
func (s *DocumentService) Remove(ctx context.Context, tenant, namespace string) error {
	if err := s.pipeline.Remove(ctx, tenant, namespace); err != nil {
		return err
	}
	if s.catalog == nil {
		return nil
	}

	doc, err := s.catalog.Get(ctx, tenant, namespace)
	if err != nil {
		return fmt.Errorf("failed to look up document: %w", err)
	}
	if doc == nil {
		return ErrDocumentNotFound
	}

	if s.blobs != nil && doc.ObjectKey != "" {
		if err := s.blobs.Delete(ctx, doc.ObjectKey); err != nil {
			return fmt.Errorf("%w: failed to delete document artifact: %w", rag.ErrCollaboratorUnavailable, err)
		}
	}
	if err := s.catalog.Delete(ctx, tenant, namespace); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}
