package knowledgebase_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdfrag/src/core/knowledgebase"
	"pdfrag/src/core/rag"
)

var longText = strings.Repeat("alpha beta gamma delta. ", 20)

func TestNamespaceFromFilename(t *testing.T) {
	tests := []struct {
		filename string
		want     string
	}{
		{filename: "report.pdf", want: "report"},
		{filename: "dir/Report.v2.PDF", want: "Report.v2"},
		{filename: `C:\docs\annual.pdf`, want: "annual"},
		{filename: ".pdf", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			assert.Equal(t, tt.want, knowledgebase.NamespaceFromFilename(tt.filename))
		})
	}
}

func TestObjectKey(t *testing.T) {
	assert.Equal(t, "acme/report/42/report.pdf", knowledgebase.ObjectKey("acme", "report", 42, "uploads/report.pdf"))
	assert.NotEqual(t,
		knowledgebase.ObjectKey("acme", "report", 1, "report.pdf"),
		knowledgebase.ObjectKey("acme", "report", 2, "report.pdf"))
}

func TestUploadValidation(t *testing.T) {
	svc := knowledgebase.NewDocumentService(newPipeline(t, newStore(), &fakeGenerator{}), &fakeSource{}, newNode(t))
	ctx := context.Background()

	tests := []struct {
		name    string
		req     knowledgebase.UploadRequest
		wantErr error
	}{
		{
			name:    "missing tenant",
			req:     knowledgebase.UploadRequest{Filename: "a.pdf", Content: []byte("x")},
			wantErr: rag.ErrUnauthorized,
		},
		{
			name:    "missing filename",
			req:     knowledgebase.UploadRequest{Tenant: "acme", Content: []byte("x")},
			wantErr: rag.ErrInvalidInput,
		},
		{
			name:    "not a pdf",
			req:     knowledgebase.UploadRequest{Tenant: "acme", Filename: "notes.txt", Content: []byte("x")},
			wantErr: knowledgebase.ErrUnsupportedDocument,
		},
		{
			name:    "empty file",
			req:     knowledgebase.UploadRequest{Tenant: "acme", Filename: "a.pdf"},
			wantErr: rag.ErrInvalidInput,
		},
		{
			name:    "no namespace",
			req:     knowledgebase.UploadRequest{Tenant: "acme", Filename: ".pdf", Content: []byte("x")},
			wantErr: rag.ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Upload(ctx, tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestUpload(t *testing.T) {
	store := newStore()
	blobs := newFakeBlobs()
	catalog := newFakeCatalog()
	source := &fakeSource{pages: []string{"page one text", "page two text"}}
	svc := knowledgebase.NewDocumentService(newPipeline(t, store, &fakeGenerator{}), source, newNode(t),
		knowledgebase.WithBlobStore(blobs), knowledgebase.WithCatalog(catalog))

	result, err := svc.Upload(context.Background(), knowledgebase.UploadRequest{
		Tenant:   "acme",
		Filename: "uploads/report.pdf",
		Content:  []byte("%PDF-1.7"),
	})
	require.NoError(t, err)

	assert.Equal(t, rag.OutcomeIndexed, result.Outcome)
	assert.Equal(t, 1, result.Indexed)
	require.NotNil(t, result.Document)
	assert.NotZero(t, result.Document.ID)
	assert.Equal(t, "report", result.Document.Namespace)
	assert.Equal(t, "report.pdf", result.Document.Filename)
	assert.True(t, strings.HasPrefix(result.Document.ObjectKey, "acme/report/"))
	assert.True(t, strings.HasSuffix(result.Document.ObjectKey, "/report.pdf"))

	assert.True(t, blobs.has(result.Document.ObjectKey))
	assert.Len(t, blobs.objects, 1)
	assert.Contains(t, catalog.docs, "acme/report")
	assert.Equal(t, 1, store.RecordCount("acme", "report"))
}

func TestReuploadReplacesRecordsAndKeepsIdentity(t *testing.T) {
	store := newStore()
	catalog := newFakeCatalog()
	source := &fakeSource{pages: []string{longText}}
	svc := knowledgebase.NewDocumentService(newPipeline(t, store, &fakeGenerator{}), source, newNode(t),
		knowledgebase.WithCatalog(catalog))
	ctx := context.Background()
	req := knowledgebase.UploadRequest{Tenant: "acme", Filename: "report.pdf", Content: []byte("v1")}

	first, err := svc.Upload(ctx, req)
	require.NoError(t, err)
	require.Greater(t, first.Indexed, 1)

	source.pages = []string{"short replacement"}
	req.Content = []byte("v2")
	second, err := svc.Upload(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, 1, second.Indexed)
	assert.Equal(t, 1, store.RecordCount("acme", "report"))
	assert.Equal(t, first.Document.ID, second.Document.ID)
	assert.Equal(t, first.Document.CreatedAt, second.Document.CreatedAt)
	assert.Len(t, catalog.docs, 1)
}

func TestUploadNoExtractableText(t *testing.T) {
	store := newStore()
	blobs := newFakeBlobs()
	catalog := newFakeCatalog()
	source := &fakeSource{pages: []string{"  ", ""}}
	svc := knowledgebase.NewDocumentService(newPipeline(t, store, &fakeGenerator{}), source, newNode(t),
		knowledgebase.WithBlobStore(blobs), knowledgebase.WithCatalog(catalog))

	result, err := svc.Upload(context.Background(), knowledgebase.UploadRequest{
		Tenant: "acme", Filename: "scan.pdf", Content: []byte("%PDF"),
	})
	require.NoError(t, err)
	assert.Equal(t, rag.OutcomeNoExtractableText, result.Outcome)
	assert.Equal(t, "No valid text found in the document.", result.Message)
	assert.Nil(t, result.Document)
	assert.Empty(t, blobs.objects)
	assert.Empty(t, catalog.docs)
	assert.Zero(t, store.IndexCount())
}

func TestUploadExtractionFailures(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr error
	}{
		{name: "malformed pdf", err: fmt.Errorf("%w: unreadable pdf", rag.ErrInvalidInput), wantErr: rag.ErrInvalidInput},
		{name: "extractor down", err: errBoom, wantErr: rag.ErrCollaboratorUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blobs := newFakeBlobs()
			catalog := newFakeCatalog()
			svc := knowledgebase.NewDocumentService(newPipeline(t, newStore(), &fakeGenerator{}), &fakeSource{err: tt.err}, newNode(t),
				knowledgebase.WithBlobStore(blobs), knowledgebase.WithCatalog(catalog))

			_, err := svc.Upload(context.Background(), knowledgebase.UploadRequest{
				Tenant: "acme", Filename: "broken.pdf", Content: []byte("garbage"),
			})
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, blobs.objects)
			assert.Empty(t, catalog.docs)
		})
	}
}

func TestUploadPartialIndexRollsBack(t *testing.T) {
	store := &flakyStore{Store: newStore(), failAfter: 1}
	blobs := newFakeBlobs()
	catalog := newFakeCatalog()
	svc := knowledgebase.NewDocumentService(newPipeline(t, store, &fakeGenerator{}), &fakeSource{pages: []string{longText}}, newNode(t),
		knowledgebase.WithBlobStore(blobs), knowledgebase.WithCatalog(catalog))

	_, err := svc.Upload(context.Background(), knowledgebase.UploadRequest{
		Tenant: "acme", Filename: "report.pdf", Content: []byte("%PDF"),
	})

	var partial *rag.PartialIndexError
	require.True(t, errors.As(err, &partial))
	assert.Equal(t, 1, partial.Indexed)
	assert.Zero(t, store.RecordCount("acme", "report"))
	assert.Empty(t, blobs.objects)
	assert.Empty(t, catalog.docs)
}

func TestUploadCatalogFailureRollsBack(t *testing.T) {
	store := newStore()
	blobs := newFakeBlobs()
	catalog := newFakeCatalog()
	catalog.saveErr = errBoom
	svc := knowledgebase.NewDocumentService(newPipeline(t, store, &fakeGenerator{}), &fakeSource{pages: []string{"text"}}, newNode(t),
		knowledgebase.WithBlobStore(blobs), knowledgebase.WithCatalog(catalog))

	_, err := svc.Upload(context.Background(), knowledgebase.UploadRequest{
		Tenant: "acme", Filename: "report.pdf", Content: []byte("%PDF"),
	})
	assert.ErrorIs(t, err, errBoom)
	assert.Zero(t, store.RecordCount("acme", "report"))
	assert.Empty(t, blobs.objects)
}

func TestUploadBlobFailureRollsBack(t *testing.T) {
	store := newStore()
	blobs := newFakeBlobs()
	blobs.putErr = errBoom
	svc := knowledgebase.NewDocumentService(newPipeline(t, store, &fakeGenerator{}), &fakeSource{pages: []string{"text"}}, newNode(t),
		knowledgebase.WithBlobStore(blobs))

	_, err := svc.Upload(context.Background(), knowledgebase.UploadRequest{
		Tenant: "acme", Filename: "report.pdf", Content: []byte("%PDF"),
	})
	assert.ErrorIs(t, err, rag.ErrCollaboratorUnavailable)
	assert.Zero(t, store.RecordCount("acme", "report"))
}

func TestStageAndIngestStored(t *testing.T) {
	store := newStore()
	blobs := newFakeBlobs()
	catalog := newFakeCatalog()
	source := &fakeSource{pages: []string{"staged text"}}
	svc := knowledgebase.NewDocumentService(newPipeline(t, store, &fakeGenerator{}), source, newNode(t),
		knowledgebase.WithBlobStore(blobs), knowledgebase.WithCatalog(catalog))
	ctx := context.Background()

	staged, err := svc.Stage(ctx, knowledgebase.UploadRequest{
		Tenant: "acme", Filename: "report.pdf", Content: []byte("%PDF"),
	})
	require.NoError(t, err)
	assert.Equal(t, "report", staged.Namespace)
	assert.True(t, blobs.has(staged.ObjectKey))
	assert.Zero(t, store.RecordCount("acme", "report"))

	result, err := svc.IngestStored(ctx, *staged)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Indexed)
	assert.True(t, blobs.has(staged.ObjectKey))
	assert.Contains(t, catalog.docs, "acme/report")
}

func TestIngestStoredWithoutTextDiscardsArtifact(t *testing.T) {
	blobs := newFakeBlobs()
	svc := knowledgebase.NewDocumentService(newPipeline(t, newStore(), &fakeGenerator{}), &fakeSource{}, newNode(t),
		knowledgebase.WithBlobStore(blobs))
	ctx := context.Background()

	staged, err := svc.Stage(ctx, knowledgebase.UploadRequest{
		Tenant: "acme", Filename: "scan.pdf", Content: []byte("%PDF"),
	})
	require.NoError(t, err)

	result, err := svc.IngestStored(ctx, *staged)
	require.NoError(t, err)
	assert.Equal(t, rag.OutcomeNoExtractableText, result.Outcome)
	assert.False(t, blobs.has(staged.ObjectKey))
}

func TestStageRequiresBlobStore(t *testing.T) {
	svc := knowledgebase.NewDocumentService(newPipeline(t, newStore(), &fakeGenerator{}), &fakeSource{}, newNode(t))

	_, err := svc.Stage(context.Background(), knowledgebase.UploadRequest{
		Tenant: "acme", Filename: "report.pdf", Content: []byte("%PDF"),
	})
	assert.Error(t, err)
}

func TestReuploadDeletesPreviousArtifact(t *testing.T) {
	blobs := newFakeBlobs()
	catalog := newFakeCatalog()
	svc := knowledgebase.NewDocumentService(newPipeline(t, newStore(), &fakeGenerator{}), &fakeSource{pages: []string{"text"}}, newNode(t),
		knowledgebase.WithBlobStore(blobs), knowledgebase.WithCatalog(catalog))
	ctx := context.Background()
	req := knowledgebase.UploadRequest{Tenant: "acme", Filename: "report.pdf", Content: []byte("v1")}

	first, err := svc.Upload(ctx, req)
	require.NoError(t, err)

	req.Content = []byte("v2")
	second, err := svc.Upload(ctx, req)
	require.NoError(t, err)

	assert.NotEqual(t, first.Document.ObjectKey, second.Document.ObjectKey)
	assert.False(t, blobs.has(first.Document.ObjectKey))
	assert.Equal(t, map[string][]byte{second.Document.ObjectKey: []byte("v2")}, blobs.objects)
	assert.Equal(t, second.Document.ObjectKey, catalog.docs["acme/report"].ObjectKey)
}

func TestUnusableReuploadKeepsPreviousDocument(t *testing.T) {
	tests := []struct {
		name   string
		source fakeSource
	}{
		{name: "no extractable text", source: fakeSource{pages: []string{" "}}},
		{name: "malformed pdf", source: fakeSource{err: fmt.Errorf("%w: unreadable pdf", rag.ErrInvalidInput)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newStore()
			blobs := newFakeBlobs()
			catalog := newFakeCatalog()
			source := &fakeSource{pages: []string{"good text"}}
			svc := knowledgebase.NewDocumentService(newPipeline(t, store, &fakeGenerator{}), source, newNode(t),
				knowledgebase.WithBlobStore(blobs), knowledgebase.WithCatalog(catalog))
			ctx := context.Background()

			first, err := svc.Upload(ctx, knowledgebase.UploadRequest{Tenant: "acme", Filename: "report.pdf", Content: []byte("v1")})
			require.NoError(t, err)

			*source = tt.source
			staged, err := svc.Stage(ctx, knowledgebase.UploadRequest{Tenant: "acme", Filename: "report.pdf", Content: []byte("v2")})
			require.NoError(t, err)
			assert.NotEqual(t, first.Document.ObjectKey, staged.ObjectKey)

			_, _ = svc.IngestStored(ctx, *staged)

			assert.False(t, blobs.has(staged.ObjectKey))
			assert.True(t, blobs.has(first.Document.ObjectKey))
			assert.Equal(t, first.Document.ObjectKey, catalog.docs["acme/report"].ObjectKey)
			assert.Equal(t, 1, store.RecordCount("acme", "report"))
		})
	}
}

func TestReuploadCatalogFailureDropsPreviousDocument(t *testing.T) {
	store := newStore()
	blobs := newFakeBlobs()
	catalog := newFakeCatalog()
	svc := knowledgebase.NewDocumentService(newPipeline(t, store, &fakeGenerator{}), &fakeSource{pages: []string{"text"}}, newNode(t),
		knowledgebase.WithBlobStore(blobs), knowledgebase.WithCatalog(catalog))
	ctx := context.Background()
	req := knowledgebase.UploadRequest{Tenant: "acme", Filename: "report.pdf", Content: []byte("v1")}

	_, err := svc.Upload(ctx, req)
	require.NoError(t, err)

	catalog.saveErr = errBoom
	req.Content = []byte("v2")
	_, err = svc.Upload(ctx, req)
	assert.ErrorIs(t, err, errBoom)
	assert.ErrorIs(t, err, rag.ErrCollaboratorUnavailable)

	assert.Empty(t, catalog.docs)
	assert.Empty(t, blobs.objects)
	assert.Zero(t, store.RecordCount("acme", "report"))
}

func TestIngestStoredRetryableFailureKeepsStagedArtifact(t *testing.T) {
	store := &flakyStore{Store: newStore(), failAfter: 0}
	blobs := newFakeBlobs()
	catalog := newFakeCatalog()
	svc := knowledgebase.NewDocumentService(newPipeline(t, store, &fakeGenerator{}), &fakeSource{pages: []string{"text"}}, newNode(t),
		knowledgebase.WithBlobStore(blobs), knowledgebase.WithCatalog(catalog))
	ctx := context.Background()

	staged, err := svc.Stage(ctx, knowledgebase.UploadRequest{Tenant: "acme", Filename: "report.pdf", Content: []byte("%PDF")})
	require.NoError(t, err)

	_, err = svc.IngestStored(ctx, *staged)
	assert.True(t, rag.IsRetryable(err))
	assert.True(t, blobs.has(staged.ObjectKey))
	assert.Empty(t, catalog.docs)

	store.failAfter = 1
	result, err := svc.IngestStored(ctx, *staged)
	require.NoError(t, err)
	assert.Equal(t, staged.ObjectKey, result.Document.ObjectKey)
}

func TestUnstage(t *testing.T) {
	blobs := newFakeBlobs()
	svc := knowledgebase.NewDocumentService(newPipeline(t, newStore(), &fakeGenerator{}), &fakeSource{}, newNode(t),
		knowledgebase.WithBlobStore(blobs))
	ctx := context.Background()

	staged, err := svc.Stage(ctx, knowledgebase.UploadRequest{Tenant: "acme", Filename: "report.pdf", Content: []byte("%PDF")})
	require.NoError(t, err)
	require.True(t, blobs.has(staged.ObjectKey))

	require.NoError(t, svc.Unstage(ctx, *staged))
	assert.Empty(t, blobs.objects)
}

func TestList(t *testing.T) {
	catalog := newFakeCatalog()
	for _, ns := range []string{"a", "b", "c"} {
		catalog.docs["acme/"+ns] = knowledgebase.Document{Tenant: "acme", Namespace: ns}
	}
	catalog.docs["globex/z"] = knowledgebase.Document{Tenant: "globex", Namespace: "z"}
	svc := knowledgebase.NewDocumentService(newPipeline(t, newStore(), &fakeGenerator{}), &fakeSource{}, newNode(t),
		knowledgebase.WithCatalog(catalog))
	ctx := context.Background()

	docs, err := svc.List(ctx, "acme", 0, 0)
	require.NoError(t, err)
	assert.Len(t, docs, 3)

	docs, err = svc.List(ctx, "acme", -5, 2)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "a", docs[0].Namespace)

	_, err = svc.List(ctx, "", 0, 10)
	assert.ErrorIs(t, err, rag.ErrUnauthorized)

	disabled := knowledgebase.NewDocumentService(newPipeline(t, newStore(), &fakeGenerator{}), &fakeSource{}, newNode(t))
	_, err = disabled.List(ctx, "acme", 0, 10)
	assert.ErrorIs(t, err, knowledgebase.ErrCatalogDisabled)
}

func TestRemove(t *testing.T) {
	store := newStore()
	blobs := newFakeBlobs()
	catalog := newFakeCatalog()
	svc := knowledgebase.NewDocumentService(newPipeline(t, store, &fakeGenerator{}), &fakeSource{pages: []string{"text"}}, newNode(t),
		knowledgebase.WithBlobStore(blobs), knowledgebase.WithCatalog(catalog))
	ctx := context.Background()

	_, err := svc.Upload(ctx, knowledgebase.UploadRequest{Tenant: "acme", Filename: "report.pdf", Content: []byte("%PDF")})
	require.NoError(t, err)

	require.NoError(t, svc.Remove(ctx, "acme", "report"))
	assert.Zero(t, store.RecordCount("acme", "report"))
	assert.Empty(t, blobs.objects)
	assert.Empty(t, catalog.docs)

	assert.ErrorIs(t, svc.Remove(ctx, "acme", "report"), knowledgebase.ErrDocumentNotFound)
	assert.ErrorIs(t, svc.Remove(ctx, "acme", ""), rag.ErrInvalidInput)
}

func TestRemoveWithoutCatalog(t *testing.T) {
	store := newStore()
	svc := knowledgebase.NewDocumentService(newPipeline(t, store, &fakeGenerator{}), &fakeSource{pages: []string{"text"}}, newNode(t))
	ctx := context.Background()

	_, err := svc.Upload(ctx, knowledgebase.UploadRequest{Tenant: "acme", Filename: "report.pdf", Content: []byte("%PDF")})
	require.NoError(t, err)

	require.NoError(t, svc.Remove(ctx, "acme", "report"))
	assert.Zero(t, store.RecordCount("acme", "report"))
}
