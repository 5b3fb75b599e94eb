package unstructured_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdfrag/src/infrastructure/integrations/unstructured"
)

func element(page int, text string) unstructured.UnstructuredElement {
	return unstructured.UnstructuredElement{
		Type:     "NarrativeText",
		Text:     text,
		Metadata: unstructured.Metadata{PageNumber: page},
	}
}

func TestGroupByPage(t *testing.T) {
	tests := []struct {
		name     string
		elements []unstructured.UnstructuredElement
		want     []string
	}{
		{name: "empty", elements: nil, want: []string{}},
		{
			name:     "two pages",
			elements: []unstructured.UnstructuredElement{element(1, "Title"), element(1, "Body"), element(2, "Next")},
			want:     []string{"Title\n\nBody", "Next"},
		},
		{
			name:     "missing page number goes to the first page",
			elements: []unstructured.UnstructuredElement{element(0, "Header"), element(1, "Body")},
			want:     []string{"Header\n\nBody"},
		},
		{
			name:     "gap and blank text",
			elements: []unstructured.UnstructuredElement{element(1, "One"), element(2, "  "), element(3, "Three")},
			want:     []string{"One", "", "Three"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, unstructured.GroupByPage(tt.elements))
		})
	}
}

func TestExtract(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/general/v0/general", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		file, header, err := r.FormFile("files")
		if !assert.NoError(t, err) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()
		content, _ := io.ReadAll(file)
		assert.Equal(t, "report.pdf", header.Filename)
		assert.Equal(t, "%PDF-1.7", string(content))
		assert.Equal(t, "fast", r.FormValue("strategy"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]unstructured.UnstructuredElement{
			element(1, "First page"),
			element(2, "Second page"),
		})
	}))
	defer server.Close()

	svc := unstructured.NewUnstructuredService(server.URL+"/", server.Client())
	pages, err := svc.Extract(context.Background(), "report.pdf", []byte("%PDF-1.7"))
	require.NoError(t, err)
	assert.Equal(t, []string{"First page", "Second page"}, pages)
}

func TestExtractServiceError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad things", http.StatusInternalServerError)
	}))
	defer server.Close()

	svc := unstructured.NewUnstructuredService(server.URL, server.Client())
	_, err := svc.Extract(context.Background(), "report.pdf", []byte("%PDF-1.7"))
	assert.ErrorContains(t, err, "500")
}

func TestPing(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/healthcheck", r.URL.Path)
		if !healthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer server.Close()

	svc := unstructured.NewUnstructuredService(server.URL, server.Client())
	assert.NoError(t, svc.Ping(context.Background()))

	healthy.Store(false)
	assert.Error(t, svc.Ping(context.Background()))
}
