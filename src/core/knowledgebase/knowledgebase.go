package knowledgebase

import (
	"context"
	"errors"
	"time"
)

var (
	ErrDocumentNotFound    = errors.New("document not found")
	ErrCatalogDisabled     = errors.New("document catalog is not configured")
	ErrHistoryDisabled     = errors.New("chat history is not configured")
	ErrUnsupportedDocument = errors.New("only .pdf documents are supported")
)

// Document is a catalog entry for one successfully indexed upload.
type Document struct {
	ID        int64     `json:"id,string"`
	Tenant    string    `json:"tenant"`
	Namespace string    `json:"namespace"`
	Filename  string    `json:"filename"`
	ObjectKey string    `json:"objectKey"`
	Chunks    int       `json:"chunks"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage represents a message in chat history
type ChatMessage struct {
	ID        int64     `json:"id,string"`
	Tenant    string    `json:"tenant"`
	SessionID string    `json:"sessionId"`
	Namespace string    `json:"namespace,omitempty"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Grounded  bool      `json:"grounded"`
	CreatedAt time.Time `json:"createdAt"`
}

// DocumentRepository persists the document catalog. Get returns nil, nil
// when no document matches.
type DocumentRepository interface {
	Save(ctx context.Context, doc *Document) error
	Get(ctx context.Context, tenant, namespace string) (*Document, error)
	List(ctx context.Context, tenant string, offset, limit int) ([]Document, error)
	Delete(ctx context.Context, tenant, namespace string) error
}

// ChatRepository persists chat history.
type ChatRepository interface {
	// Append stores all messages or none.
	Append(ctx context.Context, msgs ...ChatMessage) error
	List(ctx context.Context, tenant, sessionID string, limit int) ([]ChatMessage, error)
}

// BlobStore keeps the uploaded artifacts.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// DocumentSource turns an uploaded file into plain text, one entry per page.
// Malformed content is reported with an error wrapping rag.ErrInvalidInput.
type DocumentSource interface {
	Extract(ctx context.Context, filename string, content []byte) ([]string, error)
}

// Pinger is implemented by collaborators that can report their health.
type Pinger interface {
	Ping(ctx context.Context) error
}
