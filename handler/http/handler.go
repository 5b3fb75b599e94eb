package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"pdfrag/src/core/knowledgebase"
	"pdfrag/src/core/rag"
	"pdfrag/src/infrastructure/job"
)

const (
	TenantHeader = "X-Tenant-ID"
	tenantKey    = "tenant"

	DefaultMaxUploadSize = 32 << 20
)

var ErrUploadTooLarge = errors.New("upload is too large")

type DocumentService interface {
	Upload(ctx context.Context, req knowledgebase.UploadRequest, opts ...rag.IngestOption) (*knowledgebase.UploadResult, error)
	Stage(ctx context.Context, req knowledgebase.UploadRequest) (*knowledgebase.StagedUpload, error)
	Unstage(ctx context.Context, staged knowledgebase.StagedUpload) error
	List(ctx context.Context, tenant string, offset, limit int) ([]knowledgebase.Document, error)
	Remove(ctx context.Context, tenant, namespace string) error
}

type ChatService interface {
	Ask(ctx context.Context, req knowledgebase.AskRequest) (*rag.Answer, error)
	History(ctx context.Context, tenant, sessionID string, limit int) ([]knowledgebase.ChatMessage, error)
}

type JobService interface {
	EnqueueIngest(ctx context.Context, staged *knowledgebase.StagedUpload) (*job.Job, error)
	Get(ctx context.Context, tenant string, id int) (*job.Job, error)
}

type SystemService interface {
	CheckHealth(ctx context.Context) (*knowledgebase.HealthStatus, error)
}

type Handler struct {
	docService    DocumentService
	chatService   ChatService
	jobService    JobService
	sysService    SystemService
	maxUploadSize int64
}

type Option func(*Handler)

// WithJobs enables asynchronous uploads and the jobs endpoint.
func WithJobs(jobs JobService) Option {
	return func(h *Handler) {
		h.jobService = jobs
	}
}

func WithMaxUploadSize(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxUploadSize = n
		}
	}
}

func NewHandler(docService DocumentService, chatService ChatService, sysService SystemService, opts ...Option) *Handler {
	h := &Handler{
		docService:    docService,
		chatService:   chatService,
		sysService:    sysService,
		maxUploadSize: DefaultMaxUploadSize,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes registers all API routes
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api/v1")

	// System routes
	api.GET("/health", h.CheckHealth)

	tenant := api.Group("", RequireTenant())

	// Document routes
	tenant.POST("/documents", h.UploadDocument)
	tenant.GET("/documents", h.ListDocuments)
	tenant.DELETE("/documents/:namespace", h.DeleteDocument)

	// Chat routes
	tenant.POST("/chat", h.Chat)
	tenant.GET("/chat/history", h.GetChatHistory)

	// Job routes
	tenant.GET("/jobs/:id", h.GetJob)
}

// RequireTenant rejects requests without a valid tenant header before any
// handler runs.
func RequireTenant() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenant := c.GetHeader(TenantHeader)
		if err := rag.ValidateTenant(tenant); err != nil {
			sendError(c, http.StatusBadRequest, err)
			c.Abort()
			return
		}
		c.Set(tenantKey, tenant)
		c.Next()
	}
}

func tenantFrom(c *gin.Context) string {
	return c.GetString(tenantKey)
}

// Common error response structure
type ErrorResponse struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// classify maps err to an HTTP status and error code. fallback is used when
// err matches no known sentinel.
func classify(err error, fallback int) (int, string) {
	switch {
	case errors.Is(err, rag.ErrUnauthorized):
		return http.StatusUnauthorized, "UNAUTHORIZED"
	case errors.Is(err, rag.ErrInvalidInput):
		return http.StatusBadRequest, "INVALID_INPUT"
	case errors.Is(err, ErrUploadTooLarge):
		return http.StatusRequestEntityTooLarge, "TOO_LARGE"
	case errors.Is(err, knowledgebase.ErrDocumentNotFound), errors.Is(err, job.ErrJobNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, knowledgebase.ErrCatalogDisabled), errors.Is(err, knowledgebase.ErrHistoryDisabled):
		return http.StatusNotImplemented, "NOT_CONFIGURED"
	case errors.Is(err, rag.ErrCollaboratorUnavailable):
		return http.StatusServiceUnavailable, "UNAVAILABLE"
	case fallback == http.StatusBadRequest:
		return fallback, "INVALID_INPUT"
	default:
		if fallback == 0 {
			fallback = http.StatusInternalServerError
		}
		return fallback, "INTERNAL_ERROR"
	}
}

func sendError(c *gin.Context, status int, err error) {
	status, code := classify(err, status)
	c.JSON(status, ErrorResponse{
		Code:    code,
		Message: err.Error(),
	})
}

func sendJSON(c *gin.Context, status int, data interface{}) {
	c.JSON(status, data)
}
