package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"pdfrag/src/core/knowledgebase"
	"pdfrag/src/core/rag"
	"pdfrag/src/log"
)

// UploadDocument godoc
// @Summary Upload and index a PDF document
// @Tags documents
// @Accept multipart/form-data
// @Param X-Tenant-ID header string true "Tenant ID"
// @Param file formData file true "PDF file"
// @Param async query bool false "Index in the background"
// @Produce json
// @Success 200 {object} knowledgebase.UploadResult "No extractable text"
// @Success 201 {object} knowledgebase.UploadResult
// @Success 202 {object} job.Job
// @Failure 400 {object} ErrorResponse
// @Failure 413 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /documents [post]
func (h *Handler) UploadDocument(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadSize)

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			sendError(c, http.StatusRequestEntityTooLarge, fmt.Errorf("%w: limit is %d bytes", ErrUploadTooLarge, tooLarge.Limit))
			return
		}
		sendError(c, http.StatusBadRequest, fmt.Errorf("%w: file upload required: %w", rag.ErrInvalidInput, err))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		sendError(c, http.StatusBadRequest, fmt.Errorf("failed to read file: %w", err))
		return
	}

	req := knowledgebase.UploadRequest{
		Tenant:   tenantFrom(c),
		Filename: header.Filename,
		Content:  data,
	}

	if async, _ := strconv.ParseBool(c.Query("async")); async {
		h.enqueueUpload(c, req)
		return
	}

	result, err := h.docService.Upload(c.Request.Context(), req)
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}

	if result.Outcome == rag.OutcomeNoExtractableText {
		sendJSON(c, http.StatusOK, result)
		return
	}
	sendJSON(c, http.StatusCreated, result)
}

func (h *Handler) enqueueUpload(c *gin.Context, req knowledgebase.UploadRequest) {
	if h.jobService == nil {
		sendError(c, http.StatusNotImplemented, fmt.Errorf("asynchronous ingestion is not configured"))
		return
	}

	staged, err := h.docService.Stage(c.Request.Context(), req)
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}

	j, err := h.jobService.EnqueueIngest(c.Request.Context(), staged)
	if err != nil {
		if unstageErr := h.docService.Unstage(c.Request.Context(), *staged); unstageErr != nil {
			log.Error(unstageErr, "failed to discard staged document", "key", staged.ObjectKey)
		}
		sendError(c, http.StatusServiceUnavailable, err)
		return
	}
	sendJSON(c, http.StatusAccepted, j)
}

// ListDocuments godoc
// @Summary List indexed documents of the tenant
// @Tags documents
// @Param X-Tenant-ID header string true "Tenant ID"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Produce json
// @Success 200 {array} knowledgebase.Document
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /documents [get]
func (h *Handler) ListDocuments(c *gin.Context) {
	limit, err := queryInt(c, "limit", knowledgebase.DefaultListLimit)
	if err != nil {
		sendError(c, http.StatusBadRequest, err)
		return
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		sendError(c, http.StatusBadRequest, err)
		return
	}

	docs, err := h.docService.List(c.Request.Context(), tenantFrom(c), offset, limit)
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}
	sendJSON(c, http.StatusOK, docs)
}

// DeleteDocument godoc
// @Summary Remove a document and its indexed records
// @Tags documents
// @Param X-Tenant-ID header string true "Tenant ID"
// @Param namespace path string true "Document namespace"
// @Success 204 "No Content"
// @Failure 404 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /documents/{namespace} [delete]
func (h *Handler) DeleteDocument(c *gin.Context) {
	if err := h.docService.Remove(c.Request.Context(), tenantFrom(c), c.Param("namespace")); err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: invalid %s parameter", rag.ErrInvalidInput, key)
	}
	return n, nil
}
