package http

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"pdfrag/src/core/knowledgebase"
	"pdfrag/src/core/rag"
)

type chatRequest struct {
	Query     string `json:"query" binding:"required"`
	Namespace string `json:"namespace"`
	SessionID string `json:"sessionId"`
}

type sourceResponse struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

type chatMeta struct {
	Grounded bool             `json:"grounded"`
	Sources  []sourceResponse `json:"sources"`
}

// Chat godoc
// @Summary Ask a question, answered as a server-sent event stream
// @Description Events: "meta" once, "message" per fragment, then "done" or "error".
// @Tags chat
// @Accept json
// @Produce text/event-stream
// @Param X-Tenant-ID header string true "Tenant ID"
// @Param body body chatRequest true "Question"
// @Failure 400 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /chat [post]
func (h *Handler) Chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, fmt.Errorf("%w: %w", rag.ErrInvalidInput, err))
		return
	}

	answer, err := h.chatService.Ask(c.Request.Context(), knowledgebase.AskRequest{
		Tenant:    tenantFrom(c),
		SessionID: req.SessionID,
		Namespace: req.Namespace,
		Query:     req.Query,
	})
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}
	defer answer.Close()

	meta := chatMeta{Grounded: answer.Grounded(), Sources: []sourceResponse{}}
	for _, p := range answer.Sources() {
		meta.Sources = append(meta.Sources, sourceResponse{ID: p.ID, Score: p.Score})
	}

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent("meta", meta)

	c.Stream(func(w io.Writer) bool {
		if answer.Next() {
			c.SSEvent("message", answer.Fragment())
			return true
		}
		if err := answer.Err(); err != nil {
			_, code := classify(err, http.StatusInternalServerError)
			c.SSEvent("error", ErrorResponse{Code: code, Message: err.Error()})
			return false
		}
		c.SSEvent("done", gin.H{"grounded": answer.Grounded()})
		return false
	})
}

// GetChatHistory godoc
// @Summary Get chat history
// @Tags chat
// @Param X-Tenant-ID header string true "Tenant ID"
// @Param sessionId query string true "Chat session ID"
// @Produce json
// @Success 200 {array} knowledgebase.ChatMessage
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /chat/history [get]
func (h *Handler) GetChatHistory(c *gin.Context) {
	sessionID := c.Query("sessionId")
	if sessionID == "" {
		sendError(c, http.StatusBadRequest, fmt.Errorf("sessionId is required"))
		return
	}

	limit, err := queryInt(c, "limit", knowledgebase.DefaultHistoryLimit)
	if err != nil {
		sendError(c, http.StatusBadRequest, err)
		return
	}

	history, err := h.chatService.History(c.Request.Context(), tenantFrom(c), sessionID, limit)
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}

	sendJSON(c, http.StatusOK, history)
}
