package http

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// CheckHealth godoc
// @Summary Check system health status
// @Tags system
// @Produce json
// @Success 200 {object} knowledgebase.HealthStatus
// @Failure 503 {object} knowledgebase.HealthStatus
// @Router /health [get]
func (h *Handler) CheckHealth(c *gin.Context) {
	status, err := h.sysService.CheckHealth(c.Request.Context())
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}
	if !status.Healthy() {
		sendJSON(c, http.StatusServiceUnavailable, status)
		return
	}
	sendJSON(c, http.StatusOK, status)
}

// GetJob godoc
// @Summary Get the state of a background job
// @Tags jobs
// @Param X-Tenant-ID header string true "Tenant ID"
// @Param id path int true "Job ID"
// @Produce json
// @Success 200 {object} job.Job
// @Failure 404 {object} ErrorResponse
// @Router /jobs/{id} [get]
func (h *Handler) GetJob(c *gin.Context) {
	if h.jobService == nil {
		sendError(c, http.StatusNotImplemented, fmt.Errorf("background jobs are not configured"))
		return
	}

	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		sendError(c, http.StatusBadRequest, fmt.Errorf("invalid job id %q", c.Param("id")))
		return
	}

	j, err := h.jobService.Get(c.Request.Context(), tenantFrom(c), id)
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}
	sendJSON(c, http.StatusOK, j)
}
