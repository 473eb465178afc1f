package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"askhc/src/infrastructure/job"
)

// GetJob godoc
// @Summary Get the state of a background job
// @Tags jobs
// @Param id path string true "Job ID"
// @Produce json
// @Success 200 {object} job.Job
// @Failure 404 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /api/jobs/{id} [get]
func (h *Handler) GetJob(c *gin.Context) {
	if h.jobService == nil {
		sendError(c, http.StatusServiceUnavailable, job.ErrJobsDisabled)
		return
	}

	id, err := job.ParseID(c.Param("id"))
	if err != nil {
		sendError(c, http.StatusNotFound, err)
		return
	}

	j, err := h.jobService.GetJob(c.Request.Context(), id)
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}
	sendJSON(c, http.StatusOK, j)
}
