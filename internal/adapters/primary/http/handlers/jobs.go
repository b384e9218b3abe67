package handlers

import (
	"net/http"

	"dental-inference-service/internal/adapters/primary/http/dto"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

func (h *Handler) JobStatus(c *gin.Context) {
	jobID := c.Param("job_id")

	job, err := h.analysisSvc.JobStatus(c.Request.Context(), jobID)
	if err != nil {
		log.WithError(err).WithField("job_id", jobID).Error("job status lookup failed")
		mapServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToJobStatusResponse(job))
}

func (h *Handler) CancelJob(c *gin.Context) {
	jobID := c.Param("job_id")

	if err := h.analysisSvc.CancelJob(c.Request.Context(), jobID); err != nil {
		log.WithError(err).WithField("job_id", jobID).Error("job cancel failed")
		mapServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"job_id": jobID, "status": "cancelled"})
}
