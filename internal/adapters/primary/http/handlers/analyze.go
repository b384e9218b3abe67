package handlers

import (
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"dental-inference-service/internal/adapters/primary/http/dto"
	"dental-inference-service/internal/core/domain"
	"dental-inference-service/internal/core/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// AnalyzeOrtopan accepts a panoramic X-ray upload and runs the analysis
// locally or through the remote provider, depending on the requested mode.
func (h *Handler) AnalyzeOrtopan(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": domain.ErrMissingUpload.Error()})
		return
	}
	if fileHeader.Size == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": domain.ErrEmptyUpload.Error()})
		return
	}

	bucket := c.Query("s3_bucket")
	if bucket == "" {
		bucket = h.defaultBucket
	}

	req := services.AnalyzeRequest{
		ImageName:   fileHeader.Filename,
		PatientName: c.DefaultQuery("patient_name", "unknown"),
		S3Bucket:    bucket,
		S3Prefix:    c.Query("s3_prefix"),
		Debug:       parseBoolQuery(c, "debug"),
	}

	suffix := filepath.Ext(fileHeader.Filename)
	if suffix == "" {
		suffix = ".png"
	}
	inputPath := filepath.Join(h.uploadDir, uuid.New().String()+suffix)
	if err := c.SaveUploadedFile(fileHeader, inputPath); err != nil {
		log.WithError(err).Error("save upload failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to persist upload"})
		return
	}
	defer os.Remove(inputPath)
	req.ImagePath = inputPath

	mode := domain.AnalysisMode(c.Query("mode"))
	if mode == "" {
		mode = h.analysisSvc.DefaultMode()
	}

	switch mode {
	case domain.AnalysisModeLocal:
		h.analyzeLocal(c, req)
	case domain.AnalysisModeRemote:
		h.analyzeRemote(c, req, parseBoolQuery(c, "wait_for_result"))
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "mode must be 'local' or 'remote'"})
	}
}

func (h *Handler) analyzeLocal(c *gin.Context, req services.AnalyzeRequest) {
	analysis, err := h.analysisSvc.AnalyzeLocal(c.Request.Context(), req)
	if err != nil {
		log.WithError(err).Error("local analysis failed")
		mapServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToLocalAnalysisResponse(analysis))
}

func (h *Handler) analyzeRemote(c *gin.Context, req services.AnalyzeRequest, wait bool) {
	if !wait {
		submitted, err := h.analysisSvc.SubmitRemote(c.Request.Context(), req)
		if err != nil {
			log.WithError(err).Error("remote submission failed")
			mapServiceError(c, err)
			return
		}

		c.JSON(http.StatusOK, dto.SubmittedResponse{
			Status:    "submitted",
			JobID:     submitted.JobID,
			StatusURL: submitted.StatusURL,
			Message:   "analysis submitted, poll status_url for the result",
		})
		return
	}

	job, err := h.analysisSvc.AnalyzeRemoteWait(c.Request.Context(), req)
	if err != nil {
		log.WithError(err).Error("remote analysis failed")
		mapServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.RemoteResultResponse{
		Status:      "completed",
		PatientName: req.PatientName,
		Result:      job.Output,
	})
}

func parseBoolQuery(c *gin.Context, name string) bool {
	v, err := strconv.ParseBool(c.DefaultQuery(name, "false"))
	if err != nil {
		return false
	}
	return v
}
