package handlers

import (
	"dental-inference-service/internal/core/services"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	analysisSvc   *services.AnalysisService
	lifecycle     *services.LifecycleManager
	uploadDir     string
	defaultBucket string
}

func New(
	analysisSvc *services.AnalysisService,
	lifecycle *services.LifecycleManager,
	uploadDir string,
	defaultBucket string,
) *Handler {
	return &Handler{
		analysisSvc:   analysisSvc,
		lifecycle:     lifecycle,
		uploadDir:     uploadDir,
		defaultBucket: defaultBucket,
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/health", h.Health)

	// Analysis
	r.POST("/analyze-ortopan", h.AnalyzeOrtopan)

	// Remote jobs
	r.GET("/job-status/:job_id", h.JobStatus)
	r.POST("/job-cancel/:job_id", h.CancelJob)

	// History
	r.GET("/analyses", h.ListAnalyses)
	r.GET("/analyses/:id", h.GetAnalysis)
}
