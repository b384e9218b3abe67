package handlers

import (
	"errors"
	"net/http"

	"dental-inference-service/internal/core/domain"

	"github.com/gin-gonic/gin"
)

// mapServiceError translates the service error taxonomy into HTTP responses.
// Typed pipeline and remote errors keep their message: callers need the
// artifact path, step name, or job id to act on the failure.
func mapServiceError(c *gin.Context, err error) {
	var (
		cfgErr     *domain.ConfigurationError
		missingErr *domain.MissingArtifactError
		stepErr    *domain.PipelineStepError
		noOutErr   *domain.NoOutputError
		subErr     *domain.SubmissionError
		jobErr     *domain.RemoteJobError
		timeoutErr *domain.JobTimeoutError
		upErr      *domain.UploadError
	)

	switch {
	// Not found errors
	case errors.Is(err, domain.ErrAnalysisNotFound),
		errors.Is(err, domain.ErrJobNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})

	// Conflict errors
	case errors.Is(err, domain.ErrAnalysisConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})

	// Bad request / validation errors
	case errors.Is(err, domain.ErrMissingUpload),
		errors.Is(err, domain.ErrEmptyUpload),
		errors.Is(err, domain.ErrUnsupportedImageType),
		errors.Is(err, domain.ErrBucketRequired),
		errors.Is(err, domain.ErrRemoteNotConfigured):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

	// Service unavailable errors
	case errors.Is(err, domain.ErrQueueFull),
		errors.Is(err, domain.ErrModelsNotLoaded),
		errors.Is(err, domain.ErrHistoryNotAvailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})

	// Remote-mode errors
	case errors.As(err, &timeoutErr):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": err.Error()})
	case errors.As(err, &subErr),
		errors.As(err, &jobErr),
		errors.As(err, &upErr):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})

	// Local pipeline and configuration errors
	case errors.As(err, &cfgErr),
		errors.As(err, &missingErr),
		errors.As(err, &stepErr),
		errors.As(err, &noOutErr):
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})

	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
