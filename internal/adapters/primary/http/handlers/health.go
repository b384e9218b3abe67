package handlers

import (
	"net/http"

	"dental-inference-service/internal/adapters/primary/http/dto"

	"github.com/gin-gonic/gin"
)

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, dto.HealthResponse{
		Status:          "healthy",
		ModelsLoaded:    h.lifecycle.IsLoaded(),
		ModelsAvailable: h.lifecycle.Available(),
	})
}
