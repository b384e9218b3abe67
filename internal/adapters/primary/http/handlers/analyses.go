package handlers

import (
	"net/http"
	"strconv"

	"dental-inference-service/internal/adapters/primary/http/dto"
	ports "dental-inference-service/internal/core/ports/output"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

func (h *Handler) ListAnalyses(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	filter := ports.AnalysisListFilter{
		Mode:   c.Query("mode"),
		Status: c.Query("status"),
		Limit:  limit,
		Offset: offset,
	}

	records, total, err := h.analysisSvc.ListAnalyses(c.Request.Context(), filter)
	if err != nil {
		log.WithError(err).Error("list analyses failed")
		mapServiceError(c, err)
		return
	}

	items := make([]dto.AnalysisRecordResponse, 0, len(records))
	for _, record := range records {
		items = append(items, dto.ToAnalysisRecordResponse(record))
	}

	c.JSON(http.StatusOK, dto.ListAnalysesResponse{
		Items:      items,
		Total:      total,
		PageSize:   limit,
		NextOffset: offset + len(items),
	})
}

func (h *Handler) GetAnalysis(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid analysis id"})
		return
	}

	record, err := h.analysisSvc.GetAnalysis(c.Request.Context(), id)
	if err != nil {
		mapServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToAnalysisRecordResponse(record))
}
