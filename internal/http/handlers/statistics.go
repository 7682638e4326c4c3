package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/tz1211/datadetox/internal/http/response"
	"github.com/tz1211/datadetox/internal/platform/logger"
	"github.com/tz1211/datadetox/internal/services"
)

type StatisticsHandler struct {
	log     *logger.Logger
	lineage services.LineageService
}

func NewStatisticsHandler(log *logger.Logger, lineage services.LineageService) *StatisticsHandler {
	return &StatisticsHandler{
		log:     log.With("handler", "StatisticsHandler"),
		lineage: lineage,
	}
}

// GET /api/statistics
func (h *StatisticsHandler) GetStatistics(c *gin.Context) {
	stats, err := h.lineage.Statistics(c.Request.Context())
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}

	response.RespondOK(c, stats)
}
