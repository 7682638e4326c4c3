package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tz1211/datadetox/internal/http/response"
	"github.com/tz1211/datadetox/internal/platform/logger"
	"github.com/tz1211/datadetox/internal/services"
)

type LineageHandler struct {
	log     *logger.Logger
	lineage services.LineageService
}

func NewLineageHandler(log *logger.Logger, lineage services.LineageService) *LineageHandler {
	return &LineageHandler{
		log:     log.With("handler", "LineageHandler"),
		lineage: lineage,
	}
}

// GET /api/lineage/*id
//
// Model ids contain a slash ("org/name"), so the route binds a catch-all
// parameter; gin keeps the leading separator, which is stripped here.
func (h *LineageHandler) GetLineage(c *gin.Context) {
	id := strings.Trim(strings.TrimSpace(c.Param("id")), "/")
	if id == "" {
		response.RespondError(c, http.StatusBadRequest, "missing_model_id", errors.New("model id is required"))
		return
	}

	fetch := h.lineage.Lineage
	if refresh, _ := strconv.ParseBool(strings.TrimSpace(c.Query("refresh"))); refresh {
		fetch = h.lineage.Refresh
	}

	result, err := fetch(c.Request.Context(), id)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}

	response.RespondOK(c, result)
}
