package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	runsrepo "github.com/tz1211/datadetox/internal/data/repos/runs"
	"github.com/tz1211/datadetox/internal/domain/runs"
	"github.com/tz1211/datadetox/internal/http/response"
	"github.com/tz1211/datadetox/internal/pkg/dbctx"
	"github.com/tz1211/datadetox/internal/platform/logger"
)

const maxRunListLimit = 100

type RunsHandler struct {
	log  *logger.Logger
	runs runsrepo.CrawlRunRepo
}

func NewRunsHandler(log *logger.Logger, runs runsrepo.CrawlRunRepo) *RunsHandler {
	return &RunsHandler{
		log:  log.With("handler", "RunsHandler"),
		runs: runs,
	}
}

// GET /api/runs
func (h *RunsHandler) ListRuns(c *gin.Context) {
	limit := 20
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			response.RespondError(c, http.StatusBadRequest, "invalid_limit", errors.New("limit must be a positive integer"))
			return
		}
		if n > maxRunListLimit {
			n = maxRunListLimit
		}
		limit = n
	}

	rows, err := h.runs.ListRecent(dbctx.From(c.Request.Context()), limit)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "list_runs_failed", err)
		return
	}
	if rows == nil {
		rows = []*runs.CrawlRun{}
	}

	response.RespondOK(c, gin.H{"runs": rows})
}
