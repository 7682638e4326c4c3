package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Pinger reports whether the graph store behind the API is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	graph Pinger
}

func NewHealthHandler(graph Pinger) *HealthHandler {
	return &HealthHandler{graph: graph}
}

// HealthCheck reports liveness plus graph reachability. An unreachable
// graph degrades the body, not the status code: the process itself is
// still serving.
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	body := gin.H{"status": "ok"}
	if h.graph != nil {
		if err := h.graph.Ping(c.Request.Context()); err != nil {
			body["status"] = "degraded"
			body["graph"] = "unreachable"
		} else {
			body["graph"] = "ok"
		}
	}
	c.JSON(http.StatusOK, body)
}
