package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/tz1211/datadetox/internal/http/handlers"
	httpMW "github.com/tz1211/datadetox/internal/http/middleware"
	"github.com/tz1211/datadetox/internal/platform/logger"
)

type RouterConfig struct {
	Log *logger.Logger

	LineageHandler    *httpH.LineageHandler
	StatisticsHandler *httpH.StatisticsHandler
	RunsHandler       *httpH.RunsHandler

	HealthHandler *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware("datadetox"))
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.CORS())

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	api := r.Group("/api")
	{
		// Lineage
		if cfg.LineageHandler != nil {
			api.GET("/lineage/*id", cfg.LineageHandler.GetLineage)
		}

		// Graph statistics
		if cfg.StatisticsHandler != nil {
			api.GET("/statistics", cfg.StatisticsHandler.GetStatistics)
		}

		// Pipeline run ledger
		if cfg.RunsHandler != nil {
			api.GET("/runs", cfg.RunsHandler.ListRuns)
		}
	}

	return r
}
