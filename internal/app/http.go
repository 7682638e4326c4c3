package app

import (
	"github.com/tz1211/datadetox/internal/http"
	httpH "github.com/tz1211/datadetox/internal/http/handlers"
	"github.com/tz1211/datadetox/internal/platform/logger"
)

type Handlers struct {
	Health     *httpH.HealthHandler
	Lineage    *httpH.LineageHandler
	Statistics *httpH.StatisticsHandler
	Runs       *httpH.RunsHandler
}

func wireHandlers(log *logger.Logger, services Services) Handlers {
	log.Info("Wiring handlers...")
	h := Handlers{
		Health:     httpH.NewHealthHandler(services.Graph),
		Lineage:    httpH.NewLineageHandler(log, services.Lineage),
		Statistics: httpH.NewStatisticsHandler(log, services.Lineage),
	}
	if services.Runs != nil {
		h.Runs = httpH.NewRunsHandler(log, services.Runs)
	}
	return h
}

func wireServer(log *logger.Logger, handlers Handlers) *http.Server {
	return http.NewServer(http.RouterConfig{
		Log:               log,
		HealthHandler:     handlers.Health,
		LineageHandler:    handlers.Lineage,
		StatisticsHandler: handlers.Statistics,
		RunsHandler:       handlers.Runs,
	})
}
