package app

import (
	"fmt"

	"github.com/tz1211/datadetox/internal/crawler"
	graphstore "github.com/tz1211/datadetox/internal/data/graph"
	runsrepo "github.com/tz1211/datadetox/internal/data/repos/runs"
	"github.com/tz1211/datadetox/internal/graph"
	"github.com/tz1211/datadetox/internal/platform/logger"
	"github.com/tz1211/datadetox/internal/services"
	"github.com/tz1211/datadetox/internal/storage/snapshots"
)

type Services struct {
	Lineage  services.LineageService
	Pipeline services.PipelineService
	Runs     runsrepo.CrawlRunRepo

	// Graph is exposed for the health endpoint's reachability probe.
	Graph graphstore.LineageStore
}

func wireServices(log *logger.Logger, clients Clients) (Services, error) {
	log.Info("Wiring services...")

	classifier := crawler.NewClassifier(clients.Hub, log)
	crawl := crawler.New(clients.Hub, classifier, crawler.ConfigFromEnv(), log)
	builder := graph.NewBuilder(log)

	snapshotStore, err := snapshots.NewFromEnv(log)
	if err != nil {
		return Services{}, fmt.Errorf("init snapshot store: %w", err)
	}

	store := graphstore.NewLineageStore(clients.Neo4j, log)
	runRepo := runsrepo.NewCrawlRunRepo(clients.DB.DB(), log)

	lineageService := services.NewLineageService(log, store, clients.Cache, crawl, builder)
	pipelineService := services.NewPipelineService(log, crawl, builder, snapshotStore, store, clients.Cache, runRepo, 0)

	return Services{
		Lineage:  lineageService,
		Pipeline: pipelineService,
		Runs:     runRepo,
		Graph:    store,
	}, nil
}
