package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/tz1211/datadetox/internal/clients/redis"
	"github.com/tz1211/datadetox/internal/crawler"
	graphstore "github.com/tz1211/datadetox/internal/data/graph"
	"github.com/tz1211/datadetox/internal/domain/lineage"
	"github.com/tz1211/datadetox/internal/graph"
	"github.com/tz1211/datadetox/internal/platform/hfhub"
	"github.com/tz1211/datadetox/internal/platform/logger"
)

type LineageService interface {
	Lineage(ctx context.Context, entityID string) (lineage.LineageResult, error)
	Refresh(ctx context.Context, modelID string) (lineage.LineageResult, error)
	Statistics(ctx context.Context) (lineage.Statistics, error)
}

type lineageService struct {
	log     *logger.Logger
	store   graphstore.LineageStore
	cache   redis.LineageCache
	crawler *crawler.Crawler
	builder *graph.Builder
}

func NewLineageService(
	baseLog *logger.Logger,
	store graphstore.LineageStore,
	cache redis.LineageCache,
	crawl *crawler.Crawler,
	builder *graph.Builder,
) LineageService {
	serviceLog := baseLog.With("service", "LineageService")
	return &lineageService{
		log:     serviceLog,
		store:   store,
		cache:   cache,
		crawler: crawl,
		builder: builder,
	}
}

// Lineage serves the one-hop neighborhood for an entity, read-through
// cached when a cache is wired. Empty results are cached too: repeated
// lookups of unknown ids should not hammer the store.
func (ls *lineageService) Lineage(ctx context.Context, entityID string) (lineage.LineageResult, error) {
	entityID = strings.TrimSpace(entityID)
	if ls.cache != nil {
		if hit, ok := ls.cache.Get(ctx, entityID); ok {
			ls.log.Debug("lineage cache hit", "entity_id", entityID)
			return *hit, nil
		}
	}

	out, err := ls.store.Lineage(ctx, entityID)
	if err != nil {
		return out, err
	}
	if ls.cache != nil {
		ls.cache.Set(ctx, entityID, out)
	}
	return out, nil
}

// Refresh re-fetches one model from the registry, writes it and whatever
// the classifier found into the graph, and returns the fresh neighborhood.
// A registry 404 falls back to serving whatever the graph already holds.
func (ls *lineageService) Refresh(ctx context.Context, modelID string) (lineage.LineageResult, error) {
	modelID = strings.TrimSpace(modelID)
	if ls.crawler == nil || ls.builder == nil {
		ls.log.Warn("refresh requested but no registry client is wired; serving stored lineage", "model_id", modelID)
		return ls.Lineage(ctx, modelID)
	}

	crawled, err := ls.crawler.CrawlModel(ctx, modelID)
	if err != nil {
		if hfhub.IsNotFound(err) {
			ls.log.Warn("refresh target not in registry; serving stored lineage", "model_id", modelID)
			return ls.Lineage(ctx, modelID)
		}
		out := lineage.EmptyLineageResult()
		out.RootID = modelID
		return out, fmt.Errorf("refresh %q: %w", modelID, err)
	}

	snap := ls.builder.Build(crawled.Models, crawled.Relationships, crawled.Datasets)
	report, err := ls.store.Load(ctx, snap)
	if err != nil {
		out := lineage.EmptyLineageResult()
		out.RootID = modelID
		return out, fmt.Errorf("refresh load %q: %w", modelID, err)
	}
	ls.log.Info(
		"model refreshed",
		"model_id", modelID,
		"relationships_written", report.Relationships.Succeeded,
		"relationships_skipped", len(report.Relationships.Failures),
	)

	// A refreshed node can appear in any neighbor's cached result, so the
	// whole lineage keyspace goes.
	if ls.cache != nil {
		if err := ls.cache.Invalidate(ctx); err != nil {
			ls.log.Warn("cache invalidation after refresh failed", "error", err)
		}
	}
	return ls.Lineage(ctx, modelID)
}

func (ls *lineageService) Statistics(ctx context.Context) (lineage.Statistics, error) {
	return ls.store.Statistics(ctx)
}
